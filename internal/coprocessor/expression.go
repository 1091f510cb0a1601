// Copyright 2025 The axfor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package coprocessor

import "fmt"

// Expression evaluates to one Datum given a row and the shared
// EvalContext. The closed executor tree builds these directly from a
// request's serialized expression tree; the handful of constructors
// below cover what TableScan/Selection/TopN/Aggregation need.
type Expression func(ctx *EvalContext, row *Row) (Datum, error)

// ColumnRef returns the Expression reading the row's offset-th
// projected column.
func ColumnRef(offset int) Expression {
	return func(_ *EvalContext, row *Row) (Datum, error) {
		if offset < 0 || offset >= len(row.Values) {
			return Datum{}, fmt.Errorf("coprocessor: column offset %d out of range (row has %d columns)", offset, len(row.Values))
		}
		return row.Values[offset], nil
	}
}

// Constant returns an Expression that always evaluates to d.
func Constant(d Datum) Expression {
	return func(*EvalContext, *Row) (Datum, error) {
		return d, nil
	}
}

// truthy reports whether a Datum counts as true for a Selection
// predicate: SQL's usual "non-zero, non-null" rule.
func truthy(d Datum) bool {
	switch d.Kind {
	case DatumNull:
		return false
	case DatumInt64:
		return d.I != 0
	case DatumBytes:
		return len(d.B) > 0
	case DatumDecimal:
		return !d.D.IsZero()
	default:
		return false
	}
}
