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

// Package coprocessor implements the pull-based executor pipeline that
// evaluates a push-down request against a snapshot of table data:
// TableScan/IndexScan leaves feed Selection, HashAgg/StreamAgg, TopN,
// and Limit nodes, each exposing a uniform Next(ctx) (*Row, error)
// call that returns a nil row once its input is exhausted.
package coprocessor

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DatumKind tags the dynamic type carried by a Datum.
type DatumKind uint8

const (
	DatumNull DatumKind = iota
	DatumInt64
	DatumBytes
	DatumDecimal
)

func (k DatumKind) String() string {
	switch k {
	case DatumNull:
		return "null"
	case DatumInt64:
		return "int64"
	case DatumBytes:
		return "bytes"
	case DatumDecimal:
		return "decimal"
	default:
		return "unknown"
	}
}

// Datum is one column value flowing through the executor pipeline.
// Only the field matching Kind is meaningful.
type Datum struct {
	Kind DatumKind
	I    int64
	B    []byte
	D    decimal.Decimal
}

// Row is one row of a table, decoded to the column list the reading
// executor was built with: Values[i] corresponds to the i-th column
// the executor was asked to project, not necessarily the column's
// position in the underlying table.
type Row struct {
	Handle int64
	Values []Datum
}

// Compare orders two Datums of the same Kind, returning <0, 0, >0 for
// a<b, a==b, a>b. Comparing across Kinds (other than against a null)
// is a comparator error per spec: an incompatible-type comparison
// fails the whole request rather than silently coercing.
func Compare(a, b Datum) (int, error) {
	if a.Kind == DatumNull || b.Kind == DatumNull {
		switch {
		case a.Kind == b.Kind:
			return 0, nil
		case a.Kind == DatumNull:
			return -1, nil
		default:
			return 1, nil
		}
	}
	if a.Kind != b.Kind {
		return 0, fmt.Errorf("coprocessor: cannot compare %s with %s", a.Kind, b.Kind)
	}
	switch a.Kind {
	case DatumInt64:
		switch {
		case a.I < b.I:
			return -1, nil
		case a.I > b.I:
			return 1, nil
		default:
			return 0, nil
		}
	case DatumBytes:
		return compareBytes(a.B, b.B), nil
	case DatumDecimal:
		return a.D.Cmp(b.D), nil
	default:
		return 0, fmt.Errorf("coprocessor: cannot compare datums of kind %s", a.Kind)
	}
}

func compareBytes(a, b []byte) int {
	switch {
	case string(a) < string(b):
		return -1
	case string(a) > string(b):
		return 1
	default:
		return 0
	}
}
