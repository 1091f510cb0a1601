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

import (
	"context"
	"fmt"

	"github.com/distkv/tikv-node/internal/codec"
	"github.com/distkv/tikv-node/internal/mvcc"
	"github.com/distkv/tikv-node/pkg/pool"
)

// rowMapPool supplies the scratch map decodeRow decodes a row's columns
// into. Its lifetime is confined to a single decodeRow call: the map
// itself never escapes that function, only the Datum values copied out
// of it into the returned Row's Values slice, so reuse across calls is
// safe even though the returned Rows can be retained arbitrarily long
// (by TopN's heap, or by the caller) after decodeRow returns.
var rowMapPool = pool.New(func() map[int64]Datum { return make(map[int64]Datum, 8) })

func clearDatumMap(m map[int64]Datum) {
	for k := range m {
		delete(m, k)
	}
}

// KeyRange is one [StartKey, EndKey) range a scan executor walks.
type KeyRange struct {
	StartKey []byte
	EndKey   []byte
}

// Reader is the narrow snapshot-read surface TableScan/IndexScan need:
// a transactional range scan as of the read timestamp the coprocessor
// request carries, already resolved to a region's storage facade by
// the caller (the request's start_ts is fixed once for the whole DAG,
// so it is baked into the Reader rather than threaded through Next).
type Reader interface {
	Scan(ctx context.Context, startKey, endKey []byte, limit int) ([]mvcc.Value, error)
}

// TableScanExecutor is a leaf that walks one or more key ranges over a
// table's row keyspace, decoding each row into the requested column
// list. Ranges are walked in order, reversed when desc (a descending
// query scans from the highest-keyed range down), and each range's
// rows are read from the Reader in one batch.
type TableScanExecutor struct {
	reader Reader
	ranges []KeyRange
	cols   []ColumnInfo
	desc   bool
	ctx    *EvalContext

	rangeIdx  int
	buffered  []mvcc.Value
	bufferIdx int
	scanned   int64
}

// NewTableScan builds a TableScanExecutor. ranges is copied and, if
// desc, reversed so the scan visits the highest range first.
func NewTableScan(reader Reader, ranges []KeyRange, cols []ColumnInfo, desc bool, ctx *EvalContext) *TableScanExecutor {
	rs := append([]KeyRange(nil), ranges...)
	if desc {
		for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
			rs[i], rs[j] = rs[j], rs[i]
		}
	}
	return &TableScanExecutor{reader: reader, ranges: rs, cols: cols, desc: desc, ctx: ctx}
}

// Next implements Executor.
func (e *TableScanExecutor) Next(ctx context.Context) (*Row, error) {
	for {
		if err := e.ctx.CheckDeadline(); err != nil {
			return nil, err
		}
		if e.bufferIdx < len(e.buffered) {
			v := e.buffered[e.bufferIdx]
			e.bufferIdx++
			if v.Deleted || v.Value == nil {
				continue
			}
			return e.decodeRow(v)
		}
		if e.rangeIdx >= len(e.ranges) {
			return nil, nil
		}
		r := e.ranges[e.rangeIdx]
		e.rangeIdx++

		vals, err := e.reader.Scan(ctx, r.StartKey, r.EndKey, 0)
		if err != nil {
			return nil, fmt.Errorf("coprocessor: table scan: %w", err)
		}
		if e.desc {
			for i, j := 0, len(vals)-1; i < j; i, j = i+1, j-1 {
				vals[i], vals[j] = vals[j], vals[i]
			}
		}
		e.buffered = vals
		e.bufferIdx = 0
	}
}

func (e *TableScanExecutor) decodeRow(v mvcc.Value) (*Row, error) {
	_, handle, ok := codec.TableRowHandle(v.Key)
	if !ok {
		return nil, fmt.Errorf("coprocessor: table scan: key %x is not a table row key", v.Key)
	}
	decoded := rowMapPool.Get()
	defer rowMapPool.Put(decoded, clearDatumMap)
	if err := decodeRowInto(decoded, v.Value); err != nil {
		return nil, fmt.Errorf("coprocessor: table scan: handle %d: %w", handle, err)
	}

	values := make([]Datum, len(e.cols))
	for i, col := range e.cols {
		if d, ok := decoded[col.ID]; ok {
			values[i] = d
		} else {
			values[i] = Datum{Kind: DatumNull}
		}
	}
	e.scanned++
	e.ctx.AddScanned(1)
	return &Row{Handle: handle, Values: values}, nil
}
