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
	"encoding/binary"
	"fmt"

	"github.com/distkv/tikv-node/internal/codec"
	"github.com/distkv/tikv-node/internal/mvcc"
)

// IndexScanExecutor is a leaf reading a secondary index's key range.
// An index entry's key carries the memcomparable-encoded indexed
// column values after the index prefix; its value is the referenced
// row's handle. A scan is "covering" when every requested column is
// part of the index (cols); IndexScanExecutor only ever decodes from
// the key, so it cannot project columns outside the index.
type IndexScanExecutor struct {
	reader Reader
	ranges []KeyRange
	cols   []ColumnInfo
	desc   bool
	ctx    *EvalContext

	rangeIdx  int
	buffered  []mvcc.Value
	bufferIdx int
}

// NewIndexScan builds an IndexScanExecutor over the given index key
// ranges, decoding cols (in index-column order) from each entry's key.
func NewIndexScan(reader Reader, ranges []KeyRange, cols []ColumnInfo, desc bool, ctx *EvalContext) *IndexScanExecutor {
	rs := append([]KeyRange(nil), ranges...)
	if desc {
		for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
			rs[i], rs[j] = rs[j], rs[i]
		}
	}
	return &IndexScanExecutor{reader: reader, ranges: rs, cols: cols, desc: desc, ctx: ctx}
}

// Next implements Executor.
func (e *IndexScanExecutor) Next(ctx context.Context) (*Row, error) {
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
			return e.decodeEntry(v)
		}
		if e.rangeIdx >= len(e.ranges) {
			return nil, nil
		}
		r := e.ranges[e.rangeIdx]
		e.rangeIdx++

		vals, err := e.reader.Scan(ctx, r.StartKey, r.EndKey, 0)
		if err != nil {
			return nil, fmt.Errorf("coprocessor: index scan: %w", err)
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

func (e *IndexScanExecutor) decodeEntry(v mvcc.Value) (*Row, error) {
	rest, ok := indexValuesSuffix(v.Key)
	if !ok {
		return nil, fmt.Errorf("coprocessor: index scan: key %x is not an index key", v.Key)
	}

	values := make([]Datum, len(e.cols))
	for i, col := range e.cols {
		d, tail, err := decodeIndexDatum(rest, col.Kind)
		if err != nil {
			return nil, fmt.Errorf("coprocessor: index scan: column %d: %w", col.ID, err)
		}
		values[i] = d
		rest = tail
	}

	if len(v.Value) != 8 {
		return nil, fmt.Errorf("coprocessor: index scan: handle value must be 8 bytes, got %d", len(v.Value))
	}
	handle := int64(binary.BigEndian.Uint64(v.Value))
	e.ctx.AddScanned(1)
	return &Row{Handle: handle, Values: values}, nil
}

// indexValuesSuffix strips the t{table_id}_i{index_id}_ prefix from an
// index key, returning the memcomparable-encoded column values tail.
func indexValuesSuffix(key []byte) ([]byte, bool) {
	if len(key) < 18 || key[0] != codec.TablePrefix {
		return nil, false
	}
	return key[18:], true
}

func decodeIndexDatum(b []byte, kind DatumKind) (Datum, []byte, error) {
	switch kind {
	case DatumInt64:
		rest, v, err := codec.DecodeIntAscending(b)
		if err != nil {
			return Datum{}, nil, err
		}
		return Datum{Kind: DatumInt64, I: v}, rest, nil
	case DatumBytes:
		rest, v, err := codec.DecodeBytesAscending(b)
		if err != nil {
			return Datum{}, nil, err
		}
		return Datum{Kind: DatumBytes, B: v}, rest, nil
	case DatumDecimal:
		rest, v, err := codec.DecodeDecimalAscending(b)
		if err != nil {
			return Datum{}, nil, err
		}
		return Datum{Kind: DatumDecimal, D: v}, rest, nil
	default:
		return Datum{}, nil, fmt.Errorf("unsupported index column kind %s", kind)
	}
}
