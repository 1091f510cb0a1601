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
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/distkv/tikv-node/internal/codec"
	"github.com/distkv/tikv-node/internal/mvcc"
)

// fakeReader serves Scan over an in-memory, sorted set of rows; it
// stands in for a storage.Facade.Scan call so these tests exercise
// executor logic without raft/mvcc plumbing.
type fakeReader struct {
	rows []mvcc.Value
}

func newFakeReader() *fakeReader { return &fakeReader{} }

func (f *fakeReader) put(key, value []byte) {
	f.rows = append(f.rows, mvcc.Value{Key: key, Value: value})
	sort.Slice(f.rows, func(i, j int) bool { return bytes.Compare(f.rows[i].Key, f.rows[j].Key) < 0 })
}

func (f *fakeReader) Scan(_ context.Context, startKey, endKey []byte, limit int) ([]mvcc.Value, error) {
	var out []mvcc.Value
	for _, v := range f.rows {
		if bytes.Compare(v.Key, startKey) < 0 {
			continue
		}
		if len(endKey) > 0 && bytes.Compare(v.Key, endKey) >= 0 {
			break
		}
		out = append(out, v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

const tid int64 = 1

func seedTopNTable(t *testing.T) *fakeReader {
	t.Helper()
	type row struct {
		handle int64
		letter string
		num    int64
	}
	rows := []row{
		{1, "a", 7}, {2, "b", 7}, {3, "b", 8}, {4, "d", 3},
		{5, "f", 5}, {6, "e", 9}, {7, "f", 6},
	}
	cols := []int64{1, 2, 3}
	r := newFakeReader()
	for _, row := range rows {
		values := []Datum{
			{Kind: DatumInt64, I: row.handle},
			{Kind: DatumBytes, B: []byte(row.letter)},
			{Kind: DatumDecimal, D: decimal.NewFromInt(row.num)},
		}
		enc, err := EncodeRow(cols, values)
		require.NoError(t, err)
		r.put(codec.TableRowKey(tid, row.handle), enc)
	}
	return r
}

func TestTableScanMultipleRangesDecodesRows(t *testing.T) {
	r := seedTopNTable(t)
	cols := []ColumnInfo{{ID: 1, Kind: DatumInt64}, {ID: 2, Kind: DatumBytes}, {ID: 3, Kind: DatumDecimal}}
	ranges := []KeyRange{
		{StartKey: codec.TableRowKey(tid, 0), EndKey: codec.TableRowKey(tid, 4)},
		{StartKey: codec.TableRowKey(tid, 5), EndKey: codec.TableRowKey(tid, 10)},
	}
	scan := NewTableScan(r, ranges, cols, false, NewEvalContext())

	var handles []int64
	for {
		row, err := scan.Next(context.Background())
		require.NoError(t, err)
		if row == nil {
			break
		}
		handles = append(handles, row.Handle)
	}
	// handle 4 falls outside both ranges: [0,4) excludes it, [5,10)
	// starts past it.
	require.Equal(t, []int64{1, 2, 3, 5, 6, 7}, handles)
}

func TestTopNScenarioS3(t *testing.T) {
	// Scenario S3: order by col2 asc, col3 desc, limit 4 over the rows
	// reachable by the two key ranges above -> handles [1,3,2,6].
	r := seedTopNTable(t)
	cols := []ColumnInfo{{ID: 1, Kind: DatumInt64}, {ID: 2, Kind: DatumBytes}, {ID: 3, Kind: DatumDecimal}}
	ranges := []KeyRange{
		{StartKey: codec.TableRowKey(tid, 0), EndKey: codec.TableRowKey(tid, 4)},
		{StartKey: codec.TableRowKey(tid, 5), EndKey: codec.TableRowKey(tid, 10)},
	}
	ctx := NewEvalContext()
	scan := NewTableScan(r, ranges, cols, false, ctx)
	topn := NewTopN(scan, []OrderByItem{
		{Expr: ColumnRef(1), Desc: false},
		{Expr: ColumnRef(2), Desc: true},
	}, 4, ctx)

	var handles []int64
	for {
		row, err := topn.Next(context.Background())
		require.NoError(t, err)
		if row == nil {
			break
		}
		handles = append(handles, row.Handle)
	}
	require.Equal(t, []int64{1, 3, 2, 6}, handles)
}

func TestTopNLimitZeroReturnsNothing(t *testing.T) {
	r := seedTopNTable(t)
	cols := []ColumnInfo{{ID: 1, Kind: DatumInt64}, {ID: 2, Kind: DatumBytes}, {ID: 3, Kind: DatumDecimal}}
	ranges := []KeyRange{{StartKey: codec.TableRowKey(tid, 0), EndKey: codec.TableRowKey(tid, 8)}}
	ctx := NewEvalContext()
	scan := NewTableScan(r, ranges, cols, false, ctx)
	topn := NewTopN(scan, []OrderByItem{{Expr: ColumnRef(1), Desc: false}}, 0, ctx)

	row, err := topn.Next(context.Background())
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestTopNComparatorErrorFailsRequest(t *testing.T) {
	ctx := NewEvalContext()
	r := newFakeReader()
	cols := []int64{1, 2}
	row1, err := EncodeRow(cols, []Datum{{Kind: DatumInt64, I: 1}, {Kind: DatumInt64, I: 5}})
	require.NoError(t, err)
	row2, err := EncodeRow(cols, []Datum{{Kind: DatumInt64, I: 2}, {Kind: DatumBytes, B: []byte("x")}})
	require.NoError(t, err)
	r.put(codec.TableRowKey(tid, 1), row1)
	r.put(codec.TableRowKey(tid, 2), row2)

	colInfos := []ColumnInfo{{ID: 1, Kind: DatumInt64}, {ID: 2, Kind: DatumInt64}}
	ranges := []KeyRange{{StartKey: codec.TableRowKey(tid, 0), EndKey: codec.TableRowKey(tid, 10)}}
	scan := NewTableScan(r, ranges, colInfos, false, ctx)
	topn := NewTopN(scan, []OrderByItem{{Expr: ColumnRef(1), Desc: false}}, 2, ctx)

	_, err = topn.Next(context.Background())
	require.Error(t, err)
}
