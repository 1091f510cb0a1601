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
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// rowSourceExecutor replays a fixed, in-memory slice of rows, for
// exercising Selection/Limit/HashAgg/StreamAgg without a real scan.
type rowSourceExecutor struct {
	rows []*Row
	pos  int
}

func (s *rowSourceExecutor) Next(context.Context) (*Row, error) {
	if s.pos >= len(s.rows) {
		return nil, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func intRow(vals ...int64) *Row {
	values := make([]Datum, len(vals))
	for i, v := range vals {
		values[i] = Datum{Kind: DatumInt64, I: v}
	}
	return &Row{Values: values}
}

func TestSelectionFiltersByPredicate(t *testing.T) {
	src := &rowSourceExecutor{rows: []*Row{intRow(1), intRow(0), intRow(2), intRow(0), intRow(3)}}
	ctx := NewEvalContext()
	sel := NewSelection(src, []Expression{ColumnRef(0)}, ctx)

	var got []int64
	for {
		row, err := sel.Next(context.Background())
		require.NoError(t, err)
		if row == nil {
			break
		}
		got = append(got, row.Values[0].I)
	}
	require.Equal(t, []int64{1, 2, 3}, got)
}

func TestLimitCapsRowCount(t *testing.T) {
	src := &rowSourceExecutor{rows: []*Row{intRow(1), intRow(2), intRow(3), intRow(4)}}
	lim := NewLimit(src, 2)

	var got []int64
	for {
		row, err := lim.Next(context.Background())
		require.NoError(t, err)
		if row == nil {
			break
		}
		got = append(got, row.Values[0].I)
	}
	require.Equal(t, []int64{1, 2}, got)
}

func TestHashAggGroupsRegardlessOfInputOrder(t *testing.T) {
	// group (col0) -> sum(col1): group 1 -> 1+3=4, group 2 -> 2+4=6.
	src := &rowSourceExecutor{rows: []*Row{
		intRow(1, 1), intRow(2, 2), intRow(1, 3), intRow(2, 4),
	}}
	ctx := NewEvalContext()
	agg := NewHashAgg(src, []Expression{ColumnRef(0)}, []AggFuncDesc{{Kind: AggSum, Arg: ColumnRef(1)}}, ctx)

	type result struct{ group, sum int64 }
	var got []result
	for {
		row, err := agg.Next(context.Background())
		require.NoError(t, err)
		if row == nil {
			break
		}
		got = append(got, result{row.Values[0].I, row.Values[1].I})
	}
	sort.Slice(got, func(i, j int) bool { return got[i].group < got[j].group })
	require.Equal(t, []result{{1, 4}, {2, 6}}, got)
}

func TestStreamAggEmitsOnGroupBoundary(t *testing.T) {
	// pre-sorted input: group 1 (values 1,3), group 2 (value 2).
	src := &rowSourceExecutor{rows: []*Row{intRow(1, 1), intRow(1, 3), intRow(2, 2)}}
	ctx := NewEvalContext()
	agg := NewStreamAgg(src, []Expression{ColumnRef(0)}, []AggFuncDesc{{Kind: AggSum, Arg: ColumnRef(1)}}, ctx)

	row1, err := agg.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, row1)
	require.Equal(t, int64(1), row1.Values[0].I)
	require.Equal(t, int64(4), row1.Values[1].I)

	row2, err := agg.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, row2)
	require.Equal(t, int64(2), row2.Values[0].I)
	require.Equal(t, int64(2), row2.Values[1].I)

	row3, err := agg.Next(context.Background())
	require.NoError(t, err)
	require.Nil(t, row3)
}

func TestBitAndIdentityOnAllNullGroup(t *testing.T) {
	acc, err := newAccumulator(AggBitAnd)
	require.NoError(t, err)
	require.NoError(t, acc.update(Datum{Kind: DatumNull}))
	d, err := acc.result()
	require.NoError(t, err)
	require.Equal(t, int64(-1), d.I)
}

func TestAvgReturnsNullOnEmptyGroup(t *testing.T) {
	acc, err := newAccumulator(AggAvg)
	require.NoError(t, err)
	d, err := acc.result()
	require.NoError(t, err)
	require.Equal(t, DatumNull, d.Kind)
}
