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
	"math"

	"github.com/shopspring/decimal"
)

// AggFuncKind names one aggregate function. Each has its own overflow
// and null-handling rules, defined by the SQL type it operates over.
type AggFuncKind uint8

const (
	AggCount AggFuncKind = iota
	AggSum
	AggAvg
	AggMin
	AggMax
	AggFirst
	AggBitOr
	AggBitAnd
	AggBitXor
)

// AggFuncDesc is one aggregate function applied to the value of Arg,
// evaluated once per input row.
type AggFuncDesc struct {
	Kind AggFuncKind
	Arg  Expression
}

// accumulator folds one column of input rows into a single Datum.
type accumulator interface {
	update(d Datum) error
	result() (Datum, error)
}

func newAccumulator(kind AggFuncKind) (accumulator, error) {
	switch kind {
	case AggCount:
		return &countAcc{}, nil
	case AggSum:
		return &sumAcc{}, nil
	case AggAvg:
		return &avgAcc{}, nil
	case AggMin:
		return &extremeAcc{wantMin: true}, nil
	case AggMax:
		return &extremeAcc{wantMin: false}, nil
	case AggFirst:
		return &firstAcc{}, nil
	case AggBitOr:
		return &bitAcc{op: bitOr}, nil
	case AggBitAnd:
		return &bitAcc{op: bitAnd, acc: -1}, nil
	case AggBitXor:
		return &bitAcc{op: bitXor}, nil
	default:
		return nil, fmt.Errorf("coprocessor: unsupported aggregate function %d", kind)
	}
}

type countAcc struct{ n int64 }

func (a *countAcc) update(d Datum) error {
	if d.Kind != DatumNull {
		a.n++
	}
	return nil
}
func (a *countAcc) result() (Datum, error) { return Datum{Kind: DatumInt64, I: a.n}, nil }

// sumAcc accumulates in decimal.Decimal so partial sums never overflow
// mid-aggregation; only the final conversion back to an integer result
// can overflow, at which point it is a reportable error rather than a
// silent wraparound.
type sumAcc struct {
	sum    decimal.Decimal
	sawDec bool
	any    bool
}

func (a *sumAcc) update(d Datum) error {
	switch d.Kind {
	case DatumNull:
		return nil
	case DatumInt64:
		a.sum = a.sum.Add(decimal.NewFromInt(d.I))
		a.any = true
	case DatumDecimal:
		a.sum = a.sum.Add(d.D)
		a.sawDec = true
		a.any = true
	default:
		return fmt.Errorf("coprocessor: sum: unsupported datum kind %s", d.Kind)
	}
	return nil
}

func (a *sumAcc) result() (Datum, error) {
	if !a.any {
		return Datum{Kind: DatumNull}, nil
	}
	if a.sawDec {
		return Datum{Kind: DatumDecimal, D: a.sum}, nil
	}
	if !a.sum.IsInteger() || a.sum.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || a.sum.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return Datum{}, fmt.Errorf("coprocessor: sum: overflow")
	}
	return Datum{Kind: DatumInt64, I: a.sum.IntPart()}, nil
}

type avgAcc struct {
	sum decimal.Decimal
	n   int64
}

func (a *avgAcc) update(d Datum) error {
	switch d.Kind {
	case DatumNull:
		return nil
	case DatumInt64:
		a.sum = a.sum.Add(decimal.NewFromInt(d.I))
		a.n++
	case DatumDecimal:
		a.sum = a.sum.Add(d.D)
		a.n++
	default:
		return fmt.Errorf("coprocessor: avg: unsupported datum kind %s", d.Kind)
	}
	return nil
}

func (a *avgAcc) result() (Datum, error) {
	if a.n == 0 {
		return Datum{Kind: DatumNull}, nil
	}
	return Datum{Kind: DatumDecimal, D: a.sum.Div(decimal.NewFromInt(a.n))}, nil
}

type extremeAcc struct {
	wantMin bool
	best    Datum
	any     bool
}

func (a *extremeAcc) update(d Datum) error {
	if d.Kind == DatumNull {
		return nil
	}
	if !a.any {
		a.best, a.any = d, true
		return nil
	}
	c, err := Compare(d, a.best)
	if err != nil {
		return err
	}
	if (a.wantMin && c < 0) || (!a.wantMin && c > 0) {
		a.best = d
	}
	return nil
}

func (a *extremeAcc) result() (Datum, error) {
	if !a.any {
		return Datum{Kind: DatumNull}, nil
	}
	return a.best, nil
}

type firstAcc struct {
	val Datum
	any bool
}

func (a *firstAcc) update(d Datum) error {
	if !a.any {
		a.val, a.any = d, true
	}
	return nil
}
func (a *firstAcc) result() (Datum, error) {
	if !a.any {
		return Datum{Kind: DatumNull}, nil
	}
	return a.val, nil
}

type bitOp uint8

const (
	bitOr bitOp = iota
	bitAnd
	bitXor
)

// bitAcc implements BitOr/BitAnd/BitXor. SQL's identity elements are
// respected via the starting acc value: 0 for OR/XOR, all-ones (-1)
// for AND, so an all-NULL group yields the identity rather than 0.
type bitAcc struct {
	op  bitOp
	acc int64
}

func (a *bitAcc) update(d Datum) error {
	if d.Kind == DatumNull {
		return nil
	}
	if d.Kind != DatumInt64 {
		return fmt.Errorf("coprocessor: bit aggregate: unsupported datum kind %s", d.Kind)
	}
	switch a.op {
	case bitOr:
		a.acc |= d.I
	case bitAnd:
		a.acc &= d.I
	case bitXor:
		a.acc ^= d.I
	}
	return nil
}

func (a *bitAcc) result() (Datum, error) { return Datum{Kind: DatumInt64, I: a.acc}, nil }

// groupKey returns a byte string uniquely identifying a group-by
// tuple's values, suitable as a Go map key. It reuses the same
// tag-plus-payload shape as EncodeRow but without column ids, since
// grouping only needs values to compare equal, not to round-trip.
func groupKey(values []Datum) (string, error) {
	var buf []byte
	tmp := make([]byte, binary.MaxVarintLen64)
	for _, v := range values {
		buf = append(buf, byte(v.Kind))
		switch v.Kind {
		case DatumNull:
		case DatumInt64:
			var b8 [8]byte
			binary.BigEndian.PutUint64(b8[:], uint64(v.I))
			buf = append(buf, b8[:]...)
		case DatumBytes:
			n := binary.PutUvarint(tmp, uint64(len(v.B)))
			buf = append(buf, tmp[:n]...)
			buf = append(buf, v.B...)
		case DatumDecimal:
			s := v.D.String()
			n := binary.PutUvarint(tmp, uint64(len(s)))
			buf = append(buf, tmp[:n]...)
			buf = append(buf, s...)
		default:
			return "", fmt.Errorf("coprocessor: group by: unsupported datum kind %s", v.Kind)
		}
	}
	return string(buf), nil
}

// HashAggExecutor groups its (fully materialized) source by the
// evaluated tuple of groupBy expressions, independent of input order.
type HashAggExecutor struct {
	src     Executor
	groupBy []Expression
	aggs    []AggFuncDesc
	ctx     *EvalContext

	rows    []*Row
	fetched bool
	pos     int
}

// NewHashAgg builds a HashAggExecutor.
func NewHashAgg(src Executor, groupBy []Expression, aggs []AggFuncDesc, ctx *EvalContext) *HashAggExecutor {
	return &HashAggExecutor{src: src, groupBy: groupBy, aggs: aggs, ctx: ctx}
}

type aggGroup struct {
	groupVals []Datum
	accs      []accumulator
}

func (e *HashAggExecutor) fetchAll(ctx context.Context) error {
	order := make([]string, 0)
	groups := make(map[string]*aggGroup)

	for {
		if err := e.ctx.CheckDeadline(); err != nil {
			return err
		}
		row, err := e.src.Next(ctx)
		if err != nil {
			return err
		}
		if row == nil {
			break
		}

		groupVals := make([]Datum, len(e.groupBy))
		for i, expr := range e.groupBy {
			d, err := expr(e.ctx, row)
			if err != nil {
				return err
			}
			groupVals[i] = d
		}
		key, err := groupKey(groupVals)
		if err != nil {
			return err
		}
		g, ok := groups[key]
		if !ok {
			accs := make([]accumulator, len(e.aggs))
			for i, desc := range e.aggs {
				acc, err := newAccumulator(desc.Kind)
				if err != nil {
					return err
				}
				accs[i] = acc
			}
			g = &aggGroup{groupVals: groupVals, accs: accs}
			groups[key] = g
			order = append(order, key)
		}
		for i, desc := range e.aggs {
			d, err := desc.Arg(e.ctx, row)
			if err != nil {
				return err
			}
			if err := g.accs[i].update(d); err != nil {
				return err
			}
		}
	}

	rows := make([]*Row, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row, err := g.toRow()
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	e.rows = rows
	e.fetched = true
	return nil
}

func (g *aggGroup) toRow() (*Row, error) {
	values := make([]Datum, 0, len(g.groupVals)+len(g.accs))
	values = append(values, g.groupVals...)
	for _, acc := range g.accs {
		d, err := acc.result()
		if err != nil {
			return nil, err
		}
		values = append(values, d)
	}
	return &Row{Values: values}, nil
}

// Next implements Executor.
func (e *HashAggExecutor) Next(ctx context.Context) (*Row, error) {
	if !e.fetched {
		if err := e.fetchAll(ctx); err != nil {
			return nil, err
		}
	}
	if e.pos >= len(e.rows) {
		return nil, nil
	}
	row := e.rows[e.pos]
	e.pos++
	return row, nil
}

// StreamAggExecutor assumes its source is already sorted by the
// group-by tuple and emits one aggregated row per group boundary,
// without buffering the whole input like HashAgg.
type StreamAggExecutor struct {
	src     Executor
	groupBy []Expression
	aggs    []AggFuncDesc
	ctx     *EvalContext

	cur     *aggGroup
	done    bool
	pending *Row
}

// NewStreamAgg builds a StreamAggExecutor.
func NewStreamAgg(src Executor, groupBy []Expression, aggs []AggFuncDesc, ctx *EvalContext) *StreamAggExecutor {
	return &StreamAggExecutor{src: src, groupBy: groupBy, aggs: aggs, ctx: ctx}
}

func (e *StreamAggExecutor) newGroup(groupVals []Datum) (*aggGroup, error) {
	accs := make([]accumulator, len(e.aggs))
	for i, desc := range e.aggs {
		acc, err := newAccumulator(desc.Kind)
		if err != nil {
			return nil, err
		}
		accs[i] = acc
	}
	return &aggGroup{groupVals: groupVals, accs: accs}, nil
}

// Next implements Executor.
func (e *StreamAggExecutor) Next(ctx context.Context) (*Row, error) {
	if e.pending != nil {
		row := e.pending
		e.pending = nil
		return row, nil
	}
	if e.done {
		return nil, nil
	}

	for {
		if err := e.ctx.CheckDeadline(); err != nil {
			return nil, err
		}
		row, err := e.src.Next(ctx)
		if err != nil {
			return nil, err
		}
		if row == nil {
			e.done = true
			if e.cur == nil {
				return nil, nil
			}
			return e.cur.toRow()
		}

		groupVals := make([]Datum, len(e.groupBy))
		for i, expr := range e.groupBy {
			d, err := expr(e.ctx, row)
			if err != nil {
				return nil, err
			}
			groupVals[i] = d
		}

		if e.cur == nil {
			e.cur, err = e.newGroup(groupVals)
			if err != nil {
				return nil, err
			}
		} else if changed, err := groupChanged(e.cur.groupVals, groupVals); err != nil {
			return nil, err
		} else if changed {
			finished := e.cur
			e.cur, err = e.newGroup(groupVals)
			if err != nil {
				return nil, err
			}
			if err := e.accumulate(e.cur, row); err != nil {
				return nil, err
			}
			return finished.toRow()
		}

		if err := e.accumulate(e.cur, row); err != nil {
			return nil, err
		}
	}
}

func (e *StreamAggExecutor) accumulate(g *aggGroup, row *Row) error {
	for i, desc := range e.aggs {
		d, err := desc.Arg(e.ctx, row)
		if err != nil {
			return err
		}
		if err := g.accs[i].update(d); err != nil {
			return err
		}
	}
	return nil
}

func groupChanged(a, b []Datum) (bool, error) {
	ka, err := groupKey(a)
	if err != nil {
		return false, err
	}
	kb, err := groupKey(b)
	if err != nil {
		return false, err
	}
	return ka != kb, nil
}
