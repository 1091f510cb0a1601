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

import "context"

// TopNExecutor accumulates its entire source into a bounded max-heap
// keyed by the evaluated order-by tuple, then serves rows in sorted
// order once the source is exhausted. Unlike every other executor in
// this package it cannot be fully pipelined: the first row cannot be
// produced before the last row of its source has been read.
type TopNExecutor struct {
	src     Executor
	items   []OrderByItem
	limit   int
	ctx     *EvalContext
	sorted  []*sortRow
	fetched bool
	pos     int
}

// NewTopN builds a TopNExecutor ordering src's rows by items, keeping
// at most limit of them.
func NewTopN(src Executor, items []OrderByItem, limit int, ctx *EvalContext) *TopNExecutor {
	return &TopNExecutor{src: src, items: items, limit: limit, ctx: ctx}
}

func (e *TopNExecutor) fetchAll(ctx context.Context) error {
	h := newTopNHeap(e.limit, e.items)
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
		key := make([]Datum, len(e.items))
		for i, it := range e.items {
			d, err := it.Expr(e.ctx, row)
			if err != nil {
				return err
			}
			key[i] = d
		}
		if err := h.tryAdd(row, key); err != nil {
			return err
		}
	}
	sorted, err := h.intoSortedSlice()
	if err != nil {
		return err
	}
	e.sorted = sorted
	e.fetched = true
	return nil
}

// Next implements Executor.
func (e *TopNExecutor) Next(ctx context.Context) (*Row, error) {
	if !e.fetched {
		if err := e.fetchAll(ctx); err != nil {
			return nil, err
		}
	}
	if e.pos >= len(e.sorted) {
		return nil, nil
	}
	row := e.sorted[e.pos].row
	e.pos++
	return row, nil
}
