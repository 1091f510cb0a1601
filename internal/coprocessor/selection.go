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

// SelectionExecutor filters its source, pulling rows until one
// satisfies every condition (conjunction) or the source is exhausted.
type SelectionExecutor struct {
	src   Executor
	conds []Expression
	ctx   *EvalContext
}

// NewSelection builds a SelectionExecutor requiring every cond to be
// truthy for a row to pass.
func NewSelection(src Executor, conds []Expression, ctx *EvalContext) *SelectionExecutor {
	return &SelectionExecutor{src: src, conds: conds, ctx: ctx}
}

// Next implements Executor.
func (e *SelectionExecutor) Next(ctx context.Context) (*Row, error) {
	for {
		if err := e.ctx.CheckDeadline(); err != nil {
			return nil, err
		}
		row, err := e.src.Next(ctx)
		if err != nil || row == nil {
			return row, err
		}
		keep, err := e.matches(row)
		if err != nil {
			return nil, err
		}
		if keep {
			return row, nil
		}
	}
}

func (e *SelectionExecutor) matches(row *Row) (bool, error) {
	for _, cond := range e.conds {
		d, err := cond(e.ctx, row)
		if err != nil {
			return false, err
		}
		if !truthy(d) {
			return false, nil
		}
	}
	return true, nil
}
