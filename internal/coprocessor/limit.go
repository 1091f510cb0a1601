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

// LimitExecutor caps its source at the first limit rows.
type LimitExecutor struct {
	src   Executor
	limit int
	count int
}

// NewLimit builds a LimitExecutor.
func NewLimit(src Executor, limit int) *LimitExecutor {
	return &LimitExecutor{src: src, limit: limit}
}

// Next implements Executor.
func (e *LimitExecutor) Next(ctx context.Context) (*Row, error) {
	if e.count >= e.limit {
		return nil, nil
	}
	row, err := e.src.Next(ctx)
	if err != nil || row == nil {
		return row, err
	}
	e.count++
	return row, nil
}
