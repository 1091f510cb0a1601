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
	"sync"
	"time"
)

// EvalContext is shared by every executor in one request's pipeline:
// the time zone and truncation-handling flags expressions evaluate
// under, an optional deadline checked at each executor's Next()
// boundary, and statistics counters merged into the response metrics
// once the whole tree has been drained.
type EvalContext struct {
	Location          *time.Location
	IgnoreTruncate    bool
	TruncateAsWarning bool

	deadline time.Time

	mu       sync.Mutex
	warnings []string
	scanned  int64
}

// NewEvalContext returns a context with no deadline and UTC as its
// time zone.
func NewEvalContext() *EvalContext {
	return &EvalContext{Location: time.UTC}
}

// WithDeadline returns a copy of ctx carrying a deadline; zero means
// no deadline.
func (ctx *EvalContext) WithDeadline(d time.Time) *EvalContext {
	clone := *ctx
	clone.deadline = d
	clone.warnings = nil
	return &clone
}

// CheckDeadline returns ErrOutdated once the context's deadline has
// passed. The scan, selection, aggregation and TopN executors call it
// for every row they pull, so a stalled or unbounded upstream cannot
// run the whole request past its deadline before the first row is even
// produced. LimitExecutor holds no EvalContext and does not call it.
func (ctx *EvalContext) CheckDeadline() error {
	if ctx.deadline.IsZero() {
		return nil
	}
	if time.Now().After(ctx.deadline) {
		return ErrOutdated
	}
	return nil
}

// Warn records a non-fatal evaluation warning (e.g. a truncated
// value under TruncateAsWarning) to be returned alongside the
// response rather than failing the request.
func (ctx *EvalContext) Warn(msg string) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.warnings = append(ctx.warnings, msg)
}

// Warnings returns the warnings recorded so far.
func (ctx *EvalContext) Warnings() []string {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return append([]string(nil), ctx.warnings...)
}

// AddScanned accumulates the row count an executor consumed from its
// source, merged into the request's response metrics once the
// pipeline is fully drained.
func (ctx *EvalContext) AddScanned(n int64) {
	ctx.mu.Lock()
	ctx.scanned += n
	ctx.mu.Unlock()
}

// Scanned returns the total rows scanned so far across the pipeline.
func (ctx *EvalContext) Scanned() int64 {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.scanned
}
