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

// Executor is one node of the pull-based executor tree. Next returns
// the next row, or a nil row with a nil error once the source is
// exhausted — Go's equivalent of the spec's next() -> Option<Row>.
// The closed set of node kinds (TableScan, IndexScan, Selection,
// HashAgg, StreamAgg, TopN, Limit) are all built as concrete structs
// implementing this one interface, centralized at tree-construction
// time rather than left to open polymorphism.
type Executor interface {
	Next(ctx context.Context) (*Row, error)
}

// ColumnInfo names one projected column's stable id and dynamic type,
// matching the column list TableScan/IndexScan build rows against.
type ColumnInfo struct {
	ID   int64
	Kind DatumKind
}

// ExecutorMetrics accumulates per-request executor counters merged
// into the response once the tree is drained, mirroring the per-node
// "rows produced" counts a coprocessor response carries alongside its
// data.
type ExecutorMetrics struct {
	Scanned map[string]int64
}

// NewExecutorMetrics returns an empty ExecutorMetrics.
func NewExecutorMetrics() *ExecutorMetrics {
	return &ExecutorMetrics{Scanned: make(map[string]int64)}
}

// Add records n rows produced by the named executor kind.
func (m *ExecutorMetrics) Add(kind string, n int64) {
	m.Scanned[kind] += n
}
