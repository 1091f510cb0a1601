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

// Package splitcheck scans a region's byte footprint across its
// default/lock/write column families to decide whether — and where —
// it should split, per spec.md §3's region-size-driven split. It never
// touches raft directly: internal/raftstore/store's split-check-worker
// tick runs it and feeds any resulting split key back through the
// admin-command path.
package splitcheck

import (
	"bytes"
	"container/heap"

	"github.com/distkv/tikv-node/internal/engine"
	"github.com/distkv/tikv-node/internal/mvcc"
)

// cfOrder fixes a deterministic tie-break when two CFs' iterators sit
// on equal keys, so the merged stream's order doesn't depend on heap
// internals.
var cfOrder = []string{engine.CFDefault, engine.CFLock, engine.CFWrite}

func cfRank(cf string) int {
	for i, c := range cfOrder {
		if c == cf {
			return i
		}
	}
	return len(cfOrder)
}

// kv is one entry the merged iterator yields: the raw key as stored in
// cf (for default/write this still carries its MVCC-encoded
// timestamp suffix — splitcheck only needs byte size and table
// boundaries, not a clean user key).
type kv struct {
	cf    string
	key   []byte
	value []byte
}

type heapItem struct {
	it  mvcc.Iterator
	cf  string
}

type iteratorHeap []*heapItem

func (h iteratorHeap) Len() int { return len(h) }
func (h iteratorHeap) Less(i, j int) bool {
	c := bytes.Compare(h[i].it.Key(), h[j].it.Key())
	if c != 0 {
		return c < 0
	}
	return cfRank(h[i].cf) < cfRank(h[j].cf)
}
func (h iteratorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *iteratorHeap) Push(x any)   { *h = append(*h, x.(*heapItem)) }
func (h *iteratorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergedIterator walks every CF's iterator over [startKey, endKey) in
// ascending key order via a min-heap, so a single forward pass yields
// every KV in the region regardless of which CF it lives in — the
// shape a size/table-boundary observer needs to accumulate an
// approximate footprint without three separate full scans.
type mergedIterator struct {
	h      iteratorHeap
	cur    *kv
	endKey []byte
}

// newMergedIterator opens one iterator per CF on backend, seeks each
// to startKey, and positions the merged stream on the first entry at
// or after startKey strictly before endKey (an empty endKey means no
// upper bound).
func newMergedIterator(backend mvcc.Backend, startKey, endKey []byte) (*mergedIterator, error) {
	m := &mergedIterator{}
	for _, cf := range cfOrder {
		it, err := backend.NewIterator(cf)
		if err != nil {
			m.Close()
			return nil, err
		}
		it.Seek(startKey)
		if it.Valid() && (len(endKey) == 0 || bytes.Compare(it.Key(), endKey) < 0) {
			heap.Push(&m.h, &heapItem{it: it, cf: cf})
		} else {
			it.Close()
		}
	}
	m.endKey = append([]byte(nil), endKey...)
	m.advance()
	return m, nil
}

func (m *mergedIterator) advance() {
	if m.h.Len() == 0 {
		m.cur = nil
		return
	}
	top := m.h[0]
	key := append([]byte(nil), top.it.Key()...)
	value := append([]byte(nil), top.it.Value()...)
	cf := top.cf
	m.cur = &kv{cf: cf, key: key, value: value}

	top.it.Next()
	if top.it.Valid() && (len(m.endKey) == 0 || bytes.Compare(top.it.Key(), m.endKey) < 0) {
		heap.Fix(&m.h, 0)
	} else {
		heap.Pop(&m.h)
		top.it.Close()
	}
}

// Valid reports whether Current has an entry to yield.
func (m *mergedIterator) Valid() bool { return m.cur != nil }

// Current returns the entry the iterator currently sits on.
func (m *mergedIterator) Current() (cf string, key, value []byte) {
	return m.cur.cf, m.cur.key, m.cur.value
}

// Next advances to the next entry in ascending key order across every
// CF.
func (m *mergedIterator) Next() { m.advance() }

// Close releases every underlying CF iterator.
func (m *mergedIterator) Close() {
	for _, item := range m.h {
		item.it.Close()
	}
	m.h = nil
}
