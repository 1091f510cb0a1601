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

import "container/heap"

// OrderByItem is one ORDER BY term: an expression to evaluate per row
// and the direction to sort its values in.
type OrderByItem struct {
	Expr Expression
	Desc bool
}

// sortRow is one row accumulated by topNHeap: its evaluated order-by
// tuple alongside the row itself, plus its insertion sequence so ties
// break by arrival order (spec testable property 8) rather than by
// whatever order container/heap happens to compare them in.
type sortRow struct {
	row *Row
	key []Datum
	seq int64
}

// compareKeys orders two evaluated order-by tuples according to
// items, applying each item's Desc flag, and falls through to the
// next item only on a tie. A length/kind mismatch between a and b is
// a comparator error, which per spec fails the whole request rather
// than being silently coerced.
func compareKeys(a, b []Datum, items []OrderByItem) (int, error) {
	for i, it := range items {
		c, err := Compare(a[i], b[i])
		if err != nil {
			return 0, err
		}
		if it.Desc {
			c = -c
		}
		if c != 0 {
			return c, nil
		}
	}
	return 0, nil
}

// topNHeap accumulates up to limit rows in a max-heap keyed by the
// evaluated order-by tuple: the heap root always holds the row that
// sorts last among those currently retained. Once at capacity, a new
// row is kept only if it sorts strictly before the root, evicting the
// root in its place; rows that sort at or after the root are
// discarded immediately. After the source is exhausted,
// intoSortedSlice drains the heap into ascending order.
type topNHeap struct {
	limit   int
	items   []OrderByItem
	rows    []*sortRow
	nextSeq int64
	err     error
}

func newTopNHeap(limit int, items []OrderByItem) *topNHeap {
	return &topNHeap{limit: limit, items: items}
}

// Len, Less, Swap, Push, Pop implement container/heap.Interface. Less
// is inverted relative to compareKeys: row i is "less" (has heap
// priority to be popped first) when it sorts AFTER row j in the
// target order, so the root is always the current worst row, the one
// eviction should remove first when capacity is exceeded.
func (h *topNHeap) Len() int { return len(h.rows) }

func (h *topNHeap) Less(i, j int) bool {
	if h.err != nil {
		return false
	}
	c, err := compareKeys(h.rows[i].key, h.rows[j].key, h.items)
	if err != nil {
		h.err = err
		return false
	}
	if c != 0 {
		return c > 0
	}
	return h.rows[i].seq > h.rows[j].seq
}

func (h *topNHeap) Swap(i, j int) { h.rows[i], h.rows[j] = h.rows[j], h.rows[i] }

func (h *topNHeap) Push(x interface{}) { h.rows = append(h.rows, x.(*sortRow)) }

func (h *topNHeap) Pop() interface{} {
	old := h.rows
	n := len(old)
	item := old[n-1]
	h.rows = old[:n-1]
	return item
}

// tryAdd offers row/key to the heap, evaluated under ctx's evaluation
// rules. Returns an error only for a comparator failure (incompatible
// datum kinds), matching spec's "comparator errors fail the whole
// request".
func (h *topNHeap) tryAdd(row *Row, key []Datum) error {
	if h.limit == 0 {
		return nil
	}
	sr := &sortRow{row: row, key: key, seq: h.nextSeq}
	h.nextSeq++

	if h.Len() < h.limit {
		heap.Push(h, sr)
		if h.err != nil {
			return h.err
		}
		return nil
	}

	worst := h.rows[0]
	c, err := compareKeys(key, worst.key, h.items)
	if err != nil {
		return err
	}
	if c < 0 {
		h.rows[0] = sr
		heap.Fix(h, 0)
		if h.err != nil {
			return h.err
		}
	}
	return nil
}

// intoSortedSlice drains the heap into ascending order (the order the
// final response rows are returned in).
func (h *topNHeap) intoSortedSlice() ([]*sortRow, error) {
	n := h.Len()
	out := make([]*sortRow, n)
	for i := n - 1; i >= 0; i-- {
		top := heap.Pop(h).(*sortRow)
		if h.err != nil {
			return nil, h.err
		}
		out[i] = top
	}
	return out, nil
}
