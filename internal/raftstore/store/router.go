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

package store

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// regionItem orders a store's regions by start_key, the same ordering
// key internal/mvcc's btreeCF uses for its in-memory column families
// (internal/mvcc/key_index.go), so a point lookup is "the region whose
// start_key is the greatest one not exceeding key."
type regionItem struct {
	startKey []byte
	regionID uint64
}

func (i *regionItem) Less(other btree.Item) bool {
	return bytes.Compare(i.startKey, other.(*regionItem).startKey) < 0
}

// RegionRouter maps a raw user key to the region_id that currently owns
// it, per spec.md §4.2's dispatch-by-region_id requirement. It is
// rebuilt incrementally as regions split, merge, or are created.
type RegionRouter struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// NewRegionRouter returns an empty router.
func NewRegionRouter() *RegionRouter {
	return &RegionRouter{tree: btree.New(32)}
}

// Insert adds or replaces the region starting at startKey.
func (r *RegionRouter) Insert(regionID uint64, startKey []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.ReplaceOrInsert(&regionItem{startKey: append([]byte(nil), startKey...), regionID: regionID})
}

// Remove drops the region starting at startKey, e.g. after it merges
// away or its peer is destroyed.
func (r *RegionRouter) Remove(startKey []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.Delete(&regionItem{startKey: startKey})
}

// Find returns the region_id owning key, if any region is known.
func (r *RegionRouter) Find(key []byte) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *regionItem
	r.tree.DescendLessOrEqual(&regionItem{startKey: key}, func(item btree.Item) bool {
		found = item.(*regionItem)
		return false
	})
	if found == nil {
		return 0, false
	}
	return found.regionID, true
}

// Len reports how many regions the router currently tracks.
func (r *RegionRouter) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Len()
}
