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

package mvcc

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// btreeItem is one key/value pair stored in a btreeCF.
type btreeItem struct {
	key   []byte
	value []byte
}

// Less implements btree.Item.
func (i *btreeItem) Less(other btree.Item) bool {
	return bytes.Compare(i.key, other.(*btreeItem).key) < 0
}

// btreeCF is an ordered, in-memory stand-in for one RocksDB column
// family, backing memoryBackend. It exists so the percolator
// algorithm in store.go can be unit-tested without cgo/grocksdb; the
// production path uses engineBackend over internal/engine instead.
type btreeCF struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func newBtreeCF() *btreeCF {
	return &btreeCF{tree: btree.New(32)}
}

func (c *btreeCF) get(key []byte) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item := c.tree.Get(&btreeItem{key: key})
	if item == nil {
		return nil, false
	}
	return item.(*btreeItem).value, true
}

func (c *btreeCF) put(key, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := append([]byte{}, key...)
	v := append([]byte{}, value...)
	c.tree.ReplaceOrInsert(&btreeItem{key: k, value: v})
}

func (c *btreeCF) delete(key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree.Delete(&btreeItem{key: key})
}

func (c *btreeCF) deleteRange(start, end []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete []*btreeItem
	c.tree.AscendRange(&btreeItem{key: start}, &btreeItem{key: end}, func(item btree.Item) bool {
		toDelete = append(toDelete, item.(*btreeItem))
		return true
	})
	for _, item := range toDelete {
		c.tree.Delete(item)
	}
}

// snapshot returns every key/value pair in ascending key order, used
// to back a forward iterator (memoryIterator) with a point-in-time
// view that is stable against concurrent mutation of the live tree.
func (c *btreeCF) snapshot() []btreeItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]btreeItem, 0, c.tree.Len())
	c.tree.Ascend(func(item btree.Item) bool {
		bi := item.(*btreeItem)
		items = append(items, btreeItem{key: bi.key, value: bi.value})
		return true
	})
	return items
}
