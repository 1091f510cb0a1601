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
	"sort"
	"sync"
)

// memoryBackend is an in-memory Backend implementation over btreeCF,
// used by tests that exercise the percolator algorithm in store.go
// without linking cgo/grocksdb.
type memoryBackend struct {
	mu     sync.Mutex // guards Write's cross-CF atomicity
	cfs    map[string]*btreeCF
	closed bool
}

// NewMemoryStore returns a Store backed entirely by in-memory B-trees.
func NewMemoryStore() *Store {
	return newStore(&memoryBackend{
		cfs: map[string]*btreeCF{
			cfDefault: newBtreeCF(),
			cfLock:    newBtreeCF(),
			cfWrite:   newBtreeCF(),
		},
	})
}

func (m *memoryBackend) Get(cf string, key []byte) ([]byte, error) {
	c, ok := m.cfs[cf]
	if !ok {
		return nil, ErrInvalidData
	}
	v, ok := c.get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

func (m *memoryBackend) NewIterator(cf string) (Iterator, error) {
	c, ok := m.cfs[cf]
	if !ok {
		return nil, ErrInvalidData
	}
	return &memoryIterator{items: c.snapshot()}, nil
}

func (m *memoryBackend) NewBatch() Batch {
	return &memoryBatch{backend: m}
}

func (m *memoryBackend) Write(b Batch) error {
	mb, ok := b.(*memoryBatch)
	if !ok {
		return ErrInvalidData
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range mb.ops {
		c, ok := m.cfs[op.cf]
		if !ok {
			return ErrInvalidData
		}
		if op.isDelete {
			c.delete(op.key)
		} else {
			c.put(op.key, op.value)
		}
	}
	return nil
}

func (m *memoryBackend) Close() error {
	m.closed = true
	return nil
}

// memoryWriteOp is one staged mutation in a memoryBatch.
type memoryWriteOp struct {
	cf       string
	key      []byte
	value    []byte
	isDelete bool
}

// memoryBatch stages writes for atomic application to a memoryBackend.
type memoryBatch struct {
	backend *memoryBackend
	ops     []memoryWriteOp
}

func (b *memoryBatch) Put(cf string, key, value []byte) error {
	if _, ok := b.backend.cfs[cf]; !ok {
		return ErrInvalidData
	}
	b.ops = append(b.ops, memoryWriteOp{cf: cf, key: append([]byte{}, key...), value: append([]byte{}, value...)})
	return nil
}

func (b *memoryBatch) Delete(cf string, key []byte) error {
	if _, ok := b.backend.cfs[cf]; !ok {
		return ErrInvalidData
	}
	b.ops = append(b.ops, memoryWriteOp{cf: cf, key: append([]byte{}, key...), isDelete: true})
	return nil
}

func (b *memoryBatch) Count() int {
	return len(b.ops)
}

// memoryIterator walks a point-in-time snapshot of one btreeCF,
// already in ascending key order.
type memoryIterator struct {
	items []btreeItem
	pos   int
}

func (it *memoryIterator) Seek(key []byte) {
	it.pos = sort.Search(len(it.items), func(i int) bool {
		return bytes.Compare(it.items[i].key, key) >= 0
	})
}

func (it *memoryIterator) Valid() bool {
	return it.pos < len(it.items)
}

func (it *memoryIterator) Next() {
	it.pos++
}

func (it *memoryIterator) Key() []byte {
	return it.items[it.pos].key
}

func (it *memoryIterator) Value() []byte {
	return it.items[it.pos].value
}

func (it *memoryIterator) Err() error {
	return nil
}

func (it *memoryIterator) Close() {}
