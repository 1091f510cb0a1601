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

package peer

import "sync"

// memoryEngine is an in-memory Engine, the peer-package analogue of
// internal/mvcc's memoryBackend, letting RegionStorage run in tests
// without linking cgo/grocksdb.
type memoryEngine struct {
	mu  sync.Mutex
	cfs map[string]map[string][]byte
}

// NewMemoryEngine returns an Engine backed by in-memory maps, one per
// column family, created on first use.
func NewMemoryEngine() Engine {
	return &memoryEngine{cfs: make(map[string]map[string][]byte)}
}

func (m *memoryEngine) cf(name string) map[string][]byte {
	c, ok := m.cfs[name]
	if !ok {
		c = make(map[string][]byte)
		m.cfs[name] = c
	}
	return c
}

func (m *memoryEngine) Get(cf string, key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.cf(cf)[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memoryEngine) NewBatch() Batch {
	return &memoryEngineBatch{eng: m}
}

func (m *memoryEngine) Write(b Batch) error {
	mb, ok := b.(*memoryEngineBatch)
	if !ok {
		return ErrInvalidBatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range mb.ops {
		c := m.cf(op.cf)
		if op.isDelete {
			delete(c, string(op.key))
		} else {
			c[string(op.key)] = op.value
		}
	}
	return nil
}

type memoryEngineOp struct {
	cf       string
	key      []byte
	value    []byte
	isDelete bool
}

// memoryEngineBatch stages writes for atomic application to a
// memoryEngine.
type memoryEngineBatch struct {
	eng *memoryEngine
	ops []memoryEngineOp
}

func (b *memoryEngineBatch) Put(cf string, key, value []byte) error {
	b.ops = append(b.ops, memoryEngineOp{cf: cf, key: append([]byte{}, key...), value: append([]byte{}, value...)})
	return nil
}

func (b *memoryEngineBatch) Delete(cf string, key []byte) error {
	b.ops = append(b.ops, memoryEngineOp{cf: cf, key: append([]byte{}, key...), isDelete: true})
	return nil
}
