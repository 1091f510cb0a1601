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

//go:build cgo
// +build cgo

package mvcc

import "github.com/distkv/tikv-node/internal/engine"

// engineBackend adapts *internal/engine.Engine to Backend, letting
// the percolator algorithm in store.go run directly against RocksDB's
// default/lock/write column families.
type engineBackend struct {
	eng *engine.Engine
}

// NewRocksDBStore returns a Store whose default/lock/write column
// families live in eng. eng must already have been opened with those
// column families present (internal/engine.Open creates them).
func NewRocksDBStore(eng *engine.Engine) *Store {
	return newStore(&engineBackend{eng: eng})
}

func (e *engineBackend) Get(cf string, key []byte) ([]byte, error) {
	v, err := e.eng.Get(cf, key)
	if err == engine.ErrNotFound {
		return nil, ErrKeyNotFound
	}
	return v, err
}

func (e *engineBackend) NewIterator(cf string) (Iterator, error) {
	return e.eng.NewIterator(cf)
}

func (e *engineBackend) NewBatch() Batch {
	return e.eng.NewWriteBatch()
}

func (e *engineBackend) Write(b Batch) error {
	wb, ok := b.(*engine.WriteBatch)
	if !ok {
		return ErrInvalidData
	}
	defer wb.Destroy()
	return e.eng.Write(wb)
}

func (e *engineBackend) Close() error {
	return e.eng.Close()
}
