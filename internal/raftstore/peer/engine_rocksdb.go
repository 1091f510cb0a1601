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

package peer

import "github.com/distkv/tikv-node/internal/engine"

// rocksEngine adapts *internal/engine.Engine to Engine, the same way
// internal/mvcc's engineBackend adapts it for the percolator store —
// RegionStorage and the percolator Store share one physical RocksDB
// instance, differing only in which column family they address.
type rocksEngine struct {
	eng *engine.Engine
}

// NewRocksEngine wraps eng for use by RegionStorage.
func NewRocksEngine(eng *engine.Engine) Engine {
	return &rocksEngine{eng: eng}
}

func (r *rocksEngine) Get(cf string, key []byte) ([]byte, error) {
	v, err := r.eng.Get(cf, key)
	if err == engine.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *rocksEngine) NewBatch() Batch {
	return r.eng.NewWriteBatch()
}

func (r *rocksEngine) Write(b Batch) error {
	wb, ok := b.(*engine.WriteBatch)
	if !ok {
		return ErrInvalidBatch
	}
	defer wb.Destroy()
	return r.eng.Write(wb)
}
