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

package engine

import "github.com/linxGnu/grocksdb"

// Snapshot is a consistent, point-in-time read view across every
// column family. MVCC reads pin one of these for the duration of a
// transaction so concurrent prewrites/commits never shift what a
// read-only get/scan observes.
type Snapshot struct {
	engine *Engine
	snap   *grocksdb.Snapshot
	ro     *grocksdb.ReadOptions
}

func (s *Snapshot) readOpts() *grocksdb.ReadOptions {
	if s.ro == nil {
		ro := grocksdb.NewDefaultReadOptions()
		ro.SetSnapshot(s.snap)
		ro.SetFillCache(true)
		s.ro = ro
	}
	return s.ro
}

// Get reads a single key from the named column family as of the
// snapshot's creation time.
func (s *Snapshot) Get(cf string, key []byte) ([]byte, error) {
	h, err := s.engine.handle(cf)
	if err != nil {
		return nil, err
	}

	slice, err := s.engine.db.GetCF(s.readOpts(), h, key)
	if err != nil {
		return nil, err
	}
	defer slice.Free()

	if !slice.Exists() {
		return nil, ErrNotFound
	}

	value := make([]byte, slice.Size())
	copy(value, slice.Data())
	return value, nil
}

// NewIterator returns a forward iterator over the named column family
// pinned to this snapshot.
func (s *Snapshot) NewIterator(cf string) (*Iterator, error) {
	return s.engine.newIteratorWithOpts(cf, s.readOpts())
}

// Release returns the snapshot's native resources to RocksDB. After
// Release, the Snapshot and any Iterator obtained from it must not be
// used.
func (s *Snapshot) Release() {
	if s.ro != nil {
		s.ro.Destroy()
	}
	s.engine.db.ReleaseSnapshot(s.snap)
}
