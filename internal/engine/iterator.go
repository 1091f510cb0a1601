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

// Iterator is a forward cursor over a single column family. Keys and
// values returned by Key/Value are copies; the iterator owns no
// references past Close.
type Iterator struct {
	it *grocksdb.Iterator
}

// SeekToFirst positions the iterator at the first key.
func (it *Iterator) SeekToFirst() {
	it.it.SeekToFirst()
}

// Seek positions the iterator at the first key >= target.
func (it *Iterator) Seek(target []byte) {
	it.it.Seek(target)
}

// Valid reports whether the iterator is positioned at a live entry.
func (it *Iterator) Valid() bool {
	return it.it.Valid()
}

// Next advances the iterator.
func (it *Iterator) Next() {
	it.it.Next()
}

// Key returns a copy of the current key.
func (it *Iterator) Key() []byte {
	s := it.it.Key()
	defer s.Free()
	k := make([]byte, s.Size())
	copy(k, s.Data())
	return k
}

// Value returns a copy of the current value.
func (it *Iterator) Value() []byte {
	s := it.it.Value()
	defer s.Free()
	v := make([]byte, s.Size())
	copy(v, s.Data())
	return v
}

// Err returns any error the underlying iterator accumulated.
func (it *Iterator) Err() error {
	return it.it.Err()
}

// Close releases the iterator's native resources.
func (it *Iterator) Close() {
	it.it.Close()
}
