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

// WriteBatch accumulates puts and deletes across one or more column
// families for atomic application via Engine.Write. Used by MVCC
// commit/rollback (default+lock+write must land together) and by
// raftstore's Ready-bundle apply (raft CF entries plus state keys).
type WriteBatch struct {
	engine *Engine
	wb     *grocksdb.WriteBatch
}

// Put stages a put against the named column family.
func (b *WriteBatch) Put(cf string, key, value []byte) error {
	h, err := b.engine.handle(cf)
	if err != nil {
		return err
	}
	b.wb.PutCF(h, key, value)
	return nil
}

// Delete stages a delete against the named column family.
func (b *WriteBatch) Delete(cf string, key []byte) error {
	h, err := b.engine.handle(cf)
	if err != nil {
		return err
	}
	b.wb.DeleteCF(h, key)
	return nil
}

// DeleteRange stages a [start, end) range delete against the named
// column family, used by region GC and region destroy.
func (b *WriteBatch) DeleteRange(cf string, start, end []byte) error {
	h, err := b.engine.handle(cf)
	if err != nil {
		return err
	}
	b.wb.DeleteRangeCF(h, start, end)
	return nil
}

// Count returns the number of operations staged in the batch.
func (b *WriteBatch) Count() int {
	return b.wb.Count()
}

// Clear discards every staged operation, allowing the batch to be
// reused.
func (b *WriteBatch) Clear() {
	b.wb.Clear()
}

// Destroy releases the batch's native resources. Callers that pass a
// batch to Engine.Write must still call Destroy afterward.
func (b *WriteBatch) Destroy() {
	b.wb.Destroy()
}
