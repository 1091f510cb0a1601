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

package storage

import (
	"bytes"
	"fmt"

	"github.com/distkv/tikv-node/internal/engine"
	"github.com/distkv/tikv-node/internal/raftstore/peer"
)

// Apply implements peer.Applier: it decodes one committed command
// entry and replays it against the shared mvcc.Store. Every replica's
// raft apply loop calls this with the same bytes in the same order,
// so the mvcc.Store mutation this produces is deterministic across the
// region's replicas.
//
// The peer.Batch b covers only the region's raft apply-state advance,
// persisted by the caller in the same write as this call; the
// mvcc.Store mutation below commits through its own backend write
// instead of b, since mvcc.Store owns its percolator CF writes as a
// single unit already and does not accept an externally supplied
// batch. Both writes apply deterministically from the same committed
// entry, so every replica still converges to the same state even
// though they are not one underlying RocksDB write batch.
func (f *Facade) Apply(b peer.Batch, regionID uint64, data []byte) error {
	cmd, err := decodeCommand(data)
	if err != nil {
		return err
	}

	switch cmd.Kind {
	case CmdPrewrite:
		return f.mvcc.Prewrite(cmd.Mutations, cmd.Primary, cmd.StartTS, cmd.TTL)
	case CmdCommit:
		return f.mvcc.Commit(cmd.Keys, cmd.StartTS, cmd.CommitTS)
	case CmdRollback:
		return f.mvcc.Rollback(cmd.Keys, cmd.StartTS)
	case CmdResolveLock:
		var commitTS *uint64
		if cmd.CommitTS != 0 {
			commitTS = &cmd.CommitTS
		}
		return f.mvcc.ResolveLock(cmd.StartTS, commitTS)
	case CmdGC:
		return f.mvcc.GC(cmd.SafePoint)
	case CmdRawPut:
		rb := f.mvcc.Backend().NewBatch()
		if err := rb.Put(engine.CFDefault, cmd.RawKey, cmd.RawValue); err != nil {
			return err
		}
		return f.mvcc.Backend().Write(rb)
	case CmdRawDelete:
		rb := f.mvcc.Backend().NewBatch()
		if err := rb.Delete(engine.CFDefault, cmd.RawKey); err != nil {
			return err
		}
		return f.mvcc.Backend().Write(rb)
	case CmdRawDeleteRange:
		return f.applyRawDeleteRange(cmd.RawKey, cmd.RawEndKey)
	default:
		return fmt.Errorf("storage: apply region %d: unknown command kind %d", regionID, cmd.Kind)
	}
}

// applyRawDeleteRange deletes every raw default-CF key in
// [startKey, endKey). Collected first, then deleted in one batch, so
// the iterator is never read from while the batch it feeds is still
// open for writing.
func (f *Facade) applyRawDeleteRange(startKey, endKey []byte) error {
	it, err := f.mvcc.Backend().NewIterator(engine.CFDefault)
	if err != nil {
		return err
	}
	defer it.Close()

	var keys [][]byte
	for it.Seek(startKey); it.Valid(); it.Next() {
		if len(endKey) > 0 && bytes.Compare(it.Key(), endKey) >= 0 {
			break
		}
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	if err := it.Err(); err != nil {
		return err
	}

	rb := f.mvcc.Backend().NewBatch()
	for _, k := range keys {
		if err := rb.Delete(engine.CFDefault, k); err != nil {
			return err
		}
	}
	return f.mvcc.Backend().Write(rb)
}
