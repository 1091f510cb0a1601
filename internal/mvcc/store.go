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

// Package mvcc implements percolator-style distributed transactions
// over three column families (default, lock, write), providing
// snapshot-isolated reads and two-phase commit writes on top of a
// single region's key range.
package mvcc

import (
	"bytes"

	"github.com/distkv/tikv-node/internal/codec"
)

// Iterator is a forward iterator over one column family, satisfied
// structurally by *internal/engine.Iterator (production) and by
// memoryIterator (tests).
type Iterator interface {
	Seek(key []byte)
	Valid() bool
	Next()
	Key() []byte
	Value() []byte
	Err() error
	Close()
}

// Batch accumulates writes across column families for atomic
// application, satisfied structurally by *internal/engine.WriteBatch
// and by memoryBatch.
type Batch interface {
	Put(cf string, key, value []byte) error
	Delete(cf string, key []byte) error
	Count() int
}

// Backend is the storage substrate the percolator algorithm runs
// over. engineBackend (rocksdb_store.go) adapts internal/engine for
// production; memoryBackend (memory_store.go) is an in-memory
// stand-in used by tests that must not depend on cgo/grocksdb.
type Backend interface {
	Get(cf string, key []byte) ([]byte, error)
	NewIterator(cf string) (Iterator, error)
	NewBatch() Batch
	Write(b Batch) error
	Close() error
}

const (
	cfDefault = "default"
	cfLock    = "lock"
	cfWrite   = "write"
)

// batchPut/batchDelete stage a write and panic on error. The only
// error Batch.Put/Delete can return is an unknown column family, and
// cfDefault/cfLock/cfWrite are fixed constants known good at compile
// time, so a failure here indicates a Backend implementation bug.
func batchPut(b Batch, cf string, key, value []byte) {
	if err := b.Put(cf, key, value); err != nil {
		panic("mvcc: " + err.Error())
	}
}

func batchDelete(b Batch, cf string, key []byte) {
	if err := b.Delete(cf, key); err != nil {
		panic("mvcc: " + err.Error())
	}
}

// Store implements the percolator transaction protocol described by
// Prewrite/Commit/Get/Rollback/ResolveLock/GC over a Backend.
type Store struct {
	backend Backend
}

// newStore wraps backend with the percolator algorithm. Use
// NewMemoryStore or NewRocksDBStore to construct one.
func newStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Backend exposes the raw storage substrate beneath the percolator
// algorithm, for callers that need to scan raw CF bytes directly
// rather than through snapshot-isolated Get/Scan — the split-check
// worker's region-size/table-boundary pass over default/lock/write,
// and the importer's range validation before an SST ingest.
func (s *Store) Backend() Backend {
	return s.backend
}

// getLock returns the current lock CF record for key, or nil if none.
func (s *Store) getLock(key []byte) (*Lock, error) {
	data, err := s.backend.Get(cfLock, key)
	if err == ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeLock(data)
}

// newestWrite seeks the write CF for key's most recent Put/Delete
// record with commit_ts >= floor, relying on the fact that
// codec.MVCCEncodeKey inverts the timestamp so iteration order over
// one key's versions runs newest-to-oldest. Rollback and Lock-only
// records are skipped: they carry no data change, so they cannot by
// themselves conflict with a concurrent prewrite.
func (s *Store) newestWrite(key []byte, floor uint64) (uint64, *WriteRecord, error) {
	it, err := s.backend.NewIterator(cfWrite)
	if err != nil {
		return 0, nil, err
	}
	defer it.Close()

	prefix := codec.MVCCKeyPrefix(key)
	for it.Seek(codec.MVCCEncodeKey(key, ^uint64(0))); it.Valid(); it.Next() {
		if !bytes.HasPrefix(it.Key(), prefix) {
			break
		}
		k, commitTS, err := codec.MVCCDecodeKey(it.Key())
		if err != nil {
			return 0, nil, err
		}
		if !bytes.Equal(k, key) {
			break
		}
		if commitTS < floor {
			return 0, nil, nil
		}

		wr, err := DecodeWriteRecord(it.Value())
		if err != nil {
			return 0, nil, err
		}
		if wr.Type == WriteTypeRollback || wr.Type == WriteTypeLock {
			continue
		}
		return commitTS, wr, nil
	}
	if err := it.Err(); err != nil {
		return 0, nil, err
	}
	return 0, nil, nil
}

// Prewrite attempts to lock every key in mutations for the given
// transaction, as described in spec.md §4.4.
func (s *Store) Prewrite(mutations []Mutation, primary []byte, startTS, ttl uint64) error {
	for _, m := range mutations {
		if len(m.Key) == 0 {
			return ErrEmptyKey
		}

		commitTS, existingWrite, err := s.newestWrite(m.Key, startTS)
		if err != nil {
			return err
		}
		if commitTS != 0 && existingWrite.StartTS != startTS {
			return &WriteConflictError{
				StartTS:        startTS,
				ConflictStart:  startTS,
				ConflictCommit: commitTS,
				Key:            m.Key,
				Primary:        primary,
			}
		}

		lock, err := s.getLock(m.Key)
		if err != nil {
			return err
		}
		if lock != nil {
			if lock.StartTS == startTS {
				continue // idempotent retry of this prewrite
			}
			return &KeyIsLockedError{Key: m.Key, Primary: lock.Primary, StartTS: lock.StartTS, TTL: lock.TTL}
		}
		if commitTS != 0 {
			continue // already committed by this exact transaction; nothing left to lock
		}

		newLock := &Lock{
			Type:    m.lockType(),
			Primary: primary,
			StartTS: startTS,
			TTL:     ttl,
		}

		b := s.backend.NewBatch()
		if m.Type == MutationPut {
			if len(m.Value) <= shortValueThreshold {
				newLock.ShortValue = m.Value
			} else {
				batchPut(b, cfDefault, codec.MVCCEncodeKey(m.Key, startTS), m.Value)
			}
		}
		batchPut(b, cfLock, m.Key, newLock.Encode())
		if err := s.backend.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// Commit converts each key's lock into a write record at commit_ts,
// as described in spec.md §4.4. Each key is applied independently so
// a retried Commit after partial failure remains idempotent.
func (s *Store) Commit(keys [][]byte, startTS, commitTS uint64) error {
	if err := ValidateCommit(startTS, commitTS); err != nil {
		return err
	}

	for _, key := range keys {
		lock, err := s.getLock(key)
		if err != nil {
			return err
		}

		if lock == nil || lock.StartTS != startTS {
			// idempotent retry: a previous call already committed this
			// key, so a write record sits exactly at commit_ts.
			if existing, err := s.backend.Get(cfWrite, codec.MVCCEncodeKey(key, commitTS)); err == nil {
				wr, derr := DecodeWriteRecord(existing)
				if derr != nil {
					return derr
				}
				if wr.StartTS == startTS && wr.Type != WriteTypeRollback {
					continue
				}
			}
			// a Rollback marker always lives at write[key, start_ts].
			if existing, err := s.backend.Get(cfWrite, codec.MVCCEncodeKey(key, startTS)); err == nil {
				wr, derr := DecodeWriteRecord(existing)
				if derr != nil {
					return derr
				}
				if wr.Type == WriteTypeRollback && wr.StartTS == startTS {
					return &RolledBackError{StartTS: startTS}
				}
			}
			return ErrTxnLockNotFound
		}

		wr := &WriteRecord{Type: lockTypeToWriteType(lock.Type), StartTS: startTS, ShortValue: lock.ShortValue}

		b := s.backend.NewBatch()
		batchPut(b, cfWrite, codec.MVCCEncodeKey(key, commitTS), wr.Encode())
		batchDelete(b, cfLock, key)
		if err := s.backend.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// Rollback writes a Rollback marker for each key and releases any
// lock startTS still holds on it, as described in spec.md §4.4.
func (s *Store) Rollback(keys [][]byte, startTS uint64) error {
	for _, key := range keys {
		lock, err := s.getLock(key)
		if err != nil {
			return err
		}

		marker := &WriteRecord{Type: WriteTypeRollback, StartTS: startTS}
		b := s.backend.NewBatch()
		batchPut(b, cfWrite, codec.MVCCEncodeKey(key, startTS), marker.Encode())
		if lock != nil && lock.StartTS == startTS {
			batchDelete(b, cfLock, key)
		}
		if err := s.backend.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// ResolveLock iterates the lock CF for every lock belonging to
// startTS and commits (commitTS != nil) or rolls it back (commitTS ==
// nil), as described in spec.md §4.4. Used after the coordinator that
// issued startTS has determined the transaction's final outcome.
func (s *Store) ResolveLock(startTS uint64, commitTS *uint64) error {
	it, err := s.backend.NewIterator(cfLock)
	if err != nil {
		return err
	}
	defer it.Close()

	var keys [][]byte
	for it.Seek(nil); it.Valid(); it.Next() {
		lock, err := DecodeLock(it.Value())
		if err != nil {
			return err
		}
		if lock.StartTS == startTS {
			keys = append(keys, append([]byte{}, it.Key()...))
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	if commitTS != nil {
		return s.Commit(keys, startTS, *commitTS)
	}
	return s.Rollback(keys, startTS)
}

// Get returns the value visible to a transaction reading at readTS,
// as described in spec.md §4.4.
func (s *Store) Get(key []byte, readTS uint64) (Value, error) {
	lock, err := s.getLock(key)
	if err != nil {
		return Value{}, err
	}
	if lock != nil && lock.StartTS <= readTS {
		return Value{}, &KeyIsLockedError{Key: key, Primary: lock.Primary, StartTS: lock.StartTS, TTL: lock.TTL}
	}

	it, err := s.backend.NewIterator(cfWrite)
	if err != nil {
		return Value{}, err
	}
	defer it.Close()

	prefix := codec.MVCCKeyPrefix(key)
	for it.Seek(codec.MVCCEncodeKey(key, readTS)); it.Valid(); it.Next() {
		if !bytes.HasPrefix(it.Key(), prefix) {
			break
		}
		k, commitTS, err := codec.MVCCDecodeKey(it.Key())
		if err != nil {
			return Value{}, err
		}
		if !bytes.Equal(k, key) {
			break
		}

		wr, err := DecodeWriteRecord(it.Value())
		if err != nil {
			return Value{}, err
		}
		switch wr.Type {
		case WriteTypeRollback, WriteTypeLock:
			continue
		case WriteTypeDelete:
			return Value{Key: key, CommitTS: commitTS, Deleted: true}, nil
		default:
			if wr.ShortValue != nil {
				return Value{Key: key, Value: wr.ShortValue, CommitTS: commitTS}, nil
			}
			val, err := s.backend.Get(cfDefault, codec.MVCCEncodeKey(key, wr.StartTS))
			if err != nil {
				return Value{}, err
			}
			return Value{Key: key, Value: val, CommitTS: commitTS}, nil
		}
	}
	if err := it.Err(); err != nil {
		return Value{}, err
	}
	return Value{}, ErrKeyNotFound
}

// BatchGet reads multiple keys at readTS, omitting keys with no
// visible value and propagating the first error encountered.
func (s *Store) BatchGet(keys [][]byte, readTS uint64) ([]Value, error) {
	var out []Value
	for _, key := range keys {
		v, err := s.Get(key, readTS)
		if err == ErrKeyNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Scan returns up to limit visible key/value pairs in [startKey,
// endKey) as of readTS, in ascending key order. limit <= 0 means no
// limit.
func (s *Store) Scan(startKey, endKey []byte, limit int, readTS uint64) ([]Value, error) {
	it, err := s.backend.NewIterator(cfWrite)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Value
	var lastKey []byte
	for it.Seek(codec.MVCCEncodeKey(startKey, ^uint64(0))); it.Valid(); it.Next() {
		k, _, err := codec.MVCCDecodeKey(it.Key())
		if err != nil {
			return nil, err
		}
		if len(endKey) > 0 && bytes.Compare(k, endKey) >= 0 {
			break
		}
		if lastKey != nil && bytes.Equal(k, lastKey) {
			continue // already resolved this key's newest visible version
		}
		lastKey = append(lastKey[:0:0], k...)

		v, err := s.Get(k, readTS)
		if err == ErrKeyNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !v.Deleted {
			out = append(out, v)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GC removes write records (and their referenced default-CF entries)
// and Rollback markers older than the newest commit at or before
// safePoint, as described in spec.md §4.4.
func (s *Store) GC(safePoint uint64) error {
	it, err := s.backend.NewIterator(cfWrite)
	if err != nil {
		return err
	}
	defer it.Close()

	b := s.backend.NewBatch()
	var curKey []byte
	keptNewest := false

	flush := func() error {
		if b.Count() == 0 {
			return nil
		}
		err := s.backend.Write(b)
		b = s.backend.NewBatch()
		return err
	}

	for it.Seek(nil); it.Valid(); it.Next() {
		k, commitTS, err := codec.MVCCDecodeKey(it.Key())
		if err != nil {
			return err
		}
		if curKey == nil || !bytes.Equal(k, curKey) {
			curKey = append([]byte{}, k...)
			keptNewest = false
		}

		if commitTS > safePoint {
			continue // still within the live window, must not be touched
		}

		wr, err := DecodeWriteRecord(it.Value())
		if err != nil {
			return err
		}

		// Rollback markers are always subject to GC once older than
		// safePoint, even if no later qualifying record has been kept
		// yet for this key — they never count as the preserved version.
		if !keptNewest && wr.Type != WriteTypeRollback {
			keptNewest = true
			continue // this is the newest qualifying version, preserve it
		}

		batchDelete(b, cfWrite, append([]byte{}, it.Key()...))
		if wr.ShortValue == nil && wr.Type != WriteTypeRollback && wr.Type != WriteTypeLock {
			batchDelete(b, cfDefault, codec.MVCCEncodeKey(k, wr.StartTS))
		}
		if b.Count() >= 256 {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return flush()
}
