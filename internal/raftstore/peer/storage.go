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

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/distkv/tikv-node/internal/codec"
	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
)

// Batch is a set of CF-scoped writes applied atomically. Mirrors
// internal/mvcc's Backend/Batch split so RegionStorage can run against
// either the production engine or an in-memory stand-in without
// depending on grocksdb in non-cgo test builds.
type Batch interface {
	Put(cf string, key, value []byte) error
	Delete(cf string, key []byte) error
}

// Engine is the subset of internal/engine.Engine RegionStorage needs:
// point reads and atomic batched writes against the raft CF. Log
// entries are addressed directly by index (codec.LogEntryKey), so no
// iterator is required here — only internal/raftstore/store's region
// router needs ordered iteration, over region start keys, not raft
// log entries.
type Engine interface {
	Get(cf string, key []byte) ([]byte, error)
	NewBatch() Batch
	Write(b Batch) error
}

// ErrNotFound mirrors internal/engine.ErrNotFound without importing
// the cgo-only engine package from this always-built file.
var ErrNotFound = fmt.Errorf("peer: key not found")

// ErrInvalidBatch is returned when a Batch passed to Engine.Write did
// not originate from that Engine's own NewBatch.
var ErrInvalidBatch = fmt.Errorf("peer: batch from a different engine")

// ApplyState is persisted at codec.ApplyStateKey(regionID): the
// region's applied/truncated log position, per spec.md §3's invariant
// "applied_index ≤ committed_index ≤ last_index; truncated_index <
// first_index".
type ApplyState struct {
	AppliedIndex   uint64 `json:"applied_index"`
	TruncatedIndex uint64 `json:"truncated_index"`
	TruncatedTerm  uint64 `json:"truncated_term"`
}

const raftCF = "raft"

// RegionStorage implements go.etcd.io/raft/v3.Storage for one region,
// generalizing the teacher's internal/rocksdb/raftlog.go
// (RocksDBStorage, a single global raft group keyed by a nodeID
// string prefix) to one of many regions per store, keyed by
// region_id through internal/codec's E{id,index}/H{id}/A{id} layout.
type RegionStorage struct {
	mu sync.RWMutex

	eng      Engine
	regionID uint64

	hardState  raftpb.HardState
	confState  raftpb.ConfState
	applyState ApplyState

	// lastIndex caches the highest persisted log index; entries are
	// addressed directly by index so no iterator recomputes this.
	lastIndex uint64

	// snapshot is the most recently applied/generated snapshot
	// metadata, returned by Snapshot() until a newer one replaces it.
	snapshot raftpb.Snapshot
}

// NewRegionStorage loads (or initializes) persisted raft state for
// regionID from eng.
func NewRegionStorage(eng Engine, regionID uint64) (*RegionStorage, error) {
	s := &RegionStorage{eng: eng, regionID: regionID}

	if err := s.loadHardState(); err != nil {
		return nil, err
	}
	if err := s.loadApplyState(); err != nil {
		return nil, err
	}
	if err := s.loadLastIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RegionStorage) loadHardState() error {
	data, err := s.eng.Get(raftCF, codec.HardStateKey(s.regionID))
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("peer: load hard state for region %d: %w", s.regionID, err)
	}
	return s.hardState.Unmarshal(data)
}

func (s *RegionStorage) loadApplyState() error {
	data, err := s.eng.Get(raftCF, codec.ApplyStateKey(s.regionID))
	if err == ErrNotFound {
		// A brand-new region starts with truncated_index=0 so the
		// first real entry is 1, matching raft's convention.
		s.applyState = ApplyState{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("peer: load apply state for region %d: %w", s.regionID, err)
	}
	return json.Unmarshal(data, &s.applyState)
}

func (s *RegionStorage) loadLastIndex() error {
	data, err := s.eng.Get(raftCF, codec.LastIndexKey(s.regionID))
	if err == ErrNotFound {
		s.lastIndex = s.applyState.TruncatedIndex
		return nil
	}
	if err != nil {
		return fmt.Errorf("peer: load last index for region %d: %w", s.regionID, err)
	}
	if len(data) != 8 {
		return fmt.Errorf("peer: corrupt last index record for region %d", s.regionID)
	}
	s.lastIndex = binary.BigEndian.Uint64(data)
	return nil
}

func (s *RegionStorage) persistLastIndex(b Batch, index uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, index)
	return b.Put(raftCF, codec.LastIndexKey(s.regionID), buf)
}

// ApplyState returns a copy of the region's current apply state.
func (s *RegionStorage) ApplyState() ApplyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applyState
}

// InitialState implements raft.Storage.
func (s *RegionStorage) InitialState() (raftpb.HardState, raftpb.ConfState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hardState, s.confState, nil
}

// SetConfState is called by the peer after ApplyConfChange to keep
// the storage's cached copy (returned by future InitialState calls
// after a restart) in sync. Persisted as part of the same batch as
// the conf-change entry's apply-state advance.
func (s *RegionStorage) SetConfState(cs raftpb.ConfState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confState = cs
}

func (s *RegionStorage) firstIndexLocked() uint64 {
	return s.applyState.TruncatedIndex + 1
}

// FirstIndex implements raft.Storage.
func (s *RegionStorage) FirstIndex() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firstIndexLocked(), nil
}

// LastIndex implements raft.Storage. Scans backward from a cached
// upper bound is avoided: the last entry's index is tracked alongside
// hard state, updated on every Append.
func (s *RegionStorage) LastIndex() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastIndex, nil
}

// Term implements raft.Storage.
func (s *RegionStorage) Term(index uint64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	first := s.firstIndexLocked()
	if index+1 == first {
		return s.snapshot.Metadata.Term, nil
	}
	if index < first {
		return 0, raft.ErrCompacted
	}
	if index > s.lastIndex {
		return 0, raft.ErrUnavailable
	}

	data, err := s.eng.Get(raftCF, codec.LogEntryKey(s.regionID, index))
	if err == ErrNotFound {
		return 0, raft.ErrUnavailable
	}
	if err != nil {
		return 0, fmt.Errorf("peer: term(%d) for region %d: %w", index, s.regionID, err)
	}
	var ent raftpb.Entry
	if err := ent.Unmarshal(data); err != nil {
		return 0, err
	}
	return ent.Term, nil
}

// Entries implements raft.Storage.
func (s *RegionStorage) Entries(lo, hi, maxSize uint64) ([]raftpb.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	first := s.firstIndexLocked()
	if lo < first {
		return nil, raft.ErrCompacted
	}
	if hi > s.lastIndex+1 {
		return nil, raft.ErrUnavailable
	}

	var ents []raftpb.Entry
	var size uint64
	for i := lo; i < hi; i++ {
		data, err := s.eng.Get(raftCF, codec.LogEntryKey(s.regionID, i))
		if err != nil {
			return nil, fmt.Errorf("peer: entries region %d index %d: %w", s.regionID, i, err)
		}
		var ent raftpb.Entry
		if err := ent.Unmarshal(data); err != nil {
			return nil, err
		}
		entSize := uint64(ent.Size())
		if len(ents) > 0 && size+entSize > maxSize {
			break
		}
		ents = append(ents, ent)
		size += entSize
	}
	return ents, nil
}

// Snapshot implements raft.Storage.
func (s *RegionStorage) Snapshot() (raftpb.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, nil
}

// Append persists new entries (replacing any conflicting tail) and
// advances the cached last index, mirroring the teacher's
// RocksDBStorage.Append but batched through a single peer.Batch so it
// composes with the HardState/ApplyState write of the same Ready.
func (s *RegionStorage) Append(b Batch, entries []raftpb.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	first := entries[0].Index
	// Truncate any existing entries at or after the first new one —
	// they conflicted with a previous leader's uncommitted tail.
	for i := first; i <= s.lastIndex; i++ {
		if err := b.Delete(raftCF, codec.LogEntryKey(s.regionID, i)); err != nil {
			return err
		}
	}
	for _, ent := range entries {
		data, err := ent.Marshal()
		if err != nil {
			return err
		}
		if err := b.Put(raftCF, codec.LogEntryKey(s.regionID, ent.Index), data); err != nil {
			return err
		}
	}
	newLast := entries[len(entries)-1].Index
	if err := s.persistLastIndex(b, newLast); err != nil {
		return err
	}
	s.lastIndex = newLast
	return nil
}

// SetHardState stages the region's hard state write into b and
// updates the in-memory cache once the batch is written.
func (s *RegionStorage) SetHardState(b Batch, hs raftpb.HardState) error {
	data, err := hs.Marshal()
	if err != nil {
		return err
	}
	if err := b.Put(raftCF, codec.HardStateKey(s.regionID), data); err != nil {
		return err
	}
	s.mu.Lock()
	s.hardState = hs
	s.mu.Unlock()
	return nil
}

// SetApplyState stages the region's apply-state write into b and
// updates the in-memory cache, keeping the "advance applied_index in
// the same batch as the command" invariant of spec.md §4.1 step 5.
func (s *RegionStorage) SetApplyState(b Batch, st ApplyState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := b.Put(raftCF, codec.ApplyStateKey(s.regionID), data); err != nil {
		return err
	}
	s.mu.Lock()
	s.applyState = st
	s.mu.Unlock()
	return nil
}

// ApplySnapshot resets storage to the position described by snap: the
// log is considered truncated through the snapshot's index/term and
// the cached last index collapses to match. Pre-existing log entries
// in the truncated range are not individually deleted here (GC/compact
// reclaims them); callers must range-delete via the engine's
// DeleteRange if prompt reclamation is required.
func (s *RegionStorage) ApplySnapshot(b Batch, snap raftpb.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = snap
	s.confState = snap.Metadata.ConfState
	if err := s.persistLastIndex(b, snap.Metadata.Index); err != nil {
		return err
	}
	s.lastIndex = snap.Metadata.Index

	st := ApplyState{
		AppliedIndex:   snap.Metadata.Index,
		TruncatedIndex: snap.Metadata.Index,
		TruncatedTerm:  snap.Metadata.Term,
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := b.Put(raftCF, codec.ApplyStateKey(s.regionID), data); err != nil {
		return err
	}
	s.applyState = st
	return nil
}

// CompactTo advances truncated_index/term to index (and its term),
// per the log-GC admin command of spec.md §4.1. Entries below index
// are deleted from the raft CF; callers supply the batch so this
// composes with the same write as the CompactLog apply.
func (s *RegionStorage) CompactTo(b Batch, index, term uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index <= s.applyState.TruncatedIndex {
		return nil
	}
	for i := s.applyState.TruncatedIndex + 1; i <= index; i++ {
		if err := b.Delete(raftCF, codec.LogEntryKey(s.regionID, i)); err != nil {
			return err
		}
	}
	st := s.applyState
	st.TruncatedIndex = index
	st.TruncatedTerm = term
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := b.Put(raftCF, codec.ApplyStateKey(s.regionID), data); err != nil {
		return err
	}
	s.applyState = st
	return nil
}
