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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
)

func newTestRegionStorage(t *testing.T) (*RegionStorage, Engine) {
	t.Helper()
	eng := NewMemoryEngine()
	s, err := NewRegionStorage(eng, 7)
	require.NoError(t, err)
	return s, eng
}

func writeBatch(t *testing.T, eng Engine, fn func(b Batch) error) {
	t.Helper()
	b := eng.NewBatch()
	require.NoError(t, fn(b))
	require.NoError(t, eng.Write(b))
}

func TestRegionStorageFreshState(t *testing.T) {
	s, _ := newTestRegionStorage(t)

	hs, cs, err := s.InitialState()
	require.NoError(t, err)
	assert.Equal(t, raftpb.HardState{}, hs)
	assert.Equal(t, raftpb.ConfState{}, cs)

	first, err := s.FirstIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)

	last, err := s.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), last)
}

func TestRegionStorageAppendPersistsAcrossReload(t *testing.T) {
	s, eng := newTestRegionStorage(t)

	entries := []raftpb.Entry{
		{Term: 1, Index: 1, Data: []byte("a")},
		{Term: 1, Index: 2, Data: []byte("b")},
		{Term: 2, Index: 3, Data: []byte("c")},
	}
	writeBatch(t, eng, func(b Batch) error { return s.Append(b, entries) })

	last, err := s.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)

	got, err := s.Entries(1, 4, math.MaxUint64)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, entries, got)

	term, err := s.Term(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), term)

	// Reloading from the same engine must recover lastIndex from the
	// persisted record, not assume zero.
	reloaded, err := NewRegionStorage(eng, 7)
	require.NoError(t, err)
	last, err = reloaded.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)
}

func TestRegionStorageAppendTruncatesConflictingTail(t *testing.T) {
	s, eng := newTestRegionStorage(t)

	writeBatch(t, eng, func(b Batch) error {
		return s.Append(b, []raftpb.Entry{
			{Term: 1, Index: 1},
			{Term: 1, Index: 2},
			{Term: 1, Index: 3},
		})
	})
	writeBatch(t, eng, func(b Batch) error {
		return s.Append(b, []raftpb.Entry{
			{Term: 2, Index: 2},
		})
	})

	last, err := s.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)

	got, err := s.Entries(1, 3, math.MaxUint64)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[1].Index)
	assert.Equal(t, uint64(2), got[1].Term)
}

func TestRegionStorageSetHardStateAndApplyStateRoundTrip(t *testing.T) {
	s, eng := newTestRegionStorage(t)

	hs := raftpb.HardState{Term: 4, Vote: 2, Commit: 3}
	writeBatch(t, eng, func(b Batch) error { return s.SetHardState(b, hs) })

	got, _, err := s.InitialState()
	require.NoError(t, err)
	assert.Equal(t, hs, got)

	st := ApplyState{AppliedIndex: 5, TruncatedIndex: 2, TruncatedTerm: 1}
	writeBatch(t, eng, func(b Batch) error { return s.SetApplyState(b, st) })
	assert.Equal(t, st, s.ApplyState())

	reloaded, err := NewRegionStorage(eng, 7)
	require.NoError(t, err)
	assert.Equal(t, hs, mustHardState(t, reloaded))
	assert.Equal(t, st, reloaded.ApplyState())
}

func mustHardState(t *testing.T, s *RegionStorage) raftpb.HardState {
	t.Helper()
	hs, _, err := s.InitialState()
	require.NoError(t, err)
	return hs
}

func TestRegionStorageApplySnapshotResetsLogPosition(t *testing.T) {
	s, eng := newTestRegionStorage(t)

	writeBatch(t, eng, func(b Batch) error {
		return s.Append(b, []raftpb.Entry{{Term: 1, Index: 1}, {Term: 1, Index: 2}})
	})

	snap := raftpb.Snapshot{
		Data: []byte("region-state"),
		Metadata: raftpb.SnapshotMetadata{
			Index:     10,
			Term:      3,
			ConfState: raftpb.ConfState{Voters: []uint64{1, 2, 3}},
		},
	}
	writeBatch(t, eng, func(b Batch) error { return s.ApplySnapshot(b, snap) })

	last, err := s.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), last)

	first, err := s.FirstIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(11), first)

	got, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snap.Data, got.Data)

	// A restart immediately after this batch, before any Append, must
	// recover lastIndex=10 from the persisted record rather than
	// falling back to applyState.TruncatedIndex by coincidence alone.
	reloaded, err := NewRegionStorage(eng, 7)
	require.NoError(t, err)
	last, err = reloaded.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), last)
}

func TestRegionStorageCompactToDeletesTruncatedEntries(t *testing.T) {
	s, eng := newTestRegionStorage(t)

	writeBatch(t, eng, func(b Batch) error {
		return s.Append(b, []raftpb.Entry{
			{Term: 1, Index: 1}, {Term: 1, Index: 2}, {Term: 1, Index: 3},
		})
	})

	writeBatch(t, eng, func(b Batch) error { return s.CompactTo(b, 2, 1) })

	first, err := s.FirstIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), first)

	// Term(first-1) stays answerable for raft's log matching; entries
	// below it are compacted.
	_, err = s.Term(1)
	assert.ErrorIs(t, err, raft.ErrCompacted)

	got, err := s.Entries(3, 4, math.MaxUint64)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].Index)
}
