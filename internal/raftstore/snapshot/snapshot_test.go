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

package snapshot

import (
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/raft/v3/raftpb"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(dir, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestAcquireBlocksDeletionUntilReleased(t *testing.T) {
	m := newTestManager(t)
	key := SnapKey{RegionID: 1, Term: 2, Index: 100}

	h := m.Acquire(key)
	assert.False(t, m.Deletable(key))

	h.Release()
	assert.True(t, m.Deletable(key))

	h.Release() // second release must be a no-op, not go negative
	assert.True(t, m.Deletable(key))
}

func TestApplyingStateBlocksDeletionRegardlessOfRefcount(t *testing.T) {
	m := newTestManager(t)
	key := SnapKey{RegionID: 1, Term: 1, Index: 1}

	m.SetState(key, StateApplying)
	assert.False(t, m.Deletable(key), "applying snapshot must not be deletable even with zero refcount")

	m.Done(key)
	assert.True(t, m.Deletable(key))
}

func TestReceiverFinishValidatesChecksumAndPublishes(t *testing.T) {
	m := newTestManager(t)
	key := SnapKey{RegionID: 5, Term: 1, Index: 42}

	r, err := m.NewReceiver(key)
	require.NoError(t, err)
	assert.Equal(t, StateReceiving, m.State(key))

	payload := []byte("sst-bytes")
	require.NoError(t, r.WriteChunk("default.sst", payload))

	checksum := crc32.ChecksumIEEE(payload)
	path, err := r.Finish(map[string]uint32{"default.sst": checksum})
	require.NoError(t, err)
	assert.Equal(t, m.Path(key), path)
	assert.Equal(t, StateApplying, m.State(key))

	data, err := os.ReadFile(filepath.Join(path, "default.sst"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestReceiverFinishRejectsChecksumMismatch(t *testing.T) {
	m := newTestManager(t)
	key := SnapKey{RegionID: 5, Term: 1, Index: 43}

	r, err := m.NewReceiver(key)
	require.NoError(t, err)
	require.NoError(t, r.WriteChunk("default.sst", []byte("sst-bytes")))

	_, err = r.Finish(map[string]uint32{"default.sst": 0xDEADBEEF})
	assert.Error(t, err)
}

func TestSaveMetaAndLoadMetaRoundTrip(t *testing.T) {
	m := newTestManager(t)

	_, err := m.LoadMeta()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	want := raftpb.Snapshot{
		Data: []byte("region-descriptor"),
		Metadata: raftpb.SnapshotMetadata{
			Index: 100,
			Term:  3,
		},
	}
	require.NoError(t, m.SaveMeta(want))

	got, err := m.LoadMeta()
	require.NoError(t, err)
	assert.Equal(t, want.Data, got.Data)
	assert.Equal(t, want.Metadata.Index, got.Metadata.Index)
	assert.Equal(t, want.Metadata.Term, got.Metadata.Term)
}

func TestGCRemovesOnlyIdleUnreferencedEntriesPastMaxAge(t *testing.T) {
	m := newTestManager(t)

	stale := SnapKey{RegionID: 1, Term: 1, Index: 1}
	require.NoError(t, os.MkdirAll(m.Path(stale), 0o755))
	m.SetState(stale, StateIdle)
	m.entries[stale].createdAt = time.Now().Add(-time.Hour)

	fresh := SnapKey{RegionID: 1, Term: 1, Index: 2}
	require.NoError(t, os.MkdirAll(m.Path(fresh), 0o755))
	m.SetState(fresh, StateIdle)

	removed := m.GC(time.Minute)
	assert.ElementsMatch(t, []SnapKey{stale}, removed)

	_, err := os.Stat(m.Path(stale))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(m.Path(fresh))
	assert.NoError(t, err)
}
