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

// Package snapshot manages the on-disk staging area for region
// snapshots: generating a checkpoint directory for a leader to send,
// receiving chunked uploads into a temporary directory for a follower
// to apply, and refcounting the result so a file in Applying state is
// never deleted out from under an in-progress ingest.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/etcd/client/pkg/v3/fileutil"
	"go.etcd.io/etcd/server/v3/etcdserver/api/snap"
	"go.etcd.io/raft/v3/raftpb"
	"go.uber.org/zap"
)

// MaxChunkSize bounds a single streamed snapshot chunk, per spec.md §6:
// "subsequent chunks carry ≤1 MiB payloads".
const MaxChunkSize = 1 << 20

// SnapKey content-addresses a snapshot file by the region and raft log
// position it was generated at.
type SnapKey struct {
	RegionID uint64
	Term     uint64
	Index    uint64
}

func (k SnapKey) String() string {
	return fmt.Sprintf("%d_%d_%d", k.RegionID, k.Term, k.Index)
}

// State is a snapshot file's lifecycle state.
type State int

const (
	// StateIdle means the file exists on disk but is not currently
	// part of a send or receive.
	StateIdle State = iota
	StateGenerating
	StateSending
	StateReceiving
	StateApplying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateSending:
		return "sending"
	case StateReceiving:
		return "receiving"
	case StateApplying:
		return "applying"
	default:
		return "unknown"
	}
}

// blocking reports whether a snapshot file in this state must not be
// deleted regardless of refcount.
func (s State) blocking() bool {
	return s == StateSending || s == StateReceiving || s == StateApplying
}

type entry struct {
	state     State
	refCount  int
	createdAt time.Time
}

// Manager tracks every snapshot file this store knows about, under a
// single base directory, one subdirectory per SnapKey, plus a
// snap.Snapshotter-backed store of the lightweight raftpb.Snapshot
// envelope (term/index/conf_state + a small opaque Data blob) each
// bulk checkpoint directory corresponds to.
type Manager struct {
	mu      sync.Mutex
	baseDir string
	entries map[SnapKey]*entry

	meta *snap.Snapshotter
}

// NewManager creates (if needed) baseDir and returns a Manager rooted
// there. logger is used by the embedded snap.Snapshotter for its own
// diagnostics.
func NewManager(baseDir string, logger *zap.Logger) (*Manager, error) {
	if err := fileutil.TouchDirAll(baseDir); err != nil {
		return nil, fmt.Errorf("snapshot: create base dir %s: %w", baseDir, err)
	}
	metaDir := filepath.Join(baseDir, "meta")
	if err := fileutil.TouchDirAll(metaDir); err != nil {
		return nil, fmt.Errorf("snapshot: create meta dir %s: %w", metaDir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		baseDir: baseDir,
		entries: make(map[SnapKey]*entry),
		meta:    snap.New(logger, metaDir),
	}, nil
}

// SaveMeta persists the raftpb.Snapshot envelope (metadata only —
// index, term, conf_state, and whatever small opaque Data the peer
// attaches) so a restarting node can recover which SnapKey its last
// applied snapshot corresponds to without re-reading the bulk
// checkpoint directory.
func (m *Manager) SaveMeta(s raftpb.Snapshot) error {
	if err := m.meta.SaveSnap(s); err != nil {
		return fmt.Errorf("snapshot: save metadata envelope: %w", err)
	}
	return nil
}

// LoadMeta returns the most recently saved metadata envelope, or
// ErrNoSnapshot (re-exported below) if none exists yet.
func (m *Manager) LoadMeta() (*raftpb.Snapshot, error) {
	s, err := m.meta.Load()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ErrNoSnapshot is returned by LoadMeta on a node that has never
// saved a metadata envelope.
var ErrNoSnapshot = snap.ErrNoSnapshot

// Path returns the final on-disk directory for key, whether or not it
// exists yet.
func (m *Manager) Path(key SnapKey) string {
	return filepath.Join(m.baseDir, "gen_"+key.String())
}

func (m *Manager) lookup(key SnapKey) *entry {
	e, ok := m.entries[key]
	if !ok {
		e = &entry{createdAt: time.Now()}
		m.entries[key] = e
	}
	return e
}

// SetState records key's current lifecycle state.
func (m *Manager) SetState(key SnapKey, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookup(key).state = state
}

// State returns key's current lifecycle state, StateIdle if unknown.
func (m *Manager) State(key SnapKey) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.state
	}
	return StateIdle
}

// Acquire increments key's refcount and returns a Handle whose
// Release must be called exactly once.
func (m *Manager) Acquire(key SnapKey) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookup(key).refCount++
	return &Handle{manager: m, key: key}
}

// Handle is a refcounted hold on a snapshot file preventing its
// deletion while in use (e.g. being read by the snap-worker).
type Handle struct {
	manager   *Manager
	key       SnapKey
	released  bool
	releaseMu sync.Mutex
}

// Release drops the hold. Safe to call more than once; only the first
// call has an effect.
func (h *Handle) Release() {
	h.releaseMu.Lock()
	defer h.releaseMu.Unlock()
	if h.released {
		return
	}
	h.released = true
	h.manager.release(h.key)
}

func (m *Manager) release(key SnapKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.refCount > 0 {
		e.refCount--
	}
}

// Deletable reports whether key's file may be physically removed:
// refcount zero and not in a blocking state.
func (m *Manager) Deletable(key SnapKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return true
	}
	return e.refCount == 0 && !e.state.blocking()
}

// Delete removes key's on-disk directory and its bookkeeping entry if
// Deletable; otherwise it is a no-op returning false.
func (m *Manager) Delete(key SnapKey) (bool, error) {
	if !m.Deletable(key) {
		return false, nil
	}
	if err := os.RemoveAll(m.Path(key)); err != nil {
		return false, fmt.Errorf("snapshot: delete %s: %w", key, err)
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return true, nil
}

// GC removes every idle, unreferenced, on-disk snapshot file older
// than maxAge. Invoked by the store's snap-gc tick.
func (m *Manager) GC(maxAge time.Duration) []SnapKey {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var candidates []SnapKey
	for key, e := range m.entries {
		if e.refCount == 0 && !e.state.blocking() && e.createdAt.Before(cutoff) {
			candidates = append(candidates, key)
		}
	}
	m.mu.Unlock()

	var removed []SnapKey
	for _, key := range candidates {
		if ok, err := m.Delete(key); ok && err == nil {
			removed = append(removed, key)
		}
	}
	return removed
}
