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
	"fmt"
	"os"
)

// Checkpointer is the subset of internal/engine.Engine the generator
// needs: a consistent on-disk checkpoint of every column family.
type Checkpointer interface {
	Flush() error
	Checkpoint(dir string) error
}

// Generate builds the on-disk snapshot file for key from eng's current
// state (a hard-linked RocksDB checkpoint) and returns its directory.
// Region-scoped filtering (range-limiting the snapshot to key's
// region) happens at SST ingest time in the importer, not here — the
// checkpoint itself always reflects the whole engine, matching the
// teacher's single-writer checkpoint primitive.
func (m *Manager) Generate(key SnapKey, eng Checkpointer) (string, error) {
	m.SetState(key, StateGenerating)

	dir := m.Path(key)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("snapshot: clear stale dir for %s: %w", key, err)
	}
	if err := eng.Flush(); err != nil {
		return "", fmt.Errorf("snapshot: flush before checkpoint: %w", err)
	}
	if err := eng.Checkpoint(dir); err != nil {
		return "", fmt.Errorf("snapshot: checkpoint for %s: %w", key, err)
	}

	m.SetState(key, StateIdle)
	return dir, nil
}

// MarkSending transitions key to Sending and returns a Handle the
// snap-worker releases once the stream completes or fails.
func (m *Manager) MarkSending(key SnapKey) *Handle {
	m.SetState(key, StateSending)
	return m.Acquire(key)
}
