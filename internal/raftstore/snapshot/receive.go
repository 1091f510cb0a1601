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
	"path/filepath"

	"github.com/google/uuid"
	"go.etcd.io/etcd/client/pkg/v3/fileutil"
)

// Receiver stages an inbound chunked snapshot transfer into a
// uuid-named temporary directory, invisible under its final SnapKey
// path until Finish renames it atomically.
type Receiver struct {
	manager *Manager
	key     SnapKey
	tmpDir  string
}

// NewReceiver begins receiving key, transitioning it to Receiving.
func (m *Manager) NewReceiver(key SnapKey) (*Receiver, error) {
	m.SetState(key, StateReceiving)

	tmpDir := filepath.Join(m.baseDir, "tmp_"+uuid.NewString())
	if err := fileutil.TouchDirAll(tmpDir); err != nil {
		return nil, fmt.Errorf("snapshot: create staging dir for %s: %w", key, err)
	}
	return &Receiver{manager: m, key: key, tmpDir: tmpDir}, nil
}

// WriteChunk appends one ≤MaxChunkSize payload to the named file
// within the staging directory, creating it on the first chunk.
func (r *Receiver) WriteChunk(name string, data []byte) error {
	if len(data) > MaxChunkSize {
		return fmt.Errorf("snapshot: chunk for %s exceeds %d bytes", name, MaxChunkSize)
	}
	f, err := os.OpenFile(filepath.Join(r.tmpDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("snapshot: open staged chunk file %s: %w", name, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("snapshot: write staged chunk %s: %w", name, err)
	}
	return nil
}

// Finish verifies staged files against wantChecksums (file name ->
// expected CRC32), atomically publishes the staging directory under
// key's final path, and transitions key to Applying. The caller
// (region-worker) must call Done once ingest completes.
func (r *Receiver) Finish(wantChecksums map[string]uint32) (string, error) {
	for name, want := range wantChecksums {
		got, err := fileCRC32(filepath.Join(r.tmpDir, name))
		if err != nil {
			return "", fmt.Errorf("snapshot: checksum staged file %s: %w", name, err)
		}
		if got != want {
			return "", fmt.Errorf("snapshot: checksum mismatch for %s: got %d want %d", name, got, want)
		}
	}

	final := r.manager.Path(r.key)
	if err := os.RemoveAll(final); err != nil {
		return "", fmt.Errorf("snapshot: clear stale final dir for %s: %w", r.key, err)
	}
	if err := os.Rename(r.tmpDir, final); err != nil {
		return "", fmt.Errorf("snapshot: publish %s: %w", r.key, err)
	}

	r.manager.SetState(r.key, StateApplying)
	return final, nil
}

// Abort discards the staging directory and drops key's bookkeeping
// entirely, whatever state it was in.
func (r *Receiver) Abort() error {
	if err := os.RemoveAll(r.tmpDir); err != nil {
		return fmt.Errorf("snapshot: abort cleanup for %s: %w", r.key, err)
	}
	r.manager.mu.Lock()
	delete(r.manager.entries, r.key)
	r.manager.mu.Unlock()
	return nil
}

// Done marks key's apply as complete, leaving it Idle and subject to
// ordinary refcount/GC deletion rules.
func (m *Manager) Done(key SnapKey) {
	m.SetState(key, StateIdle)
}
