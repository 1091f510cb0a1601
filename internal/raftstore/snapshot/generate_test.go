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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCheckpointer struct {
	flushed    bool
	checkpoint func(dir string) error
}

func (f *fakeCheckpointer) Flush() error {
	f.flushed = true
	return nil
}

func (f *fakeCheckpointer) Checkpoint(dir string) error {
	return f.checkpoint(dir)
}

func TestGenerateFlushesThenChecksPoints(t *testing.T) {
	m := newTestManager(t)
	key := SnapKey{RegionID: 9, Term: 3, Index: 77}

	eng := &fakeCheckpointer{checkpoint: func(dir string) error {
		return os.WriteFile(dir+".marker", nil, 0o644)
	}}
	// Checkpoint in the real engine creates dir itself; emulate that
	// by creating the directory before writing into it.
	eng.checkpoint = func(dir string) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		return os.WriteFile(dir+"/default.sst", []byte("data"), 0o644)
	}

	dir, err := m.Generate(key, eng)
	require.NoError(t, err)
	assert.True(t, eng.flushed)
	assert.Equal(t, m.Path(key), dir)
	assert.Equal(t, StateIdle, m.State(key))

	data, err := os.ReadFile(dir + "/default.sst")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}
