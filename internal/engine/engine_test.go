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

//go:build cgo
// +build cgo

package engine

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distkv/tikv-node/pkg/config"
)

func newTestEngine(t *testing.T) (*Engine, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "engine-test-*")
	require.NoError(t, err)

	cfg := config.DefaultConfig(1, ":0").Server.RocksDB
	e, err := Open(&cfg, dir)
	require.NoError(t, err)

	return e, func() {
		e.Close()
		os.RemoveAll(dir)
	}
}

func TestPutGetDeleteAcrossColumnFamilies(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()

	for _, cf := range CFNames() {
		require.NoError(t, e.Put(cf, []byte("k1"), []byte("v1-"+cf)))
	}

	for _, cf := range CFNames() {
		v, err := e.Get(cf, []byte("k1"))
		require.NoError(t, err)
		assert.Equal(t, "v1-"+cf, string(v))
	}

	require.NoError(t, e.Delete(CFDefault, []byte("k1")))
	_, err := e.Get(CFDefault, []byte("k1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUnknownColumnFamily(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()

	_, err := e.Get("bogus", []byte("k1"))
	var unknown *UnknownCFError
	assert.ErrorAs(t, err, &unknown)
}

func TestWriteBatchAtomicAcrossColumnFamilies(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()

	wb := e.NewWriteBatch()
	defer wb.Destroy()

	require.NoError(t, wb.Put(CFDefault, []byte("k"), []byte("v")))
	require.NoError(t, wb.Put(CFLock, []byte("k"), []byte("lock-v")))
	require.NoError(t, wb.Put(CFWrite, []byte("k"), []byte("write-v")))
	assert.Equal(t, 3, wb.Count())

	require.NoError(t, e.Write(wb))

	v, err := e.Get(CFLock, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "lock-v", string(v))
}

func TestIteratorSeeksInOrder(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()

	keys := []string{"a", "b", "c", "d"}
	for _, k := range keys {
		require.NoError(t, e.Put(CFDefault, []byte(k), []byte(k+"-value")))
	}

	it, err := e.NewIterator(CFDefault)
	require.NoError(t, err)
	defer it.Close()

	it.Seek([]byte("b"))
	var seen []string
	for ; it.Valid(); it.Next() {
		seen = append(seen, string(it.Key()))
	}
	assert.Equal(t, []string{"b", "c", "d"}, seen)
}

func TestSnapshotIsolatesFromLaterWrites(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()

	require.NoError(t, e.Put(CFDefault, []byte("k"), []byte("v1")))

	snap := e.Snapshot()
	defer snap.Release()

	require.NoError(t, e.Put(CFDefault, []byte("k"), []byte("v2")))

	v, err := snap.Get(CFDefault, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v))

	live, err := e.Get(CFDefault, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(live))
}

func TestCheckpointRejectsNonEmptyDir(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()

	dir, err := os.MkdirTemp("", "engine-checkpoint-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	require.NoError(t, os.WriteFile(dir+"/stray", []byte("x"), 0o644))

	err = e.Checkpoint(dir)
	assert.ErrorIs(t, err, ErrBadCheckpoint)
}
