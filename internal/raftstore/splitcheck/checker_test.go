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

package splitcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distkv/tikv-node/internal/codec"
	"github.com/distkv/tikv-node/internal/engine"
	"github.com/distkv/tikv-node/internal/mvcc"
)

func putRow(t *testing.T, store *mvcc.Store, tableID, rowHandle int64, value []byte) {
	t.Helper()
	key := codec.TableRowKey(tableID, rowHandle)
	b := store.Backend().NewBatch()
	require.NoError(t, b.Put(engine.CFDefault, codec.MVCCEncodeKey(key, 1), value))
	require.NoError(t, store.Backend().Write(b))
}

func TestCheckSizeObserverProposesSplitAtThreshold(t *testing.T) {
	store := mvcc.NewMemoryStore()
	defer store.Close()

	for i := int64(0); i < 20; i++ {
		putRow(t, store, 1, i, []byte("0123456789")) // ~10 bytes value + key overhead each
	}

	res, err := Check(store.Backend(), nil, nil, Config{RegionMaxSizeBytes: 100})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SplitKeys, "cumulative size exceeds the threshold well before the last row")
	assert.Greater(t, res.ApproximateSizeBytes, uint64(100))
}

func TestCheckNoSplitBelowThreshold(t *testing.T) {
	store := mvcc.NewMemoryStore()
	defer store.Close()

	for i := int64(0); i < 3; i++ {
		putRow(t, store, 1, i, []byte("v"))
	}

	res, err := Check(store.Backend(), nil, nil, Config{RegionMaxSizeBytes: 1 << 20})
	require.NoError(t, err)
	assert.Empty(t, res.SplitKeys)
}

func TestCheckTableBoundaryTakesPriorityOverSize(t *testing.T) {
	store := mvcc.NewMemoryStore()
	defer store.Close()

	for i := int64(0); i < 5; i++ {
		putRow(t, store, 1, i, []byte("0123456789"))
	}
	for i := int64(0); i < 5; i++ {
		putRow(t, store, 2, i, []byte("0123456789"))
	}

	res, err := Check(store.Backend(), nil, nil, Config{
		RegionMaxSizeBytes:   20, // would trigger well inside table 1
		TableBoundaryMinRows: 5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.SplitKeys)

	tableID, ok := codec.TableIDFromKey(res.SplitKeys[0])
	require.True(t, ok)
	assert.Equal(t, int64(2), tableID, "the table-boundary observer's split point wins over the size observer's")
}

func TestCheckTableBoundaryRequiresMinRows(t *testing.T) {
	store := mvcc.NewMemoryStore()
	defer store.Close()

	// Only 2 rows of table 1 before table 2 starts: below MinRows, so
	// the boundary observer must stay silent and let size win instead.
	for i := int64(0); i < 2; i++ {
		putRow(t, store, 1, i, []byte("0123456789"))
	}
	for i := int64(0); i < 5; i++ {
		putRow(t, store, 2, i, []byte("0123456789"))
	}

	res, err := Check(store.Backend(), nil, nil, Config{
		RegionMaxSizeBytes:   20,
		TableBoundaryMinRows: 5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.SplitKeys)

	tableID, ok := codec.TableIDFromKey(res.SplitKeys[0])
	require.True(t, ok)
	assert.Equal(t, int64(1), tableID, "size observer's split point is inside table 1, before the too-early boundary")
}

func TestCheckRespectsKeyRangeBounds(t *testing.T) {
	store := mvcc.NewMemoryStore()
	defer store.Close()

	for i := int64(0); i < 10; i++ {
		putRow(t, store, 1, i, []byte("0123456789"))
	}

	start := codec.TableRowKey(1, 3)
	end := codec.TableRowKey(1, 7)
	res, err := Check(store.Backend(), start, end, Config{RegionMaxSizeBytes: 1 << 20})
	require.NoError(t, err)
	wantPerRow := len(codec.MVCCEncodeKey(codec.TableRowKey(1, 0), 1)) + len("0123456789")
	assert.Equal(t, uint64(4*wantPerRow), res.ApproximateSizeBytes, "expected exactly rows 3..6 (4 rows) counted")
}
