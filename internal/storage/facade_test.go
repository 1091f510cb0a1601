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

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/raft/v3"

	"github.com/distkv/tikv-node/internal/mvcc"
	"github.com/distkv/tikv-node/internal/raftstore/peer"
	"github.com/distkv/tikv-node/internal/scheduler"
)

// fakeRaft is a loopback RegionProposer: ProposeCommand applies
// directly against the facade's own Apply method instead of going
// through a real raft group, so these tests exercise the facade's
// request validation, latching, and apply semantics without standing
// up peer/store/transport.
type fakeRaft struct {
	facade *Facade
	region peer.Region
	leader bool
	lease  bool
}

func (f *fakeRaft) RegionStatus(id uint64) (peer.Region, raft.Status, bool) {
	if id != f.region.ID {
		return peer.Region{}, raft.Status{}, false
	}
	return f.region, raft.Status{}, true
}

func (f *fakeRaft) HasValidLease(id uint64) (valid, found bool) {
	return f.lease, id == f.region.ID
}

func (f *fakeRaft) IsLeader(id uint64) (leader, found bool) {
	return f.leader, id == f.region.ID
}

func (f *fakeRaft) FindRegion(key []byte) (uint64, bool) {
	if f.region.ContainsKey(key) {
		return f.region.ID, true
	}
	return 0, false
}

func (f *fakeRaft) ProposeCommand(regionID uint64, data []byte) (<-chan peer.CommandResult, error) {
	err := f.facade.Apply(nil, regionID, data)
	ch := make(chan peer.CommandResult, 1)
	ch <- peer.CommandResult{Err: err}
	close(ch)
	return ch, nil
}

func newTestFacade(t *testing.T) (*Facade, *fakeRaft, func()) {
	t.Helper()
	fr := &fakeRaft{
		region: peer.Region{ID: 1, Epoch: peer.RegionEpoch{Version: 1, ConfVer: 1}},
		leader: true,
		lease:  true,
	}
	sched := scheduler.New(scheduler.Config{MaxPending: 1000, ReadWorkers: 2}, nil)
	sched.Run(context.Background())

	f := New(Config{Raft: fr, MVCC: mvcc.NewMemoryStore(), Scheduler: sched})
	fr.facade = f

	return f, fr, func() { sched.Close(); sched.Wait() }
}

func testRC(fr *fakeRaft) RequestContext {
	return RequestContext{RegionID: fr.region.ID, RegionEpoch: fr.region.Epoch}
}

func TestFacadeSingleKeyTxnRoundTrip(t *testing.T) {
	// Scenario S1: put ("k","v") at (start_ts=10, commit_ts=11).
	f, fr, stop := newTestFacade(t)
	defer stop()
	ctx := context.Background()
	rc := testRC(fr)

	err := f.Prewrite(ctx, []mvcc.Mutation{{Type: mvcc.MutationPut, Key: []byte("k"), Value: []byte("v")}}, []byte("k"), 10, 1000, rc)
	require.NoError(t, err)

	err = f.Commit(ctx, [][]byte{[]byte("k")}, 10, 11, rc)
	require.NoError(t, err)

	_, err = f.Get(ctx, []byte("k"), 5, rc)
	assert.ErrorIs(t, err, mvcc.ErrKeyNotFound)

	v, err := f.Get(ctx, []byte("k"), 11, rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v.Value)

	v, err = f.Get(ctx, []byte("k"), 100, rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v.Value)
}

func TestFacadePrewriteConflictReturnsKeyIsLocked(t *testing.T) {
	// Scenario S2: T1 prewrites "k" at ts=10; T2 prewrites "k" at ts=20
	// before T1 commits or rolls back.
	f, fr, stop := newTestFacade(t)
	defer stop()
	ctx := context.Background()
	rc := testRC(fr)

	require.NoError(t, f.Prewrite(ctx, []mvcc.Mutation{{Type: mvcc.MutationPut, Key: []byte("k"), Value: []byte("v1")}}, []byte("k"), 10, 1000, rc))

	err := f.Prewrite(ctx, []mvcc.Mutation{{Type: mvcc.MutationPut, Key: []byte("k"), Value: []byte("v2")}}, []byte("k"), 20, 1000, rc)
	require.Error(t, err)
	var lockErr *mvcc.KeyIsLockedError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, uint64(10), lockErr.StartTS)
	assert.Equal(t, []byte("k"), lockErr.Primary)
}

func TestFacadeGetRejectsWithoutLeadership(t *testing.T) {
	f, fr, stop := newTestFacade(t)
	defer stop()
	fr.leader = false

	_, err := f.Get(context.Background(), []byte("k"), 1, testRC(fr))
	var notLeader *peer.NotLeaderError
	require.ErrorAs(t, err, &notLeader)
}

func TestFacadeGetRejectsWithoutValidLease(t *testing.T) {
	f, fr, stop := newTestFacade(t)
	defer stop()
	fr.lease = false

	_, err := f.Get(context.Background(), []byte("k"), 1, testRC(fr))
	assert.ErrorIs(t, err, ErrNoValidLease)
}

func TestFacadeEpochMismatchRejected(t *testing.T) {
	f, fr, stop := newTestFacade(t)
	defer stop()
	rc := testRC(fr)
	rc.RegionEpoch.Version = 99

	_, err := f.Get(context.Background(), []byte("k"), 1, rc)
	var epochErr *peer.EpochNotMatchError
	require.ErrorAs(t, err, &epochErr)
}

func TestFacadeKeyOutsideRegionRejected(t *testing.T) {
	f, fr, stop := newTestFacade(t)
	defer stop()
	fr.region.StartKey = []byte("m")
	fr.region.EndKey = []byte("z")

	_, err := f.Get(context.Background(), []byte("a"), 1, testRC(fr))
	assert.ErrorIs(t, err, peer.ErrKeyNotInRegion)
}

func TestFacadeRawPutGetRoundTrip(t *testing.T) {
	f, fr, stop := newTestFacade(t)
	defer stop()
	ctx := context.Background()
	rc := testRC(fr)

	require.NoError(t, f.RawPut(ctx, []byte("raw-k"), []byte("raw-v"), rc))

	val, found, err := f.RawGet(ctx, []byte("raw-k"), rc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("raw-v"), val)

	require.NoError(t, f.RawDelete(ctx, []byte("raw-k"), rc))
	_, found, err = f.RawGet(ctx, []byte("raw-k"), rc)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFacadeGCRemovesOldVersions(t *testing.T) {
	// Testable Property 4: after gc(safe_point), at most one write entry
	// with commit_ts < safe_point survives per key.
	f, fr, stop := newTestFacade(t)
	defer stop()
	ctx := context.Background()
	rc := testRC(fr)

	require.NoError(t, f.Prewrite(ctx, []mvcc.Mutation{{Type: mvcc.MutationPut, Key: []byte("k"), Value: []byte("v1")}}, []byte("k"), 10, 1000, rc))
	require.NoError(t, f.Commit(ctx, [][]byte{[]byte("k")}, 10, 11, rc))
	require.NoError(t, f.Prewrite(ctx, []mvcc.Mutation{{Type: mvcc.MutationPut, Key: []byte("k"), Value: []byte("v2")}}, []byte("k"), 20, 1000, rc))
	require.NoError(t, f.Commit(ctx, [][]byte{[]byte("k")}, 20, 21, rc))

	require.NoError(t, f.GC(ctx, 21, rc))

	v, err := f.Get(ctx, []byte("k"), 100, rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v.Value, "the newest committed version below the safe point must survive GC")
}
