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

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"

	"github.com/distkv/tikv-node/internal/raftstore/peer"
)

// recordingApplier appends every payload applied to it, guarded by a
// mutex since Peer applies on its own goroutine-free call path but the
// test reads the slice from the test goroutine.
type recordingApplier struct {
	mu      sync.Mutex
	applied [][]byte
}

func (a *recordingApplier) Apply(b peer.Batch, regionID uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, append([]byte(nil), data...))
	return nil
}

func (a *recordingApplier) snapshot() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]byte(nil), a.applied...)
}

type discardSender struct{}

func (discardSender) Send(msgs []raftpb.Message) {}

func newSingleNodePeer(t *testing.T, regionID uint64, applier peer.Applier) *peer.Peer {
	t.Helper()
	eng := peer.NewMemoryEngine()
	storage, err := peer.NewRegionStorage(eng, regionID)
	require.NoError(t, err)

	region := &peer.Region{ID: regionID, Peers: []peer.PeerMeta{{ID: 1, StoreID: 1}}}
	p, err := peer.NewPeer(peer.Config{
		StoreID: 1,
		Region:  region,
		Storage: storage,
		Engine:  eng,
		Applier: applier,
		Sender:  discardSender{},
		RaftConfig: raft.Config{
			ID:              1,
			ElectionTick:    10,
			HeartbeatTick:   1,
			MaxSizePerMsg:   1 << 20,
			MaxInflightMsgs: 256,
		},
		Peers: []raft.Peer{{ID: 1}},
	})
	require.NoError(t, err)
	return p
}

// runStore starts s.Run in the background and returns a cancel func
// that stops it and waits for it to return.
func runStore(t *testing.T, s *Store) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("store did not shut down in time")
		}
	}
}

func waitForLeader(t *testing.T, p *peer.Peer) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if p.Status().RaftState == raft.StateLeader {
				return
			}
		case <-deadline:
			t.Fatal("peer never became leader")
		}
	}
}

func TestStoreProposeCommandAppliesThroughEventLoop(t *testing.T) {
	applier := &recordingApplier{}
	p := newSingleNodePeer(t, 1, applier)

	s := NewStore(Config{
		StoreID:    1,
		Intervals:  TickIntervals{RaftBase: 10 * time.Millisecond},
		QueueDepth: 64,
	})
	s.AddPeer(p, &peer.Region{ID: 1})
	stop := runStore(t, s)
	defer stop()

	waitForLeader(t, p)

	respC, err := s.ProposeCommand(1, []byte("put k=v"))
	require.NoError(t, err)

	select {
	case res := <-respC:
		require.NoError(t, res.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("command never resolved")
	}

	assert.Equal(t, [][]byte{[]byte("put k=v")}, applier.snapshot())
}

func TestStoreProposeCommandUnknownRegionErrors(t *testing.T) {
	s := NewStore(Config{StoreID: 1, QueueDepth: 64})
	stop := runStore(t, s)
	defer stop()

	respC, err := s.ProposeCommand(99, []byte("x"))
	require.NoError(t, err, "enqueue itself succeeds; the error surfaces on the result channel")
	select {
	case res := <-respC:
		assert.ErrorIs(t, res.Err, ErrUnknownRegion)
	case <-time.After(time.Second):
		t.Fatal("command never resolved")
	}
}

// stubFactory creates a peer lazily the first time it's asked for a
// given region, recording how many times it was invoked.
type stubFactory struct {
	mu       sync.Mutex
	applier  *recordingApplier
	calls    int
	regionID uint64
}

func (f *stubFactory) CreatePeer(regionID uint64) (*peer.Peer, *peer.Region, bool, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if regionID != f.regionID {
		return nil, nil, false, nil
	}
	p := newSingleNodePeerForFactory(regionID, f.applier)
	return p, &peer.Region{ID: regionID}, true, nil
}

func newSingleNodePeerForFactory(regionID uint64, applier peer.Applier) *peer.Peer {
	eng := peer.NewMemoryEngine()
	storage, err := peer.NewRegionStorage(eng, regionID)
	if err != nil {
		panic(err)
	}
	region := &peer.Region{ID: regionID, Peers: []peer.PeerMeta{{ID: 1, StoreID: 1}}}
	p, err := peer.NewPeer(peer.Config{
		StoreID: 1,
		Region:  region,
		Storage: storage,
		Engine:  eng,
		Applier: applier,
		Sender:  discardSender{},
		RaftConfig: raft.Config{
			ID:              1,
			ElectionTick:    10,
			HeartbeatTick:   1,
			MaxSizePerMsg:   1 << 20,
			MaxInflightMsgs: 256,
		},
		Peers: []raft.Peer{{ID: 1}},
	})
	if err != nil {
		panic(err)
	}
	return p
}

func TestStoreCreatesPeerOnDemandViaFactory(t *testing.T) {
	applier := &recordingApplier{}
	factory := &stubFactory{applier: applier, regionID: 5}

	s := NewStore(Config{
		StoreID:    1,
		Factory:    factory,
		Intervals:  TickIntervals{RaftBase: 10 * time.Millisecond},
		QueueDepth: 64,
	})
	stop := runStore(t, s)
	defer stop()

	respC, err := s.ProposeCommand(5, []byte("cmd"))
	require.NoError(t, err)

	select {
	case res := <-respC:
		require.NoError(t, res.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("command never resolved")
	}

	assert.Equal(t, 1, factory.calls)
	_, ok := s.peerByID(5)
	assert.True(t, ok, "the on-demand peer stays resident after creation")
}

func TestStoreTickRaftBaseFansOutToEveryPeer(t *testing.T) {
	applier := &recordingApplier{}
	p1 := newSingleNodePeer(t, 1, applier)

	s := NewStore(Config{StoreID: 1, QueueDepth: 64})
	s.AddPeer(p1, &peer.Region{ID: 1})
	stop := runStore(t, s)
	defer stop()

	for i := 0; i < 20; i++ {
		require.NoError(t, s.enqueue(tickEvent{Kind: TickRaftBase}))
		time.Sleep(5 * time.Millisecond)
		if p1.Status().RaftState == raft.StateLeader {
			break
		}
	}
	assert.Equal(t, raft.StateLeader, p1.Status().RaftState)
}

func TestStoreSplitCheckHookRunsOffEventLoop(t *testing.T) {
	applier := &recordingApplier{}
	p1 := newSingleNodePeer(t, 1, applier)

	var mu sync.Mutex
	var seen []uint64
	ran := make(chan struct{}, 1)

	s := NewStore(Config{
		StoreID: 1,
		Hooks: Hooks{
			SplitCheck: func(p *peer.Peer) {
				mu.Lock()
				seen = append(seen, p.RegionID())
				mu.Unlock()
				select {
				case ran <- struct{}{}:
				default:
				}
			},
		},
		QueueDepth: 64,
	})
	s.AddPeer(p1, &peer.Region{ID: 1})
	stop := runStore(t, s)
	defer stop()

	require.NoError(t, s.enqueue(tickEvent{Kind: TickSplitRegionCheck}))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("split-check hook never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1}, seen)
}

func TestStoreDispatchRaftMessageUnknownRegionIsDropped(t *testing.T) {
	s := NewStore(Config{StoreID: 1, QueueDepth: 64})
	stop := runStore(t, s)
	defer stop()

	// No factory configured: the message is logged and dropped, not
	// fatal to the loop. This just exercises that the call does not
	// block or panic; there is no observable side effect to assert on
	// beyond the Store staying responsive afterward.
	require.NoError(t, s.DispatchRaftMessage(42, raftpb.Message{Type: raftpb.MsgHeartbeat}))

	respC, err := s.ProposeCommand(99, []byte("still alive"))
	require.NoError(t, err)
	select {
	case res := <-respC:
		assert.ErrorIs(t, res.Err, ErrUnknownRegion)
	case <-time.After(time.Second):
		t.Fatal("store loop appears stuck after an unroutable message")
	}
}
