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

package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
)

type recordingSender struct {
	mu  sync.Mutex
	got []raftpb.Message
}

func (s *recordingSender) SendRaftMessage(ctx context.Context, regionID uint64, msg raftpb.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, msg)
	return nil
}

func (s *recordingSender) Close() {}

func (s *recordingSender) snapshot() []raftpb.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]raftpb.Message(nil), s.got...)
}

type stubResolver struct {
	mu      sync.Mutex
	senders map[uint64]*recordingSender
	dials   int
	failFor map[uint64]bool
}

func newStubResolver() *stubResolver {
	return &stubResolver{senders: make(map[uint64]*recordingSender), failFor: make(map[uint64]bool)}
}

func (r *stubResolver) Resolve(storeID uint64) (RaftMessageSender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dials++
	if r.failFor[storeID] {
		return nil, errDial
	}
	s, ok := r.senders[storeID]
	if !ok {
		s = &recordingSender{}
		r.senders[storeID] = s
	}
	return s, nil
}

var errDial = dialError("dial refused")

type dialError string

func (e dialError) Error() string { return string(e) }

type recordingReporter struct {
	mu            sync.Mutex
	unreachable   []uint64
	snapshotSeen  []raft.SnapshotStatus
	unreachableCh chan struct{}
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{unreachableCh: make(chan struct{}, 16)}
}

func (r *recordingReporter) ReportUnreachable(regionID, toStore uint64) error {
	r.mu.Lock()
	r.unreachable = append(r.unreachable, toStore)
	r.mu.Unlock()
	select {
	case r.unreachableCh <- struct{}{}:
	default:
	}
	return nil
}

func (r *recordingReporter) ReportSnapshotStatus(regionID, toStore uint64, status raft.SnapshotStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshotSeen = append(r.snapshotSeen, status)
	return nil
}

func TestTransportDeliversMessageToResolvedSender(t *testing.T) {
	resolver := newStubResolver()
	tr := New(Config{Resolver: resolver})
	defer tr.Close()

	sender := tr.RegionSender(1)
	sender.Send([]raftpb.Message{{To: 2, From: 1, Type: raftpb.MsgHeartbeat}})

	require.Eventually(t, func() bool {
		resolver.mu.Lock()
		defer resolver.mu.Unlock()
		s, ok := resolver.senders[2]
		if !ok {
			return false
		}
		return len(s.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTransportReportsUnreachableOnDialFailure(t *testing.T) {
	resolver := newStubResolver()
	resolver.failFor[2] = true
	reporter := newRecordingReporter()
	tr := New(Config{Resolver: resolver, Reporter: reporter})
	defer tr.Close()

	sender := tr.RegionSender(7)
	sender.Send([]raftpb.Message{{To: 2, From: 1, Type: raftpb.MsgHeartbeat}})

	select {
	case <-reporter.unreachableCh:
	case <-time.After(time.Second):
		t.Fatal("never reported unreachable")
	}
	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	assert.Contains(t, reporter.unreachable, uint64(2))
}

func TestTransportReportsUnreachableWhenOutboxFull(t *testing.T) {
	resolver := newStubResolver()
	reporter := newRecordingReporter()
	tr := New(Config{Resolver: resolver, Reporter: reporter, QueueDepth: 1})
	defer tr.Close()

	sender := tr.RegionSender(3)
	// Flood far more messages than the queue depth before the flusher
	// can drain them all; at least one must be reported unreachable.
	for i := 0; i < 50; i++ {
		sender.Send([]raftpb.Message{{To: 9, From: 1, Type: raftpb.MsgHeartbeat}})
	}

	select {
	case <-reporter.unreachableCh:
	case <-time.After(time.Second):
		t.Fatal("never reported unreachable despite an undersized queue")
	}
}

func TestTransportNoResolverReportsUnreachable(t *testing.T) {
	reporter := newRecordingReporter()
	tr := New(Config{Reporter: reporter})
	defer tr.Close()

	sender := tr.RegionSender(1)
	sender.Send([]raftpb.Message{{To: 2, From: 1, Type: raftpb.MsgHeartbeat}})

	select {
	case <-reporter.unreachableCh:
	case <-time.After(time.Second):
		t.Fatal("never reported unreachable with no resolver configured")
	}
}

func TestTransportRemoveStoreStopsFlusher(t *testing.T) {
	resolver := newStubResolver()
	tr := New(Config{Resolver: resolver})
	defer tr.Close()

	sender := tr.RegionSender(1)
	sender.Send([]raftpb.Message{{To: 2, From: 1, Type: raftpb.MsgHeartbeat}})
	require.Eventually(t, func() bool {
		resolver.mu.Lock()
		defer resolver.mu.Unlock()
		_, ok := resolver.senders[2]
		return ok
	}, time.Second, 5*time.Millisecond)

	tr.RemoveStore(2)
	// Removing twice, or closing afterward, must not panic.
	tr.RemoveStore(2)
}
