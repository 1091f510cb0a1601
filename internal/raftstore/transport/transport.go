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

// Package transport delivers raft messages between stores without
// ever blocking the raftstore/store event loop that produces them, per
// spec.md §4.3: one outbound channel per destination store, a
// background goroutine flushing each one, and unreachable/snapshot
// delivery outcomes reported back into the originating region's raft
// core. It does not itself know how bytes cross the wire — that is
// RaftMessageSender, which pkg/grpc implements against the Raft
// streaming RPC once the wire schema exists.
package transport

import (
	"context"
	"sync"
	"time"

	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
	"go.uber.org/zap"

	"github.com/distkv/tikv-node/internal/raftstore/peer"
)

// RaftMessageSender is the wire-level send primitive for one
// already-dialed destination store.
type RaftMessageSender interface {
	SendRaftMessage(ctx context.Context, regionID uint64, msg raftpb.Message) error
	Close()
}

// Resolver dials (or returns a cached) sender for a destination store,
// e.g. by asking a PD client for the store's address the first time
// any region routes a message there.
type Resolver interface {
	Resolve(storeID uint64) (RaftMessageSender, error)
}

// UnreachableReporter is the subset of *store.Store a Transport needs
// to report transport-observed delivery failures back to the region
// that originated the message.
type UnreachableReporter interface {
	ReportUnreachable(regionID, toStore uint64) error
	ReportSnapshotStatus(regionID, toStore uint64, status raft.SnapshotStatus) error
}

// Config bundles the dependencies New wires together.
type Config struct {
	Resolver   Resolver
	Reporter   UnreachableReporter
	QueueDepth int
	Logger     *zap.Logger
}

// Transport fans outbound raft messages out across per-destination
// outboxes, each drained by its own background goroutine, generalizing
// the teacher's rafthttp.Transport (internal/raft/node_rocksdb.go)
// away from a single raft-group address space — rafthttp keys peers by
// a types.ID namespace scoped to one cluster, which cannot address
// "region R's peer on store S" once one store hosts many regions'
// raft groups simultaneously, so this package keys outboxes by store
// ID directly instead (every region's raft.Config.ID is already the
// hosting store's ID, per internal/raftstore/peer's conf-change
// handling) and lets the caller supply however messages for a given
// region are told apart once they share a connection to the same
// store.
type Transport struct {
	mu         sync.Mutex
	resolver   Resolver
	reporter   UnreachableReporter
	logger     *zap.Logger
	queueDepth int

	outboxes map[uint64]*storeOutbox
	wg       sync.WaitGroup
}

// New constructs a Transport. Resolver may be nil in tests that only
// exercise the region-keyed Send wiring, in which case every send
// reports its destination unreachable immediately.
func New(cfg Config) *Transport {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}
	return &Transport{
		resolver:   cfg.Resolver,
		reporter:   cfg.Reporter,
		logger:     cfg.Logger,
		queueDepth: cfg.QueueDepth,
		outboxes:   make(map[uint64]*storeOutbox),
	}
}

// RegionSender returns a peer.Sender bound to regionID, the value
// internal/raftstore/store supplies as peer.Config.Sender when it
// constructs that region's Peer.
func (t *Transport) RegionSender(regionID uint64) peer.Sender {
	return &regionSender{t: t, regionID: regionID}
}

type regionSender struct {
	t        *Transport
	regionID uint64
}

func (s *regionSender) Send(msgs []raftpb.Message) {
	for _, m := range msgs {
		s.t.enqueue(s.regionID, m)
	}
}

type outboundItem struct {
	regionID uint64
	msg      raftpb.Message
}

type storeOutbox struct {
	storeID uint64
	items   chan outboundItem
	stop    chan struct{}
}

// enqueue never blocks: a full outbox is a partitioned or too-slow
// peer, and raft already tolerates dropped messages (it will retry via
// the next heartbeat/append), so this drops the message and reports
// the destination unreachable rather than stalling whichever goroutine
// produced it (normally the store event loop itself).
func (t *Transport) enqueue(regionID uint64, msg raftpb.Message) {
	ob := t.outboxFor(msg.To)
	select {
	case ob.items <- outboundItem{regionID: regionID, msg: msg}:
	default:
		t.logger.Warn("dropping raft message: outbox full",
			zap.Uint64("region_id", regionID), zap.Uint64("to_store", msg.To),
			zap.String("component", "raftstore-transport"))
		t.reportUnreachable(regionID, msg.To)
	}
}

func (t *Transport) outboxFor(storeID uint64) *storeOutbox {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ob, ok := t.outboxes[storeID]; ok {
		return ob
	}
	ob := &storeOutbox{
		storeID: storeID,
		items:   make(chan outboundItem, t.queueDepth),
		stop:    make(chan struct{}),
	}
	t.outboxes[storeID] = ob
	t.wg.Add(1)
	go t.flush(ob)
	return ob
}

// flush is the one background goroutine per destination store; it
// dials lazily on first use and redials after any send error, so a
// transient network blip only costs the in-flight message rather than
// poisoning the outbox permanently.
func (t *Transport) flush(ob *storeOutbox) {
	defer t.wg.Done()
	var sender RaftMessageSender
	defer func() {
		if sender != nil {
			sender.Close()
		}
	}()

	for {
		select {
		case item, ok := <-ob.items:
			if !ok {
				return
			}
			if sender == nil {
				s, err := t.dial(ob.storeID)
				if err != nil {
					t.logger.Warn("dial failed",
						zap.Uint64("to_store", ob.storeID), zap.Error(err),
						zap.String("component", "raftstore-transport"))
					t.reportUnreachable(item.regionID, ob.storeID)
					continue
				}
				sender = s
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := sender.SendRaftMessage(ctx, item.regionID, item.msg)
			cancel()

			if err != nil {
				t.logger.Warn("send failed",
					zap.Uint64("to_store", ob.storeID), zap.Error(err),
					zap.String("component", "raftstore-transport"))
				sender.Close()
				sender = nil
				t.reportUnreachable(item.regionID, ob.storeID)
				if item.msg.Type == raftpb.MsgSnap {
					t.reportSnapshotStatus(item.regionID, ob.storeID, raft.SnapshotFailure)
				}
				continue
			}
			if item.msg.Type == raftpb.MsgSnap {
				t.reportSnapshotStatus(item.regionID, ob.storeID, raft.SnapshotFinish)
			}
		case <-ob.stop:
			return
		}
	}
}

func (t *Transport) dial(storeID uint64) (RaftMessageSender, error) {
	if t.resolver == nil {
		return nil, errNoResolver
	}
	return t.resolver.Resolve(storeID)
}

func (t *Transport) reportUnreachable(regionID, toStore uint64) {
	if t.reporter == nil {
		return
	}
	_ = t.reporter.ReportUnreachable(regionID, toStore)
}

func (t *Transport) reportSnapshotStatus(regionID, toStore uint64, status raft.SnapshotStatus) {
	if t.reporter == nil {
		return
	}
	_ = t.reporter.ReportSnapshotStatus(regionID, toStore, status)
}

// RemoveStore tears down the outbox to storeID, e.g. once no resident
// region has a replica there anymore.
func (t *Transport) RemoveStore(storeID uint64) {
	t.mu.Lock()
	ob, ok := t.outboxes[storeID]
	if ok {
		delete(t.outboxes, storeID)
	}
	t.mu.Unlock()
	if ok {
		close(ob.stop)
	}
}

// Close tears down every outbox and waits for their goroutines to
// return.
func (t *Transport) Close() {
	t.mu.Lock()
	obs := make([]*storeOutbox, 0, len(t.outboxes))
	for _, ob := range t.outboxes {
		obs = append(obs, ob)
	}
	t.outboxes = make(map[uint64]*storeOutbox)
	t.mu.Unlock()

	for _, ob := range obs {
		close(ob.stop)
	}
	t.wg.Wait()
}
