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

// Package store owns one node's single raft event loop: it multiplexes
// every resident region's raft.Node, dispatches inbound messages and
// client commands by region_id, creates peers on demand for regions
// the placement driver has assigned but this store has not yet
// instantiated, and fans periodic maintenance ticks out to the five
// named worker pools spec.md §4.2 describes, generalizing the
// teacher's one-raft-group-per-process model (internal/raft) to many
// concurrent per-region replicas behind one loop.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
	"go.uber.org/zap"

	"github.com/distkv/tikv-node/internal/raftstore/peer"
)

// ErrQueueFull is returned when the event loop's bounded inbound queue
// has no room, the Store-level analogue of peer.ErrServerIsBusy.
var ErrQueueFull = errors.New("store: event queue full")

// ErrUnknownRegion is returned when an event names a region this store
// has no peer for and no PeerFactory can create one for.
var ErrUnknownRegion = errors.New("store: unknown region")

// TickKind names one of the periodic maintenance sweeps spec.md §4.2
// lists. Each kind is driven by its own ticker and fanned out to a
// worker pool rather than executed inline on the event loop.
type TickKind int

const (
	TickRaftBase TickKind = iota
	TickRaftLogGC
	TickSplitRegionCheck
	TickCompactCheck
	TickPDHeartbeat
	TickPDStoreHeartbeat
	TickSnapGC
	TickLockCFCompact
	TickConsistencyCheck
)

func (k TickKind) String() string {
	switch k {
	case TickRaftBase:
		return "raft-base-tick"
	case TickRaftLogGC:
		return "raft-log-gc-tick"
	case TickSplitRegionCheck:
		return "split-region-check-tick"
	case TickCompactCheck:
		return "compact-check-tick"
	case TickPDHeartbeat:
		return "pd-heartbeat-tick"
	case TickPDStoreHeartbeat:
		return "pd-store-heartbeat-tick"
	case TickSnapGC:
		return "snap-gc-tick"
	case TickLockCFCompact:
		return "lock-cf-compact-tick"
	case TickConsistencyCheck:
		return "consistency-check-tick"
	default:
		return "unknown-tick"
	}
}

// event is anything the Store's single goroutine can dequeue and
// dispatch. regionID is 0 for a store-wide event (a tick fans out to
// every peer itself rather than naming one).
type event interface {
	regionID() uint64
}

type readyEvent struct {
	RegionID uint64
	Ready    raft.Ready
}

func (e readyEvent) regionID() uint64 { return e.RegionID }

type raftMessageEvent struct {
	RegionID uint64
	Msg      raftpb.Message
}

func (e raftMessageEvent) regionID() uint64 { return e.RegionID }

type proposeEvent struct {
	RegionID uint64
	Data     []byte
	RespC    chan<- peer.CommandResult
}

func (e proposeEvent) regionID() uint64 { return e.RegionID }

type confChangeEvent struct {
	RegionID uint64
	Change   raftpb.ConfChange
	RespC    chan<- peer.CommandResult
}

func (e confChangeEvent) regionID() uint64 { return e.RegionID }

type tickEvent struct {
	Kind TickKind
}

func (e tickEvent) regionID() uint64 { return 0 }

type snapshotStatusEvent struct {
	RegionID uint64
	ToPeer   uint64
	Status   raft.SnapshotStatus
}

func (e snapshotStatusEvent) regionID() uint64 { return e.RegionID }

type unreachableEvent struct {
	RegionID uint64
	ToPeer   uint64
}

func (e unreachableEvent) regionID() uint64 { return e.RegionID }

type compactLogEvent struct {
	RegionID    uint64
	Index, Term uint64
}

func (e compactLogEvent) regionID() uint64 { return e.RegionID }

// PeerFactory creates the peer.Peer for a region the placement driver
// has assigned to this store but that has not yet been instantiated
// here, per spec.md §4.2's on-demand peer creation rule. Returning
// (nil, false, nil) means the region is genuinely unknown to this
// store (not merely uninstantiated), which the caller maps to
// ErrUnknownRegion.
type PeerFactory interface {
	CreatePeer(regionID uint64) (p *peer.Peer, region *peer.Region, ok bool, err error)
}

// Hooks lets packages built on top of Store (internal/scheduler,
// internal/raftstore/splitcheck, a PD client) plug maintenance-tick
// behavior in without Store importing any of them directly. Every
// field is optional; a nil hook makes the corresponding tick a no-op
// besides the raft-base walk every peer always gets.
type Hooks struct {
	RaftLogGC        func(p *peer.Peer)
	SplitCheck       func(p *peer.Peer)
	CompactCheck     func()
	PDHeartbeat      func(p *peer.Peer)
	PDStoreHeartbeat func()
	SnapGC           func()
	LockCFCompact    func()
	ConsistencyCheck func(p *peer.Peer)
}

// TickIntervals configures how often each periodic sweep fires. Zero
// disables that ticker entirely (useful in tests).
type TickIntervals struct {
	RaftBase         time.Duration
	RaftLogGC        time.Duration
	SplitRegionCheck time.Duration
	CompactCheck     time.Duration
	PDHeartbeat      time.Duration
	PDStoreHeartbeat time.Duration
	SnapGC           time.Duration
	LockCFCompact    time.Duration
	ConsistencyCheck time.Duration
}

// Config bundles the dependencies NewStore wires together.
type Config struct {
	StoreID     uint64
	Factory     PeerFactory
	Hooks       Hooks
	Intervals   TickIntervals
	QueueDepth  int
	WorkerDepth int
	Logger      *zap.Logger
}

// Store owns one node's raft event loop.
type Store struct {
	id      uint64
	factory PeerFactory
	hooks   Hooks
	ticks   TickIntervals
	logger  *zap.Logger

	mu     sync.RWMutex
	peers  map[uint64]*peer.Peer
	router *RegionRouter

	events  chan event
	workers *workerPools

	readyWG sync.WaitGroup
}

// NewStore constructs a Store with no resident peers; AddPeer (or an
// inbound message routed through the factory) populates it.
func NewStore(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 4096
	}
	if cfg.WorkerDepth <= 0 {
		cfg.WorkerDepth = 256
	}
	return &Store{
		id:      cfg.StoreID,
		factory: cfg.Factory,
		hooks:   cfg.Hooks,
		ticks:   cfg.Intervals,
		logger:  cfg.Logger,
		peers:   make(map[uint64]*peer.Peer),
		router:  NewRegionRouter(),
		events:  make(chan event, cfg.QueueDepth),
		workers: newWorkerPools(cfg.WorkerDepth),
	}
}

// AddPeer registers an already-constructed peer (e.g. one just created
// by PeerFactory, or recovered at startup from on-disk region state)
// and starts forwarding its Ready channel into the event loop.
func (s *Store) AddPeer(p *peer.Peer, region *peer.Region) {
	s.mu.Lock()
	s.peers[region.ID] = p
	s.router.Insert(region.ID, region.StartKey)
	s.mu.Unlock()

	s.readyWG.Add(1)
	go s.forwardReady(p)
}

// RemovePeer drops a destroyed or merged-away region. The forwarding
// goroutine started by AddPeer exits once the peer's underlying
// raft.Node closes its Ready channel; callers are expected to stop the
// raft.Node (Peer does not expose that here) before calling RemovePeer
// so the goroutine does not leak.
func (s *Store) RemovePeer(regionID uint64, startKey []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, regionID)
	s.router.Remove(startKey)
}

// forwardReady is the only per-peer goroutine this package runs: it
// does no business logic of its own, it just pipes one raft.Node's
// Ready channel into the shared event queue so the single event loop
// can process Ready bundles from every resident region without a
// reflect.Select over a dynamically changing channel set.
func (s *Store) forwardReady(p *peer.Peer) {
	defer s.readyWG.Done()
	for rd := range p.Ready() {
		select {
		case s.events <- readyEvent{RegionID: p.RegionID(), Ready: rd}:
		case <-time.After(5 * time.Second):
			s.logger.Error("dropping ready: event queue stayed full",
				zap.Uint64("region_id", p.RegionID()), zap.String("component", "raftstore-store"))
		}
	}
}

func (s *Store) peerByID(regionID uint64) (*peer.Peer, bool) {
	s.mu.RLock()
	p, ok := s.peers[regionID]
	s.mu.RUnlock()
	return p, ok
}

// RegionStatus returns the resident peer's region descriptor and raft
// status for regionID, for the storage facade's request-context
// validation (epoch check, leader check) ahead of latching and
// proposing a command. It does not create a peer on demand: an
// unresident region reports ok=false, matching ErrUnknownRegion.
func (s *Store) RegionStatus(regionID uint64) (region peer.Region, status raft.Status, ok bool) {
	p, ok := s.peerByID(regionID)
	if !ok {
		return peer.Region{}, raft.Status{}, false
	}
	return p.Region(), p.Status(), true
}

// HasValidLease reports whether regionID's resident peer may answer a
// local read without going through raft. found is false if this store
// has no resident peer for regionID.
func (s *Store) HasValidLease(regionID uint64) (valid, found bool) {
	p, ok := s.peerByID(regionID)
	if !ok {
		return false, false
	}
	return p.HasValidLease(), true
}

// IsLeader reports whether regionID's resident peer currently believes
// itself to be raft leader, per raft.Status.RaftState.
func (s *Store) IsLeader(regionID uint64) (leader, found bool) {
	p, ok := s.peerByID(regionID)
	if !ok {
		return false, false
	}
	return p.Status().RaftState == raft.StateLeader, true
}

// peerOrCreate returns the resident peer for regionID, invoking the
// configured PeerFactory on demand if one is not yet resident, per
// spec.md §4.2.
func (s *Store) peerOrCreate(regionID uint64) (*peer.Peer, error) {
	if p, ok := s.peerByID(regionID); ok {
		return p, nil
	}
	if s.factory == nil {
		return nil, ErrUnknownRegion
	}
	p, region, ok, err := s.factory.CreatePeer(regionID)
	if err != nil {
		return nil, fmt.Errorf("store: create peer for region %d: %w", regionID, err)
	}
	if !ok {
		return nil, ErrUnknownRegion
	}
	s.AddPeer(p, region)
	return p, nil
}

// DispatchRaftMessage enqueues an inbound raft message for regionID,
// creating the peer on demand if needed.
func (s *Store) DispatchRaftMessage(regionID uint64, msg raftpb.Message) error {
	return s.enqueue(raftMessageEvent{RegionID: regionID, Msg: msg})
}

// ProposeCommand enqueues a client command for regionID and returns a
// channel that resolves once the entry applies, is found stale, or the
// queue itself was full (in which case the error is ErrQueueFull and
// no channel is returned).
func (s *Store) ProposeCommand(regionID uint64, data []byte) (<-chan peer.CommandResult, error) {
	respC := make(chan peer.CommandResult, 1)
	if err := s.enqueue(proposeEvent{RegionID: regionID, Data: data, RespC: respC}); err != nil {
		return nil, err
	}
	return respC, nil
}

// ProposeConfChange enqueues a membership change for regionID.
func (s *Store) ProposeConfChange(regionID uint64, cc raftpb.ConfChange) (<-chan peer.CommandResult, error) {
	respC := make(chan peer.CommandResult, 1)
	if err := s.enqueue(confChangeEvent{RegionID: regionID, Change: cc, RespC: respC}); err != nil {
		return nil, err
	}
	return respC, nil
}

// ReportSnapshotStatus and ReportUnreachable forward transport-observed
// delivery outcomes back to the named region's raft core, per spec.md
// §4.3.
func (s *Store) ReportSnapshotStatus(regionID, toPeer uint64, status raft.SnapshotStatus) error {
	return s.enqueue(snapshotStatusEvent{RegionID: regionID, ToPeer: toPeer, Status: status})
}

func (s *Store) ReportUnreachable(regionID, toPeer uint64) error {
	return s.enqueue(unreachableEvent{RegionID: regionID, ToPeer: toPeer})
}

// RequestCompactLog enqueues a raft-log-GC admin command, the same
// path the periodic raft-log-gc tick uses internally.
func (s *Store) RequestCompactLog(regionID, index, term uint64) error {
	return s.enqueue(compactLogEvent{RegionID: regionID, Index: index, Term: term})
}

func (s *Store) enqueue(e event) error {
	select {
	case s.events <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// FindRegion returns the region_id owning key, per the router.
func (s *Store) FindRegion(key []byte) (uint64, bool) {
	return s.router.Find(key)
}

func (s *Store) forEachPeer(fn func(p *peer.Peer)) {
	s.mu.RLock()
	snapshot := make([]*peer.Peer, 0, len(s.peers))
	for _, p := range s.peers {
		snapshot = append(snapshot, p)
	}
	s.mu.RUnlock()
	for _, p := range snapshot {
		fn(p)
	}
}

// Run drives the event loop until ctx is canceled, returning once
// every worker has drained and every Ready-forwarding goroutine has
// returned. It is meant to run for the lifetime of the process.
func (s *Store) Run(ctx context.Context) error {
	s.workers.start(ctx)

	stopTickers := s.startTickers(ctx)
	defer stopTickers()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case e := <-s.events:
			s.dispatch(e)
		}
	}
}

func (s *Store) shutdown() error {
	err := s.workers.shutdown()
	s.readyWG.Wait()
	return err
}

func (s *Store) startTickers(ctx context.Context) func() {
	type tickerSpec struct {
		kind     TickKind
		interval time.Duration
	}
	specs := []tickerSpec{
		{TickRaftBase, s.ticks.RaftBase},
		{TickRaftLogGC, s.ticks.RaftLogGC},
		{TickSplitRegionCheck, s.ticks.SplitRegionCheck},
		{TickCompactCheck, s.ticks.CompactCheck},
		{TickPDHeartbeat, s.ticks.PDHeartbeat},
		{TickPDStoreHeartbeat, s.ticks.PDStoreHeartbeat},
		{TickSnapGC, s.ticks.SnapGC},
		{TickLockCFCompact, s.ticks.LockCFCompact},
		{TickConsistencyCheck, s.ticks.ConsistencyCheck},
	}

	var wg sync.WaitGroup
	stopC := make(chan struct{})
	for _, spec := range specs {
		if spec.interval <= 0 {
			continue
		}
		spec := spec
		t := time.NewTicker(spec.interval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer t.Stop()
			for {
				select {
				case <-t.C:
					// Non-blocking: a tick that can't be enqueued this
					// round is simply skipped, not queued up behind a
					// slow event loop.
					_ = s.enqueue(tickEvent{Kind: spec.kind})
				case <-stopC:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return func() {
		close(stopC)
		wg.Wait()
	}
}

func (s *Store) dispatch(e event) {
	switch ev := e.(type) {
	case readyEvent:
		s.handleReady(ev)
	case raftMessageEvent:
		s.handleRaftMessage(ev)
	case proposeEvent:
		s.handlePropose(ev)
	case confChangeEvent:
		s.handleConfChange(ev)
	case snapshotStatusEvent:
		if p, ok := s.peerByID(ev.RegionID); ok {
			p.ReportSnapshot(ev.ToPeer, ev.Status)
		}
	case unreachableEvent:
		if p, ok := s.peerByID(ev.RegionID); ok {
			p.ReportUnreachable(ev.ToPeer)
		}
	case compactLogEvent:
		if p, ok := s.peerByID(ev.RegionID); ok {
			if err := p.CompactLog(ev.Index, ev.Term); err != nil {
				s.logger.Error("compact log failed",
					zap.Uint64("region_id", ev.RegionID), zap.Error(err),
					zap.String("component", "raftstore-store"))
			}
		}
	case tickEvent:
		s.handleTick(ev)
	}
}

func (s *Store) handleReady(ev readyEvent) {
	p, ok := s.peerByID(ev.RegionID)
	if !ok {
		return
	}
	if err := p.HandleReady(ev.Ready); err != nil {
		// Fatal per spec.md §7 at the Peer layer already logged the
		// detail; here we only avoid letting one wedged region take
		// down every other region sharing this loop. An external
		// supervisor is expected to restart the process.
		s.logger.Error("region ready handling failed",
			zap.Uint64("region_id", ev.RegionID), zap.Error(err),
			zap.String("component", "raftstore-store"))
		return
	}
	p.Advance()
}

func (s *Store) handleRaftMessage(ev raftMessageEvent) {
	p, err := s.peerOrCreate(ev.RegionID)
	if err != nil {
		s.logger.Warn("dropping raft message for unknown region",
			zap.Uint64("region_id", ev.RegionID), zap.Error(err),
			zap.String("component", "raftstore-store"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Step(ctx, ev.Msg); err != nil {
		s.logger.Warn("step failed",
			zap.Uint64("region_id", ev.RegionID), zap.Error(err),
			zap.String("component", "raftstore-store"))
	}
}

func (s *Store) handlePropose(ev proposeEvent) {
	p, err := s.peerOrCreate(ev.RegionID)
	if err != nil {
		ev.RespC <- peer.CommandResult{Err: err}
		return
	}
	inner, err := p.ProposeCommand(context.Background(), ev.Data)
	if err != nil {
		ev.RespC <- peer.CommandResult{Err: err}
		return
	}
	go forwardResult(inner, ev.RespC)
}

func (s *Store) handleConfChange(ev confChangeEvent) {
	p, err := s.peerOrCreate(ev.RegionID)
	if err != nil {
		ev.RespC <- peer.CommandResult{Err: err}
		return
	}
	inner, err := p.ProposeConfChange(context.Background(), ev.Change)
	if err != nil {
		ev.RespC <- peer.CommandResult{Err: err}
		return
	}
	go forwardResult(inner, ev.RespC)
}

// forwardResult relays a Peer-level proposal future onto the
// Store-level one the caller is waiting on. This extra hop keeps every
// raft.Node interaction funneled through the single event loop while
// still letting ProposeCommand/ProposeConfChange return immediately.
func forwardResult(inner <-chan peer.CommandResult, out chan<- peer.CommandResult) {
	out <- <-inner
}

func (s *Store) handleTick(ev tickEvent) {
	switch ev.Kind {
	case TickRaftBase:
		s.forEachPeer(func(p *peer.Peer) {
			p.Tick()
			p.TryRenewLease()
		})
	case TickRaftLogGC:
		if s.hooks.RaftLogGC == nil {
			return
		}
		s.forEachPeer(func(p *peer.Peer) {
			s.submitOrWarn(s.workers.Region, func() { s.hooks.RaftLogGC(p) }, p.RegionID(), "raft-log-gc")
		})
	case TickSplitRegionCheck:
		if s.hooks.SplitCheck == nil {
			return
		}
		s.forEachPeer(func(p *peer.Peer) {
			s.submitOrWarn(s.workers.SplitCheck, func() { s.hooks.SplitCheck(p) }, p.RegionID(), "split-check")
		})
	case TickCompactCheck:
		if s.hooks.CompactCheck == nil {
			return
		}
		s.submitOrWarn(s.workers.Compact, s.hooks.CompactCheck, 0, "compact-check")
	case TickPDHeartbeat:
		if s.hooks.PDHeartbeat == nil {
			return
		}
		s.forEachPeer(func(p *peer.Peer) {
			s.submitOrWarn(s.workers.PD, func() { s.hooks.PDHeartbeat(p) }, p.RegionID(), "pd-heartbeat")
		})
	case TickPDStoreHeartbeat:
		if s.hooks.PDStoreHeartbeat == nil {
			return
		}
		s.submitOrWarn(s.workers.PD, s.hooks.PDStoreHeartbeat, 0, "pd-store-heartbeat")
	case TickSnapGC:
		if s.hooks.SnapGC == nil {
			return
		}
		s.submitOrWarn(s.workers.Snap, s.hooks.SnapGC, 0, "snap-gc")
	case TickLockCFCompact:
		if s.hooks.LockCFCompact == nil {
			return
		}
		s.submitOrWarn(s.workers.Compact, s.hooks.LockCFCompact, 0, "lock-cf-compact")
	case TickConsistencyCheck:
		if s.hooks.ConsistencyCheck == nil {
			return
		}
		s.forEachPeer(func(p *peer.Peer) {
			s.submitOrWarn(s.workers.Region, func() { s.hooks.ConsistencyCheck(p) }, p.RegionID(), "consistency-check")
		})
	}
}

func (s *Store) submitOrWarn(w *worker, task func(), regionID uint64, what string) {
	if !w.submit(task) {
		s.logger.Warn("worker queue full, dropping tick",
			zap.String("worker", w.name), zap.String("tick", what),
			zap.Uint64("region_id", regionID), zap.String("component", "raftstore-store"))
	}
}
