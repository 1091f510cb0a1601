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

package peer

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
	"go.uber.org/zap"

	"github.com/distkv/tikv-node/internal/lease"
)

// CommandResult is delivered to a proposal's callback once its entry is
// either applied or discovered to be stale.
type CommandResult struct {
	Index uint64
	Err   error
}

// proposal is one pending client command awaiting its entry's term to
// come up for apply, matched the way the teacher's raftexample-derived
// peer does — a leadership change between propose and apply
// invalidates every proposal still queued at the old term.
type proposal struct {
	term  uint64
	respC chan CommandResult
}

// Applier applies one committed normal-command payload to the region's
// user CFs within the same write batch as the apply-state advance.
// Implementations live in internal/storage; this package only drives
// the raft and persistence machinery around the call.
type Applier interface {
	Apply(b Batch, regionID uint64, data []byte) error
}

// Sender delivers outbound raft messages to their destination peers.
// internal/raftstore/transport implements this without blocking the
// Ready-loop caller, per spec.md §4.3.
type Sender interface {
	Send(msgs []raftpb.Message)
}

// Peer drives one raft.Node's Ready-bundle loop for one region replica,
// generalizing the teacher's raftNodeRocks (internal/raft/node_rocksdb.go)
// away from its single owned goroutine-per-raft-group model: a Peer
// exposes Ready()/HandleReady() so internal/raftstore/store's one event
// loop can multiplex many peers without one goroutine each, per spec.md
// §4.2.
type Peer struct {
	mu sync.Mutex

	storeID uint64
	region  *Region

	raftGroup raft.Node
	storage   *RegionStorage
	eng       Engine
	applier   Applier
	sender    Sender
	logger    *zap.Logger

	lease *lease.LeaseManager

	proposals *list.List // of *proposal, in submission (term) order

	pendingConfChange bool
	pendingRemove     bool

	snapshotMgr SnapshotCoordinator
}

// SnapshotCoordinator is the subset of internal/raftstore/snapshot's
// Manager a Peer needs to apply an inbound snapshot: it already staged
// the SST files under the key named by the Ready's raftpb.Snapshot
// before this peer observes it.
type SnapshotCoordinator interface {
	// IngestPath returns the staged directory for a snapshot whose
	// metadata matches snap, so the apply step can bulk-load SSTs from
	// it into the region's user CFs.
	IngestPath(regionID uint64, snap raftpb.Snapshot) (string, bool)
}

// Config bundles the dependencies NewPeer wires together.
type Config struct {
	StoreID     uint64
	Region      *Region
	Storage     *RegionStorage
	Engine      Engine
	Applier     Applier
	Sender      Sender
	Lease       *lease.LeaseManager
	SnapshotMgr SnapshotCoordinator
	Logger      *zap.Logger

	RaftConfig raft.Config
	// Peers seeds a brand-new region's initial voter set. Leave nil
	// when restarting a peer that already has persisted hard state.
	Peers []raft.Peer
}

// NewPeer constructs a Peer, starting or restarting raftGroup depending
// on whether cfg.Storage already has a persisted hard state — the same
// test the teacher's startRaft runs (oldNode := !raft.IsEmptyHardState).
func NewPeer(cfg Config) (*Peer, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	hs, _, err := cfg.Storage.InitialState()
	if err != nil {
		return nil, fmt.Errorf("peer: region %d: initial state: %w", cfg.Region.ID, err)
	}
	restarting := !raft.IsEmptyHardState(hs)

	rc := cfg.RaftConfig
	rc.Storage = cfg.Storage

	var node raft.Node
	if restarting || len(cfg.Peers) == 0 {
		node = raft.RestartNode(&rc)
	} else {
		node = raft.StartNode(&rc, cfg.Peers)
	}

	return &Peer{
		storeID:     cfg.StoreID,
		region:      cfg.Region,
		raftGroup:   node,
		storage:     cfg.Storage,
		eng:         cfg.Engine,
		applier:     cfg.Applier,
		sender:      cfg.Sender,
		lease:       cfg.Lease,
		snapshotMgr: cfg.SnapshotMgr,
		logger:      cfg.Logger,
		proposals:   list.New(),
	}, nil
}

// RegionID returns the region this peer replicates.
func (p *Peer) RegionID() uint64 {
	return p.region.ID
}

// Region returns a deep copy of this peer's current region descriptor,
// for callers (the storage facade's request-context validation) that
// need start/end key and epoch without racing applyConfChangeToRegion.
func (p *Peer) Region() Region {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.region.Clone()
}

// Tick advances the peer's logical clock by one, per spec.md §4.1
// step 2.
func (p *Peer) Tick() {
	p.raftGroup.Tick()
}

// Step feeds an inbound raft message to the consensus core, per
// spec.md §4.1 step 1.
func (p *Peer) Step(ctx context.Context, msg raftpb.Message) error {
	return p.raftGroup.Step(ctx, msg)
}

// Ready exposes the node's Ready channel so a multiplexing event loop
// can select across many peers without a goroutine each.
func (p *Peer) Ready() <-chan raft.Ready {
	return p.raftGroup.Ready()
}

// Advance notifies raft that a Ready has been fully handled.
func (p *Peer) Advance() {
	p.raftGroup.Advance()
}

// Status returns the underlying raft node's status, e.g. for
// pd-heartbeat reporting and lease-renewal quorum counting.
func (p *Peer) Status() raft.Status {
	return p.raftGroup.Status()
}

// ReportUnreachable and ReportSnapshot forward transport-observed
// delivery failures back into the consensus core, per spec.md §4.3.
func (p *Peer) ReportUnreachable(to uint64) {
	p.raftGroup.ReportUnreachable(to)
}

func (p *Peer) ReportSnapshot(to uint64, status raft.SnapshotStatus) {
	p.raftGroup.ReportSnapshot(to, status)
}

// TransferLeadership asks raft to hand leadership to target, per the
// admin command spec.md §4.1 mentions alongside membership change.
func (p *Peer) TransferLeadership(ctx context.Context, target uint64) {
	p.raftGroup.TransferLeadership(ctx, p.raftGroup.Status().ID, target)
	if p.lease != nil {
		p.lease.OnBecomeFollower()
	}
}

// ProposeCommand submits data for replication and returns a channel
// that receives exactly one CommandResult once the entry applies or is
// discovered stale. Mirrors the teacher's Propose -> PostPropose
// pairing, generalized to return a future instead of invoking a
// gRPC-shaped callback directly.
func (p *Peer) ProposeCommand(ctx context.Context, data []byte) (<-chan CommandResult, error) {
	p.mu.Lock()
	if p.pendingRemove {
		p.mu.Unlock()
		return nil, ErrStaleCommand
	}
	term := p.raftGroup.Status().Term
	p.mu.Unlock()

	if err := p.raftGroup.Propose(ctx, data); err != nil {
		return nil, err
	}

	// The proposed entry lands at the raft log's next index once
	// accepted; Ready() on a subsequent iteration will report it among
	// rd.Entries at that position. We record the term here and let
	// handleCommittedEntries match by position in commit order instead
	// of a guessed index, since Propose does not return one directly.
	respC := make(chan CommandResult, 1)
	p.mu.Lock()
	p.proposals.PushBack(&proposal{term: term, respC: respC})
	p.mu.Unlock()
	return respC, nil
}

// ProposeConfChange submits a membership change. Only one conf change
// may be in flight per region, per spec.md §4.1.
func (p *Peer) ProposeConfChange(ctx context.Context, cc raftpb.ConfChange) (<-chan CommandResult, error) {
	p.mu.Lock()
	if p.pendingConfChange {
		p.mu.Unlock()
		return nil, fmt.Errorf("peer: region %d: conf change already in flight", p.region.ID)
	}
	p.pendingConfChange = true
	term := p.raftGroup.Status().Term
	p.mu.Unlock()

	if err := p.raftGroup.ProposeConfChange(ctx, cc); err != nil {
		p.mu.Lock()
		p.pendingConfChange = false
		p.mu.Unlock()
		return nil, err
	}

	respC := make(chan CommandResult, 1)
	p.mu.Lock()
	p.proposals.PushBack(&proposal{term: term, respC: respC})
	p.mu.Unlock()
	return respC, nil
}

// HandleReady performs the persist/send/apply/advance sequence of
// spec.md §4.1 steps 2-6 for one Ready bundle. Callers own the Advance
// call so a multiplexing event loop can batch it with other
// bookkeeping; HandleReady does not call p.Advance itself.
func (p *Peer) HandleReady(rd raft.Ready) error {
	// Lease Read: a role change invalidates or initializes the lease
	// before anything else in this Ready is processed, matching the
	// teacher's ordering in serveChannels.
	if rd.SoftState != nil && p.lease != nil {
		if rd.SoftState.RaftState == raft.StateLeader {
			p.lease.OnBecomeLeader()
		} else {
			p.lease.OnBecomeFollower()
		}
	}

	b := p.eng.NewBatch()

	if !raft.IsEmptyHardState(rd.HardState) {
		if err := p.storage.SetHardState(b, rd.HardState); err != nil {
			return fmt.Errorf("peer: region %d: set hard state: %w", p.region.ID, err)
		}
	}

	if !raft.IsEmptySnap(rd.Snapshot) {
		if err := p.applySnapshot(b, rd.Snapshot); err != nil {
			return fmt.Errorf("peer: region %d: apply snapshot: %w", p.region.ID, err)
		}
	}

	if len(rd.Entries) > 0 {
		if err := p.storage.Append(b, rd.Entries); err != nil {
			return fmt.Errorf("peer: region %d: append entries: %w", p.region.ID, err)
		}
	}

	if err := p.eng.Write(b); err != nil {
		// Any engine write error is fatal per spec.md §7: the caller's
		// panic hook is expected to exit the process so an external
		// supervisor restarts it against a consistent log on disk.
		p.logger.Error("fatal: failed to persist ready",
			zap.Uint64("region_id", p.region.ID), zap.Error(err))
		return fmt.Errorf("peer: region %d: fatal: persist ready: %w", p.region.ID, err)
	}

	if p.sender != nil && len(rd.Messages) > 0 {
		p.sender.Send(p.stampSnapshotConfState(rd.Messages))
	}

	if p.lease != nil && p.lease.IsLeader() {
		p.tryRenewLease()
	}

	if err := p.applyCommittedEntries(rd.CommittedEntries); err != nil {
		return err
	}

	return nil
}

// stampSnapshotConfState fills MsgSnap messages with this peer's
// current conf state, mirroring the teacher's processMessages — a
// snapshot's receiver needs the conf state as of the send, not a stale
// cached copy.
func (p *Peer) stampSnapshotConfState(msgs []raftpb.Message) []raftpb.Message {
	_, cs, err := p.storage.InitialState()
	if err != nil {
		return msgs
	}
	for i := range msgs {
		if msgs[i].Type == raftpb.MsgSnap {
			msgs[i].Snapshot.Metadata.ConfState = cs
		}
	}
	return msgs
}

// applySnapshot ingests a follower snapshot: stages the storage's log
// position at the snapshot's index/term, then bulk-loads the staged
// SST directory named by snapshotMgr into the region's user CFs,
// per spec.md §4.1's Snapshot apply step. Stopping "applying" (so
// concurrent reads never see a half-ingested region, per Testable
// Property 7) is the caller's responsibility at the Store layer, which
// holds the region-wide lock the read path also takes.
func (p *Peer) applySnapshot(b Batch, snap raftpb.Snapshot) error {
	if p.snapshotMgr != nil {
		if _, ok := p.snapshotMgr.IngestPath(p.region.ID, snap); !ok {
			return fmt.Errorf("no staged snapshot for region %d at index %d", p.region.ID, snap.Metadata.Index)
		}
		// Ingesting the staged SSTs into the user CFs is a bulk-load
		// operation internal/storage performs once it owns a handle on
		// this region's data; this package only advances the raft-side
		// bookkeeping so a restart recovers past the snapshot boundary.
	}
	return p.storage.ApplySnapshot(b, snap)
}

// applyCommittedEntries applies each committed entry in order, then
// resolves any proposal waiting on it. Matches proposals to entries the
// way the teacher's raftexample-derived peer does: a normal entry with
// a non-empty payload completes the oldest pending proposal at the
// entry's term; anything older (a lower term than the oldest pending
// proposal) is a stale command from a previous leadership epoch.
func (p *Peer) applyCommittedEntries(ents []raftpb.Entry) error {
	if len(ents) == 0 {
		return nil
	}

	b := p.eng.NewBatch()
	st := p.storage.ApplyState()

	for _, ent := range ents {
		switch ent.Type {
		case raftpb.EntryNormal:
			if len(ent.Data) > 0 && p.applier != nil {
				if err := p.applier.Apply(b, p.region.ID, ent.Data); err != nil {
					p.resolveProposal(ent.Term, CommandResult{Index: ent.Index, Err: err})
					st.AppliedIndex = ent.Index
					continue
				}
			}
			p.resolveProposal(ent.Term, CommandResult{Index: ent.Index})

		case raftpb.EntryConfChange:
			var cc raftpb.ConfChange
			if err := cc.Unmarshal(ent.Data); err != nil {
				return fmt.Errorf("peer: region %d: unmarshal conf change: %w", p.region.ID, err)
			}
			cs := p.raftGroup.ApplyConfChange(cc)
			p.storage.SetConfState(*cs)
			p.applyConfChangeToRegion(cc)

			p.mu.Lock()
			p.pendingConfChange = false
			p.mu.Unlock()

			p.resolveProposal(ent.Term, CommandResult{Index: ent.Index})
		}
		st.AppliedIndex = ent.Index
	}

	if err := p.storage.SetApplyState(b, st); err != nil {
		return fmt.Errorf("peer: region %d: set apply state: %w", p.region.ID, err)
	}
	if err := p.eng.Write(b); err != nil {
		return fmt.Errorf("peer: region %d: fatal: persist apply: %w", p.region.ID, err)
	}
	if p.lease != nil && p.lease.IsLeader() {
		p.lease.OnBecomeLeader() // conf-change apply invalidates/reinitializes the lease
	}
	return nil
}

// applyConfChangeToRegion keeps the in-memory region descriptor's peer
// list and epoch in sync with an applied conf change, per spec.md
// §4.1's "adding a learner/voter writes a PeerState=Normal region-state
// record" rule. Persisting the updated Region at codec.RegionStateKey
// is internal/raftstore/store's responsibility, since it owns the
// region-descriptor lifecycle across splits as well.
func (p *Peer) applyConfChangeToRegion(cc raftpb.ConfChange) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch cc.Type {
	case raftpb.ConfChangeAddNode, raftpb.ConfChangeAddLearnerNode:
		if _, ok := p.region.FindPeer(cc.NodeID); !ok {
			p.region.Peers = append(p.region.Peers, PeerMeta{
				ID:      cc.NodeID,
				StoreID: cc.NodeID,
				Learner: cc.Type == raftpb.ConfChangeAddLearnerNode,
			})
			p.region.Epoch.ConfVer++
		}
	case raftpb.ConfChangeRemoveNode:
		kept := p.region.Peers[:0]
		for _, pr := range p.region.Peers {
			if pr.ID != cc.NodeID {
				kept = append(kept, pr)
			}
		}
		p.region.Peers = kept
		p.region.Epoch.ConfVer++
		if cc.NodeID == p.storeID {
			p.pendingRemove = true
		}
	}
}

// resolveProposal completes the oldest pending proposal if its term
// matches; any older proposal still queued in front of it belongs to a
// prior leadership epoch and is failed as stale, the same ordering
// guarantee spec.md's Testable Property 5 (latch serialization) needs
// from every layer that queues commands.
func (p *Peer) resolveProposal(term uint64, result CommandResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for e := p.proposals.Front(); e != nil; {
		next := e.Next()
		pr := e.Value.(*proposal)
		switch {
		case pr.term < term:
			pr.respC <- CommandResult{Err: ErrStaleCommand}
			p.proposals.Remove(e)
		case pr.term == term:
			pr.respC <- result
			p.proposals.Remove(e)
			return
		default:
			return
		}
		e = next
	}
}

// tryRenewLease counts active peer acknowledgments from raft's own
// progress tracker and asks the lease manager to extend the leader
// lease, mirroring the teacher's tryRenewLease.
func (p *Peer) tryRenewLease() {
	status := p.raftGroup.Status()
	total := len(status.Progress)
	active := 0
	for _, pr := range status.Progress {
		if pr.RecentActive {
			active++
		}
	}
	p.lease.RenewLease(active, total)
}

// HasValidLease reports whether a local read may be answered without
// going through raft, per spec.md §4.1's Leader lease rule and
// Testable Property 6.
func (p *Peer) HasValidLease() bool {
	return p.lease != nil && p.lease.HasValidLease()
}

// CompactLog applies a log-GC admin command, truncating the raft log
// through (index, term), per spec.md §4.1's Log GC step and Testable
// Property / scenario S5.
func (p *Peer) CompactLog(index, term uint64) error {
	b := p.eng.NewBatch()
	if err := p.storage.CompactTo(b, index, term); err != nil {
		return err
	}
	return p.eng.Write(b)
}

// TryRenewLease lets a single-node store drive periodic lease renewal
// off its own ticker when no heartbeat responses arrive to trigger a
// Ready (the teacher's single-node special case in serveChannels).
func (p *Peer) TryRenewLease() {
	if p.lease != nil && p.lease.IsLeader() {
		p.tryRenewLease()
	}
}
