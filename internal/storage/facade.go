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

// Package storage is the public transactional facade spec.md §6
// describes as the KV service: Get/BatchGet/Scan/Prewrite/Commit/
// Cleanup/ResolveLock/GC and the Raw{Get,Put,Delete,Scan} variants.
// It translates a request bound to one region_id/region_epoch into a
// scheduler.Command — latched by the keys it touches, admitted by the
// scheduler's max_pending/rate-limiter gate — whose Run closure either
// answers a lease-valid local read directly from the shared mvcc.Store
// or proposes an encoded command through the raft store and waits for
// it to apply. Facade also implements peer.Applier, so every replica
// (leader and followers alike) replays the same decoded command
// against the same mvcc.Store on apply, keeping every replica's state
// machine deterministic.
package storage

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.etcd.io/raft/v3"
	"go.uber.org/zap"

	"github.com/distkv/tikv-node/internal/mvcc"
	"github.com/distkv/tikv-node/internal/raftstore/peer"
	"github.com/distkv/tikv-node/internal/scheduler"
)

// RegionProposer is the subset of internal/raftstore/store.Store the
// facade needs: region/leader/lease introspection for request-context
// validation, and the raft command-proposal pipeline itself. Narrowed
// to an interface so facade tests can run against a fake store without
// spinning up real raft groups, the same reasoning behind
// peer.Applier/Sender and store.PeerFactory/Hooks.
type RegionProposer interface {
	RegionStatus(regionID uint64) (peer.Region, raft.Status, bool)
	HasValidLease(regionID uint64) (valid, found bool)
	IsLeader(regionID uint64) (leader, found bool)
	FindRegion(key []byte) (uint64, bool)
	ProposeCommand(regionID uint64, data []byte) (<-chan peer.CommandResult, error)
}

// RequestContext is the per-request header spec.md §6 describes every
// KV service RPC carrying: which region and epoch the client believes
// it is targeting, and the priority lane its command should run in.
type RequestContext struct {
	RegionID    uint64
	RegionEpoch peer.RegionEpoch
	Priority    scheduler.Priority
}

// Config bundles the dependencies New wires together.
type Config struct {
	Raft      RegionProposer
	MVCC      *mvcc.Store
	Scheduler *scheduler.Scheduler
	Logger    *zap.Logger
}

// Facade implements the transactional KV service over a shared
// mvcc.Store and a multi-region raft store.
type Facade struct {
	raft   RegionProposer
	mvcc   *mvcc.Store
	sched  *scheduler.Scheduler
	logger *zap.Logger

	nextCmdID atomic.Uint64
}

// New constructs a Facade. cfg.Scheduler must already be running
// (Scheduler.Run) for Submit to make progress.
func New(cfg Config) *Facade {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Facade{raft: cfg.Raft, mvcc: cfg.MVCC, sched: cfg.Scheduler, logger: cfg.Logger}
}

// validateRegion checks rc against the raft store's current view of
// the region, returning the region descriptor on success.
func (f *Facade) validateRegion(rc RequestContext) (peer.Region, error) {
	region, _, ok := f.raft.RegionStatus(rc.RegionID)
	if !ok {
		return peer.Region{}, peer.ErrRegionNotFound
	}
	if region.Epoch != rc.RegionEpoch {
		return region, &peer.EpochNotMatchError{RegionID: rc.RegionID, Current: region.Epoch, Requested: rc.RegionEpoch}
	}
	return region, nil
}

func (f *Facade) validateKeyInRegion(region peer.Region, key []byte) error {
	if !region.ContainsKey(key) {
		return peer.ErrKeyNotInRegion
	}
	return nil
}

// allocCommandID returns a process-unique ID for one scheduler.Command,
// distinct from any percolator start_ts/commit_ts.
func (f *Facade) allocCommandID() uint64 {
	return f.nextCmdID.Add(1)
}

// Get answers a point read at readTS. It is satisfied by a local read
// when this store holds a valid leader lease for the region (Testable
// Property 6); otherwise it returns ErrNoValidLease (still leader, but
// cannot certify linearizability locally) or a NotLeaderError.
func (f *Facade) Get(ctx context.Context, key []byte, readTS uint64, rc RequestContext) (mvcc.Value, error) {
	region, err := f.validateRegion(rc)
	if err != nil {
		return mvcc.Value{}, err
	}
	if err := f.validateKeyInRegion(region, key); err != nil {
		return mvcc.Value{}, err
	}
	if err := f.checkReadable(rc.RegionID); err != nil {
		return mvcc.Value{}, err
	}

	resultC, err := f.sched.Submit(scheduler.Command{
		ID: f.allocCommandID(), Keys: [][]byte{key}, Priority: rc.Priority,
		Run: func(context.Context) (interface{}, error) {
			return f.mvcc.Get(key, readTS)
		},
	})
	if err != nil {
		return mvcc.Value{}, err
	}
	res := <-resultC
	if res.Err != nil {
		return mvcc.Value{}, res.Err
	}
	return res.Value.(mvcc.Value), nil
}

// BatchGet reads multiple keys at readTS, all within the same region.
func (f *Facade) BatchGet(ctx context.Context, keys [][]byte, readTS uint64, rc RequestContext) ([]mvcc.Value, error) {
	region, err := f.validateRegion(rc)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if err := f.validateKeyInRegion(region, k); err != nil {
			return nil, err
		}
	}
	if err := f.checkReadable(rc.RegionID); err != nil {
		return nil, err
	}

	resultC, err := f.sched.Submit(scheduler.Command{
		ID: f.allocCommandID(), Keys: keys, Priority: rc.Priority,
		Run: func(context.Context) (interface{}, error) {
			return f.mvcc.BatchGet(keys, readTS)
		},
	})
	if err != nil {
		return nil, err
	}
	res := <-resultC
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Value.([]mvcc.Value), nil
}

// Scan returns up to limit visible key/value pairs in [startKey,
// endKey) as of readTS. Both bounds must fall within one region.
func (f *Facade) Scan(ctx context.Context, startKey, endKey []byte, limit int, readTS uint64, rc RequestContext) ([]mvcc.Value, error) {
	region, err := f.validateRegion(rc)
	if err != nil {
		return nil, err
	}
	if err := f.validateKeyInRegion(region, startKey); err != nil {
		return nil, err
	}
	if err := f.checkReadable(rc.RegionID); err != nil {
		return nil, err
	}

	resultC, err := f.sched.Submit(scheduler.Command{
		ID: f.allocCommandID(), Keys: [][]byte{startKey}, Priority: rc.Priority,
		Run: func(context.Context) (interface{}, error) {
			return f.mvcc.Scan(startKey, endKey, limit, readTS)
		},
	})
	if err != nil {
		return nil, err
	}
	res := <-resultC
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Value.([]mvcc.Value), nil
}

// checkReadable enforces spec.md §4.1's leader-lease read rule: a
// local read is only linearizable while this store both believes
// itself leader and holds an unexpired lease.
func (f *Facade) checkReadable(regionID uint64) error {
	leader, found := f.raft.IsLeader(regionID)
	if !found {
		return peer.ErrRegionNotFound
	}
	if !leader {
		return &peer.NotLeaderError{RegionID: regionID}
	}
	valid, _ := f.raft.HasValidLease(regionID)
	if !valid {
		return ErrNoValidLease
	}
	return nil
}

// propose submits an encoded proposedCommand through raft for
// regionID and blocks for its apply result, wrapped in a latched
// scheduler.Command on keys so overlapping writes serialize FIFO per
// spec.md §4.5.
func (f *Facade) propose(rc RequestContext, keys [][]byte, cmd proposedCommand) error {
	data, err := encodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("storage: encode command: %w", err)
	}

	resultC, err := f.sched.Submit(scheduler.Command{
		ID: f.allocCommandID(), Keys: keys, Priority: rc.Priority, Write: true,
		Run: func(ctx context.Context) (interface{}, error) {
			applyC, err := f.raft.ProposeCommand(rc.RegionID, data)
			if err != nil {
				return nil, err
			}
			select {
			case res := <-applyC:
				return nil, res.Err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
	if err != nil {
		return err
	}
	res := <-resultC
	return res.Err
}

// Prewrite locks and stages mutations as the first phase of 2PC, per
// spec.md §4.4 and Testable Properties 2/3.
func (f *Facade) Prewrite(ctx context.Context, mutations []mvcc.Mutation, primary []byte, startTS, ttl uint64, rc RequestContext) error {
	if len(mutations) == 0 {
		return ErrEmptyMutations
	}
	region, err := f.validateRegion(rc)
	if err != nil {
		return err
	}
	keys := make([][]byte, len(mutations))
	for i, m := range mutations {
		if err := f.validateKeyInRegion(region, m.Key); err != nil {
			return err
		}
		keys[i] = m.Key
	}
	return f.propose(rc, keys, proposedCommand{
		Kind: CmdPrewrite, Mutations: mutations, Primary: primary, StartTS: startTS, TTL: ttl,
	})
}

// Commit advances every key's lock to a committed write record at
// commitTS, the second phase of 2PC.
func (f *Facade) Commit(ctx context.Context, keys [][]byte, startTS, commitTS uint64, rc RequestContext) error {
	region, err := f.validateRegion(rc)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := f.validateKeyInRegion(region, k); err != nil {
			return err
		}
	}
	return f.propose(rc, keys, proposedCommand{Kind: CmdCommit, Keys: keys, StartTS: startTS, CommitTS: commitTS})
}

// Cleanup (BatchRollback) removes keys' locks belonging to startTS and
// marks them rolled back, so a stalled transaction's primary can be
// cleaned up by a conflicting reader/writer.
func (f *Facade) Cleanup(ctx context.Context, keys [][]byte, startTS uint64, rc RequestContext) error {
	region, err := f.validateRegion(rc)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := f.validateKeyInRegion(region, k); err != nil {
			return err
		}
	}
	return f.propose(rc, keys, proposedCommand{Kind: CmdRollback, Keys: keys, StartTS: startTS})
}

// ResolveLock commits (commitTS != nil) or rolls back (commitTS == nil)
// every lock at startTS, used once the coordinator has learned the
// primary's fate and wants every secondary resolved the same way.
func (f *Facade) ResolveLock(ctx context.Context, startTS uint64, commitTS *uint64, rc RequestContext) error {
	cmd := proposedCommand{Kind: CmdResolveLock, StartTS: startTS}
	if commitTS != nil {
		cmd.CommitTS = *commitTS
	}
	// ResolveLock sweeps every lock at startTS across the region rather
	// than a caller-supplied key list, so there is no fixed key set to
	// latch on ahead of time; latch on the region's identity instead,
	// serializing concurrent resolves of the same region.
	regionKey := regionLatchKey(rc.RegionID)
	return f.propose(rc, [][]byte{regionKey}, cmd)
}

// GC removes write records with commit_ts < safePoint beyond the
// newest, per spec.md §4.4 and Testable Property 4.
func (f *Facade) GC(ctx context.Context, safePoint uint64, rc RequestContext) error {
	regionKey := regionLatchKey(rc.RegionID)
	return f.propose(rc, [][]byte{regionKey}, proposedCommand{Kind: CmdGC, SafePoint: safePoint})
}

func regionLatchKey(regionID uint64) []byte {
	return []byte(fmt.Sprintf("\x00region-latch:%d", regionID))
}
