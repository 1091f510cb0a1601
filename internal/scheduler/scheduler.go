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

package scheduler

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config controls one Scheduler's admission limits, latch granularity and
// worker counts.
type Config struct {
	// SlotCount sizes the latch table. Zero picks a default.
	SlotCount int
	// MaxPending bounds the command-id -> context map; Submit returns
	// ErrSchedTooBusy once it is full. Zero disables the cap (not
	// recommended outside tests).
	MaxPending int
	// RateLimit and RateBurst configure an additional token-bucket
	// admission throttle layered above MaxPending, so a burst of cheap
	// commands cannot saturate the map before the single-writer
	// executor has drained any of them. Zero RateLimit disables the
	// throttle.
	RateLimit rate.Limit
	RateBurst int
	// ReadWorkers sizes the read pool. Zero picks a default of 4.
	ReadWorkers int
	// QueueCapacity bounds each priority lane's buffered channel.
	QueueCapacity int
}

func (c Config) withDefaults() Config {
	if c.SlotCount <= 0 {
		c.SlotCount = 2048
	}
	if c.ReadWorkers <= 0 {
		c.ReadWorkers = 4
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 256
	}
	return c
}

// Scheduler implements spec.md's latch-based command scheduler: commands
// touching disjoint keys run concurrently, commands sharing a key observe
// FIFO order, and a single writer lane serializes every write against raft
// proposal admission while reads fan out across a worker pool.
type Scheduler struct {
	cfg     Config
	latches *LatchTable
	limiter *rate.Limiter
	logger  *zap.Logger

	reads  *priorityQueue
	writes *priorityQueue

	mu      sync.Mutex
	pending map[uint64]*commandContext
	closed  bool

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs a Scheduler. Call Run to start its worker goroutines.
func New(cfg Config, logger *zap.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return &Scheduler{
		cfg:     cfg,
		latches: NewLatchTable(cfg.SlotCount),
		limiter: limiter,
		logger:  logger,
		reads:   newPriorityQueue(cfg.QueueCapacity),
		writes:  newPriorityQueue(cfg.QueueCapacity),
		pending: make(map[uint64]*commandContext),
	}
}

// Run starts the single-writer executor and the read pool, both bound to
// ctx. It returns immediately; call Close (or cancel ctx) to stop them, and
// Wait to block for their exit.
func (s *Scheduler) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	s.group = g

	g.Go(func() error {
		s.drain(gctx, s.writes)
		return nil
	})
	for i := 0; i < s.cfg.ReadWorkers; i++ {
		g.Go(func() error {
			s.drain(gctx, s.reads)
			return nil
		})
	}
}

// Wait blocks until every worker goroutine started by Run has exited.
func (s *Scheduler) Wait() {
	if s.group != nil {
		_ = s.group.Wait()
	}
}

// Close stops accepting new commands and signals every worker to exit once
// its current command (if any) completes.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Submit admits cmd, acquiring its latch slots, and returns a channel that
// receives exactly one Result once it runs to completion. It returns
// ErrSchedTooBusy without admitting cmd if the pending-command cap or the
// admission rate limiter rejects it.
func (s *Scheduler) Submit(cmd Command) (<-chan Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if _, exists := s.pending[cmd.ID]; exists {
		s.mu.Unlock()
		return nil, ErrDuplicateCommand
	}
	if s.cfg.MaxPending > 0 && len(s.pending) >= s.cfg.MaxPending {
		s.mu.Unlock()
		s.logger.Warn("scheduler too busy: pending map full",
			zap.Int("max_pending", s.cfg.MaxPending))
		return nil, ErrSchedTooBusy
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.mu.Unlock()
		s.logger.Debug("scheduler too busy: admission rate limit")
		return nil, ErrSchedTooBusy
	}

	cc := &commandContext{
		cmd:     cmd,
		slots:   s.latches.slotsFor(cmd.Keys),
		resultC: make(chan Result, 1),
	}
	s.pending[cmd.ID] = cc
	ready := s.latches.tryAcquire(cmd.ID, cc.slots)
	s.mu.Unlock()

	if ready {
		s.dispatch(cc)
	}
	return cc.resultC, nil
}

func (s *Scheduler) dispatch(cc *commandContext) {
	if cc.cmd.Write {
		s.writes.push(cc)
	} else {
		s.reads.push(cc)
	}
}

func (s *Scheduler) drain(ctx context.Context, q *priorityQueue) {
	for {
		cc, ok := q.dequeue(ctx)
		if !ok {
			return
		}
		s.execute(ctx, cc)
	}
}

func (s *Scheduler) execute(ctx context.Context, cc *commandContext) {
	value, err := cc.cmd.Run(ctx)
	s.complete(cc)
	cc.resultC <- Result{Value: value, Err: err}
	close(cc.resultC)
}

// complete releases cc's latch slots and re-attempts admission for every
// command that became a slot's new holder as a result, dispatching any that
// now hold every slot they need.
func (s *Scheduler) complete(cc *commandContext) {
	s.mu.Lock()
	delete(s.pending, cc.cmd.ID)
	woken := s.latches.release(cc.cmd.ID, cc.slots)

	seen := make(map[uint64]struct{}, len(woken))
	var toDispatch []*commandContext
	for _, id := range woken {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		wcc, ok := s.pending[id]
		if !ok {
			continue
		}
		if s.latches.tryAcquire(id, wcc.slots) {
			toDispatch = append(toDispatch, wcc)
		}
	}
	s.mu.Unlock()

	for _, wcc := range toDispatch {
		s.dispatch(wcc)
	}
}

// Pending reports the current size of the command-id -> context map, for
// metrics and admission-control observability.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
