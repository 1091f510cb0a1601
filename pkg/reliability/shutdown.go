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

package reliability

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/distkv/tikv-node/pkg/log"
)

// ShutdownHook runs during one shutdown phase.
type ShutdownHook func(ctx context.Context) error

// ShutdownPhase orders cleanup work during a graceful shutdown.
type ShutdownPhase int

const (
	// PhaseStopAccepting stops the gRPC listener from accepting new RPCs.
	PhaseStopAccepting ShutdownPhase = iota
	// PhaseDrainConnections waits for in-flight requests (scheduler
	// commands, coprocessor handlers) to finish.
	PhaseDrainConnections
	// PhasePersistState flushes the raft hard state and engine write
	// buffers for every region.
	PhasePersistState
	// PhaseCloseResources closes the engine handle, transport, and worker
	// pools.
	PhaseCloseResources
)

// GracefulShutdown coordinates a multi-phase shutdown across registered
// hooks, triggered either by SIGTERM/SIGINT or an explicit Shutdown call.
type GracefulShutdown struct {
	mu      sync.RWMutex
	hooks   map[ShutdownPhase][]ShutdownHook
	timeout time.Duration
	done    chan struct{}
	signals chan os.Signal
}

// NewGracefulShutdown builds a shutdown manager with the given timeout
// budget, shared by all phases together (0 defaults to 30s), and registers
// the OS signal handler.
func NewGracefulShutdown(timeout time.Duration) *GracefulShutdown {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	gs := &GracefulShutdown{
		hooks:   make(map[ShutdownPhase][]ShutdownHook),
		timeout: timeout,
		done:    make(chan struct{}),
		signals: make(chan os.Signal, 1),
	}

	signal.Notify(gs.signals, syscall.SIGTERM, syscall.SIGINT)

	return gs
}

// RegisterHook adds hook to run during phase.
func (gs *GracefulShutdown) RegisterHook(phase ShutdownPhase, hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	gs.hooks[phase] = append(gs.hooks[phase], hook)
}

// Wait blocks until a shutdown signal arrives, then runs Shutdown.
func (gs *GracefulShutdown) Wait() {
	sig := <-gs.signals
	log.Info("received shutdown signal",
		log.String("signal", sig.String()),
		log.Component("shutdown"))
	gs.Shutdown()
}

// Shutdown runs every registered hook, phase by phase, within the
// configured timeout. Safe to call more than once; only the first call
// executes the hooks.
func (gs *GracefulShutdown) Shutdown() {
	gs.mu.Lock()
	select {
	case <-gs.done:
		gs.mu.Unlock()
		return
	default:
		close(gs.done)
	}
	gs.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	phases := []ShutdownPhase{
		PhaseStopAccepting,
		PhaseDrainConnections,
		PhasePersistState,
		PhaseCloseResources,
	}

	for _, phase := range phases {
		phaseName := gs.phaseName(phase)
		log.Info("shutdown phase started",
			log.Phase(phaseName),
			log.Component("shutdown"))

		gs.mu.RLock()
		hooks := gs.hooks[phase]
		gs.mu.RUnlock()

		if err := gs.executeHooks(ctx, hooks, phaseName); err != nil {
			log.Error("shutdown phase failed",
				log.Phase(phaseName),
				log.Err(err),
				log.Component("shutdown"))
			// Continue to the remaining phases regardless, so later
			// resources still get a chance to close.
		}
	}

	log.Info("graceful shutdown completed", log.Component("shutdown"))
}

func (gs *GracefulShutdown) executeHooks(ctx context.Context, hooks []ShutdownHook, phaseName string) error {
	if len(hooks) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(hooks))

	for i, hook := range hooks {
		wg.Add(1)
		go func(idx int, h ShutdownHook) {
			defer wg.Done()
			defer RecoverPanic(fmt.Sprintf("shutdown-hook-%s-%d", phaseName, idx))

			if err := h(ctx); err != nil {
				errChan <- fmt.Errorf("hook %d failed: %w", idx, err)
			}
		}(i, hook)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(errChan)
		var errs []error
		for err := range errChan {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			return fmt.Errorf("phase %s had %d errors: %v", phaseName, len(errs), errs[0])
		}
		return nil

	case <-ctx.Done():
		return fmt.Errorf("phase %s timeout: %w", phaseName, ctx.Err())
	}
}

func (gs *GracefulShutdown) phaseName(phase ShutdownPhase) string {
	switch phase {
	case PhaseStopAccepting:
		return "stop-accepting"
	case PhaseDrainConnections:
		return "drain-connections"
	case PhasePersistState:
		return "persist-state"
	case PhaseCloseResources:
		return "close-resources"
	default:
		return fmt.Sprintf("unknown-phase-%d", phase)
	}
}

// Done returns a channel closed once Shutdown has been triggered.
func (gs *GracefulShutdown) Done() <-chan struct{} {
	return gs.done
}

// IsShuttingDown reports whether Shutdown has been triggered.
func (gs *GracefulShutdown) IsShuttingDown() bool {
	select {
	case <-gs.done:
		return true
	default:
		return false
	}
}
