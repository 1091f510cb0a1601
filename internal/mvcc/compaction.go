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

package mvcc

import (
	"sync"
	"sync/atomic"
	"time"
)

// GCConfig configures the periodic garbage collector.
type GCConfig struct {
	// Enable enables automatic GC.
	Enable bool

	// Period is the interval between GC runs.
	Period time.Duration

	// Lifetime is how far behind the current time safe_point trails,
	// bounding how long a snapshot read can remain valid.
	Lifetime time.Duration

	// Logger is used for GC events. If nil, events are not logged.
	Logger func(format string, args ...interface{})
}

// DefaultGCConfig returns the default GC configuration: a safe point
// 10 minutes behind current time, checked every minute.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		Enable:   true,
		Period:   time.Minute,
		Lifetime: 10 * time.Minute,
		Logger:   func(string, ...interface{}) {},
	}
}

// GCScheduler periodically advances a Store's safe point and runs GC
// against it. Production deployments instead take safe_point from the
// placement driver; this scheduler exists for standalone operation
// and tests.
type GCScheduler struct {
	config GCConfig
	store  *Store
	nowTS  func() uint64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	runCount     int64
	lastSafePt   uint64
	lastDuration int64
	lastErr      error
}

// NewGCScheduler creates a scheduler that drives store's GC using
// nowTS to obtain the current timestamp (nowTS minus config.Lifetime
// becomes each run's safe_point).
func NewGCScheduler(store *Store, config GCConfig, nowTS func() uint64) *GCScheduler {
	if config.Period <= 0 {
		config.Period = time.Minute
	}
	if config.Lifetime <= 0 {
		config.Lifetime = 10 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = func(string, ...interface{}) {}
	}
	return &GCScheduler{config: config, store: store, nowTS: nowTS}
}

// Start begins the periodic GC loop.
func (s *GCScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || !s.config.Enable {
		return
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run()
}

// Stop halts the periodic GC loop and waits for it to exit.
func (s *GCScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
}

// RunOnce runs GC immediately at the given safe_point, independent of
// the periodic loop.
func (s *GCScheduler) RunOnce(safePoint uint64) error {
	start := time.Now()
	err := s.store.GC(safePoint)
	atomic.AddInt64(&s.runCount, 1)
	atomic.StoreInt64(&s.lastDuration, int64(time.Since(start)))
	s.lastSafePt = safePoint
	s.lastErr = err
	return err
}

// Metrics returns scheduler run counters.
func (s *GCScheduler) Metrics() GCMetrics {
	return GCMetrics{
		RunCount:      atomic.LoadInt64(&s.runCount),
		LastDuration:  time.Duration(atomic.LoadInt64(&s.lastDuration)),
		LastSafePoint: s.lastSafePt,
		LastError:     s.lastErr,
	}
}

// GCMetrics reports GCScheduler run counters.
type GCMetrics struct {
	RunCount      int64
	LastDuration  time.Duration
	LastSafePoint uint64
	LastError     error
}

func (s *GCScheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Period)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			now := s.nowTS()
			lifetimeTS := uint64(s.config.Lifetime / time.Millisecond)
			if now <= lifetimeTS {
				continue
			}
			safePoint := now - lifetimeTS
			if err := s.RunOnce(safePoint); err != nil {
				s.config.Logger("mvcc: gc failed at safe_point=%d: %v", safePoint, err)
			} else {
				s.config.Logger("mvcc: gc completed at safe_point=%d", safePoint)
			}
		}
	}
}
