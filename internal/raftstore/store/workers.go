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

	"golang.org/x/sync/errgroup"
)

// worker is a single-consumer FIFO task queue: the event loop never
// blocks on I/O-bound maintenance work, it only ever enqueues a task
// for one of these named workers to run off to the side.
type worker struct {
	name  string
	tasks chan func()
}

func newWorker(name string, queueDepth int) *worker {
	return &worker{name: name, tasks: make(chan func(), queueDepth)}
}

func (w *worker) run(ctx context.Context) error {
	for {
		select {
		case task, ok := <-w.tasks:
			if !ok {
				return nil
			}
			task()
		case <-ctx.Done():
			return nil
		}
	}
}

// submit enqueues task without blocking, returning false if the
// worker's queue is already full so the caller can log and drop the
// tick rather than stall the event loop.
func (w *worker) submit(task func()) bool {
	select {
	case w.tasks <- task:
		return true
	default:
		return false
	}
}

func (w *worker) close() { close(w.tasks) }

// workerPools bundles the five named FIFO queues spec.md §4.2 lists
// (region, split-check, pd, snap, compact), starting and stopping them
// together with an errgroup so a panic or context cancellation in one
// doesn't leak the others.
type workerPools struct {
	Region     *worker
	SplitCheck *worker
	PD         *worker
	Snap       *worker
	Compact    *worker

	group *errgroup.Group
}

func newWorkerPools(queueDepth int) *workerPools {
	return &workerPools{
		Region:     newWorker("region-worker", queueDepth),
		SplitCheck: newWorker("split-check-worker", queueDepth),
		PD:         newWorker("pd-worker", queueDepth),
		Snap:       newWorker("snap-worker", queueDepth),
		Compact:    newWorker("compact-worker", queueDepth),
	}
}

func (wp *workerPools) all() []*worker {
	return []*worker{wp.Region, wp.SplitCheck, wp.PD, wp.Snap, wp.Compact}
}

// start launches one goroutine per worker under g, so shutdown can
// wait for every worker to return through a single g.Wait() call.
func (wp *workerPools) start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	wp.group = g
	for _, w := range wp.all() {
		w := w
		g.Go(func() error { return w.run(gctx) })
	}
}

// shutdown closes every worker's queue and waits for every worker to
// return. A worker whose ctx is already done may return before running
// tasks still in its queue.
func (wp *workerPools) shutdown() error {
	for _, w := range wp.all() {
		w.close()
	}
	return wp.group.Wait()
}
