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

import "context"

// priorityQueue is three buffered FIFO lanes, one per Priority. dequeue
// always drains a higher lane completely before looking at a lower one, so
// a steady stream of high-priority commands can starve a low-priority
// backlog indefinitely — the scheduler's contract, not an oversight.
type priorityQueue struct {
	high, normal, low chan *commandContext
}

func newPriorityQueue(capacity int) *priorityQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &priorityQueue{
		high:   make(chan *commandContext, capacity),
		normal: make(chan *commandContext, capacity),
		low:    make(chan *commandContext, capacity),
	}
}

func (q *priorityQueue) push(cc *commandContext) {
	switch cc.cmd.Priority {
	case PriorityHigh:
		q.high <- cc
	case PriorityLow:
		q.low <- cc
	default:
		q.normal <- cc
	}
}

// dequeue blocks until a command is available or ctx is done, always
// preferring the highest-priority non-empty lane.
func (q *priorityQueue) dequeue(ctx context.Context) (*commandContext, bool) {
	for {
		select {
		case cc := <-q.high:
			return cc, true
		default:
		}
		select {
		case cc := <-q.high:
			return cc, true
		case cc := <-q.normal:
			return cc, true
		default:
		}
		select {
		case cc := <-q.high:
			return cc, true
		case cc := <-q.normal:
			return cc, true
		case cc := <-q.low:
			return cc, true
		case <-ctx.Done():
			return nil, false
		}
	}
}
