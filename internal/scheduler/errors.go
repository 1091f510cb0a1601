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

import "errors"

// ErrSchedTooBusy is returned by Submit when the scheduler is at its
// pending-command capacity or its admission rate limiter has no tokens
// left. Callers surface this to clients as a retryable "server busy"
// response rather than a command failure.
var ErrSchedTooBusy = errors.New("scheduler: too busy")

// ErrClosed is returned by Submit after Scheduler.Close has run.
var ErrClosed = errors.New("scheduler: closed")

// ErrDuplicateCommand is returned by Submit when a command ID is already
// pending.
var ErrDuplicateCommand = errors.New("scheduler: duplicate command id")
