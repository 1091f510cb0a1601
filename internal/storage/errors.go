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

package storage

import "errors"

// ErrNoValidLease is returned by a read when this store believes
// itself leader but its lease has expired and no read-index round
// trip is available to re-establish linearizability locally. The
// client should retry; by then the lease will likely have renewed on
// the next raft-base tick, or a NotLeaderError will surface instead if
// leadership actually moved.
var ErrNoValidLease = errors.New("storage: no valid local-read lease")

// ErrEmptyMutations is returned by Prewrite when called with no
// mutations; there is no useful raft proposal to build.
var ErrEmptyMutations = errors.New("storage: prewrite with no mutations")
