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

import "sync/atomic"

// Timestamp is a start_ts or commit_ts, allocated by the placement
// driver (outside this package) and otherwise treated as an opaque,
// totally ordered version number.
type Timestamp = uint64

// ValidateCommit checks the invariant that a committed transaction's
// commit_ts strictly follows its start_ts.
func ValidateCommit(startTS, commitTS Timestamp) error {
	if commitTS <= startTS {
		return &CommitOrderError{StartTS: startTS, CommitTS: commitTS}
	}
	return nil
}

// CommitOrderError reports a commit_ts that does not strictly follow
// its start_ts.
type CommitOrderError struct {
	StartTS, CommitTS Timestamp
}

func (e *CommitOrderError) Error() string {
	return "mvcc: commit_ts must be greater than start_ts"
}

// TSOracle hands out a process-local monotonically increasing
// timestamp. Production deployments obtain start_ts/commit_ts from the
// placement driver; this oracle exists only for the in-memory test
// backend and standalone tests that need internally consistent
// timestamps without a PD client.
type TSOracle struct {
	current uint64
}

// NewTSOracle returns an oracle whose first allocated timestamp is
// start+1.
func NewTSOracle(start uint64) *TSOracle {
	return &TSOracle{current: start}
}

// Next returns the next timestamp, strictly greater than every
// previously returned value.
func (o *TSOracle) Next() uint64 {
	return atomic.AddUint64(&o.current, 1)
}
