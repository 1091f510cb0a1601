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
	"errors"
	"fmt"
)

// Region errors, per spec.md §7: recoverable by the client after it
// refreshes region info and retries, possibly on a different leader.

var (
	ErrRegionNotFound = errors.New("peer: region not found")
	ErrKeyNotInRegion = errors.New("peer: key not in region")
	ErrStaleCommand   = errors.New("peer: stale command")
	ErrServerIsBusy   = errors.New("peer: server is busy")
)

// NotLeaderError reports that this peer is not (or no longer) region
// leader, optionally naming the peer it believes is.
type NotLeaderError struct {
	RegionID uint64
	Leader   *PeerMeta
}

func (e *NotLeaderError) Error() string {
	if e.Leader != nil {
		return fmt.Sprintf("peer: region %d: not leader, try peer %d", e.RegionID, e.Leader.ID)
	}
	return fmt.Sprintf("peer: region %d: not leader, no hint", e.RegionID)
}

// EpochNotMatchError reports the header epoch a command carried did
// not match this peer's current region state, per §3's fencing rule.
type EpochNotMatchError struct {
	RegionID    uint64
	Current     RegionEpoch
	Requested   RegionEpoch
	RegionsHint []Region
}

func (e *EpochNotMatchError) Error() string {
	return fmt.Sprintf("peer: region %d: epoch mismatch, current=%+v requested=%+v",
		e.RegionID, e.Current, e.Requested)
}

// ProposalDroppedError reports a proposal that was dropped before
// being persisted (e.g. the peer lost leadership or was destroyed
// while the proposal was still pending).
type ProposalDroppedError struct {
	RegionID uint64
	Reason   string
}

func (e *ProposalDroppedError) Error() string {
	return fmt.Sprintf("peer: region %d: proposal dropped: %s", e.RegionID, e.Reason)
}
