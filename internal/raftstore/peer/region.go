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

// Package peer hosts one replica of one region: it drives a
// go.etcd.io/raft/v3.Node through its Ready-bundle loop, persists
// hard state/log entries/apply state in the raft column family,
// applies committed entries to the user CFs, and tracks the leader
// lease, membership, split, and snapshot-apply state machines named
// in spec.md §4.1.
package peer

// RegionEpoch fences stale commands: version bumps on every split,
// conf_ver bumps on every membership change.
type RegionEpoch struct {
	ConfVer uint64 `json:"conf_ver"`
	Version uint64 `json:"version"`
}

// PeerMeta identifies one replica of a region.
type PeerMeta struct {
	ID      uint64 `json:"id"`
	StoreID uint64 `json:"store_id"`
	// Learner is true for a non-voting replica still catching up.
	Learner bool `json:"learner,omitempty"`
}

// LocalState is a region's lifecycle state on this store, per spec.md
// §3's Peer description.
type LocalState int

const (
	StateNormal LocalState = iota
	StateApplying
	StateTombstone
)

func (s LocalState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateApplying:
		return "applying"
	case StateTombstone:
		return "tombstone"
	default:
		return "unknown"
	}
}

// Region is the descriptor persisted at codec.RegionStateKey(id),
// per spec.md §3: {id, start_key, end_key, epoch, peers}.
type Region struct {
	ID       uint64      `json:"id"`
	StartKey []byte      `json:"start_key"`
	EndKey   []byte      `json:"end_key"`
	Epoch    RegionEpoch `json:"epoch"`
	Peers    []PeerMeta  `json:"peers"`
}

// Clone returns a deep copy, so callers can build a modified region
// (e.g. a split child) without aliasing the parent's slices.
func (r *Region) Clone() *Region {
	out := &Region{
		ID:       r.ID,
		StartKey: append([]byte(nil), r.StartKey...),
		EndKey:   append([]byte(nil), r.EndKey...),
		Epoch:    r.Epoch,
		Peers:    append([]PeerMeta(nil), r.Peers...),
	}
	return out
}

// ContainsKey reports whether key falls in [StartKey, EndKey), with
// an empty bound meaning -inf/+inf.
func (r *Region) ContainsKey(key []byte) bool {
	if len(r.StartKey) > 0 && bytesLess(key, r.StartKey) {
		return false
	}
	if len(r.EndKey) > 0 && !bytesLess(key, r.EndKey) {
		return false
	}
	return true
}

// FindPeer returns the PeerMeta hosted on storeID, if any.
func (r *Region) FindPeer(storeID uint64) (PeerMeta, bool) {
	for _, p := range r.Peers {
		if p.StoreID == storeID {
			return p, true
		}
	}
	return PeerMeta{}, false
}

func bytesLess(a, b []byte) bool {
	return compareBytes(a, b) < 0
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
