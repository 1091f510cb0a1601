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

import (
	"encoding/json"
	"fmt"

	"github.com/distkv/tikv-node/internal/mvcc"
)

// CommandKind names which percolator operation a raft-proposed command
// replays against the region's mvcc.Store on apply.
type CommandKind uint8

const (
	CmdPrewrite CommandKind = iota
	CmdCommit
	CmdRollback
	CmdResolveLock
	CmdGC
	CmdRawPut
	CmdRawDelete
	CmdRawDeleteRange
)

func (k CommandKind) String() string {
	switch k {
	case CmdPrewrite:
		return "prewrite"
	case CmdCommit:
		return "commit"
	case CmdRollback:
		return "rollback"
	case CmdResolveLock:
		return "resolve_lock"
	case CmdGC:
		return "gc"
	case CmdRawPut:
		return "raw_put"
	case CmdRawDelete:
		return "raw_delete"
	case CmdRawDeleteRange:
		return "raw_delete_range"
	default:
		return "unknown"
	}
}

// proposedCommand is the payload carried by a raft log entry for a
// normal (non-admin) write command. Every replica's Applier decodes
// and replays the same proposedCommand against its local mvcc.Store,
// so the encoding only needs to round-trip exactly, not be
// self-describing or backward compatible across versions — matching
// the teacher's own proposal payload encoding
// (internal/batch/codec.go's EncodeBatch/DecodeBatch use
// encoding/json for the same reason: one process version proposes,
// the same version's peers apply).
type proposedCommand struct {
	Kind      CommandKind     `json:"kind"`
	Mutations []mvcc.Mutation `json:"mutations,omitempty"`
	Keys      [][]byte        `json:"keys,omitempty"`
	Primary   []byte          `json:"primary,omitempty"`
	StartTS   uint64          `json:"start_ts,omitempty"`
	CommitTS  uint64          `json:"commit_ts,omitempty"`
	TTL       uint64          `json:"ttl,omitempty"`
	SafePoint uint64          `json:"safe_point,omitempty"`

	// Raw{Key,Value,EndKey} carry the Raw{Put,Delete,DeleteRange}
	// payload: an unversioned key written straight to the default CF,
	// bypassing percolator lock/write bookkeeping entirely, per
	// spec.md §6's Raw{Get,Put,Delete,Scan} variants.
	RawKey    []byte `json:"raw_key,omitempty"`
	RawValue  []byte `json:"raw_value,omitempty"`
	RawEndKey []byte `json:"raw_end_key,omitempty"`
}

func encodeCommand(c proposedCommand) ([]byte, error) {
	return json.Marshal(c)
}

func decodeCommand(data []byte) (proposedCommand, error) {
	var c proposedCommand
	if err := json.Unmarshal(data, &c); err != nil {
		return proposedCommand{}, fmt.Errorf("storage: decode proposed command: %w", err)
	}
	return c, nil
}
