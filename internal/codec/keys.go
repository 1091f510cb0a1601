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

package codec

import "encoding/binary"

// Local key prefixes (raft CF and region meta). A one-byte prefix
// keeps local/meta keys out of the user-data keyspace so a plain
// forward iterator over "everything after the prefix" never needs to
// special-case them.
const (
	prefixRegionState = byte(0x01) // R{id} -> region descriptor
	prefixHardState   = byte(0x02) // H{id} -> raft hard state
	prefixApplyState  = byte(0x03) // A{id} -> apply state
	prefixLogEntry    = byte(0x04) // E{id, index} -> raft log entry
	prefixLastIndex   = byte(0x05) // L{id} -> last persisted raft log index

	// TablePrefix distinguishes table row/index keys from every other
	// user key so a region's split-check table observer can recognize
	// a table-id boundary by a single byte compare.
	TablePrefix = byte('t')
	rowMarker   = byte('r')
	idxMarker   = byte('i')
)

// RegionStateKey returns the R{id} key identifying a region's
// descriptor record in the raft CF.
func RegionStateKey(regionID uint64) []byte {
	key := make([]byte, 0, 9)
	key = append(key, prefixRegionState)
	return EncodeUintAscending(key, regionID)
}

// HardStateKey returns the H{id} key for a region's persisted raft
// hard state.
func HardStateKey(regionID uint64) []byte {
	key := make([]byte, 0, 9)
	key = append(key, prefixHardState)
	return EncodeUintAscending(key, regionID)
}

// ApplyStateKey returns the A{id} key for a region's persisted apply
// state (applied_index, truncated_index, truncated_term).
func ApplyStateKey(regionID uint64) []byte {
	key := make([]byte, 0, 9)
	key = append(key, prefixApplyState)
	return EncodeUintAscending(key, regionID)
}

// LogEntryKey returns the E{id, index} key for one raft log entry.
// Encoding index memcomparable-ascending means a forward iterator
// scoped to a region's log prefix yields entries in index order.
func LogEntryKey(regionID, index uint64) []byte {
	key := make([]byte, 0, 17)
	key = append(key, prefixLogEntry)
	key = EncodeUintAscending(key, regionID)
	return EncodeUintAscending(key, index)
}

// LastIndexKey returns the L{id} key caching a region's highest
// persisted raft log index, since entries are addressed individually
// by index (no CF iterator recomputes this on restart).
func LastIndexKey(regionID uint64) []byte {
	key := make([]byte, 0, 9)
	key = append(key, prefixLastIndex)
	return EncodeUintAscending(key, regionID)
}

// LogPrefix returns the key prefix covering every log entry of a
// region, for range-scan and range-delete during log GC and tombstone
// cleanup.
func LogPrefix(regionID uint64) []byte {
	key := make([]byte, 0, 9)
	key = append(key, prefixLogEntry)
	return EncodeUintAscending(key, regionID)
}

// DecodeLogEntryKey extracts the index from a key produced by
// LogEntryKey.
func DecodeLogEntryKey(key []byte) (regionID, index uint64, err error) {
	if len(key) != 17 || key[0] != prefixLogEntry {
		return 0, 0, ErrKeyLength
	}
	regionID = binary.BigEndian.Uint64(key[1:9])
	index = binary.BigEndian.Uint64(key[9:17])
	return regionID, index, nil
}

// TableRowKey returns the user key t{table_id}_r{row_handle} for a
// row in a table's primary key space.
func TableRowKey(tableID, rowHandle int64) []byte {
	key := make([]byte, 0, 18)
	key = append(key, TablePrefix)
	key = EncodeIntAscending(key, tableID)
	key = append(key, rowMarker)
	return EncodeIntAscending(key, rowHandle)
}

// TableIndexKeyPrefix returns the t{table_id}_i{index_id}_ prefix
// shared by every entry of one secondary index.
func TableIndexKeyPrefix(tableID, indexID int64) []byte {
	key := make([]byte, 0, 18)
	key = append(key, TablePrefix)
	key = EncodeIntAscending(key, tableID)
	key = append(key, idxMarker)
	return EncodeIntAscending(key, indexID)
}

// TableIndexKey appends an index value's already-encoded memcomparable
// bytes to its index prefix.
func TableIndexKey(tableID, indexID int64, encodedValues []byte) []byte {
	key := TableIndexKeyPrefix(tableID, indexID)
	return append(key, encodedValues...)
}

// TableRowHandle extracts the table id and row handle from a key
// produced by TableRowKey, for the coprocessor's table scan to recover
// a row's handle from the physical key it was stored under.
func TableRowHandle(key []byte) (tableID, rowHandle int64, ok bool) {
	if len(key) != 18 || key[0] != TablePrefix {
		return 0, 0, false
	}
	rest, id, err := DecodeIntAscending(key[1:])
	if err != nil || len(rest) != 9 || rest[0] != rowMarker {
		return 0, 0, false
	}
	_, handle, err := DecodeIntAscending(rest[1:])
	if err != nil {
		return 0, 0, false
	}
	return id, handle, true
}

// TableIDFromKey extracts the table id from a t{table_id}_{r|i}...
// user key, used by the split-check table-boundary observer. It
// returns ok=false for keys outside the table keyspace.
func TableIDFromKey(key []byte) (tableID int64, ok bool) {
	if len(key) < 10 || key[0] != TablePrefix {
		return 0, false
	}
	_, id, err := DecodeIntAscending(key[1:9])
	if err != nil {
		return 0, false
	}
	return id, true
}

// MVCCEncodeKey appends a version (start_ts for default, commit_ts for
// write) to a raw user key to form the physical default/write CF key:
// the ts is bitwise-inverted before memcomparable encoding so that,
// for a fixed user key, iterating forward yields versions from newest
// to oldest — the order Get/scan-at-ts need to walk.
func MVCCEncodeKey(key []byte, ts uint64) []byte {
	out := EncodeBytesAscending(nil, key)
	return EncodeUintAscending(out, ^ts)
}

// MVCCDecodeKey splits a physical default/write CF key back into its
// raw user key and version.
func MVCCDecodeKey(physicalKey []byte) (key []byte, ts uint64, err error) {
	rest, rawKey, err := DecodeBytesAscending(physicalKey)
	if err != nil {
		return nil, 0, err
	}
	_, invTS, err := DecodeUintAscending(rest)
	if err != nil {
		return nil, 0, err
	}
	return rawKey, ^invTS, nil
}

// MVCCKeyPrefix returns the physical-key prefix shared by every
// version of a raw user key, for seeking the newest-first version
// range of that key.
func MVCCKeyPrefix(key []byte) []byte {
	return EncodeBytesAscending(nil, key)
}
