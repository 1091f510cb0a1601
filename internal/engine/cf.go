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

package engine

// Column family names. Every region's data lives in the same three CFs,
// distinguished only by key prefix; raft hard state and log entries live
// in a fourth CF that user reads never touch.
const (
	CFDefault = "default"
	CFLock    = "lock"
	CFWrite   = "write"
	CFRaft    = "raft"
)

// CFNames returns the column families an Engine opens, in the order
// RocksDB expects them (the default CF must be first).
func CFNames() []string {
	return []string{CFDefault, CFLock, CFWrite, CFRaft}
}

func isKnownCF(cf string) bool {
	switch cf {
	case CFDefault, CFLock, CFWrite, CFRaft:
		return true
	default:
		return false
	}
}

// IsKnownCF reports whether cf is one of the engine's column families,
// for callers outside this package (e.g. the importer) validating a
// request before it reaches Engine methods.
func IsKnownCF(cf string) bool {
	return isKnownCF(cf)
}
