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

package config

import "sync/atomic"

// Global performance toggles, read on the hot path without locking.
var (
	globalEnableProtobuf         atomic.Bool
	globalEnableSnapshotProtobuf atomic.Bool
)

func init() {
	globalEnableProtobuf.Store(true)
	globalEnableSnapshotProtobuf.Store(true)
}

// InitPerformanceConfig installs cfg's performance toggles globally. Call
// once, immediately after the configuration is loaded.
func InitPerformanceConfig(cfg *Config) {
	globalEnableProtobuf.Store(cfg.Server.Performance.EnableProtobuf)
	globalEnableSnapshotProtobuf.Store(cfg.Server.Performance.EnableSnapshotProtobuf)
}

// GetEnableProtobuf reports whether raft messages use protobuf encoding.
func GetEnableProtobuf() bool {
	return globalEnableProtobuf.Load()
}

// GetEnableSnapshotProtobuf reports whether snapshot metadata uses protobuf
// encoding.
func GetEnableSnapshotProtobuf() bool {
	return globalEnableSnapshotProtobuf.Load()
}

// SetEnableProtobuf overrides the raft message encoding toggle at runtime.
func SetEnableProtobuf(enable bool) {
	globalEnableProtobuf.Store(enable)
}

// SetEnableSnapshotProtobuf overrides the snapshot encoding toggle at
// runtime.
func SetEnableSnapshotProtobuf(enable bool) {
	globalEnableSnapshotProtobuf.Store(enable)
}
