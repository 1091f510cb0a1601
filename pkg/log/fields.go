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

package log

import (
	"time"

	"go.uber.org/zap"
)

func String(key, val string) zap.Field          { return zap.String(key, val) }
func Int64(key string, val int64) zap.Field      { return zap.Int64(key, val) }
func Int(key string, val int) zap.Field          { return zap.Int(key, val) }
func Uint64(key string, val uint64) zap.Field    { return zap.Uint64(key, val) }
func Bool(key string, val bool) zap.Field        { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) zap.Field { return zap.Duration(key, val) }
func Err(err error) zap.Field                    { return zap.Error(err) }
func Any(key string, val interface{}) zap.Field  { return zap.Any(key, val) }

// Key logs a raw user key, truncated defensively to avoid huge log lines.
func Key(key []byte) zap.Field {
	if len(key) > 256 {
		key = key[:256]
	}
	return zap.ByteString("key", key)
}

func Value(value []byte) zap.Field {
	if len(value) > 1024 {
		return zap.Int("value_size", len(value))
	}
	return zap.ByteString("value", value)
}

func RegionID(id uint64) zap.Field  { return zap.Uint64("region_id", id) }
func PeerID(id uint64) zap.Field    { return zap.Uint64("peer_id", id) }
func StoreID(id uint64) zap.Field   { return zap.Uint64("store_id", id) }
func StartTS(ts uint64) zap.Field   { return zap.Uint64("start_ts", ts) }
func CommitTS(ts uint64) zap.Field  { return zap.Uint64("commit_ts", ts) }
func LogIndex(idx uint64) zap.Field { return zap.Uint64("log_index", idx) }
func Term(term uint64) zap.Field    { return zap.Uint64("term", term) }
func ConfVer(v uint64) zap.Field    { return zap.Uint64("conf_ver", v) }
func Version(v uint64) zap.Field    { return zap.Uint64("version", v) }

func Component(name string) zap.Field { return zap.String("component", name) }
func Phase(phase string) zap.Field    { return zap.String("phase", phase) }
func Count(count int64) zap.Field     { return zap.Int64("count", count) }
func Goroutine(name string) zap.Field { return zap.String("goroutine", name) }
