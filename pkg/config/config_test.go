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

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig(1, ":20160")
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Server.Raft.LeaseRead.Enable)
	assert.True(t, cfg.Server.Raft.PreVote)
	assert.True(t, cfg.Server.Raft.CheckQuorum)
	assert.Equal(t, 2048, cfg.Server.Scheduler.LatchSlots)
	assert.Equal(t, 60*time.Second, cfg.Server.Coprocessor.RequestTimeout)
}

func TestValidateRejectsMissingStoreID(t *testing.T) {
	cfg := DefaultConfig(0, ":20160")
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPowerOfTwoLatchSlots(t *testing.T) {
	cfg := DefaultConfig(1, ":20160")
	cfg.Server.Scheduler.LatchSlots = 100
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsElectionTickNotGreaterThanHeartbeat(t *testing.T) {
	cfg := DefaultConfig(1, ":20160")
	cfg.Server.Raft.HeartbeatTick = 10
	cfg.Server.Raft.ElectionTick = 10
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsLeaseClockDriftExceedingElectionTimeout(t *testing.T) {
	cfg := DefaultConfig(1, ":20160")
	cfg.Server.Raft.LeaseRead.ClockDrift = 2 * time.Second
	require.Error(t, cfg.Validate())
}

func TestLoadConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	data := []byte("server:\n  store_id: 7\n  listen_address: \":20161\"\n  data_dir: \"/tmp/tikv-node\"\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cfg.Server.StoreID)
	assert.Equal(t, ":20161", cfg.Server.ListenAddress)
	// Defaults still fill in untouched sections.
	assert.Equal(t, 256*1024*1024, int(cfg.Server.RocksDB.BlockCacheSize))
}

func TestLoadConfigOrDefaultFallsBackWhenMissing(t *testing.T) {
	cfg, err := LoadConfigOrDefault("/nonexistent/path/config.yaml", 3, ":20162")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cfg.Server.StoreID)
}
