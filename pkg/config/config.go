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
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the unified node configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig is the top-level node configuration.
type ServerConfig struct {
	// Store identity.
	StoreID       uint64 `yaml:"store_id"`
	ListenAddress string `yaml:"listen_address"`
	DataDir       string `yaml:"data_dir"`

	GRPC        GRPCConfig        `yaml:"grpc"`
	Limits      LimitsConfig      `yaml:"limits"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	Log         LogConfig         `yaml:"log"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Performance PerformanceConfig `yaml:"performance"`
	Raft        RaftConfig        `yaml:"raft"`
	RocksDB     RocksDBConfig     `yaml:"rocksdb"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Coprocessor CoprocessorConfig `yaml:"coprocessor"`
	SplitCheck  SplitCheckConfig  `yaml:"split_check"`
}

// GRPCConfig controls the KV/Coprocessor/Raft/Import service listener.
type GRPCConfig struct {
	MaxRecvMsgSize       int    `yaml:"max_recv_msg_size"`
	MaxSendMsgSize       int    `yaml:"max_send_msg_size"`
	MaxConcurrentStreams uint32 `yaml:"max_concurrent_streams"`

	InitialWindowSize     int32 `yaml:"initial_window_size"`
	InitialConnWindowSize int32 `yaml:"initial_conn_window_size"`

	KeepaliveTime         time.Duration `yaml:"keepalive_time"`
	KeepaliveTimeout      time.Duration `yaml:"keepalive_timeout"`
	MaxConnectionIdle     time.Duration `yaml:"max_connection_idle"`
	MaxConnectionAge      time.Duration `yaml:"max_connection_age"`
	MaxConnectionAgeGrace time.Duration `yaml:"max_connection_age_grace"`

	EnableRateLimit bool `yaml:"enable_rate_limit"`
	RateLimitQPS    int  `yaml:"rate_limit_qps"`
	RateLimitBurst  int  `yaml:"rate_limit_burst"`
}

// LimitsConfig bounds node-wide resource usage.
type LimitsConfig struct {
	MaxConnections int   `yaml:"max_connections"`
	MaxRequestSize int64 `yaml:"max_request_size"`
	MaxMemoryMB    int64 `yaml:"max_memory_mb"`
	MaxRequests    int64 `yaml:"max_requests"`
}

// ReliabilityConfig controls shutdown draining and panic recovery.
type ReliabilityConfig struct {
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
	DrainTimeout        time.Duration `yaml:"drain_timeout"`
	EnableHealthCheck   bool          `yaml:"enable_health_check"`
	EnablePanicRecovery bool          `yaml:"enable_panic_recovery"`
}

// LogConfig controls the zap-backed logger.
type LogConfig struct {
	Level            string   `yaml:"level"`
	Encoding         string   `yaml:"encoding"`
	OutputPaths      []string `yaml:"output_paths"`
	ErrorOutputPaths []string `yaml:"error_output_paths"`
}

// MonitoringConfig controls the Prometheus exposition endpoint.
type MonitoringConfig struct {
	EnablePrometheus     bool          `yaml:"enable_prometheus"`
	PrometheusPort       int           `yaml:"prometheus_port"`
	SlowRequestThreshold time.Duration `yaml:"slow_request_threshold"`
}

// PerformanceConfig toggles protobuf encoding for hot paths.
type PerformanceConfig struct {
	EnableProtobuf         bool `yaml:"enable_protobuf"`          // Raft message encoding
	EnableSnapshotProtobuf bool `yaml:"enable_snapshot_protobuf"` // Snapshot metadata encoding
}

// RaftConfig controls the per-region raft core.
type RaftConfig struct {
	TickInterval  time.Duration `yaml:"tick_interval"`
	ElectionTick  int           `yaml:"election_tick"`
	HeartbeatTick int           `yaml:"heartbeat_tick"`

	MaxSizePerMsg uint64 `yaml:"max_size_per_msg"`

	MaxInflightMsgs           int    `yaml:"max_inflight_msgs"`
	MaxUncommittedEntriesSize uint64 `yaml:"max_uncommitted_entries_size"`

	PreVote     bool `yaml:"pre_vote"`
	CheckQuorum bool `yaml:"check_quorum"`

	Batch     RaftBatchConfig `yaml:"batch"`
	LeaseRead LeaseReadConfig `yaml:"lease_read"`

	// RaftLogGCThreshold is the number of applied-but-unpersisted raft log
	// entries a region tolerates before triggering log compaction.
	RaftLogGCThreshold uint64 `yaml:"raft_log_gc_threshold"`
	// RegionSplitSizeBytes is the approximate region size (bytes) at which the
	// split-check worker proposes an administrative split command.
	RegionSplitSizeBytes uint64 `yaml:"region_split_size_bytes"`
}

// RaftBatchConfig is the dynamic proposal batching knob set. Low load uses a
// small batch and short timeout for latency; high load widens both for
// throughput (reference: TiKV's raftstore batch-system).
type RaftBatchConfig struct {
	Enable        bool          `yaml:"enable"`
	MinBatchSize  int           `yaml:"min_batch_size"`
	MaxBatchSize  int           `yaml:"max_batch_size"`
	MinTimeout    time.Duration `yaml:"min_timeout"`
	MaxTimeout    time.Duration `yaml:"max_timeout"`
	LoadThreshold float64       `yaml:"load_threshold"`
}

// LeaseReadConfig controls the leader-lease local-read optimization: while
// the lease is valid the leader serves reads without going through raft.
// Lease duration = min(electionTimeout/2, heartbeatTick*3) - ClockDrift.
type LeaseReadConfig struct {
	Enable      bool          `yaml:"enable"`
	ClockDrift  time.Duration `yaml:"clock_drift"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// RocksDBConfig controls the engine's column-family tuning.
type RocksDBConfig struct {
	BlockCacheSize uint64 `yaml:"block_cache_size"`

	WriteBufferSize             uint64 `yaml:"write_buffer_size"`
	MaxWriteBufferNumber        int    `yaml:"max_write_buffer_number"`
	MinWriteBufferNumberToMerge int    `yaml:"min_write_buffer_number_to_merge"`

	MaxBackgroundJobs              int `yaml:"max_background_jobs"`
	Level0FileNumCompactionTrigger int `yaml:"level0_file_num_compaction_trigger"`
	Level0SlowdownWritesTrigger    int `yaml:"level0_slowdown_writes_trigger"`
	Level0StopWritesTrigger        int `yaml:"level0_stop_writes_trigger"`

	BloomFilterBitsPerKey      int  `yaml:"bloom_filter_bits_per_key"`
	BlockBasedTableBloomFilter bool `yaml:"block_based_table_bloom_filter"`

	MaxOpenFiles int    `yaml:"max_open_files"`
	UseFsync     bool   `yaml:"use_fsync"`
	BytesPerSync uint64 `yaml:"bytes_per_sync"`
}

// SchedulerConfig controls the latch-based command scheduler.
type SchedulerConfig struct {
	// LatchSlots is the number of hash slots backing the key latch table;
	// must be a power of two.
	LatchSlots int `yaml:"latch_slots"`
	// MaxPending bounds the number of commands queued awaiting a worker,
	// beyond which new commands fail fast with SchedTooBusy.
	MaxPending int `yaml:"max_pending"`
	// WorkerCount is the number of goroutines draining each priority lane.
	WorkerCount int `yaml:"worker_count"`
	// RateLimitQPS throttles command admission ahead of the max_pending
	// cap; 0 disables the limiter.
	RateLimitQPS int `yaml:"rate_limit_qps"`
}

// CoprocessorConfig controls the push-down executor pipeline.
type CoprocessorConfig struct {
	// RequestTimeout bounds how long a single coprocessor request may run
	// before next() calls start returning a deadline-exceeded error.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// BatchRowCount is the number of rows pulled per executor Next() call.
	BatchRowCount int `yaml:"batch_row_count"`
	// MaxHandlers bounds the coprocessor worker pool.
	MaxHandlers int `yaml:"max_handlers"`
}

// SplitCheckConfig controls the region-size split-check worker.
type SplitCheckConfig struct {
	// Interval is how often each region is scanned for a split point.
	Interval time.Duration `yaml:"interval"`
	// RegionMaxKeys bounds the key count a region may hold before a split
	// is proposed, evaluated alongside RegionSplitSizeBytes.
	RegionMaxKeys uint64 `yaml:"region_max_keys"`
}

// DefaultConfig returns a configuration populated with recommended defaults.
func DefaultConfig(storeID uint64, listenAddress string) *Config {
	cfg := &Config{
		Server: ServerConfig{
			StoreID:       storeID,
			ListenAddress: listenAddress,
		},
	}
	cfg.SetDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	cfg.OverrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadConfigOrDefault loads path if given and present, otherwise builds a
// default configuration for storeID/listenAddress.
func LoadConfigOrDefault(path string, storeID uint64, listenAddress string) (*Config, error) {
	if path != "" {
		cfg, err := LoadConfig(path)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := DefaultConfig(storeID, listenAddress)
	cfg.OverrideFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills every zero-valued field with its recommended default.
func (c *Config) SetDefaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":20160"
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = "./data"
	}

	if c.Server.GRPC.MaxRecvMsgSize == 0 {
		c.Server.GRPC.MaxRecvMsgSize = 4194304
	}
	if c.Server.GRPC.MaxSendMsgSize == 0 {
		c.Server.GRPC.MaxSendMsgSize = 4194304
	}
	if c.Server.GRPC.MaxConcurrentStreams == 0 {
		c.Server.GRPC.MaxConcurrentStreams = 2048
	}
	if c.Server.GRPC.InitialWindowSize == 0 {
		c.Server.GRPC.InitialWindowSize = 8388608
	}
	if c.Server.GRPC.InitialConnWindowSize == 0 {
		c.Server.GRPC.InitialConnWindowSize = 16777216
	}
	if c.Server.GRPC.KeepaliveTime == 0 {
		c.Server.GRPC.KeepaliveTime = 10 * time.Second
	}
	if c.Server.GRPC.KeepaliveTimeout == 0 {
		c.Server.GRPC.KeepaliveTimeout = 10 * time.Second
	}
	if c.Server.GRPC.MaxConnectionIdle == 0 {
		c.Server.GRPC.MaxConnectionIdle = 300 * time.Second
	}
	if c.Server.GRPC.MaxConnectionAge == 0 {
		c.Server.GRPC.MaxConnectionAge = 10 * time.Minute
	}
	if c.Server.GRPC.MaxConnectionAgeGrace == 0 {
		c.Server.GRPC.MaxConnectionAgeGrace = 10 * time.Second
	}

	if c.Server.Limits.MaxConnections == 0 {
		c.Server.Limits.MaxConnections = 1000
	}
	if c.Server.Limits.MaxRequestSize == 0 {
		c.Server.Limits.MaxRequestSize = 1572864
	}
	if c.Server.Limits.MaxMemoryMB == 0 {
		c.Server.Limits.MaxMemoryMB = 8192
	}
	if c.Server.Limits.MaxRequests == 0 {
		c.Server.Limits.MaxRequests = 5000
	}

	if c.Server.Reliability.ShutdownTimeout == 0 {
		c.Server.Reliability.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.Reliability.DrainTimeout == 0 {
		c.Server.Reliability.DrainTimeout = 5 * time.Second
	}
	if !c.Server.Reliability.EnableHealthCheck {
		c.Server.Reliability.EnableHealthCheck = true
	}
	if !c.Server.Reliability.EnablePanicRecovery {
		c.Server.Reliability.EnablePanicRecovery = true
	}

	if c.Server.Log.Level == "" {
		c.Server.Log.Level = "info"
	}
	if c.Server.Log.Encoding == "" {
		c.Server.Log.Encoding = "json"
	}
	if len(c.Server.Log.OutputPaths) == 0 {
		c.Server.Log.OutputPaths = []string{"stdout"}
	}
	if len(c.Server.Log.ErrorOutputPaths) == 0 {
		c.Server.Log.ErrorOutputPaths = []string{"stderr"}
	}

	if !c.Server.Monitoring.EnablePrometheus {
		c.Server.Monitoring.EnablePrometheus = true
	}
	if c.Server.Monitoring.PrometheusPort == 0 {
		c.Server.Monitoring.PrometheusPort = 9090
	}
	if c.Server.Monitoring.SlowRequestThreshold == 0 {
		c.Server.Monitoring.SlowRequestThreshold = 100 * time.Millisecond
	}

	c.Server.Performance.EnableProtobuf = true
	c.Server.Performance.EnableSnapshotProtobuf = true

	if c.Server.Raft.TickInterval == 0 {
		c.Server.Raft.TickInterval = 100 * time.Millisecond
	}
	if c.Server.Raft.ElectionTick == 0 {
		c.Server.Raft.ElectionTick = 10
	}
	if c.Server.Raft.HeartbeatTick == 0 {
		c.Server.Raft.HeartbeatTick = 1
	}
	if c.Server.Raft.MaxSizePerMsg == 0 {
		c.Server.Raft.MaxSizePerMsg = 4 * 1024 * 1024
	}
	if c.Server.Raft.MaxInflightMsgs == 0 {
		c.Server.Raft.MaxInflightMsgs = 1024
	}
	if c.Server.Raft.MaxUncommittedEntriesSize == 0 {
		c.Server.Raft.MaxUncommittedEntriesSize = 1 << 30
	}
	c.Server.Raft.PreVote = true
	c.Server.Raft.CheckQuorum = true
	if c.Server.Raft.RaftLogGCThreshold == 0 {
		c.Server.Raft.RaftLogGCThreshold = 50000
	}
	if c.Server.Raft.RegionSplitSizeBytes == 0 {
		c.Server.Raft.RegionSplitSizeBytes = 96 * 1024 * 1024
	}

	c.Server.Raft.Batch.Enable = true
	if c.Server.Raft.Batch.MinBatchSize == 0 {
		c.Server.Raft.Batch.MinBatchSize = 1
	}
	if c.Server.Raft.Batch.MaxBatchSize == 0 {
		c.Server.Raft.Batch.MaxBatchSize = 256
	}
	if c.Server.Raft.Batch.MinTimeout == 0 {
		c.Server.Raft.Batch.MinTimeout = 5 * time.Millisecond
	}
	if c.Server.Raft.Batch.MaxTimeout == 0 {
		c.Server.Raft.Batch.MaxTimeout = 20 * time.Millisecond
	}
	if c.Server.Raft.Batch.LoadThreshold == 0 {
		c.Server.Raft.Batch.LoadThreshold = 0.7
	}

	c.Server.Raft.LeaseRead.Enable = true
	if c.Server.Raft.LeaseRead.ClockDrift == 0 {
		c.Server.Raft.LeaseRead.ClockDrift = 100 * time.Millisecond
	}
	if c.Server.Raft.LeaseRead.ReadTimeout == 0 {
		c.Server.Raft.LeaseRead.ReadTimeout = 5 * time.Second
	}

	if c.Server.RocksDB.BlockCacheSize == 0 {
		c.Server.RocksDB.BlockCacheSize = 268435456
	}
	if c.Server.RocksDB.WriteBufferSize == 0 {
		c.Server.RocksDB.WriteBufferSize = 67108864
	}
	if c.Server.RocksDB.MaxWriteBufferNumber == 0 {
		c.Server.RocksDB.MaxWriteBufferNumber = 3
	}
	if c.Server.RocksDB.MinWriteBufferNumberToMerge == 0 {
		c.Server.RocksDB.MinWriteBufferNumberToMerge = 1
	}
	if c.Server.RocksDB.MaxBackgroundJobs == 0 {
		c.Server.RocksDB.MaxBackgroundJobs = 4
	}
	if c.Server.RocksDB.Level0FileNumCompactionTrigger == 0 {
		c.Server.RocksDB.Level0FileNumCompactionTrigger = 4
	}
	if c.Server.RocksDB.Level0SlowdownWritesTrigger == 0 {
		c.Server.RocksDB.Level0SlowdownWritesTrigger = 20
	}
	if c.Server.RocksDB.Level0StopWritesTrigger == 0 {
		c.Server.RocksDB.Level0StopWritesTrigger = 36
	}
	if c.Server.RocksDB.BloomFilterBitsPerKey == 0 {
		c.Server.RocksDB.BloomFilterBitsPerKey = 10
	}
	if !c.Server.RocksDB.BlockBasedTableBloomFilter {
		c.Server.RocksDB.BlockBasedTableBloomFilter = true
	}
	if c.Server.RocksDB.MaxOpenFiles == 0 {
		c.Server.RocksDB.MaxOpenFiles = 10000
	}
	if c.Server.RocksDB.BytesPerSync == 0 {
		c.Server.RocksDB.BytesPerSync = 1048576
	}

	if c.Server.Scheduler.LatchSlots == 0 {
		c.Server.Scheduler.LatchSlots = 2048
	}
	if c.Server.Scheduler.MaxPending == 0 {
		c.Server.Scheduler.MaxPending = 5000
	}
	if c.Server.Scheduler.WorkerCount == 0 {
		c.Server.Scheduler.WorkerCount = 8
	}

	if c.Server.Coprocessor.RequestTimeout == 0 {
		c.Server.Coprocessor.RequestTimeout = 60 * time.Second
	}
	if c.Server.Coprocessor.BatchRowCount == 0 {
		c.Server.Coprocessor.BatchRowCount = 1024
	}
	if c.Server.Coprocessor.MaxHandlers == 0 {
		c.Server.Coprocessor.MaxHandlers = 8
	}

	if c.Server.SplitCheck.Interval == 0 {
		c.Server.SplitCheck.Interval = 10 * time.Second
	}
	if c.Server.SplitCheck.RegionMaxKeys == 0 {
		c.Server.SplitCheck.RegionMaxKeys = 960000
	}
}

// OverrideFromEnv applies environment-variable overrides, taking precedence
// over both file and default values.
func (c *Config) OverrideFromEnv() {
	if storeID := os.Getenv("TIKV_NODE_STORE_ID"); storeID != "" {
		if id, err := strconv.ParseUint(storeID, 10, 64); err == nil {
			c.Server.StoreID = id
		}
	}
	if listenAddr := os.Getenv("TIKV_NODE_LISTEN_ADDRESS"); listenAddr != "" {
		c.Server.ListenAddress = listenAddr
	}
	if dataDir := os.Getenv("TIKV_NODE_DATA_DIR"); dataDir != "" {
		c.Server.DataDir = dataDir
	}

	if logLevel := os.Getenv("TIKV_NODE_LOG_LEVEL"); logLevel != "" {
		c.Server.Log.Level = logLevel
	}
	if logEncoding := os.Getenv("TIKV_NODE_LOG_ENCODING"); logEncoding != "" {
		c.Server.Log.Encoding = logEncoding
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.StoreID == 0 {
		return fmt.Errorf("store_id is required and must be non-zero")
	}
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("listen_address is required")
	}
	if c.Server.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Server.GRPC.MaxRecvMsgSize < 0 {
		return fmt.Errorf("grpc.max_recv_msg_size must be >= 0")
	}
	if c.Server.GRPC.MaxSendMsgSize < 0 {
		return fmt.Errorf("grpc.max_send_msg_size must be >= 0")
	}

	if c.Server.Limits.MaxConnections <= 0 {
		return fmt.Errorf("limits.max_connections must be > 0")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true,
		"error": true, "dpanic": true, "panic": true, "fatal": true,
	}
	if !validLogLevels[c.Server.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error, dpanic, panic, fatal")
	}
	if c.Server.Log.Encoding != "json" && c.Server.Log.Encoding != "console" {
		return fmt.Errorf("log.encoding must be either 'json' or 'console'")
	}

	if c.Server.Raft.TickInterval <= 0 {
		return fmt.Errorf("raft.tick_interval must be > 0")
	}
	if c.Server.Raft.ElectionTick <= 0 {
		return fmt.Errorf("raft.election_tick must be > 0")
	}
	if c.Server.Raft.HeartbeatTick <= 0 {
		return fmt.Errorf("raft.heartbeat_tick must be > 0")
	}
	if c.Server.Raft.ElectionTick <= c.Server.Raft.HeartbeatTick {
		return fmt.Errorf("raft.election_tick must be > raft.heartbeat_tick")
	}
	if c.Server.Raft.MaxSizePerMsg == 0 {
		return fmt.Errorf("raft.max_size_per_msg must be > 0")
	}
	if c.Server.Raft.MaxInflightMsgs <= 0 {
		return fmt.Errorf("raft.max_inflight_msgs must be > 0")
	}

	if c.Server.Raft.Batch.Enable {
		if c.Server.Raft.Batch.MinBatchSize <= 0 {
			return fmt.Errorf("raft.batch.min_batch_size must be > 0")
		}
		if c.Server.Raft.Batch.MaxBatchSize <= 0 {
			return fmt.Errorf("raft.batch.max_batch_size must be > 0")
		}
		if c.Server.Raft.Batch.MinBatchSize > c.Server.Raft.Batch.MaxBatchSize {
			return fmt.Errorf("raft.batch.min_batch_size must be <= max_batch_size")
		}
		if c.Server.Raft.Batch.MinTimeout <= 0 {
			return fmt.Errorf("raft.batch.min_timeout must be > 0")
		}
		if c.Server.Raft.Batch.MaxTimeout <= 0 {
			return fmt.Errorf("raft.batch.max_timeout must be > 0")
		}
		if c.Server.Raft.Batch.MinTimeout > c.Server.Raft.Batch.MaxTimeout {
			return fmt.Errorf("raft.batch.min_timeout must be <= max_timeout")
		}
		if c.Server.Raft.Batch.LoadThreshold < 0 || c.Server.Raft.Batch.LoadThreshold > 1 {
			return fmt.Errorf("raft.batch.load_threshold must be between 0.0 and 1.0")
		}
	}

	if c.Server.Raft.LeaseRead.Enable {
		if c.Server.Raft.LeaseRead.ClockDrift <= 0 {
			return fmt.Errorf("raft.lease_read.clock_drift must be > 0")
		}
		if c.Server.Raft.LeaseRead.ReadTimeout <= 0 {
			return fmt.Errorf("raft.lease_read.read_timeout must be > 0")
		}
		electionTimeout := time.Duration(c.Server.Raft.ElectionTick) * c.Server.Raft.TickInterval
		if c.Server.Raft.LeaseRead.ClockDrift >= electionTimeout {
			return fmt.Errorf("raft.lease_read.clock_drift must be < election_timeout")
		}
	}

	if c.Server.Scheduler.LatchSlots <= 0 || (c.Server.Scheduler.LatchSlots&(c.Server.Scheduler.LatchSlots-1)) != 0 {
		return fmt.Errorf("scheduler.latch_slots must be a positive power of two")
	}
	if c.Server.Scheduler.MaxPending <= 0 {
		return fmt.Errorf("scheduler.max_pending must be > 0")
	}
	if c.Server.Scheduler.WorkerCount <= 0 {
		return fmt.Errorf("scheduler.worker_count must be > 0")
	}

	if c.Server.Coprocessor.RequestTimeout <= 0 {
		return fmt.Errorf("coprocessor.request_timeout must be > 0")
	}
	if c.Server.Coprocessor.BatchRowCount <= 0 {
		return fmt.Errorf("coprocessor.batch_row_count must be > 0")
	}

	return nil
}
