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

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all tikv-node metrics.
const (
	namespace = "tikv_node"
	subsystem = "server"
)

// Metrics holds every Prometheus collector registered by the node.
type Metrics struct {
	// gRPC request metrics
	GrpcRequestDuration *prometheus.HistogramVec
	GrpcRequestTotal    *prometheus.CounterVec
	GrpcRequestInFlight *prometheus.GaugeVec

	// Connection metrics
	ActiveConnections   prometheus.Gauge
	TotalConnections    prometheus.Counter
	RejectedConnections *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Engine operation metrics
	StorageOperationDuration *prometheus.HistogramVec
	StorageOperationTotal    *prometheus.CounterVec
	StorageOperationErrors   *prometheus.CounterVec

	// MVCC metrics
	MVCCVersionsTotal      prometheus.Gauge
	MVCCGCDeletesTotal     prometheus.Counter
	MVCCWriteConflictTotal prometheus.Counter
	MVCCLockedTotal        prometheus.Gauge
	MVCCCommitTotal        *prometheus.CounterVec

	// Scheduler metrics
	SchedulerPendingCommands prometheus.Gauge
	SchedulerLatchWaitTotal  prometheus.Counter
	SchedulerTooBusyTotal    *prometheus.CounterVec
	SchedulerCommandDuration *prometheus.HistogramVec

	// Coprocessor metrics
	CoprocessorRequestDuration *prometheus.HistogramVec
	CoprocessorScannedKeys     *prometheus.CounterVec
	CoprocessorOutdatedTotal   prometheus.Counter

	// Raft / raftstore metrics
	RaftAppliedIndex    *prometheus.GaugeVec
	RaftCommittedIndex  *prometheus.GaugeVec
	RaftProposalsTotal  prometheus.Counter
	RaftProposalsFailed prometheus.Counter
	RaftLeaderChanges   prometheus.Counter
	RegionSplitTotal    prometheus.Counter
	SnapshotApplyTotal  *prometheus.CounterVec

	// Panic recovery metrics
	PanicsRecovered *prometheus.CounterVec
}

// New builds and registers every metric against registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		GrpcRequestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "request_duration_seconds",
				Help:      "Histogram of gRPC request latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "code"},
		),

		GrpcRequestTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "request_total",
				Help:      "Total number of gRPC requests",
			},
			[]string{"method", "code"},
		),

		GrpcRequestInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "request_in_flight",
				Help:      "Current number of in-flight gRPC requests",
			},
			[]string{"method"},
		),

		ActiveConnections: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_connections",
				Help:      "Current number of active connections",
			},
		),

		TotalConnections: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "connections_total",
				Help:      "Total number of connections accepted",
			},
		),

		RejectedConnections: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rejected_connections_total",
				Help:      "Total number of connections rejected",
			},
			[]string{"reason"},
		),

		RateLimitHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rate limit hits",
			},
			[]string{"method"},
		),

		StorageOperationDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "operation_duration_seconds",
				Help:      "Histogram of engine operation latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "cf"},
		),

		StorageOperationTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "operation_total",
				Help:      "Total number of engine operations",
			},
			[]string{"operation", "cf"},
		),

		StorageOperationErrors: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "operation_errors_total",
				Help:      "Total number of engine operation errors",
			},
			[]string{"operation", "error"},
		),

		MVCCVersionsTotal: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mvcc",
				Name:      "versions_total",
				Help:      "Current number of versioned rows across all regions",
			},
		),

		MVCCGCDeletesTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mvcc",
				Name:      "gc_deletes_total",
				Help:      "Total number of versions removed by garbage collection",
			},
		),

		MVCCWriteConflictTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mvcc",
				Name:      "write_conflict_total",
				Help:      "Total number of write-write conflicts detected during prewrite",
			},
		),

		MVCCLockedTotal: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mvcc",
				Name:      "locked_keys_total",
				Help:      "Current number of keys holding an uncommitted lock",
			},
		),

		MVCCCommitTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mvcc",
				Name:      "commit_total",
				Help:      "Total number of transaction commit outcomes",
			},
			[]string{"outcome"}, // "committed", "rolled_back"
		),

		SchedulerPendingCommands: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "pending_commands",
				Help:      "Current number of commands queued awaiting a worker",
			},
		),

		SchedulerLatchWaitTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "latch_wait_total",
				Help:      "Total number of commands that waited for a key latch",
			},
		),

		SchedulerTooBusyTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "too_busy_total",
				Help:      "Total number of commands rejected as SchedTooBusy",
			},
			[]string{"priority"},
		),

		SchedulerCommandDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "command_duration_seconds",
				Help:      "Histogram of scheduled command latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		CoprocessorRequestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "coprocessor",
				Name:      "request_duration_seconds",
				Help:      "Histogram of coprocessor DAG request latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"executor"},
		),

		CoprocessorScannedKeys: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "coprocessor",
				Name:      "scanned_keys_total",
				Help:      "Total number of keys scanned by coprocessor executors",
			},
			[]string{"executor"},
		),

		CoprocessorOutdatedTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "coprocessor",
				Name:      "outdated_total",
				Help:      "Total number of coprocessor requests aborted past their deadline",
			},
		),

		RaftAppliedIndex: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "raft",
				Name:      "applied_index",
				Help:      "Current raft applied index per region",
			},
			[]string{"region_id"},
		),

		RaftCommittedIndex: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "raft",
				Name:      "committed_index",
				Help:      "Current raft committed index per region",
			},
			[]string{"region_id"},
		),

		RaftProposalsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "raft",
				Name:      "proposals_total",
				Help:      "Total number of raft proposals",
			},
		),

		RaftProposalsFailed: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "raft",
				Name:      "proposals_failed_total",
				Help:      "Total number of failed raft proposals",
			},
		),

		RaftLeaderChanges: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "raft",
				Name:      "leader_changes_total",
				Help:      "Total number of raft leader changes observed",
			},
		),

		RegionSplitTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "raftstore",
				Name:      "region_split_total",
				Help:      "Total number of region splits applied",
			},
		),

		SnapshotApplyTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "raftstore",
				Name:      "snapshot_apply_total",
				Help:      "Total number of region snapshot applications",
			},
			[]string{"result"}, // "success", "failure"
		),

		PanicsRecovered: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered",
			},
			[]string{"method"},
		),
	}

	return m
}

// RecordGrpcRequest records a gRPC request's duration and status.
func (m *Metrics) RecordGrpcRequest(method string, code string, duration time.Duration) {
	m.GrpcRequestDuration.WithLabelValues(method, code).Observe(duration.Seconds())
	m.GrpcRequestTotal.WithLabelValues(method, code).Inc()
}

// RecordStorageOperation records an engine operation's duration.
func (m *Metrics) RecordStorageOperation(operation string, cf string, duration time.Duration) {
	m.StorageOperationDuration.WithLabelValues(operation, cf).Observe(duration.Seconds())
	m.StorageOperationTotal.WithLabelValues(operation, cf).Inc()
}

// RecordStorageError records an engine operation error.
func (m *Metrics) RecordStorageError(operation string, errorType string) {
	m.StorageOperationErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordCommit records a transaction commit outcome.
func (m *Metrics) RecordCommit(committed bool) {
	outcome := "rolled_back"
	if committed {
		outcome = "committed"
	}
	m.MVCCCommitTotal.WithLabelValues(outcome).Inc()
}

// RecordSchedTooBusy records a command rejected under admission control.
func (m *Metrics) RecordSchedTooBusy(priority string) {
	m.SchedulerTooBusyTotal.WithLabelValues(priority).Inc()
}

// RecordSnapshotApply records the outcome of applying a region snapshot.
func (m *Metrics) RecordSnapshotApply(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.SnapshotApplyTotal.WithLabelValues(result).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(method string) {
	m.RateLimitHits.WithLabelValues(method).Inc()
}

// RecordConnectionRejected records a rejected connection.
func (m *Metrics) RecordConnectionRejected(reason string) {
	m.RejectedConnections.WithLabelValues(reason).Inc()
}

// RecordPanicRecovered records a recovered panic.
func (m *Metrics) RecordPanicRecovered(method string) {
	m.PanicsRecovered.WithLabelValues(method).Inc()
}
