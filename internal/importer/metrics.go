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

package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "tikv_node"
	subsystem = "importer"
)

// Metrics holds the Prometheus instruments emitted during SST
// validation and ingest.
type Metrics struct {
	IngestDuration    *prometheus.HistogramVec
	IngestTotal       *prometheus.CounterVec
	ValidationFailed  *prometheus.CounterVec
	IngestSkippedDup  prometheus.Counter
}

// NewMetrics registers the importer's instruments against registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	return &Metrics{
		IngestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ingest_duration_seconds",
				Help:      "Latency of SST validate-and-ingest calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"cf"},
		),
		IngestTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ingest_total",
				Help:      "Total SST ingest attempts by outcome.",
			},
			[]string{"cf", "result"},
		),
		ValidationFailed: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "validation_failed_total",
				Help:      "SST validation failures by reason.",
			},
			[]string{"reason"},
		),
		IngestSkippedDup: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ingest_skipped_duplicate_total",
				Help:      "Ingest calls short-circuited because the ledger already recorded this SST.",
			},
		),
	}
}
