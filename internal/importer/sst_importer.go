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

// Package importer validates and ingests externally built sorted SST
// files into a region, per spec.md's Importer component: a stream
// upload lands a file under Config.UploadDir, then SSTImporter.Ingest
// checks the file's claimed key range against the target region, its
// checksum against the bytes on disk, and bulk-loads it into the engine
// bypassing the raft write path. A bbolt ledger records every
// successfully ingested (region, checksum) pair so a retried or
// re-delivered ingest request after a crash is recognized as already
// applied instead of running IngestExternalFile a second time.
package importer

import (
	"context"
	"fmt"
	"hash/crc64"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/distkv/tikv-node/internal/engine"
	"github.com/distkv/tikv-node/internal/raftstore/peer"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// SSTMeta describes one SST file awaiting ingest: the region and
// column family it targets, the key range and checksum it claims, and
// its staged path on local disk.
type SSTMeta struct {
	RegionID    uint64
	RegionEpoch peer.RegionEpoch
	CF          string
	StartKey    []byte
	EndKey      []byte
	Checksum    uint64
	Path        string
}

// Ingester is the subset of engine.Engine the importer needs, narrowed
// so tests can substitute a fake without a real RocksDB instance.
type Ingester interface {
	IngestSST(cf string, path string, moveFiles bool) error
}

// SSTImporter validates and ingests SST files.
type SSTImporter struct {
	cfg     Config
	engine  Ingester
	ledger  *Ledger
	metrics *Metrics
	logger  *zap.Logger
}

// New builds an SSTImporter. Callers own the ledger's lifecycle (Close
// it on shutdown); the importer does not close it.
func New(cfg Config, eng Ingester, ledger *Ledger, metrics *Metrics, logger *zap.Logger) *SSTImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSTImporter{cfg: cfg.withDefaults(), engine: eng, ledger: ledger, metrics: metrics, logger: logger}
}

// Validate checks meta against region without touching the engine:
// the column family is known, the epoch matches (the region has not
// split or changed membership since the SST was generated), the
// claimed key range is fully contained in the region's range, and the
// on-disk file's checksum matches meta.Checksum.
func (im *SSTImporter) Validate(meta SSTMeta, region *peer.Region) error {
	if !engine.IsKnownCF(meta.CF) {
		im.metrics.ValidationFailed.WithLabelValues("unknown_cf").Inc()
		return fmt.Errorf("%w: %s", ErrUnknownCF, meta.CF)
	}
	if meta.RegionEpoch != region.Epoch {
		im.metrics.ValidationFailed.WithLabelValues("stale_epoch").Inc()
		return fmt.Errorf("%w: sst epoch %+v, region epoch %+v", ErrRegionEpochStale, meta.RegionEpoch, region.Epoch)
	}
	if !region.ContainsKey(meta.StartKey) || !rangeEndWithinRegion(meta.EndKey, region) {
		im.metrics.ValidationFailed.WithLabelValues("key_range").Inc()
		return fmt.Errorf("%w: sst [%x,%x) region [%x,%x)", ErrKeyRangeMismatch, meta.StartKey, meta.EndKey, region.StartKey, region.EndKey)
	}

	sum, err := fileChecksum(meta.Path)
	if err != nil {
		return fmt.Errorf("importer: checksum %s: %w", meta.Path, err)
	}
	if sum != meta.Checksum {
		im.metrics.ValidationFailed.WithLabelValues("checksum").Inc()
		return fmt.Errorf("%w: sst=%d computed=%d", ErrChecksumMismatch, meta.Checksum, sum)
	}
	return nil
}

// rangeEndWithinRegion reports whether an SST's exclusive end key
// falls at or before the region's end key (an empty region end key
// means +inf, so anything is within bounds on that side).
func rangeEndWithinRegion(end []byte, region *peer.Region) bool {
	if len(region.EndKey) == 0 {
		return true
	}
	if len(end) == 0 {
		return false
	}
	return !bytesGreater(end, region.EndKey)
}

func bytesGreater(a, b []byte) bool {
	return compareBytes(a, b) > 0
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

// Ingest validates meta, then bulk-loads the file into the engine.
// Idempotent: a (region, checksum) pair already recorded in the
// ledger is skipped without re-validating or re-touching the engine,
// so a client retrying after a timed-out response does not risk
// ingesting the same range twice.
func (im *SSTImporter) Ingest(ctx context.Context, meta SSTMeta, region *peer.Region) error {
	start := time.Now()
	defer func() {
		im.metrics.IngestDuration.WithLabelValues(meta.CF).Observe(time.Since(start).Seconds())
	}()

	done, err := im.ledger.AlreadyIngested(meta.RegionID, meta.Checksum)
	if err != nil {
		return fmt.Errorf("importer: ledger lookup: %w", err)
	}
	if done {
		im.metrics.IngestSkippedDup.Inc()
		im.logger.Info("skipping already-ingested sst",
			zap.Uint64("region_id", meta.RegionID), zap.Uint64("checksum", meta.Checksum))
		return nil
	}

	if err := im.Validate(meta, region); err != nil {
		im.metrics.IngestTotal.WithLabelValues(meta.CF, "invalid").Inc()
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := im.engine.IngestSST(meta.CF, meta.Path, true); err != nil {
		im.metrics.IngestTotal.WithLabelValues(meta.CF, "error").Inc()
		return fmt.Errorf("importer: ingest: %w", err)
	}

	if err := im.ledger.MarkIngested(meta.RegionID, meta.Checksum, meta.Path); err != nil {
		// The engine already absorbed the SST; failing to record the
		// ledger entry only risks a harmless duplicate re-ingest on
		// retry, not data loss, so this is logged rather than fatal.
		im.logger.Warn("failed to record ingest in ledger", zap.Error(err),
			zap.Uint64("region_id", meta.RegionID))
	}

	im.metrics.IngestTotal.WithLabelValues(meta.CF, "ok").Inc()
	im.logger.Info("ingested sst",
		zap.Uint64("region_id", meta.RegionID), zap.String("cf", meta.CF),
		zap.String("path", meta.Path))
	return nil
}

func fileChecksum(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := crc64.New(crcTable)
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
