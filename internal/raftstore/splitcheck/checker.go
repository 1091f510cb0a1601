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

package splitcheck

import "github.com/distkv/tikv-node/internal/mvcc"

// Config controls one split-check pass.
type Config struct {
	// RegionMaxSizeBytes is the cumulative key+value byte count above
	// which a region is split, mirrored from pkg/config's
	// SplitCheckConfig.
	RegionMaxSizeBytes uint64
	// TableBoundaryMinRows is the row count NewTableBoundaryObserver
	// requires before proposing a split at the next table's first key.
	TableBoundaryMinRows uint64
}

// Result reports one region's split-check outcome.
type Result struct {
	// SplitKeys is non-empty when the region should split there, in
	// ascending order, chosen by the highest-priority observer that
	// found any.
	SplitKeys [][]byte
	// ApproximateSizeBytes is the region's total observed key+value
	// size, regardless of whether it triggered a split.
	ApproximateSizeBytes uint64
}

// Check scans backend's default/lock/write column families across
// [startKey, endKey) once and returns the resulting split decision.
func Check(backend mvcc.Backend, startKey, endKey []byte, cfg Config) (Result, error) {
	it, err := newMergedIterator(backend, startKey, endKey)
	if err != nil {
		return Result{}, err
	}
	defer it.Close()

	sizeObserver := NewSizeObserver(cfg.RegionMaxSizeBytes)
	tableObserver := NewTableBoundaryObserver(cfg.TableBoundaryMinRows)
	chain := NewObserverChain(tableObserver, sizeObserver)

	for it.Valid() {
		cf, key, value := it.Current()
		chain.observe(cf, key, value)
		it.Next()
	}

	return Result{
		SplitKeys:            chain.Result(),
		ApproximateSizeBytes: sizeObserver.ApproximateSize(),
	}, nil
}
