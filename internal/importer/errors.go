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

import "errors"

var (
	// ErrRegionEpochStale is returned when an SST's claimed epoch no
	// longer matches the region's current epoch (it split or changed
	// membership since the SST was generated).
	ErrRegionEpochStale = errors.New("importer: region epoch stale")
	// ErrKeyRangeMismatch is returned when an SST's key range is not
	// fully contained in the target region's range.
	ErrKeyRangeMismatch = errors.New("importer: sst key range outside region bounds")
	// ErrChecksumMismatch is returned when the on-disk SST's checksum
	// does not match the checksum carried in its metadata.
	ErrChecksumMismatch = errors.New("importer: sst checksum mismatch")
	// ErrUnknownCF is returned for an SST targeting a column family the
	// engine does not recognize.
	ErrUnknownCF = errors.New("importer: unknown column family")
)
