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

// Config controls where uploaded SST files and the ingest ledger live.
type Config struct {
	// UploadDir is where streamed SST chunks are staged before ingest.
	UploadDir string
	// LedgerPath is the bbolt file recording completed ingests, so a
	// restart after a crash mid-ingest does not re-apply an SST the
	// engine already absorbed.
	LedgerPath string
}

func (c Config) withDefaults() Config {
	if c.UploadDir == "" {
		c.UploadDir = "import-sst"
	}
	if c.LedgerPath == "" {
		c.LedgerPath = "import-ledger.db"
	}
	return c
}
