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
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var ingestBucket = []byte("ingested_ssts")

// Ledger records every SST this node has successfully ingested, keyed
// by (region_id, checksum), so a re-delivered or retried ingest request
// after a crash can be recognized as already applied rather than
// re-running IngestExternalFile against the engine a second time.
type Ledger struct {
	db *bolt.DB
}

// OpenLedger opens (creating if absent) the bbolt file at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("importer: open ledger: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(ingestBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("importer: init ledger bucket: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying bbolt file.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func ledgerKey(regionID uint64, checksum uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], regionID)
	binary.BigEndian.PutUint64(key[8:], checksum)
	return key
}

// AlreadyIngested reports whether this (region, checksum) pair has a
// recorded successful ingest.
func (l *Ledger) AlreadyIngested(regionID uint64, checksum uint64) (bool, error) {
	var found bool
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(ingestBucket).Get(ledgerKey(regionID, checksum))
		found = v != nil
		return nil
	})
	return found, err
}

// MarkIngested records a completed ingest so a retried request is a
// no-op instead of re-ingesting the same SST.
func (l *Ledger) MarkIngested(regionID uint64, checksum uint64, path string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ingestBucket).Put(ledgerKey(regionID, checksum), []byte(path))
	})
}
