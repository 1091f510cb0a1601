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

// Package engine adapts RocksDB (via grocksdb) into the ordered
// key-value store the raftstore and MVCC layers are built on: four
// column families (default, lock, write, raft), point reads, prefix
// and range iteration, snapshots, atomic batched writes, and SST
// ingestion.
package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/linxGnu/grocksdb"

	"github.com/distkv/tikv-node/pkg/config"
)

// Engine owns a RocksDB handle opened over the four node column
// families. All region data for default/lock/write is prefixed by
// region and routed through the codec package; raft hard state and log
// entries live in CFRaft under their own key layout.
type Engine struct {
	db *grocksdb.DB

	cfHandles map[string]*grocksdb.ColumnFamilyHandle

	wo *grocksdb.WriteOptions
	ro *grocksdb.ReadOptions

	opts    *grocksdb.Options
	cfOpts  []*grocksdb.Options
	bbto    *grocksdb.BlockBasedTableOptions
	closed  bool
	dataDir string
}

// Open opens (or creates) a RocksDB instance at cfg.DataDir/db with the
// four node column families, tuned per cfg.RocksDB.
func Open(cfg *config.RocksDBConfig, dataDir string) (*Engine, error) {
	dbPath := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create data dir: %w", err)
	}

	bbto := grocksdb.NewDefaultBlockBasedTableOptions()
	blockCache := cfg.BlockCacheSize
	if blockCache == 0 {
		blockCache = 512 << 20
	}
	bbto.SetBlockCache(grocksdb.NewLRUCache(blockCache))
	bbto.SetFilterPolicy(grocksdb.NewBloomFilter(10))
	bbto.SetCacheIndexAndFilterBlocks(true)
	bbto.SetPinL0FilterAndIndexBlocksInCache(true)

	opts := grocksdb.NewDefaultOptions()
	opts.SetBlockBasedTableFactory(bbto)
	opts.SetCreateIfMissing(true)
	opts.SetCreateIfMissingColumnFamilies(true)
	opts.SetMaxBackgroundJobs(4)
	opts.SetMaxOpenFiles(cfg.MaxOpenFiles)
	opts.SetWriteBufferSize(cfg.WriteBufferSize)
	opts.SetMaxWriteBufferNumber(3)
	opts.SetTargetFileSizeBase(64 << 20)
	opts.SetCompression(grocksdb.SnappyCompression)
	opts.SetManualWALFlush(false)

	names := CFNames()
	cfOpts := make([]*grocksdb.Options, len(names))
	for i := range names {
		cfOpts[i] = opts
	}

	db, handles, err := grocksdb.OpenDbColumnFamilies(opts, dbPath, names, cfOpts)
	if err != nil {
		return nil, fmt.Errorf("engine: open rocksdb at %s: %w", dbPath, err)
	}

	cfHandles := make(map[string]*grocksdb.ColumnFamilyHandle, len(names))
	for i, name := range names {
		cfHandles[name] = handles[i]
	}

	wo := grocksdb.NewDefaultWriteOptions()
	wo.SetSync(cfg.UseFsync)
	ro := grocksdb.NewDefaultReadOptions()
	ro.SetFillCache(true)

	return &Engine{
		db:        db,
		cfHandles: cfHandles,
		wo:        wo,
		ro:        ro,
		opts:      opts,
		cfOpts:    cfOpts,
		bbto:      bbto,
		dataDir:   dataDir,
	}, nil
}

func (e *Engine) handle(cf string) (*grocksdb.ColumnFamilyHandle, error) {
	h, ok := e.cfHandles[cf]
	if !ok {
		return nil, &UnknownCFError{CF: cf}
	}
	return h, nil
}

// Get reads a single key from the named column family. It returns
// ErrNotFound when the key is absent.
func (e *Engine) Get(cf string, key []byte) ([]byte, error) {
	if e.closed {
		return nil, ErrClosed
	}
	h, err := e.handle(cf)
	if err != nil {
		return nil, err
	}

	slice, err := e.db.GetCF(e.ro, h, key)
	if err != nil {
		return nil, fmt.Errorf("engine: get cf=%s: %w", cf, err)
	}
	defer slice.Free()

	if !slice.Exists() {
		return nil, ErrNotFound
	}

	value := make([]byte, slice.Size())
	copy(value, slice.Data())
	return value, nil
}

// Put writes a single key in the named column family.
func (e *Engine) Put(cf string, key, value []byte) error {
	if e.closed {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	h, err := e.handle(cf)
	if err != nil {
		return err
	}
	if err := e.db.PutCF(e.wo, h, key, value); err != nil {
		return fmt.Errorf("engine: put cf=%s: %w", cf, err)
	}
	return nil
}

// Delete removes a single key from the named column family.
func (e *Engine) Delete(cf string, key []byte) error {
	if e.closed {
		return ErrClosed
	}
	h, err := e.handle(cf)
	if err != nil {
		return err
	}
	if err := e.db.DeleteCF(e.wo, h, key); err != nil {
		return fmt.Errorf("engine: delete cf=%s: %w", cf, err)
	}
	return nil
}

// NewIterator returns a forward iterator over the named column family
// using the engine's default read options (no snapshot pinned).
func (e *Engine) NewIterator(cf string) (*Iterator, error) {
	return e.newIteratorWithOpts(cf, e.ro)
}

func (e *Engine) newIteratorWithOpts(cf string, ro *grocksdb.ReadOptions) (*Iterator, error) {
	if e.closed {
		return nil, ErrClosed
	}
	h, err := e.handle(cf)
	if err != nil {
		return nil, err
	}
	return &Iterator{it: e.db.NewIteratorCF(ro, h)}, nil
}

// Snapshot returns a consistent point-in-time read view across every
// column family. Callers must Release it when done.
func (e *Engine) Snapshot() *Snapshot {
	return &Snapshot{engine: e, snap: e.db.NewSnapshot()}
}

// NewWriteBatch returns an empty WriteBatch bound to this engine's
// column family handles.
func (e *Engine) NewWriteBatch() *WriteBatch {
	return &WriteBatch{engine: e, wb: grocksdb.NewWriteBatch()}
}

// Write atomically applies a WriteBatch.
func (e *Engine) Write(wb *WriteBatch) error {
	if e.closed {
		return ErrClosed
	}
	if err := e.db.Write(e.wo, wb.wb); err != nil {
		return fmt.Errorf("engine: write batch: %w", err)
	}
	return nil
}

// IngestSST bulk-loads an already-built SST file directly into the
// named column family, bypassing the write path. Used by the importer
// to land region snapshots without replaying every key through Raft.
func (e *Engine) IngestSST(cf string, path string, moveFiles bool) error {
	if e.closed {
		return ErrClosed
	}
	h, err := e.handle(cf)
	if err != nil {
		return err
	}
	ifo := grocksdb.NewDefaultIngestExternalFileOptions()
	ifo.SetMoveFiles(moveFiles)
	defer ifo.Destroy()

	if err := e.db.IngestExternalFileCF(h, []string{path}, ifo); err != nil {
		return fmt.Errorf("engine: ingest sst cf=%s: %w", cf, err)
	}
	return nil
}

// Checkpoint creates a hard-linked RocksDB checkpoint at dir, used as
// the on-disk representation of a generated region snapshot.
func (e *Engine) Checkpoint(dir string) error {
	if e.closed {
		return ErrClosed
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
		return ErrBadCheckpoint
	}

	cp, err := e.db.NewCheckpoint()
	if err != nil {
		return fmt.Errorf("engine: new checkpoint: %w", err)
	}
	defer cp.Destroy()

	if err := cp.CreateCheckpoint(dir, 0); err != nil {
		return fmt.Errorf("engine: create checkpoint at %s: %w", dir, err)
	}
	return nil
}

// Flush forces a memtable flush across every column family, used
// before taking a checkpoint so the snapshot reflects recent writes.
func (e *Engine) Flush() error {
	if e.closed {
		return ErrClosed
	}
	fo := grocksdb.NewDefaultFlushOptions()
	fo.SetWait(true)
	defer fo.Destroy()

	for _, name := range CFNames() {
		h := e.cfHandles[name]
		if err := e.db.FlushCF(h, fo); err != nil {
			return fmt.Errorf("engine: flush cf=%s: %w", name, err)
		}
	}
	return nil
}

// Close releases the RocksDB handle and every option object the
// engine created. Safe to call once; a closed engine rejects further
// operations with ErrClosed.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	for _, h := range e.cfHandles {
		h.Destroy()
	}
	e.wo.Destroy()
	e.ro.Destroy()
	e.db.Close()
	e.opts.Destroy()
	e.bbto.Destroy()
	return nil
}
