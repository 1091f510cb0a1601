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

package storage

import (
	"context"
	"errors"

	"github.com/distkv/tikv-node/internal/engine"
	"github.com/distkv/tikv-node/internal/mvcc"
	"github.com/distkv/tikv-node/internal/scheduler"
)

// RawGet reads key directly from the default CF, unversioned, subject
// to the same leader-lease readability rule as a transactional Get.
func (f *Facade) RawGet(ctx context.Context, key []byte, rc RequestContext) ([]byte, bool, error) {
	region, err := f.validateRegion(rc)
	if err != nil {
		return nil, false, err
	}
	if err := f.validateKeyInRegion(region, key); err != nil {
		return nil, false, err
	}
	if err := f.checkReadable(rc.RegionID); err != nil {
		return nil, false, err
	}

	resultC, err := f.sched.Submit(scheduler.Command{
		ID: f.allocCommandID(), Keys: [][]byte{key}, Priority: rc.Priority,
		Run: func(context.Context) (interface{}, error) {
			val, err := f.mvcc.Backend().Get(engine.CFDefault, key)
			if errors.Is(err, mvcc.ErrKeyNotFound) {
				return rawGetResult{}, nil
			}
			if err != nil {
				return rawGetResult{}, err
			}
			return rawGetResult{value: val, found: true}, nil
		},
	})
	if err != nil {
		return nil, false, err
	}
	res := <-resultC
	if res.Err != nil {
		return nil, false, res.Err
	}
	out := res.Value.(rawGetResult)
	return out.value, out.found, nil
}

type rawGetResult struct {
	value []byte
	found bool
}

// RawPut writes key/value directly to the default CF through raft,
// bypassing percolator lock/write bookkeeping.
func (f *Facade) RawPut(ctx context.Context, key, value []byte, rc RequestContext) error {
	region, err := f.validateRegion(rc)
	if err != nil {
		return err
	}
	if err := f.validateKeyInRegion(region, key); err != nil {
		return err
	}
	return f.propose(rc, [][]byte{key}, proposedCommand{Kind: CmdRawPut, RawKey: key, RawValue: value})
}

// RawDelete removes key from the default CF through raft.
func (f *Facade) RawDelete(ctx context.Context, key []byte, rc RequestContext) error {
	region, err := f.validateRegion(rc)
	if err != nil {
		return err
	}
	if err := f.validateKeyInRegion(region, key); err != nil {
		return err
	}
	return f.propose(rc, [][]byte{key}, proposedCommand{Kind: CmdRawDelete, RawKey: key})
}

// RawDeleteRange removes every default-CF key in [startKey, endKey)
// through raft. Latched on startKey only: a concurrent RawPut/RawGet
// deeper in the range is not ordered against this delete, matching
// spec.md §4.5's "commands sharing a key observe FIFO order" rule
// literally (a range delete does not enumerate every key it might
// touch ahead of time).
func (f *Facade) RawDeleteRange(ctx context.Context, startKey, endKey []byte, rc RequestContext) error {
	region, err := f.validateRegion(rc)
	if err != nil {
		return err
	}
	if err := f.validateKeyInRegion(region, startKey); err != nil {
		return err
	}
	return f.propose(rc, [][]byte{startKey}, proposedCommand{Kind: CmdRawDeleteRange, RawKey: startKey, RawEndKey: endKey})
}

// RawScan returns up to limit raw default-CF key/value pairs in
// [startKey, endKey), unversioned.
func (f *Facade) RawScan(ctx context.Context, startKey, endKey []byte, limit int, rc RequestContext) ([]RawKV, error) {
	region, err := f.validateRegion(rc)
	if err != nil {
		return nil, err
	}
	if err := f.validateKeyInRegion(region, startKey); err != nil {
		return nil, err
	}
	if err := f.checkReadable(rc.RegionID); err != nil {
		return nil, err
	}

	resultC, err := f.sched.Submit(scheduler.Command{
		ID: f.allocCommandID(), Keys: [][]byte{startKey}, Priority: rc.Priority,
		Run: func(context.Context) (interface{}, error) {
			return f.rawScan(startKey, endKey, limit)
		},
	})
	if err != nil {
		return nil, err
	}
	res := <-resultC
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Value.([]RawKV), nil
}

// RawKV is one key/value pair returned by RawScan.
type RawKV struct {
	Key   []byte
	Value []byte
}

func (f *Facade) rawScan(startKey, endKey []byte, limit int) ([]RawKV, error) {
	it, err := f.mvcc.Backend().NewIterator(engine.CFDefault)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []RawKV
	for it.Seek(startKey); it.Valid(); it.Next() {
		if len(endKey) > 0 && !bytesLess(it.Key(), endKey) {
			break
		}
		out = append(out, RawKV{Key: append([]byte(nil), it.Key()...), Value: append([]byte(nil), it.Value()...)})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, it.Err()
}

func bytesLess(a, b []byte) bool {
	return string(a) < string(b)
}
