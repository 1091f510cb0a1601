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

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegionRouterEmptyFindsNothing(t *testing.T) {
	r := NewRegionRouter()
	_, ok := r.Find([]byte("a"))
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegionRouterFindOwningRegion(t *testing.T) {
	r := NewRegionRouter()
	r.Insert(1, []byte("")) // region 1 owns [-inf, "m")
	r.Insert(2, []byte("m"))
	r.Insert(3, []byte("t"))
	assert.Equal(t, 3, r.Len())

	cases := []struct {
		key  string
		want uint64
	}{
		{"", 1},
		{"a", 1},
		{"lzzz", 1},
		{"m", 2},     // exactly at a start_key belongs to that region
		{"mzzz", 2},
		{"t", 3},
		{"zzz", 3},
	}
	for _, c := range cases {
		got, ok := r.Find([]byte(c.key))
		assert.True(t, ok, "key %q", c.key)
		assert.Equal(t, c.want, got, "key %q", c.key)
	}
}

func TestRegionRouterKeyBeforeAnyRegion(t *testing.T) {
	r := NewRegionRouter()
	r.Insert(1, []byte("m"))
	_, ok := r.Find([]byte("a"))
	assert.False(t, ok, "no region covers keys before the first start_key")
}

func TestRegionRouterRemove(t *testing.T) {
	r := NewRegionRouter()
	r.Insert(1, []byte(""))
	r.Insert(2, []byte("m"))
	r.Remove([]byte("m"))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Find([]byte("zzz"))
	assert.True(t, ok)
	assert.Equal(t, uint64(1), got, "removing region 2 folds its range back into region 1's")
}

func TestRegionRouterInsertReplacesExistingStartKey(t *testing.T) {
	r := NewRegionRouter()
	r.Insert(1, []byte("m"))
	r.Insert(2, []byte("m")) // a region renumbered at the same start_key (e.g. after a merge)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Find([]byte("m"))
	assert.True(t, ok)
	assert.Equal(t, uint64(2), got)
}
