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

package mvcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBtreeCFPutGetDelete(t *testing.T) {
	c := newBtreeCF()

	_, ok := c.get([]byte("a"))
	assert.False(t, ok)

	c.put([]byte("a"), []byte("1"))
	v, ok := c.get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	c.put([]byte("a"), []byte("2"))
	v, ok = c.get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	c.delete([]byte("a"))
	_, ok = c.get([]byte("a"))
	assert.False(t, ok)
}

func TestBtreeCFSnapshotIsAscendingAndIsolated(t *testing.T) {
	c := newBtreeCF()
	c.put([]byte("c"), []byte("3"))
	c.put([]byte("a"), []byte("1"))
	c.put([]byte("b"), []byte("2"))

	items := c.snapshot()
	require.Len(t, items, 3)
	assert.Equal(t, "a", string(items[0].key))
	assert.Equal(t, "b", string(items[1].key))
	assert.Equal(t, "c", string(items[2].key))

	c.put([]byte("d"), []byte("4"))
	assert.Len(t, items, 3, "snapshot must not see writes made after it was taken")
}

func TestBtreeCFDeleteRange(t *testing.T) {
	c := newBtreeCF()
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		c.put([]byte(k), []byte(k))
	}

	c.deleteRange([]byte("b"), []byte("d"))

	items := c.snapshot()
	var keys []string
	for _, it := range items {
		keys = append(keys, string(it.key))
	}
	assert.Equal(t, []string{"a", "d", "e"}, keys)
}
