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

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatchTableDisjointKeysBothAcquireImmediately(t *testing.T) {
	lt := NewLatchTable(16)
	aSlots := lt.slotsFor([][]byte{[]byte("a")})
	bSlots := lt.slotsFor([][]byte{[]byte("zzz-unrelated")})
	require.NotEqual(t, aSlots, bSlots, "test needs two keys landing in different slots")

	assert.True(t, lt.tryAcquire(1, aSlots))
	assert.True(t, lt.tryAcquire(2, bSlots))
}

func TestLatchTableSharedKeyBlocksSecondCommand(t *testing.T) {
	lt := NewLatchTable(16)
	slots := lt.slotsFor([][]byte{[]byte("shared")})

	assert.True(t, lt.tryAcquire(1, slots))
	assert.False(t, lt.tryAcquire(2, slots), "command 2 must wait behind command 1 on the shared slot")

	woken := lt.release(1, slots)
	require.Contains(t, woken, uint64(2))
	assert.True(t, lt.tryAcquire(2, slots))
}

func TestLatchTableFIFOAmongThreeWaiters(t *testing.T) {
	lt := NewLatchTable(16)
	slots := lt.slotsFor([][]byte{[]byte("k")})

	assert.True(t, lt.tryAcquire(1, slots))
	assert.False(t, lt.tryAcquire(2, slots))
	assert.False(t, lt.tryAcquire(3, slots))

	woken := lt.release(1, slots)
	assert.Equal(t, []uint64{2}, woken, "command 2 arrived before command 3 and must be granted first")
	assert.True(t, lt.tryAcquire(2, slots))
	assert.False(t, lt.tryAcquire(3, slots))

	woken = lt.release(2, slots)
	assert.Equal(t, []uint64{3}, woken)
	assert.True(t, lt.tryAcquire(3, slots))
}

func TestLatchTableMultiSlotCommandNeedsEveryHolderSlot(t *testing.T) {
	lt := NewLatchTable(16)
	slotsA := lt.slotsFor([][]byte{[]byte("keyA")})
	slotsB := lt.slotsFor([][]byte{[]byte("keyB")})
	require.NotEqual(t, slotsA, slotsB)

	combined := lt.slotsFor([][]byte{[]byte("keyA"), []byte("keyB")})

	assert.True(t, lt.tryAcquire(1, slotsA))
	assert.False(t, lt.tryAcquire(2, combined), "command 2 cannot proceed while command 1 holds one of its slots")

	lt.release(1, slotsA)
	assert.True(t, lt.tryAcquire(2, combined))
}
