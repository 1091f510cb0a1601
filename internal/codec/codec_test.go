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

package codec

import (
	"bytes"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBytesAscendingRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("a"),
		[]byte("hello"),
		[]byte("exactly8"),
		[]byte("exactly8anddata"),
		bytes.Repeat([]byte{0x00}, 16),
	}
	for _, c := range cases {
		enc := EncodeBytesAscending(nil, c)
		_, dec, err := DecodeBytesAscending(enc)
		require.NoError(t, err)
		// The decoder always returns a non-nil slice, so nil decodes as
		// an empty slice; compare contents.
		assert.Equal(t, string(c), string(dec))
	}
}

func TestEncodeBytesAscendingOrdersPrefixesLower(t *testing.T) {
	short := EncodeBytesAscending(nil, []byte("ab"))
	long := EncodeBytesAscending(nil, []byte("abc"))
	assert.Equal(t, -1, bytes.Compare(short, long))
}

func TestEncodeBytesAscendingRejectsTruncatedInput(t *testing.T) {
	enc := EncodeBytesAscending(nil, []byte("hello"))
	_, _, err := DecodeBytesAscending(enc[:len(enc)-2])
	assert.ErrorIs(t, err, ErrKeyLength)
}

func TestEncodeIntAscendingPreservesOrder(t *testing.T) {
	values := []int64{-100, -1, 0, 1, 42, 1 << 40}
	var encoded [][]byte
	for _, v := range values {
		encoded = append(encoded, EncodeIntAscending(nil, v))
	}
	assert.True(t, sort.SliceIsSorted(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	}))

	for i, v := range values {
		_, got, err := DecodeIntAscending(encoded[i])
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestEncodeDecimalAscendingRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "-1", "12.3", "-12.3", "0.001", "-0.001", "99999.5"}
	for _, s := range cases {
		d, err := decimal.NewFromString(s)
		require.NoError(t, err)

		enc := EncodeDecimalAscending(nil, d)
		_, dec, err := DecodeDecimalAscending(enc)
		require.NoError(t, err)
		assert.True(t, d.Equal(dec), "roundtrip %s -> %s", s, dec.String())
	}
}

func TestEncodeDecimalAscendingPreservesOrder(t *testing.T) {
	values := []string{"-100", "-12.3", "-1", "0", "0.5", "1", "12.3", "100"}
	var encoded [][]byte
	for _, s := range values {
		d, err := decimal.NewFromString(s)
		require.NoError(t, err)
		encoded = append(encoded, EncodeDecimalAscending(nil, d))
	}
	assert.True(t, sort.SliceIsSorted(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	}))
}

func TestMVCCKeyOrdersVersionsNewestFirst(t *testing.T) {
	k1 := MVCCEncodeKey([]byte("row1"), 10)
	k2 := MVCCEncodeKey([]byte("row1"), 20)

	assert.Equal(t, -1, bytes.Compare(k2, k1), "commit_ts=20 should sort before commit_ts=10")

	rawKey, ts, err := MVCCDecodeKey(k1)
	require.NoError(t, err)
	assert.Equal(t, []byte("row1"), rawKey)
	assert.Equal(t, uint64(10), ts)
}

func TestTableRowKeyLayout(t *testing.T) {
	k := TableRowKey(5, 100)
	id, ok := TableIDFromKey(k)
	require.True(t, ok)
	assert.Equal(t, int64(5), id)
}

func TestLogEntryKeyRoundTrip(t *testing.T) {
	key := LogEntryKey(7, 1000)
	regionID, index, err := DecodeLogEntryKey(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), regionID)
	assert.Equal(t, uint64(1000), index)
}
