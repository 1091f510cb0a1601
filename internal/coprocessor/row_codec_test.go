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

package coprocessor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRowRoundTrip(t *testing.T) {
	colIDs := []int64{1, 2, 3, 4}
	values := []Datum{
		{Kind: DatumInt64, I: -42},
		{Kind: DatumBytes, B: []byte("hello")},
		{Kind: DatumDecimal, D: decimal.RequireFromString("3.14159")},
		{Kind: DatumNull},
	}

	enc, err := EncodeRow(colIDs, values)
	require.NoError(t, err)

	decoded, err := DecodeRow(enc)
	require.NoError(t, err)
	require.Len(t, decoded, 4)

	require.Equal(t, int64(-42), decoded[1].I)
	require.Equal(t, []byte("hello"), decoded[2].B)
	require.True(t, decoded[3].D.Equal(decimal.RequireFromString("3.14159")))
	require.Equal(t, DatumNull, decoded[4].Kind)
}

func TestDecodeRowMissingColumnIsAbsent(t *testing.T) {
	enc, err := EncodeRow([]int64{1}, []Datum{{Kind: DatumInt64, I: 7}})
	require.NoError(t, err)
	decoded, err := DecodeRow(enc)
	require.NoError(t, err)
	_, ok := decoded[99]
	require.False(t, ok)
}
