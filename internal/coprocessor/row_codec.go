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
	"encoding/binary"
	"fmt"

	"github.com/distkv/tikv-node/internal/codec"
)

// EncodeRow flattens a row's column values into the bytes stored
// under a table row key: each column is (column_id varint, kind byte,
// payload). Unlike a key codec this only needs to round-trip exactly,
// not sort correctly, so column order carries no ordering meaning —
// DecodeRow re-associates values by column id, not position.
func EncodeRow(colIDs []int64, values []Datum) ([]byte, error) {
	if len(colIDs) != len(values) {
		return nil, fmt.Errorf("coprocessor: encode row: %d column ids but %d values", len(colIDs), len(values))
	}
	buf := make([]byte, 0, 16*len(colIDs))
	tmp := make([]byte, binary.MaxVarintLen64)

	for i, id := range colIDs {
		n := binary.PutUvarint(tmp, uint64(id))
		buf = append(buf, tmp[:n]...)

		v := values[i]
		buf = append(buf, byte(v.Kind))
		switch v.Kind {
		case DatumNull:
		case DatumInt64:
			var b8 [8]byte
			binary.BigEndian.PutUint64(b8[:], uint64(v.I))
			buf = append(buf, b8[:]...)
		case DatumBytes:
			n := binary.PutUvarint(tmp, uint64(len(v.B)))
			buf = append(buf, tmp[:n]...)
			buf = append(buf, v.B...)
		case DatumDecimal:
			enc := codec.EncodeDecimalAscending(nil, v.D)
			n := binary.PutUvarint(tmp, uint64(len(enc)))
			buf = append(buf, tmp[:n]...)
			buf = append(buf, enc...)
		default:
			return nil, fmt.Errorf("coprocessor: encode row: unsupported datum kind %s", v.Kind)
		}
	}
	return buf, nil
}

// DecodeRow reverses EncodeRow, returning the decoded values keyed by
// column id.
func DecodeRow(data []byte) (map[int64]Datum, error) {
	out := make(map[int64]Datum)
	if err := decodeRowInto(out, data); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeRowInto decodes into a caller-supplied map, letting hot paths
// (TableScan) reuse one map across many rows via rowMapPool instead of
// allocating fresh map buckets per row.
func decodeRowInto(out map[int64]Datum, data []byte) error {
	for len(data) > 0 {
		id, n := binary.Uvarint(data)
		if n <= 0 {
			return fmt.Errorf("coprocessor: decode row: malformed column id")
		}
		data = data[n:]

		if len(data) == 0 {
			return fmt.Errorf("coprocessor: decode row: truncated after column id %d", id)
		}
		kind := DatumKind(data[0])
		data = data[1:]

		switch kind {
		case DatumNull:
			out[int64(id)] = Datum{Kind: DatumNull}
		case DatumInt64:
			if len(data) < 8 {
				return fmt.Errorf("coprocessor: decode row: truncated int64 for column %d", id)
			}
			v := int64(binary.BigEndian.Uint64(data[:8]))
			data = data[8:]
			out[int64(id)] = Datum{Kind: DatumInt64, I: v}
		case DatumBytes:
			l, n2 := binary.Uvarint(data)
			if n2 <= 0 {
				return fmt.Errorf("coprocessor: decode row: malformed bytes length for column %d", id)
			}
			data = data[n2:]
			if uint64(len(data)) < l {
				return fmt.Errorf("coprocessor: decode row: truncated bytes for column %d", id)
			}
			b := append([]byte(nil), data[:l]...)
			data = data[l:]
			out[int64(id)] = Datum{Kind: DatumBytes, B: b}
		case DatumDecimal:
			l, n2 := binary.Uvarint(data)
			if n2 <= 0 {
				return fmt.Errorf("coprocessor: decode row: malformed decimal length for column %d", id)
			}
			data = data[n2:]
			if uint64(len(data)) < l {
				return fmt.Errorf("coprocessor: decode row: truncated decimal for column %d", id)
			}
			_, dec, err := codec.DecodeDecimalAscending(data[:l])
			if err != nil {
				return fmt.Errorf("coprocessor: decode row: column %d: %w", id, err)
			}
			data = data[l:]
			out[int64(id)] = Datum{Kind: DatumDecimal, D: dec}
		default:
			return fmt.Errorf("coprocessor: decode row: unsupported datum kind %d for column %d", kind, id)
		}
	}
	return nil
}
