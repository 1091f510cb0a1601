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

// encGroupSize is the chunk size memcomparable bytes encoding splits
// its input into; encMarker is the maximum value a group's trailing
// marker byte can take (a full, unpadded group).
const (
	encGroupSize = 8
	encMarker    = byte(0xFF)
	encPad       = byte(0x0)
)

var encPads = make([]byte, encGroupSize)

// EncodeBytesAscending appends data's memcomparable encoding to b.
// data is split into encGroupSize chunks, each followed by a marker
// byte of encMarker minus the chunk's padding count; the final chunk
// is always emitted even when len(data) is an exact multiple of
// encGroupSize; so that two encodings where one is a strict prefix of
// the other's plaintext still compare correctly (the shorter compares
// lower, as its first short or empty group carries a lower marker).
func EncodeBytesAscending(b, data []byte) []byte {
	dLen := len(data)
	for idx := 0; idx <= dLen; idx += encGroupSize {
		remain := dLen - idx
		padCount := 0
		if remain >= encGroupSize {
			b = append(b, data[idx:idx+encGroupSize]...)
		} else {
			padCount = encGroupSize - remain
			b = append(b, data[idx:]...)
			b = append(b, encPads[:padCount]...)
		}
		b = append(b, encMarker-byte(padCount))
	}
	return b
}

// DecodeBytesAscending reads one memcomparable-encoded byte string from
// the front of b, returning the decoded bytes and what remains of b.
func DecodeBytesAscending(b []byte) ([]byte, []byte, error) {
	data := make([]byte, 0, len(b))
	for {
		if len(b) < encGroupSize+1 {
			return nil, nil, ErrKeyLength
		}

		group := b[:encGroupSize]
		marker := b[encGroupSize]
		b = b[encGroupSize+1:]

		padCount := encMarker - marker
		if padCount > encGroupSize {
			return nil, nil, ErrKeyPadding
		}

		realGroupSize := encGroupSize - int(padCount)
		data = append(data, group[:realGroupSize]...)

		if padCount != 0 {
			for _, v := range group[realGroupSize:] {
				if v != 0 {
					return nil, nil, ErrKeyPadding
				}
			}
			break
		}
	}
	return b, data, nil
}
