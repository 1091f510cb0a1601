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

import "encoding/binary"

// signMask flips the sign bit of a two's-complement int64 so that its
// big-endian byte encoding sorts in numeric order: negative numbers
// (high bit 1) map below positive numbers (high bit 0) once flipped.
const signMask = uint64(1) << 63

// EncodeUintAscending appends u's 8-byte big-endian encoding to b.
// Big-endian unsigned integers already sort byte-for-byte in numeric
// order, so no transform is needed.
func EncodeUintAscending(b []byte, u uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], u)
	return append(b, buf[:]...)
}

// DecodeUintAscending reads an 8-byte big-endian uint64 from the front
// of b, returning the remaining bytes.
func DecodeUintAscending(b []byte) ([]byte, uint64, error) {
	if len(b) < 8 {
		return nil, 0, ErrKeyLength
	}
	return b[8:], binary.BigEndian.Uint64(b[:8]), nil
}

// EncodeIntAscending appends i's memcomparable encoding to b: the sign
// bit is flipped so two's-complement ordering becomes big-endian byte
// ordering.
func EncodeIntAscending(b []byte, i int64) []byte {
	return EncodeUintAscending(b, uint64(i)^signMask)
}

// DecodeIntAscending reads a memcomparable-encoded int64 from the front
// of b, returning the remaining bytes.
func DecodeIntAscending(b []byte) ([]byte, int64, error) {
	rest, u, err := DecodeUintAscending(b)
	if err != nil {
		return nil, 0, err
	}
	return rest, int64(u ^ signMask), nil
}
