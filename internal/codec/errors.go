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

// Package codec implements the memcomparable key encoding shared by
// every local and user key this node writes: prefixed key spaces for
// raft log/state, region meta, and table rows/indexes, plus the
// ordered encoding of integers, bytes, and decimals that lets RocksDB's
// natural byte-order iteration double as a semantic sort order.
package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyLength is returned when a memcomparable-encoded byte string
	// does not end on a group boundary.
	ErrKeyLength = errors.New("codec: bad format key (length)")
	// ErrKeyPadding is returned when a group's padding bytes are not
	// all zero, or its marker byte is inconsistent with its position.
	ErrKeyPadding = errors.New("codec: bad format key (padding)")
)

// InvalidDataTypeError is returned by decimal/number decoding when the
// encoded tag byte does not match the requested type.
type InvalidDataTypeError struct {
	Reason string
}

func (e *InvalidDataTypeError) Error() string {
	return fmt.Sprintf("codec: invalid data type: %s", e.Reason)
}

func errInvalidDataType(format string, args ...interface{}) error {
	return &InvalidDataTypeError{Reason: fmt.Sprintf(format, args...)}
}
