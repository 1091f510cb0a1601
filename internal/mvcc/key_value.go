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

import "encoding/binary"

// LockType is the kind of intent a lock CF record records.
type LockType uint8

const (
	LockPut LockType = iota
	LockDelete
	LockLock
)

// WriteType mirrors LockType in the write CF, plus Rollback, which has
// no corresponding lock (it is written directly on abort).
type WriteType uint8

const (
	WriteTypePut WriteType = iota
	WriteTypeDelete
	WriteTypeLock
	WriteTypeRollback
)

// shortValueThreshold is the largest value inlined into the lock or
// write record itself; larger values are written to the default CF
// keyed by start_ts instead.
const shortValueThreshold = 256

// Lock is the lock CF record for a key with an in-flight transaction.
// At most one exists per key at a time.
type Lock struct {
	Type       LockType
	Primary    []byte
	StartTS    uint64
	TTL        uint64
	ShortValue []byte // nil when the value was written to the default CF instead
}

// IsPrimary reports whether key is this lock's primary key.
func (l *Lock) IsPrimary(key []byte) bool {
	return string(l.Primary) == string(key)
}

// Encode serializes a Lock. Format:
// [type:1][startTS:8][ttl:8][primaryLen:4][shortValueLen:4][primary][shortValue]
func (l *Lock) Encode() []byte {
	size := 1 + 8 + 8 + 4 + 4 + len(l.Primary) + len(l.ShortValue)
	buf := make([]byte, size)

	offset := 0
	buf[offset] = byte(l.Type)
	offset++
	binary.BigEndian.PutUint64(buf[offset:], l.StartTS)
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], l.TTL)
	offset += 8
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(l.Primary)))
	offset += 4
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(l.ShortValue)))
	offset += 4
	offset += copy(buf[offset:], l.Primary)
	copy(buf[offset:], l.ShortValue)

	return buf
}

// DecodeLock deserializes a Lock produced by Lock.Encode.
func DecodeLock(data []byte) (*Lock, error) {
	if len(data) < 25 {
		return nil, ErrInvalidData
	}

	l := &Lock{Type: LockType(data[0])}
	offset := 1
	l.StartTS = binary.BigEndian.Uint64(data[offset:])
	offset += 8
	l.TTL = binary.BigEndian.Uint64(data[offset:])
	offset += 8
	primaryLen := int(binary.BigEndian.Uint32(data[offset:]))
	offset += 4
	shortValueLen := int(binary.BigEndian.Uint32(data[offset:]))
	offset += 4

	if len(data) < offset+primaryLen+shortValueLen {
		return nil, ErrInvalidData
	}

	if primaryLen > 0 {
		l.Primary = make([]byte, primaryLen)
		copy(l.Primary, data[offset:offset+primaryLen])
	}
	offset += primaryLen

	if shortValueLen > 0 {
		l.ShortValue = make([]byte, shortValueLen)
		copy(l.ShortValue, data[offset:offset+shortValueLen])
	}

	return l, nil
}

// WriteRecord is the write CF record committing (or rolling back) one
// version of a key.
type WriteRecord struct {
	Type       WriteType
	StartTS    uint64
	ShortValue []byte // nil for Delete/Lock/Rollback, or when value lives in the default CF
}

// Encode serializes a WriteRecord. Format:
// [type:1][startTS:8][shortValueLen:4][shortValue]
func (w *WriteRecord) Encode() []byte {
	buf := make([]byte, 1+8+4+len(w.ShortValue))

	offset := 0
	buf[offset] = byte(w.Type)
	offset++
	binary.BigEndian.PutUint64(buf[offset:], w.StartTS)
	offset += 8
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(w.ShortValue)))
	offset += 4
	copy(buf[offset:], w.ShortValue)

	return buf
}

// DecodeWriteRecord deserializes a WriteRecord produced by
// WriteRecord.Encode.
func DecodeWriteRecord(data []byte) (*WriteRecord, error) {
	if len(data) < 13 {
		return nil, ErrInvalidData
	}

	w := &WriteRecord{Type: WriteType(data[0])}
	offset := 1
	w.StartTS = binary.BigEndian.Uint64(data[offset:])
	offset += 8
	shortValueLen := int(binary.BigEndian.Uint32(data[offset:]))
	offset += 4

	if len(data) < offset+shortValueLen {
		return nil, ErrInvalidData
	}
	if shortValueLen > 0 {
		w.ShortValue = make([]byte, shortValueLen)
		copy(w.ShortValue, data[offset:offset+shortValueLen])
	}

	return w, nil
}

// MutationType is the kind of write a transaction intends for a key,
// as proposed to Prewrite.
type MutationType uint8

const (
	MutationPut MutationType = iota
	MutationDelete
	MutationLock
)

// Mutation is one key's intended write within a transaction.
type Mutation struct {
	Type  MutationType
	Key   []byte
	Value []byte // unused for Delete/Lock
}

func (m Mutation) lockType() LockType {
	switch m.Type {
	case MutationDelete:
		return LockDelete
	case MutationLock:
		return LockLock
	default:
		return LockPut
	}
}

func lockTypeToWriteType(t LockType) WriteType {
	switch t {
	case LockDelete:
		return WriteTypeDelete
	case LockLock:
		return WriteTypeLock
	default:
		return WriteTypePut
	}
}

// Value is a resolved user value returned from Get/Scan/BatchGet: the
// raw key, its value (nil for a deleted key), and the commit_ts of
// the write record that produced it.
type Value struct {
	Key      []byte
	Value    []byte
	CommitTS uint64
	Deleted  bool
}
