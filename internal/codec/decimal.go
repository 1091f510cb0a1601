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
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimal markers. negMarker < zeroMarker < posMarker so the first
// byte alone orders values across sign classes; everything after it
// only needs to order correctly within one sign class.
const (
	decNegMarker  = byte(0x09)
	decZeroMarker = byte(0x15)
	decPosMarker  = byte(0x21)

	digitTerminator = byte(0x00)
)

// EncodeDecimalAscending appends d's memcomparable encoding to b.
//
// A nonzero value is normalized to its significant digits (no leading
// or trailing zero) and an exponent such that value = 0.<digits> *
// 10^exp, i.e. scientific notation with the mantissa in [0.1, 1). The
// exponent is encoded memcomparable-ascending, followed by one byte
// per digit (offset by +1 so 0x00 can serve as an unambiguous
// terminator that sorts below every digit, making a prefix of a
// longer digit string compare lower, matching 0.12 < 0.123). Negative
// values store the bitwise complement of that same tail after a
// distinct marker, which exactly reverses the tail's ordering so that
// larger-magnitude negatives sort lower.
func EncodeDecimalAscending(b []byte, d decimal.Decimal) []byte {
	if d.IsZero() {
		return append(b, decZeroMarker)
	}

	neg := d.Sign() < 0
	digits, exp := canonicalDigits(d)

	tail := make([]byte, 0, 8+len(digits)+1)
	tail = EncodeIntAscending(tail, int64(exp))
	for i := 0; i < len(digits); i++ {
		tail = append(tail, digits[i]-'0'+1)
	}
	tail = append(tail, digitTerminator)

	if !neg {
		b = append(b, decPosMarker)
		return append(b, tail...)
	}

	b = append(b, decNegMarker)
	for _, bt := range tail {
		b = append(b, ^bt)
	}
	return b
}

// canonicalDigits returns d's significant digits (sign stripped,
// trailing zeros stripped) and the scientific-notation exponent such
// that the value equals 0.<digits> * 10^exp.
func canonicalDigits(d decimal.Decimal) (string, int32) {
	coeff := new(big.Int).Abs(d.Coefficient())
	exp := d.Exponent()

	s := coeff.String()
	trimmed := strings.TrimRight(s, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	stripped := len(s) - len(trimmed)
	exp += int32(stripped)

	return trimmed, exp + int32(len(trimmed))
}

// DecodeDecimalAscending reads one memcomparable-encoded decimal from
// the front of b, returning the decoded value and what remains of b.
func DecodeDecimalAscending(b []byte) ([]byte, decimal.Decimal, error) {
	if len(b) == 0 {
		return nil, decimal.Decimal{}, ErrKeyLength
	}

	marker := b[0]
	rest := b[1:]

	switch marker {
	case decZeroMarker:
		return rest, decimal.Zero, nil
	case decPosMarker, decNegMarker:
		tail := rest
		if marker == decNegMarker {
			tail = make([]byte, len(rest))
			for i, bt := range rest {
				tail[i] = ^bt
			}
		}

		tail, exp, err := DecodeIntAscending(tail)
		if err != nil {
			return nil, decimal.Decimal{}, err
		}

		var digits []byte
		consumed := 0
		for {
			if len(tail) == 0 {
				return nil, decimal.Decimal{}, ErrKeyLength
			}
			v := tail[0]
			tail = tail[1:]
			consumed++
			if v == digitTerminator {
				break
			}
			if v > 10 {
				return nil, decimal.Decimal{}, errInvalidDataType("decimal digit byte out of range: %d", v)
			}
			digits = append(digits, '0'+(v-1))
		}

		consumedTotal := 8 + consumed
		remaining := rest[consumedTotal:]

		coeff, ok := new(big.Int).SetString(string(digits), 10)
		if !ok {
			return nil, decimal.Decimal{}, errInvalidDataType("decimal digits not numeric: %q", digits)
		}
		// value = 0.<digits> * 10^exp = digits * 10^(exp - len(digits))
		dec := decimal.NewFromBigInt(coeff, exp-int32(len(digits)))
		if marker == decNegMarker {
			dec = dec.Neg()
		}
		return remaining, dec, nil
	default:
		return nil, decimal.Decimal{}, errInvalidDataType("unknown decimal marker: %#x", marker)
	}
}
