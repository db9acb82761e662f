// SPDX-License-Identifier: MIT
/*
Package sample converts raw fieldbus bytes into float64 samples.

Every element encoding is a member of a closed enumeration. Decoding is a plain
switch over that enumeration, one conversion per variant, so the per-sample
path has no dynamic dispatch and no allocation:

	n := sample.Count(raw, enc)
	for i := range n {
		v := sample.At(raw, enc, i)
		...
	}

Bytes are reinterpreted in the host's native byte order and widened to float64
without clamping. NaN or out-of-range bit patterns pass through unchanged.
*/
package sample

import (
	"fmt"
	"strings"
)

// Encoding identifies the binary layout of one element in a raw data span.
type Encoding uint8

const (
	None Encoding = iota
	B1            // bit-packed, unsupported
	B2            // bit-packed, unsupported
	B3            // bit-packed, unsupported
	B4            // bit-packed, unsupported
	U8
	S8
	U16
	S16
	U32
	S32
	U64
	S64
	F32
	F64
)

var encodingNames = [...]string{
	None: "none",
	B1:   "b1",
	B2:   "b2",
	B3:   "b3",
	B4:   "b4",
	U8:   "u8",
	S8:   "s8",
	U16:  "u16",
	S16:  "s16",
	U32:  "u32",
	S32:  "s32",
	U64:  "u64",
	S64:  "s64",
	F32:  "f32",
	F64:  "f64",
}

// String returns the lower-case short name of the encoding.
func (e Encoding) String() string {
	if int(e) < len(encodingNames) {
		return encodingNames[e]
	}
	return fmt.Sprintf("encoding(%d)", uint8(e))
}

// Width returns the element size in bytes. Unsupported and unknown encodings
// have width 0.
func (e Encoding) Width() int {
	switch e {
	case U8, S8:
		return 1
	case U16, S16:
		return 2
	case U32, S32, F32:
		return 4
	case U64, S64, F64:
		return 8
	default:
		return 0
	}
}

// Supported reports whether spans of this encoding decode to any values.
func (e Encoding) Supported() bool {
	return e.Width() > 0
}

// ParseEncoding converts a name (case-insensitive) to an Encoding. Besides the
// short names it accepts the fieldbus style aliases "U16", "S32", "F64", ...
// with an optional "EC_" prefix.
func ParseEncoding(name string) (Encoding, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "ecmc_")
	n = strings.TrimPrefix(n, "ec_")
	for i, s := range encodingNames {
		if s == n {
			return Encoding(i), nil
		}
	}
	return None, fmt.Errorf("unknown sample encoding: '%s'", name)
}
