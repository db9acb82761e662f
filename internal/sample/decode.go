// SPDX-License-Identifier: MIT
package sample

import (
	"encoding/binary"
	"math"
)

var native = binary.NativeEndian

// Count returns the number of whole elements in raw. Trailing bytes that do not
// form a complete element are not counted.
func Count(raw []byte, enc Encoding) int {
	w := enc.Width()
	if w == 0 {
		return 0
	}
	return len(raw) / w
}

// At decodes element i of raw. The caller guarantees i < Count(raw, enc);
// unsupported encodings return 0.
func At(raw []byte, enc Encoding, i int) float64 {
	switch enc {
	case U8:
		return decodeU8(raw[i:])
	case S8:
		return decodeS8(raw[i:])
	case U16:
		return decodeU16(raw[i*2:])
	case S16:
		return decodeS16(raw[i*2:])
	case U32:
		return decodeU32(raw[i*4:])
	case S32:
		return decodeS32(raw[i*4:])
	case U64:
		return decodeU64(raw[i*8:])
	case S64:
		return decodeS64(raw[i*8:])
	case F32:
		return decodeF32(raw[i*4:])
	case F64:
		return decodeF64(raw[i*8:])
	case None, B1, B2, B3, B4:
		return 0
	default:
		return 0
	}
}

// Decode appends every whole element of raw to dst and returns the extended
// slice. No allocation happens when dst has enough spare capacity.
func Decode(dst []float64, raw []byte, enc Encoding) []float64 {
	n := Count(raw, enc)
	for i := range n {
		dst = append(dst, At(raw, enc, i))
	}
	return dst
}

func decodeU8(b []byte) float64  { return float64(b[0]) }
func decodeS8(b []byte) float64  { return float64(int8(b[0])) }
func decodeU16(b []byte) float64 { return float64(native.Uint16(b)) }
func decodeS16(b []byte) float64 { return float64(int16(native.Uint16(b))) }
func decodeU32(b []byte) float64 { return float64(native.Uint32(b)) }
func decodeS32(b []byte) float64 { return float64(int32(native.Uint32(b))) }
func decodeU64(b []byte) float64 { return float64(native.Uint64(b)) }
func decodeS64(b []byte) float64 { return float64(int64(native.Uint64(b))) }
func decodeF32(b []byte) float64 { return float64(math.Float32frombits(native.Uint32(b))) }
func decodeF64(b []byte) float64 { return math.Float64frombits(native.Uint64(b)) }

// Put encodes v as element i of dst, converting with Go's numeric conversion
// rules (integers truncate toward zero). It is the inverse of At for values
// representable in the encoding and is used by synthetic sources.
func Put(dst []byte, enc Encoding, i int, v float64) {
	switch enc {
	case U8:
		dst[i] = uint8(v)
	case S8:
		dst[i] = uint8(int8(v))
	case U16:
		native.PutUint16(dst[i*2:], uint16(v))
	case S16:
		native.PutUint16(dst[i*2:], uint16(int16(v)))
	case U32:
		native.PutUint32(dst[i*4:], uint32(v))
	case S32:
		native.PutUint32(dst[i*4:], uint32(int32(v)))
	case U64:
		native.PutUint64(dst[i*8:], uint64(v))
	case S64:
		native.PutUint64(dst[i*8:], uint64(int64(v)))
	case F32:
		native.PutUint32(dst[i*4:], math.Float32bits(float32(v)))
	case F64:
		native.PutUint64(dst[i*8:], math.Float64bits(v))
	}
}
