// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package bytesreader provides bounds-checked reads of fixed-width
// big-/little-endian integers over a borrowed byte slice.
//
// Every function here returns ok=false instead of panicking when the read
// would cross the end of the slice; callers never need to pre-validate
// offsets themselves.
package bytesreader

// U8 reads a single byte at off.
func U8(b []byte, off int) (uint8, bool) {
	if off < 0 || off+1 > len(b) {
		return 0, false
	}
	return b[off], true
}

// I8 reads a signed byte at off.
func I8(b []byte, off int) (int8, bool) {
	v, ok := U8(b, off)
	return int8(v), ok
}

// U16BE reads a big-endian uint16 at off.
func U16BE(b []byte, off int) (uint16, bool) {
	if off < 0 || off+2 > len(b) {
		return 0, false
	}
	return uint16(b[off])<<8 | uint16(b[off+1]), true
}

// U16LE reads a little-endian uint16 at off.
func U16LE(b []byte, off int) (uint16, bool) {
	if off < 0 || off+2 > len(b) {
		return 0, false
	}
	return uint16(b[off]) | uint16(b[off+1])<<8, true
}

// I16BE reads a big-endian int16 at off.
func I16BE(b []byte, off int) (int16, bool) {
	v, ok := U16BE(b, off)
	return int16(v), ok
}

// I16LE reads a little-endian int16 at off.
func I16LE(b []byte, off int) (int16, bool) {
	v, ok := U16LE(b, off)
	return int16(v), ok
}

// U32BE reads a big-endian uint32 at off.
func U32BE(b []byte, off int) (uint32, bool) {
	if off < 0 || off+4 > len(b) {
		return 0, false
	}
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3]), true
}

// U32LE reads a little-endian uint32 at off.
func U32LE(b []byte, off int) (uint32, bool) {
	if off < 0 || off+4 > len(b) {
		return 0, false
	}
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24, true
}

// I32BE reads a big-endian int32 at off.
func I32BE(b []byte, off int) (int32, bool) {
	v, ok := U32BE(b, off)
	return int32(v), ok
}

// I32LE reads a little-endian int32 at off.
func I32LE(b []byte, off int) (int32, bool) {
	v, ok := U32LE(b, off)
	return int32(v), ok
}

// U64BE reads a big-endian uint64 at off.
func U64BE(b []byte, off int) (uint64, bool) {
	if off < 0 || off+8 > len(b) {
		return 0, false
	}
	hi, _ := U32BE(b, off)
	lo, _ := U32BE(b, off+4)
	return uint64(hi)<<32 | uint64(lo), true
}

// U64LE reads a little-endian uint64 at off.
func U64LE(b []byte, off int) (uint64, bool) {
	if off < 0 || off+8 > len(b) {
		return 0, false
	}
	lo, _ := U32LE(b, off)
	hi, _ := U32LE(b, off+4)
	return uint64(hi)<<32 | uint64(lo), true
}

// I64BE reads a big-endian int64 at off.
func I64BE(b []byte, off int) (int64, bool) {
	v, ok := U64BE(b, off)
	return int64(v), ok
}

// I64LE reads a little-endian int64 at off.
func I64LE(b []byte, off int) (int64, bool) {
	v, ok := U64LE(b, off)
	return int64(v), ok
}

// F32BitsBE reads a big-endian IEEE-754 single at off, returning the raw bits.
func F32BitsBE(b []byte, off int) (uint32, bool) {
	return U32BE(b, off)
}

// F32BitsLE reads a little-endian IEEE-754 single at off, returning the raw bits.
func F32BitsLE(b []byte, off int) (uint32, bool) {
	return U32LE(b, off)
}

// F64BitsBE reads a big-endian IEEE-754 double at off, returning the raw bits.
func F64BitsBE(b []byte, off int) (uint64, bool) {
	return U64BE(b, off)
}

// F64BitsLE reads a little-endian IEEE-754 double at off, returning the raw bits.
func F64BitsLE(b []byte, off int) (uint64, bool) {
	return U64LE(b, off)
}

// Bytes returns b[off:off+n], bounds-checked.
func Bytes(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off+n > len(b) {
		return nil, false
	}
	return b[off : off+n], true
}

// InBounds reports whether [off, off+n) fits inside a slice of length size.
// This is the single check every decoder funnels through (spec invariant:
// offset+length <= input.len() checked on the actual receiving slice).
func InBounds(size, off, n int) bool {
	if off < 0 || n < 0 {
		return false
	}
	if off > size {
		return false
	}
	// Avoid overflow: off and n are both already bounded by int range since
	// they derive from slice lengths/offsets seen so far.
	return off+n >= off && off+n <= size
}

// Half2Float32Bits expands an IEEE-754 half-precision (binary16) value into
// single-precision (binary32) bits, per the standard exponent/mantissa
// widening formula (used by the JUMBF/CBOR decoder for major-7 half floats).
func Half2Float32Bits(h uint16) uint32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h&0x7c00) >> 10
	mant := uint32(h & 0x03ff)

	switch exp {
	case 0:
		if mant == 0 {
			return sign
		}
		// Subnormal half -> normalize into single precision.
		e := -1
		for mant&0x0400 == 0 {
			mant <<= 1
			e++
		}
		mant &= 0x03ff
		exp32 := uint32(127-15-e) << 23
		return sign | exp32 | (mant << 13)
	case 0x1f:
		// Inf/NaN.
		return sign | 0x7f800000 | (mant << 13)
	default:
		exp32 := (exp - 15 + 127) << 23
		return sign | exp32 | (mant << 13)
	}
}
