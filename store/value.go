// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package store

// ElemType names the scalar element type carried by a Scalar or Array
// value. Rationals and floats are stored as bits/pairs rather than boxed,
// per the "dynamic value typing" design note: arrays are a single length
// plus an element-typed slice into the arena, never per-element boxing.
type ElemType uint8

const (
	ElemNone ElemType = iota
	ElemU8
	ElemI8
	ElemU16
	ElemI16
	ElemU32
	ElemI32
	ElemU64
	ElemI64
	ElemF32Bits
	ElemF64Bits
	ElemURational
	ElemSRational
)

// Size returns the fixed wire width of one element, or 0 if variable
// (there are none variable in this set; kept symmetrical with the TIFF
// type-size table in spec §4.5).
func (t ElemType) Size() int {
	switch t {
	case ElemU8, ElemI8:
		return 1
	case ElemU16, ElemI16:
		return 2
	case ElemU32, ElemI32, ElemF32Bits:
		return 4
	case ElemU64, ElemI64, ElemF64Bits, ElemURational, ElemSRational:
		return 8
	default:
		return 0
	}
}

// URational is an unsigned rational pair, stored raw (spec 3.1: {num,den}).
type URational struct {
	Num, Den uint32
}

// SRational is a signed rational pair.
type SRational struct {
	Num, Den int32
}

// TextEncoding names how a Text value's bytes should be interpreted.
type TextEncoding uint8

const (
	TextUnknown TextEncoding = iota
	TextAscii
	TextUtf8
	TextUtf16LE
	TextUtf16BE
)

// ValueKind discriminates MetaValue's tagged union.
type ValueKind uint8

const (
	ValueEmpty ValueKind = iota
	ValueScalar
	ValueArray
	ValueBytes
	ValueText
)

// ScalarUnion is an in-line union over every scalar payload type a decoded
// tag can carry. Exactly one field is meaningful, selected by the owning
// MetaValue's ElemType.
type ScalarUnion struct {
	U64 uint64 // backs U8/U16/U32/U64 and, bit-reinterpreted, I8/I16/I32/I64/F32Bits/F64Bits
	Rat URational
	SRat SRational
}

// AsI64 reinterprets U64 as the signed counterpart; callers select this via
// ElemType.
func (s ScalarUnion) AsI64() int64 { return int64(s.U64) }

// MetaValue is the tagged union an Entry carries, per spec §3.1.
type MetaValue struct {
	Kind ValueKind

	// ValueScalar
	ElemType ElemType
	Scalar   ScalarUnion

	// ValueArray: raw element bytes, in the byte order the producing
	// decoder passed, living in the arena, Count elements of ElemType each.
	Count uint64
	Raw   ByteSpan

	// ValueBytes
	Bytes ByteSpan

	// ValueText
	Text     ByteSpan
	Encoding TextEncoding
}

// EmptyValue is the canonical Empty MetaValue.
var EmptyValue = MetaValue{Kind: ValueEmpty}
