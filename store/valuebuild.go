// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package store

import "encoding/binary"

// ScalarU64 builds a ValueScalar MetaValue for an unsigned integer element
// type (U8/U16/U32/U64).
func ScalarU64(t ElemType, v uint64) MetaValue {
	return MetaValue{Kind: ValueScalar, ElemType: t, Scalar: ScalarUnion{U64: v}}
}

// ScalarI64 builds a ValueScalar MetaValue for a signed integer element
// type (I8/I16/I32/I64), bit-reinterpreted into the union's U64 slot.
func ScalarI64(t ElemType, v int64) MetaValue {
	return MetaValue{Kind: ValueScalar, ElemType: t, Scalar: ScalarUnion{U64: uint64(v)}}
}

// ScalarF32Bits builds a ValueScalar MetaValue carrying raw float32 bits.
func ScalarF32Bits(bits uint32) MetaValue {
	return MetaValue{Kind: ValueScalar, ElemType: ElemF32Bits, Scalar: ScalarUnion{U64: uint64(bits)}}
}

// ScalarF64Bits builds a ValueScalar MetaValue carrying raw float64 bits.
func ScalarF64Bits(bits uint64) MetaValue {
	return MetaValue{Kind: ValueScalar, ElemType: ElemF64Bits, Scalar: ScalarUnion{U64: bits}}
}

// ScalarURational builds a ValueScalar MetaValue for an unsigned rational.
func ScalarURational(r URational) MetaValue {
	return MetaValue{Kind: ValueScalar, ElemType: ElemURational, Scalar: ScalarUnion{Rat: r}}
}

// ScalarSRational builds a ValueScalar MetaValue for a signed rational.
func ScalarSRational(r SRational) MetaValue {
	return MetaValue{Kind: ValueScalar, ElemType: ElemSRational, Scalar: ScalarUnion{SRat: r}}
}

// BytesValue interns raw into the arena and returns a ValueBytes MetaValue.
func (m *MetaStore) BytesValue(raw []byte) MetaValue {
	return MetaValue{Kind: ValueBytes, Bytes: m.arena.Append(raw)}
}

// TextValue interns s into the arena and returns a ValueText MetaValue.
func (m *MetaStore) TextValue(s string, enc TextEncoding) MetaValue {
	return MetaValue{Kind: ValueText, Text: m.arena.AppendString(s), Encoding: enc}
}

// ArrayU8 interns vals as a byte array and returns a ValueArray MetaValue.
func (m *MetaStore) ArrayU8(vals []uint8) MetaValue {
	return MetaValue{Kind: ValueArray, ElemType: ElemU8, Count: uint64(len(vals)), Raw: m.arena.Append(vals)}
}

// ArrayU16 interns vals (written in the given byte order; readers must know
// the producing decoder's byte order, exactly like a raw TIFF value array)
// and returns a ValueArray MetaValue.
func (m *MetaStore) ArrayU16(vals []uint16, order binary.ByteOrder) MetaValue {
	raw := make([]byte, len(vals)*2)
	for i, v := range vals {
		order.PutUint16(raw[i*2:], v)
	}
	return MetaValue{Kind: ValueArray, ElemType: ElemU16, Count: uint64(len(vals)), Raw: m.arena.Append(raw)}
}

// ArrayU32 interns vals and returns a ValueArray MetaValue.
func (m *MetaStore) ArrayU32(vals []uint32, order binary.ByteOrder) MetaValue {
	raw := make([]byte, len(vals)*4)
	for i, v := range vals {
		order.PutUint32(raw[i*4:], v)
	}
	return MetaValue{Kind: ValueArray, ElemType: ElemU32, Count: uint64(len(vals)), Raw: m.arena.Append(raw)}
}

// ArrayI32 interns vals and returns a ValueArray MetaValue.
func (m *MetaStore) ArrayI32(vals []int32, order binary.ByteOrder) MetaValue {
	u := make([]uint32, len(vals))
	for i, v := range vals {
		u[i] = uint32(v)
	}
	v := m.ArrayU32(u, order)
	v.ElemType = ElemI32
	return v
}

// ArrayF32Bits interns raw float32-bits vals and returns a ValueArray
// MetaValue.
func (m *MetaStore) ArrayF32Bits(vals []uint32, order binary.ByteOrder) MetaValue {
	v := m.ArrayU32(vals, order)
	v.ElemType = ElemF32Bits
	return v
}

// ArrayF64Bits interns raw float64-bits vals and returns a ValueArray
// MetaValue.
func (m *MetaStore) ArrayF64Bits(vals []uint64, order binary.ByteOrder) MetaValue {
	raw := make([]byte, len(vals)*8)
	for i, v := range vals {
		order.PutUint64(raw[i*8:], v)
	}
	return MetaValue{Kind: ValueArray, ElemType: ElemF64Bits, Count: uint64(len(vals)), Raw: m.arena.Append(raw)}
}

// ReadArrayU16 decodes a ValueArray of ElemU16 back into a slice.
func (m *MetaStore) ReadArrayU16(v MetaValue, order binary.ByteOrder) []uint16 {
	raw := m.arena.Span(v.Raw)
	out := make([]uint16, v.Count)
	for i := range out {
		out[i] = order.Uint16(raw[i*2:])
	}
	return out
}

// ReadArrayU32 decodes a ValueArray of ElemU32 back into a slice.
func (m *MetaStore) ReadArrayU32(v MetaValue, order binary.ByteOrder) []uint32 {
	raw := m.arena.Span(v.Raw)
	out := make([]uint32, v.Count)
	for i := range out {
		out[i] = order.Uint32(raw[i*4:])
	}
	return out
}

// ReadArrayU8 decodes a ValueArray of ElemU8 back into a slice.
func (m *MetaStore) ReadArrayU8(v MetaValue) []uint8 {
	return append([]uint8(nil), m.arena.Span(v.Raw)...)
}
