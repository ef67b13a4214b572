// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package exr decodes an OpenEXR file's magic number, version/flags word,
// and null-terminated attribute records (for every part, in a multipart
// file) into store.MetaStore entries keyed by store.KeyExrAttribute (spec
// §4.8 "OpenEXR header decoder").
//
// There is no teacher precedent for OpenEXR at all — bep-imagemeta only
// handles JPEG/PNG/WebP/TIFF — so this package is grounded directly on
// original_source's exr_decode.cc: the magic/version/flags validation, the
// "single zero byte = next part, double zero byte = end of file" multipart
// boundary convention, and the attribute-type-name dispatch table, rebuilt
// in Go against bytesreader instead of hand-rolled byte reads.
package exr

import (
	"encoding/binary"

	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/store"
)

const (
	magic            = 20000630
	versionMask      = 0x000000ff
	supportedVersion = 2
	flagTiled        = 0x00000200
	flagLongNames    = 0x00000400
	flagNonImage     = 0x00000800
	flagMultipart    = 0x00001000
	validFlags       = flagTiled | flagLongNames | flagNonImage | flagMultipart
)

// maxNameBytes bounds a single name/type string; OpenEXR's own "long names"
// flag raises the practical ceiling, but this guards against a corrupt
// file with no terminator at all.
const maxNameBytes = 1 << 16

// Decode parses the OpenEXR header starting at the file's first byte.
// Every part's attributes are recorded in their own block, created via
// newBlock (so the caller controls BlockInfo / block-id allocation), and
// Decode returns the merged outcome status.
func Decode(m *store.MetaStore, newBlock func() store.BlockID, data []byte) store.Status {
	if len(data) < 8 {
		return store.Unsupported
	}
	magicVal, ok1 := bytesreader.U32LE(data, 0)
	verFlags, ok2 := bytesreader.U32LE(data, 4)
	if !ok1 || !ok2 || magicVal != magic {
		return store.Unsupported
	}
	version := verFlags & versionMask
	if version != supportedVersion {
		return store.Unsupported
	}
	flagsOnly := verFlags &^ versionMask
	if flagsOnly&^uint32(validFlags) != 0 {
		return store.Malformed
	}
	multipart := flagsOnly&flagMultipart != 0

	offset := 8
	partIndex := uint32(0)
	block := newBlock()
	order := uint32(0)
	status := store.Ok

	for {
		if offset >= len(data) {
			return store.Merge(status, store.Malformed)
		}
		first := data[offset]
		offset++

		if first == 0 {
			if !multipart {
				return status
			}
			if offset >= len(data) {
				return store.Merge(status, store.Malformed)
			}
			next := data[offset]
			offset++
			if next == 0 {
				return status
			}
			partIndex++
			block = newBlock()
			order = 0

			n, st := parseAttribute(m, block, partIndex, data, &offset, next, order)
			status = store.Merge(status, st)
			if st == store.Malformed || st == store.LimitExceeded {
				return status
			}
			order += n
			continue
		}

		n, st := parseAttribute(m, block, partIndex, data, &offset, first, order)
		status = store.Merge(status, st)
		if st == store.Malformed || st == store.LimitExceeded {
			return status
		}
		order += n
	}
}

// parseAttribute reads one attribute record, whose name's first byte has
// already been consumed as firstNameByte, and records it into block.
func parseAttribute(m *store.MetaStore, block store.BlockID, partIndex uint32, data []byte, offset *int, firstNameByte byte, order uint32) (uint32, store.Status) {
	name, ok := readCStrWithFirst(data, offset, firstNameByte, maxNameBytes)
	if !ok {
		return 0, store.Malformed
	}
	typeName, ok := readCStr(data, offset, maxNameBytes)
	if !ok {
		return 0, store.Malformed
	}
	size, ok := bytesreader.U32LE(data, *offset)
	if !ok {
		return 0, store.Malformed
	}
	*offset += 4
	if !bytesreader.InBounds(len(data), *offset, int(size)) {
		return 0, store.Malformed
	}
	valueBytes := data[*offset : *offset+int(size)]
	*offset += int(size)

	val := decodeValue(m, typeName, valueBytes)
	key := store.MetaKeyView{Kind: store.KeyExrAttribute, PartIndex: partIndex, Name: name}
	origin := store.Origin{OrderInBlock: order, WireFamily: store.WireFamilyExr, WireCode: typeCode(typeName), WireCount: size}
	m.AddEntry(block, key, val, origin, 0)
	return 1, store.Ok
}

func readCStr(data []byte, offset *int, maxBytes int) (string, bool) {
	if *offset >= len(data) {
		return "", false
	}
	first := data[*offset]
	*offset++
	return readCStrWithFirst(data, offset, first, maxBytes)
}

func readCStrWithFirst(data []byte, offset *int, first byte, maxBytes int) (string, bool) {
	if first == 0 {
		return "", false
	}
	buf := []byte{first}
	for {
		if *offset >= len(data) {
			return "", false
		}
		b := data[*offset]
		*offset++
		if b == 0 {
			break
		}
		buf = append(buf, b)
		if len(buf) > maxBytes {
			return "", false
		}
	}
	return string(buf), true
}

var typeCodes = map[string]uint16{
	"box2i": 1, "box2f": 2, "bytes": 3, "chlist": 4, "chromaticities": 5,
	"compression": 6, "double": 7, "envmap": 8, "float": 9, "floatvector": 10,
	"int": 11, "keycode": 12, "lineOrder": 13, "m33f": 14, "m33d": 15,
	"m44f": 16, "m44d": 17, "preview": 18, "rational": 19, "string": 20,
	"stringvector": 21, "tiledesc": 22, "timecode": 23, "v2i": 24, "v2f": 25,
	"v2d": 26, "v3i": 27, "v3f": 28, "v3d": 29, "deepImageState": 30,
}

const typeCodeOpaque = 31

func typeCode(typeName string) uint16 {
	if c, ok := typeCodes[typeName]; ok {
		return c
	}
	return typeCodeOpaque
}

func decodeValue(m *store.MetaStore, typeName string, raw []byte) store.MetaValue {
	order := binary.LittleEndian
	switch {
	case typeName == "int" && len(raw) == 4:
		v, _ := bytesreader.U32LE(raw, 0)
		return store.ScalarI64(store.ElemI32, int64(int32(v)))
	case typeName == "float" && len(raw) == 4:
		v, _ := bytesreader.U32LE(raw, 0)
		return store.ScalarF32Bits(v)
	case typeName == "double" && len(raw) == 8:
		v, _ := bytesreader.U64LE(raw, 0)
		return store.ScalarF64Bits(v)
	case (typeName == "compression" || typeName == "envmap" || typeName == "lineOrder" || typeName == "deepImageState") && len(raw) == 1:
		return store.ScalarU64(store.ElemU8, uint64(raw[0]))
	case typeName == "string":
		return m.TextValue(string(raw), classifyText(raw))
	case typeName == "rational" && len(raw) == 8:
		num, _ := bytesreader.U32LE(raw, 0)
		den, _ := bytesreader.U32LE(raw, 4)
		return store.ScalarSRational(store.SRational{Num: int32(num), Den: int32(den)})
	case typeName == "floatvector" && len(raw)%4 == 0:
		return m.ArrayF32Bits(readU32Array(raw, order), order)
	case (typeName == "box2i" || typeName == "v2i" || typeName == "v3i" || typeName == "keycode") && len(raw)%4 == 0:
		return m.ArrayI32(readI32Array(raw, order), order)
	case (typeName == "box2f" || typeName == "v2f" || typeName == "v3f" || typeName == "m33f" || typeName == "m44f" || typeName == "chromaticities") && len(raw)%4 == 0:
		return m.ArrayF32Bits(readU32Array(raw, order), order)
	case typeName == "timecode" && len(raw) == 8:
		return m.ArrayU32(readU32Array(raw, order), order)
	case (typeName == "v2d" || typeName == "v3d" || typeName == "m33d" || typeName == "m44d") && len(raw)%8 == 0:
		return m.ArrayF64Bits(readU64Array(raw, order), order)
	case typeName == "tiledesc" && len(raw) == 9:
		return m.ArrayU8(append([]uint8(nil), raw...))
	default:
		return m.BytesValue(raw)
	}
}

func classifyText(b []byte) store.TextEncoding {
	if len(b) == 0 {
		return store.TextUtf8
	}
	allASCII := true
	for _, c := range b {
		if c > 0x7f {
			allASCII = false
			break
		}
	}
	if allASCII {
		return store.TextAscii
	}
	return store.TextUtf8
}

func readU32Array(raw []byte, order binary.ByteOrder) []uint32 {
	n := len(raw) / 4
	out := make([]uint32, n)
	for i := range out {
		out[i] = order.Uint32(raw[i*4:])
	}
	return out
}

func readI32Array(raw []byte, order binary.ByteOrder) []int32 {
	n := len(raw) / 4
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(order.Uint32(raw[i*4:]))
	}
	return out
}

func readU64Array(raw []byte, order binary.ByteOrder) []uint64 {
	n := len(raw) / 8
	out := make([]uint64, n)
	for i := range out {
		out[i] = order.Uint64(raw[i*8:])
	}
	return out
}
