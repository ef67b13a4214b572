// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package exif decodes an EXIF/TIFF (classic or BigTIFF) byte stream into
// store.MetaStore entries, keyed by store.KeyExifTag (spec §4.5 "EXIF/TIFF
// decoder"). It walks IFD0, the thumbnail IFD (IFD1), and the ExifIFD/
// GPSInfo/Interoperability/SubIFD pointer chain, with a bounded visited-set
// to guard against an IFD cycle pointing back at itself.
//
// Grounded on the teacher's metadecoder_exif.go tag loop (tag/type/count/
// value-or-offset, the IFD-pointer recursion via exifIFDPointers, the
// inline-vs-offset four/eight-byte threshold) but rebuilt against
// bytesreader instead of a seekable io.Reader, since this package has no
// stream of its own — it decodes a caller-owned byte slice in one pass.
package exif

import (
	"encoding/binary"
	"strconv"

	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/store"
)

const (
	tagExifIFD    = 0x8769
	tagGPSIFD     = 0x8825
	tagInteropIFD = 0xa005
	tagSubIFD     = 0x014a
	tagPrintIM    = 0xc4a5
	tagGeoKeyDir  = 0x87af
)

const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
	typeIFD       = 13
	typeLong8     = 16
	typeSLong8    = 17
	typeIFD8      = 18
)

type header struct {
	big   bool
	u16   func([]byte, int) (uint16, bool)
	u32   func([]byte, int) (uint32, bool)
	u64   func([]byte, int) (uint64, bool)
	order binary.ByteOrder
}

// Decode parses an EXIF/TIFF stream and records one entry per tag
// encountered under block into m, returning the merged outcome status.
// PrintIM and GeoKeyDirectory tags are recorded as their decoded
// PrintImField/GeotiffKey entries instead of an ExifTag entry; tags with an
// unknown type or an out-of-bounds value are skipped.
func Decode(m *store.MetaStore, block store.BlockID, data []byte) store.Status {
	if len(data) < 8 {
		return store.Unsupported
	}

	var h header
	switch {
	case data[0] == 'I' && data[1] == 'I':
		h.u16, h.u32, h.u64 = bytesreader.U16LE, bytesreader.U32LE, bytesreader.U64LE
		h.order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		h.u16, h.u32, h.u64 = bytesreader.U16BE, bytesreader.U32BE, bytesreader.U64BE
		h.order = binary.BigEndian
	default:
		return store.Unsupported
	}

	version, ok := h.u16(data, 2)
	if !ok {
		return store.Unsupported
	}

	var firstIFD uint64
	switch version {
	case 42:
		v, ok := h.u32(data, 4)
		if !ok {
			return store.Malformed
		}
		firstIFD = uint64(v)
	case 43:
		h.big = true
		offSize, ok1 := h.u16(data, 4)
		reserved, ok2 := h.u16(data, 6)
		if !ok1 || !ok2 || offSize != 8 || reserved != 0 {
			return store.Malformed
		}
		v, ok := h.u64(data, 8)
		if !ok {
			return store.Malformed
		}
		firstIFD = v
	default:
		return store.Unsupported
	}

	d := &decoder{m: m, block: block, data: data, h: h, visited: map[visitKey]bool{}}
	status := store.Ok
	const maxIFDs = 4096

	queue := []pendingIFD{{kind: kindIfd, index: 0, offset: firstIFD}}

	for len(queue) > 0 && len(d.visited) < maxIFDs {
		best := choosePending(queue)
		cur := queue[best]
		queue = append(queue[:best], queue[best+1:]...)

		key := visitKey{offset: cur.offset, kind: cur.kind}
		if d.visited[key] {
			continue
		}
		d.visited[key] = true

		name := ifdToken(cur.kind, cur.index)
		next, ptrs, st := d.decodeIFD(name, int(cur.offset))
		status = store.Merge(status, st)
		queue = append(queue, ptrs...)
		if cur.kind == kindIfd && next != 0 {
			queue = append(queue, pendingIFD{kind: kindIfd, index: cur.index + 1, offset: next})
		}
	}

	return status
}

// ifdKind discriminates the five IFD roles a pending task can carry (spec
// §4.5 "priority queue of pending IFDs"). Rank order below is
// ExifIfd > InteropIfd > GpsIfd > SubIfd > Ifd, lower rank popped first.
type ifdKind uint8

const (
	kindIfd ifdKind = iota
	kindExif
	kindInterop
	kindGps
	kindSub
)

func (k ifdKind) rank() int {
	switch k {
	case kindExif:
		return 0
	case kindInterop:
		return 1
	case kindGps:
		return 2
	case kindSub:
		return 3
	default:
		return 4
	}
}

// ifdToken renders the documented lowercase key convention used for
// store.MetaKeyView.Ifd: ifd<n>, exififd, gpsifd, interopifd, subifd<n>.
func ifdToken(kind ifdKind, index int) string {
	switch kind {
	case kindExif:
		return "exififd"
	case kindGps:
		return "gpsifd"
	case kindInterop:
		return "interopifd"
	case kindSub:
		return "subifd" + strconv.Itoa(index)
	default:
		return "ifd" + strconv.Itoa(index)
	}
}

type pendingIFD struct {
	kind   ifdKind
	index  int
	offset uint64
}

// choosePending returns the index of the highest-priority task in queue:
// lowest ifdKind.rank, ties broken by lower file offset.
func choosePending(queue []pendingIFD) int {
	best := 0
	for i := 1; i < len(queue); i++ {
		a, b := queue[i], queue[best]
		if a.kind.rank() < b.kind.rank() || (a.kind.rank() == b.kind.rank() && a.offset < b.offset) {
			best = i
		}
	}
	return best
}

// visitKey guards against IFD-pointer cycles. Keying by (offset, kind)
// rather than bare offset lets GpsIfd and InteropIfd alias the same file
// offset — a pattern some cameras produce — without tripping the guard,
// while still refusing to revisit a given (offset, kind) pair (spec §4.5,
// §8 property 5, §9 "Cyclic and aliased pointers").
type visitKey struct {
	offset uint64
	kind   ifdKind
}

type ifdPointer = pendingIFD

type decoder struct {
	m       *store.MetaStore
	block   store.BlockID
	data    []byte
	h       header
	visited map[visitKey]bool
}

func (d *decoder) decodeIFD(name string, off int) (nextIFD uint64, ptrs []ifdPointer, status store.Status) {
	entrySize := 12
	countW := 2
	valueWidth := 4
	if d.h.big {
		entrySize = 20
		countW = 8
		valueWidth = 8
	}

	var count uint64
	if d.h.big {
		c, ok := d.h.u64(d.data, off)
		if !ok {
			return 0, nil, store.Malformed
		}
		count = c
	} else {
		c, ok := d.h.u16(d.data, off)
		if !ok {
			return 0, nil, store.Malformed
		}
		count = uint64(c)
	}

	pos := off + countW
	order := uint32(0)

	for i := uint64(0); i < count; i++ {
		entryOff := pos + int(i)*entrySize
		tag, ok1 := d.h.u16(d.data, entryOff)
		typ, ok2 := d.h.u16(d.data, entryOff+2)
		if !ok1 || !ok2 {
			return 0, ptrs, store.Malformed
		}

		var cnt uint64
		if d.h.big {
			c, ok := d.h.u64(d.data, entryOff+4)
			if !ok {
				return 0, ptrs, store.Malformed
			}
			cnt = c
		} else {
			c, ok := d.h.u32(d.data, entryOff+4)
			if !ok {
				return 0, ptrs, store.Malformed
			}
			cnt = uint64(c)
		}

		valueFieldOff := entryOff + 8
		if d.h.big {
			valueFieldOff = entryOff + 12
		}

		sz := typeSize(typ)
		total := sz * cnt

		var valOff uint64
		inline := sz > 0 && total <= uint64(valueWidth)
		if inline {
			valOff = uint64(valueFieldOff)
		} else {
			if d.h.big {
				v, ok := d.h.u64(d.data, valueFieldOff)
				if !ok {
					return 0, ptrs, store.Malformed
				}
				valOff = v
			} else {
				v, ok := d.h.u32(d.data, valueFieldOff)
				if !ok {
					return 0, ptrs, store.Malformed
				}
				valOff = uint64(v)
			}
		}

		if sz == 0 {
			status = store.Merge(status, store.Unsupported)
			continue
		}
		if !bytesreader.InBounds(len(d.data), int(valOff), int(total)) {
			status = store.Merge(status, store.Malformed)
			continue
		}
		raw := d.data[valOff : valOff+total]

		switch tag {
		case tagExifIFD:
			ptrs = append(ptrs, ifdPointer{kind: kindExif, offset: readOffsetValue(d.h, raw)})
		case tagGPSIFD:
			ptrs = append(ptrs, ifdPointer{kind: kindGps, offset: readOffsetValue(d.h, raw)})
		case tagInteropIFD:
			ptrs = append(ptrs, ifdPointer{kind: kindInterop, offset: readOffsetValue(d.h, raw)})
		case tagSubIFD:
			for i, sub := range subIFDOffsets(d.h, raw, cnt) {
				ptrs = append(ptrs, ifdPointer{kind: kindSub, index: i, offset: sub})
			}
		case tagPrintIM:
			status = store.Merge(status, decodePrintIM(d.m, d.block, order, raw))
			order++
			continue
		case tagGeoKeyDir:
			status = store.Merge(status, decodeGeoKeys(d.m, d.block, order, raw, d.h.order))
			order++
			continue
		}

		val := d.buildValue(typ, cnt, raw)
		key := store.MetaKeyView{Kind: store.KeyExifTag, Ifd: name, Tag: tag}
		origin := store.Origin{OrderInBlock: order, WireFamily: store.WireFamilyTiff, WireCode: tag, WireCount: uint32(cnt)}
		d.m.AddEntry(d.block, key, val, origin, 0)
		order++
	}

	nextOff := pos + int(count)*entrySize
	if d.h.big {
		if v, ok := d.h.u64(d.data, nextOff); ok {
			nextIFD = v
		}
	} else {
		if v, ok := d.h.u32(d.data, nextOff); ok {
			nextIFD = uint64(v)
		}
	}
	return nextIFD, ptrs, status
}

func readOffsetValue(h header, raw []byte) uint64 {
	if h.big && len(raw) >= 8 {
		v, _ := h.u64(raw, 0)
		return v
	}
	if len(raw) >= 4 {
		v, _ := h.u32(raw, 0)
		return uint64(v)
	}
	return 0
}

// maxSubIFDsPerTag bounds how many SubIFDs tag 0x014A (count > 1) pushes
// into the pending queue (spec §4.5 "push up to 32 indexed SubIFD tasks").
const maxSubIFDsPerTag = 32

// subIFDOffsets reads up to maxSubIFDsPerTag offsets out of raw, the
// already bounds-checked value bytes for SubIFD tag 0x014A (cnt entries,
// each pointer-width wide: 4 bytes classic, 8 bytes BigTIFF).
func subIFDOffsets(h header, raw []byte, cnt uint64) []uint64 {
	n := cnt
	if n > maxSubIFDsPerTag {
		n = maxSubIFDsPerTag
	}
	width := 4
	if h.big {
		width = 8
	}
	out := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		off := int(i) * width
		if off+width > len(raw) {
			break
		}
		if h.big {
			v, ok := h.u64(raw, off)
			if !ok {
				break
			}
			out = append(out, v)
		} else {
			v, ok := h.u32(raw, off)
			if !ok {
				break
			}
			out = append(out, uint64(v))
		}
	}
	return out
}

func typeSize(typ uint16) uint64 {
	switch typ {
	case typeByte, typeASCII, typeSByte, typeUndefined:
		return 1
	case typeShort, typeSShort:
		return 2
	case typeLong, typeSLong, typeFloat, typeIFD:
		return 4
	case typeRational, typeSRational, typeDouble, typeLong8, typeSLong8, typeIFD8:
		return 8
	default:
		return 0
	}
}

func (d *decoder) buildValue(typ uint16, count uint64, raw []byte) store.MetaValue {
	order := d.h.order
	switch typ {
	case typeASCII:
		return d.m.TextValue(trimNulls(raw), store.TextAscii)
	case typeByte, typeSByte, typeUndefined:
		return d.m.BytesValue(raw)
	case typeShort:
		vals := readU16s(raw, order)
		if count == 1 {
			return store.ScalarU64(store.ElemU16, uint64(vals[0]))
		}
		return d.m.ArrayU16(vals, order)
	case typeSShort:
		vals := readU16s(raw, order)
		if count == 1 {
			return store.ScalarI64(store.ElemI16, int64(int16(vals[0])))
		}
		i16s := make([]int32, len(vals))
		for i, v := range vals {
			i16s[i] = int32(int16(v))
		}
		return d.m.ArrayI32(i16s, order)
	case typeLong, typeIFD:
		vals := readU32s(raw, order)
		if count == 1 {
			return store.ScalarU64(store.ElemU32, uint64(vals[0]))
		}
		return d.m.ArrayU32(vals, order)
	case typeSLong:
		vals := readU32s(raw, order)
		if count == 1 {
			return store.ScalarI64(store.ElemI32, int64(int32(vals[0])))
		}
		i32s := make([]int32, len(vals))
		for i, v := range vals {
			i32s[i] = int32(v)
		}
		return d.m.ArrayI32(i32s, order)
	case typeRational:
		if count == 1 && len(raw) >= 8 {
			num, _ := bytesreaderU32(raw, 0, order)
			den, _ := bytesreaderU32(raw, 4, order)
			return store.ScalarURational(store.URational{Num: num, Den: den})
		}
		return d.m.BytesValue(raw)
	case typeSRational:
		if count == 1 && len(raw) >= 8 {
			num, _ := bytesreaderU32(raw, 0, order)
			den, _ := bytesreaderU32(raw, 4, order)
			return store.ScalarSRational(store.SRational{Num: int32(num), Den: int32(den)})
		}
		return d.m.BytesValue(raw)
	case typeFloat:
		vals := readU32s(raw, order)
		if count == 1 {
			return store.ScalarF32Bits(vals[0])
		}
		return d.m.ArrayF32Bits(vals, order)
	case typeDouble:
		vals := readU64s(raw, order)
		if count == 1 {
			return store.ScalarF64Bits(vals[0])
		}
		return d.m.ArrayF64Bits(vals, order)
	default:
		return d.m.BytesValue(raw)
	}
}

func bytesreaderU32(b []byte, off int, order binary.ByteOrder) (uint32, bool) {
	if off+4 > len(b) {
		return 0, false
	}
	return order.Uint32(b[off : off+4]), true
}

func readU16s(raw []byte, order binary.ByteOrder) []uint16 {
	n := len(raw) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = order.Uint16(raw[i*2:])
	}
	return out
}

func readU32s(raw []byte, order binary.ByteOrder) []uint32 {
	n := len(raw) / 4
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = order.Uint32(raw[i*4:])
	}
	return out
}

func readU64s(raw []byte, order binary.ByteOrder) []uint64 {
	n := len(raw) / 8
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = order.Uint64(raw[i*8:])
	}
	return out
}

func trimNulls(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
