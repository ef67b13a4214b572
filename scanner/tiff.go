// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package scanner

import (
	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/store"
)

const (
	tiffTagXMP        = 0x02bc
	tiffTagIptcIIM    = 0x83bb
	tiffTagPhotoshop  = 0x8649
	tiffTagICC        = 0x8773
	tiffTagMakerNote  = 0x927c
	tiffTagExifIFD    = 0x8769
	tiffTagGPSIFD     = 0x8825
	tiffTagInteropIFD = 0xa005
	tiffTagSubIFD     = 0x014a
)

type tiffHeader struct {
	bigEndian bool
	big       bool // BigTIFF (version 43)
	u16       func([]byte, int) (uint16, bool)
	u32       func([]byte, int) (uint32, bool)
	u64       func([]byte, int) (uint64, bool)
}

// ScanTIFF walks the IFD chain of a classic or BigTIFF stream (no revisit
// of an offset), emitting a ContainerBlockRef whenever it sees the XMP,
// IPTC-IIM, Photoshop IRB, or ICC tags, and recursing into
// ExifIFD/GPSInfo/Interop/SubIFD pointers to find the same tags nested
// there (spec §4.3 "TIFF / BigTIFF"). The MakerNote tag's value is
// bounds-checked, but no ContainerBlockRef is emitted for it.
func ScanTIFF(b []byte, out []ContainerBlockRef) ScanResult {
	sk := newSink(out)
	if len(b) < 8 {
		return sk.result(FormatTIFF, Unsupported)
	}

	var h tiffHeader
	switch {
	case b[0] == 'I' && b[1] == 'I':
		h.bigEndian = false
		h.u16, h.u32, h.u64 = bytesreader.U16LE, bytesreader.U32LE, bytesreader.U64LE
	case b[0] == 'M' && b[1] == 'M':
		h.bigEndian = true
		h.u16, h.u32, h.u64 = bytesreader.U16BE, bytesreader.U32BE, bytesreader.U64BE
	default:
		return sk.result(FormatTIFF, Unsupported)
	}

	version, ok := h.u16(b, 2)
	if !ok {
		return sk.result(FormatTIFF, Unsupported)
	}
	var firstIFD uint64
	switch version {
	case 42:
		h.big = false
		v, ok := h.u32(b, 4)
		if !ok {
			return sk.result(FormatTIFF, Malformed)
		}
		firstIFD = uint64(v)
	case 43:
		h.big = true
		offSize, ok1 := h.u16(b, 4)
		reserved, ok2 := h.u16(b, 6)
		if !ok1 || !ok2 || offSize != 8 || reserved != 0 {
			return sk.result(FormatTIFF, Malformed)
		}
		v, ok := h.u64(b, 8)
		if !ok {
			return sk.result(FormatTIFF, Malformed)
		}
		firstIFD = v
	default:
		return sk.result(FormatTIFF, Unsupported)
	}

	status := Ok
	visited := map[uint64]bool{}
	type pending struct{ offset uint64 }
	queue := []pending{{firstIFD}}
	const maxIFDs = 4096

	for len(queue) > 0 && len(visited) < maxIFDs {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.offset] {
			continue
		}
		visited[cur.offset] = true

		next, ptrs, st := scanOneIFD(&h, b, sk, int(cur.offset))
		status = store.Merge(status, st)
		for _, p := range ptrs {
			queue = append(queue, pending{p})
		}
		if next != 0 {
			queue = append(queue, pending{next})
		}
	}

	return sk.result(FormatTIFF, status)
}

func scanOneIFD(h *tiffHeader, b []byte, sk *sink, off int) (nextIFD uint64, ifdPointers []uint64, status Status) {
	entrySize := 12
	countW := 2
	if h.big {
		entrySize = 20
		countW = 8
	}

	var count uint64
	if h.big {
		c, ok := h.u64(b, off)
		if !ok {
			return 0, nil, Malformed
		}
		count = c
	} else {
		c, ok := h.u16(b, off)
		if !ok {
			return 0, nil, Malformed
		}
		count = uint64(c)
	}

	pos := off + countW
	valueWidth := 4
	if h.big {
		valueWidth = 8
	}

	for i := uint64(0); i < count; i++ {
		entryOff := pos + int(i)*entrySize
		tag, ok1 := h.u16(b, entryOff)
		typ, ok2 := h.u16(b, entryOff+2)
		if !ok1 || !ok2 {
			return 0, ifdPointers, Malformed
		}
		var cnt uint64
		if h.big {
			c, ok := h.u64(b, entryOff+4)
			if !ok {
				return 0, ifdPointers, Malformed
			}
			cnt = c
		} else {
			c, ok := h.u32(b, entryOff+4)
			if !ok {
				return 0, ifdPointers, Malformed
			}
			cnt = uint64(c)
		}
		valueFieldOff := entryOff + 8
		if h.big {
			valueFieldOff = entryOff + 12
		}

		typeSize := tiffTypeSize(typ)
		totalSize := typeSize * cnt

		var valueOffset uint64
		inline := typeSize > 0 && totalSize <= uint64(valueWidth)
		if inline {
			valueOffset = uint64(valueFieldOff)
		} else {
			if h.big {
				v, ok := h.u64(b, valueFieldOff)
				if !ok {
					return 0, ifdPointers, Malformed
				}
				valueOffset = v
			} else {
				v, ok := h.u32(b, valueFieldOff)
				if !ok {
					return 0, ifdPointers, Malformed
				}
				valueOffset = uint64(v)
			}
		}

		switch tag {
		case tiffTagExifIFD, tiffTagGPSIFD, tiffTagInteropIFD, tiffTagSubIFD:
			var ptr uint64
			var ok bool
			if typeSize == 8 {
				ptr, ok = h.u64(b, int(valueOffset))
			} else {
				var v uint32
				v, ok = h.u32(b, int(valueOffset))
				ptr = uint64(v)
			}
			if !ok {
				status = store.Merge(status, Malformed)
				continue
			}
			ifdPointers = append(ifdPointers, ptr)
		case tiffTagXMP, tiffTagIptcIIM, tiffTagPhotoshop, tiffTagICC, tiffTagMakerNote:
			if !bytesreader.InBounds(len(b), int(valueOffset), int(totalSize)) {
				status = store.Merge(status, Malformed)
				continue
			}
			kind := BlockUnknown
			switch tag {
			case tiffTagXMP:
				kind = BlockXmp
			case tiffTagIptcIIM:
				kind = BlockIptcIim
			case tiffTagPhotoshop:
				kind = BlockPhotoshopIrb
			case tiffTagICC:
				kind = BlockIcc
			case tiffTagMakerNote:
				kind = BlockUnknown // MakerNote has no dedicated BlockKind; left for the EXIF decoder's own tag handling.
			}
			if kind != BlockUnknown {
				sk.emit(ContainerBlockRef{
					Format:      FormatTIFF,
					Kind:        kind,
					OuterOffset: int64(entryOff),
					OuterSize:   int64(entrySize),
					DataOffset:  int64(valueOffset),
					DataSize:    int64(totalSize),
				})
			}
		}
	}

	nextOff := pos + int(count)*entrySize
	if h.big {
		v, ok := h.u64(b, nextOff)
		if ok {
			nextIFD = v
		}
	} else {
		v, ok := h.u32(b, nextOff)
		if ok {
			nextIFD = uint64(v)
		}
	}
	return nextIFD, ifdPointers, status
}

func tiffTypeSize(typ uint16) uint64 {
	switch typ {
	case 1, 2, 6, 7:
		return 1
	case 3, 8:
		return 2
	case 4, 9, 11, 13:
		return 4
	case 5, 10, 12, 16, 17, 18:
		return 8
	case 129:
		return 1
	default:
		return 0
	}
}
