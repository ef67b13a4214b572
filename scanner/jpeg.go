// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package scanner

import (
	"bytes"

	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/store"
)

const (
	jpegSOI  = 0xffd8
	jpegSOS  = 0xffda
	jpegEOI  = 0xffd9
	jpegApp1 = 0xffe1
	jpegApp2 = 0xffe2
	jpegApp13 = 0xffed
	jpegComment = 0xfffe
)

var (
	exifPrefix       = []byte("Exif\x00\x00")
	xmpStdPrefix     = []byte("http://ns.adobe.com/xap/1.0/\x00")
	xmpExtPrefix     = []byte("http://ns.adobe.com/xmp/extension/\x00")
	iccProfilePrefix = []byte("ICC_PROFILE\x00")
	mpfPrefix        = []byte("MPF\x00")
	psPrefix         = []byte("Photoshop 3.0\x00")
)

func isStandaloneMarker(marker uint16) bool {
	if marker == 0xff01 {
		return true
	}
	return marker >= 0xffd0 && marker <= 0xffd7
}

// ScanJPEG walks JPEG marker segments starting after SOI, emitting a
// ContainerBlockRef for every recognized APP segment (spec §4.3 "JPEG").
func ScanJPEG(b []byte, out []ContainerBlockRef) ScanResult {
	sk := newSink(out)

	if len(b) < 2 {
		return sk.result(FormatJPEG, Unsupported)
	}
	soi, ok := bytesreader.U16BE(b, 0)
	if !ok || soi != jpegSOI {
		return sk.result(FormatJPEG, Unsupported)
	}

	pos := 2
	status := Ok
	for {
		marker, ok := bytesreader.U16BE(b, pos)
		if !ok {
			break
		}
		if marker>>8 != 0xff {
			status = store.Merge(status, Malformed)
			break
		}
		pos += 2

		if marker == jpegSOS || marker == jpegEOI {
			break
		}
		if isStandaloneMarker(marker) {
			continue
		}

		length, ok := bytesreader.U16BE(b, pos)
		if !ok {
			status = store.Merge(status, Malformed)
			break
		}
		if length < 2 {
			status = store.Merge(status, Malformed)
			break
		}
		segStart := pos + 2
		segLen := int(length) - 2
		segEnd := segStart + segLen
		if segEnd > len(b) || segLen < 0 {
			status = store.Merge(status, Malformed)
			break
		}
		payload := b[segStart:segEnd]
		outer := pos - 2

		switch marker {
		case jpegApp1:
			scanJPEGApp1(sk, payload, outer, segEnd, segLen)
		case jpegApp2:
			scanJPEGApp2(sk, payload, outer, segEnd, segLen)
		case jpegApp13:
			if bytes.HasPrefix(payload, psPrefix) {
				sk.emit(ContainerBlockRef{
					Format:      FormatJPEG,
					Kind:        BlockPhotoshopIrb,
					OuterOffset: int64(outer),
					OuterSize:   int64(segEnd - outer),
					DataOffset:  int64(segStart + len(psPrefix)),
					DataSize:    int64(segLen - len(psPrefix)),
				})
			}
		case jpegComment:
			sk.emit(ContainerBlockRef{
				Format:      FormatJPEG,
				Kind:        BlockComment,
				OuterOffset: int64(outer),
				OuterSize:   int64(segEnd - outer),
				DataOffset:  int64(segStart),
				DataSize:    int64(segLen),
			})
		}

		pos = segEnd
	}

	return sk.result(FormatJPEG, status)
}

func scanJPEGApp1(sk *sink, payload []byte, outer, segEnd, segLen int) {
	segStart := segEnd - segLen
	if bytes.HasPrefix(payload, exifPrefix) {
		sk.emit(ContainerBlockRef{
			Format:      FormatJPEG,
			Kind:        BlockExif,
			OuterOffset: int64(outer),
			OuterSize:   int64(segEnd - outer),
			DataOffset:  int64(segStart + len(exifPrefix)),
			DataSize:    int64(segLen - len(exifPrefix)),
		})
		return
	}
	if bytes.HasPrefix(payload, xmpStdPrefix) {
		sk.emit(ContainerBlockRef{
			Format:      FormatJPEG,
			Kind:        BlockXmp,
			OuterOffset: int64(outer),
			OuterSize:   int64(segEnd - outer),
			DataOffset:  int64(segStart + len(xmpStdPrefix)),
			DataSize:    int64(segLen - len(xmpStdPrefix)),
		})
		return
	}
	if bytes.HasPrefix(payload, xmpExtPrefix) {
		rest := payload[len(xmpExtPrefix):]
		const guidLen = 32
		if len(rest) < guidLen+8 {
			return
		}
		guid := rest[:guidLen]
		fullLen, ok1 := bytesreader.U32BE(rest, guidLen)
		offset, ok2 := bytesreader.U32BE(rest, guidLen+4)
		if !ok1 || !ok2 {
			return
		}
		dataOff := segStart + len(xmpExtPrefix) + guidLen + 8
		dataSize := segEnd - dataOff
		sk.emit(ContainerBlockRef{
			Format:      FormatJPEG,
			Kind:        BlockXmpExtended,
			Chunking:    ChunkingJpegXmpExtendedGuidOffset,
			OuterOffset: int64(outer),
			OuterSize:   int64(segEnd - outer),
			DataOffset:  int64(dataOff),
			DataSize:    int64(dataSize),
			Group:       fnv64(guid),
			LogicalOff:  uint64(offset),
			LogicalSize: uint64(fullLen),
		})
	}
}

func scanJPEGApp2(sk *sink, payload []byte, outer, segEnd, segLen int) {
	segStart := segEnd - segLen
	if bytes.HasPrefix(payload, iccProfilePrefix) {
		rest := payload[len(iccProfilePrefix):]
		if len(rest) < 2 {
			return
		}
		seq, total := rest[0], rest[1]
		dataOff := segStart + len(iccProfilePrefix) + 2
		sk.emit(ContainerBlockRef{
			Format:      FormatJPEG,
			Kind:        BlockIcc,
			Chunking:    ChunkingJpegApp2SeqTotal,
			OuterOffset: int64(outer),
			OuterSize:   int64(segEnd - outer),
			DataOffset:  int64(dataOff),
			DataSize:    int64(segEnd - dataOff),
			PartIndex:   uint32(seq) - 1,
			PartCount:   uint32(total),
		})
		return
	}
	if bytes.HasPrefix(payload, mpfPrefix) {
		sk.emit(ContainerBlockRef{
			Format:      FormatJPEG,
			Kind:        BlockMpf,
			OuterOffset: int64(outer),
			OuterSize:   int64(segEnd - outer),
			DataOffset:  int64(segStart + len(mpfPrefix)),
			DataSize:    int64(segLen - len(mpfPrefix)),
		})
	}
}

func fnv64(b []byte) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= prime64
	}
	return h
}
