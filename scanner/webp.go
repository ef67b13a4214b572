// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package scanner

import (
	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/store"
)

// ScanWebP walks RIFF sub-chunks (u32-little-endian sizes, 2-byte pad),
// emitting refs for EXIF, "XMP ", ICCP (spec §4.3 "WebP"). Grounded on the
// teacher's imagedecoder_webp.go RIFF walk.
func ScanWebP(b []byte, out []ContainerBlockRef) ScanResult {
	sk := newSink(out)
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WEBP" {
		return sk.result(FormatWebP, Unsupported)
	}

	pos := 12
	status := Ok
	for pos+8 <= len(b) {
		fourCC := string(b[pos : pos+4])
		size, _ := bytesreader.U32LE(b, pos+4)
		dataStart := pos + 8
		dataEnd := dataStart + int(size)
		if dataEnd > len(b) {
			status = store.Merge(status, Malformed)
			break
		}

		var kind BlockKind
		switch fourCC {
		case "EXIF":
			kind = BlockExif
		case "XMP ":
			kind = BlockXmp
		case "ICCP":
			kind = BlockIcc
		}
		if kind != BlockUnknown {
			outerEnd := dataEnd
			if size%2 == 1 {
				outerEnd++
			}
			sk.emit(ContainerBlockRef{
				Format: FormatWebP, Kind: kind,
				OuterOffset: int64(pos), OuterSize: int64(outerEnd - pos),
				DataOffset: int64(dataStart), DataSize: int64(size),
			})
		}

		pos = dataEnd
		if size%2 == 1 {
			pos++ // pad byte
		}
	}

	return sk.result(FormatWebP, status)
}
