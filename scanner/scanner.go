// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package scanner

import "bytes"

// ScanAuto detects the container format from a leading-bytes signature and
// dispatches to the matching per-format scanner, per spec §4.3 "Format
// detection". Unlike the teacher's imagemeta.Decode (which is told the
// format up front by the caller via file extension sniffing one level up),
// this is pure content sniffing: nothing about the caller's source is
// consulted.
func ScanAuto(b []byte, out []ContainerBlockRef) ScanResult {
	switch {
	case len(b) >= 2 && b[0] == 0xff && b[1] == 0xd8:
		return ScanJPEG(b, out)
	case len(b) >= 8 && bytes.Equal(b[:8], pngSignature):
		return ScanPNG(b, out)
	case len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WEBP":
		return ScanWebP(b, out)
	case len(b) >= 6 && (bytes.Equal(b[:6], gif87a) || bytes.Equal(b[:6], gif89a)):
		return ScanGIF(b, out)
	case len(b) >= 4 && (b[0] == 'I' && b[1] == 'I' || b[0] == 'M' && b[1] == 'M'):
		return ScanTIFF(b, out)
	case DetectBMFF(b):
		return ScanISOBMFF(b, out)
	default:
		return newSink(out).result(FormatUnknown, Unsupported)
	}
}
