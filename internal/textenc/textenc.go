// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package textenc decodes the handful of non-UTF-8 text encodings that show
// up in image metadata (UTF-16 EXIF UserComment/GPS strings, UCS-2 IPTC
// extensions) via golang.org/x/text, the same module the teacher already
// depends on for its own text handling.
package textenc

import (
	"golang.org/x/text/encoding/unicode"
)

// DecodeUTF16LE decodes a little-endian UTF-16 byte string (no BOM assumed)
// to UTF-8. Malformed sequences are replaced with U+FFFD; ok is false only
// when the decoder returns an error.
func DecodeUTF16LE(b []byte) (string, bool) {
	return decode(b, unicode.LittleEndian)
}

// DecodeUTF16BE decodes a big-endian UTF-16 byte string to UTF-8.
func DecodeUTF16BE(b []byte) (string, bool) {
	return decode(b, unicode.BigEndian)
}

func decode(b []byte, endian unicode.Endianness) (string, bool) {
	enc := unicode.UTF16(endian, unicode.IgnoreBOM)
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", false
	}
	return string(out), true
}
