// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package consolefmt provides terminal-safe text escaping and hex dumping
// for presenting decoded metadata values (spec.md's "Console/format
// helpers... (used by presentation)" component).
//
// Grounded directly on original_source's console_format.cc: the same
// escape set (backslash, double-quote, \n \r \t, any other control byte
// or non-ASCII as \xNN), the same max_bytes/0-means-unlimited truncation
// convention with a trailing "...", and the same boolean return reporting
// whether a control or non-ASCII byte was escaped or the input truncated.
package consolefmt

import (
	"fmt"
	"strings"
)

// AppendEscapedASCII appends an ASCII-only, terminal-safe representation
// of s to out, truncated to maxBytes bytes (0 means unlimited). It
// reports whether a control or non-ASCII byte was escaped or s was
// truncated, so a caller can flag a value as containing control characters
// or requiring a closer look; backslash and double-quote escapes alone do
// not set it.
func AppendEscapedASCII(out *strings.Builder, s string, maxBytes uint32) bool {
	dangerous := false
	n := uint32(len(s))
	if maxBytes != 0 && n > maxBytes {
		n = maxBytes
	}

	for i := uint32(0); i < n; i++ {
		c := s[i]
		switch {
		case c == '\\' || c == '"':
			out.WriteByte('\\')
			out.WriteByte(c)
		case c == '\n':
			out.WriteString(`\n`)
			dangerous = true
		case c == '\r':
			out.WriteString(`\r`)
			dangerous = true
		case c == '\t':
			out.WriteString(`\t`)
			dangerous = true
		case c < 0x20 || c == 0x7f || c >= 0x80:
			fmt.Fprintf(out, `\x%02X`, c)
			dangerous = true
		default:
			out.WriteByte(c)
		}
	}
	if n < uint32(len(s)) {
		out.WriteString("...")
		dangerous = true
	}
	return dangerous
}

// AppendHexBytes appends uppercase hex for b (no "0x" prefix) to out,
// truncated to maxBytes bytes (0 means unlimited), with a trailing "..."
// when truncated.
func AppendHexBytes(out *strings.Builder, b []byte, maxBytes uint32) {
	n := uint32(len(b))
	if maxBytes != 0 && n > maxBytes {
		n = maxBytes
	}
	for i := uint32(0); i < n; i++ {
		fmt.Fprintf(out, "%02X", b[i])
	}
	if n < uint32(len(b)) {
		out.WriteString("...")
	}
}
