// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package consolefmt

import (
	"strings"
	"testing"
)

func FuzzAppendEscapedASCII(f *testing.F) {
	f.Add("hello\nworld", uint32(0))
	f.Add("a\x01b\x7fc", uint32(3))

	f.Fuzz(func(t *testing.T, s string, maxBytes uint32) {
		var b strings.Builder
		AppendEscapedASCII(&b, s, maxBytes)
	})
}

func FuzzAppendHexBytes(f *testing.F) {
	f.Add([]byte{0xDE, 0xAD, 0xBE, 0xEF}, uint32(2))

	f.Fuzz(func(t *testing.T, data []byte, maxBytes uint32) {
		var b strings.Builder
		AppendHexBytes(&b, data, maxBytes)
	})
}
