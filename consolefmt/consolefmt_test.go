// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package consolefmt

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestAppendEscapedASCIIPlain(t *testing.T) {
	c := qt.New(t)
	var b strings.Builder
	dangerous := AppendEscapedASCII(&b, "hello", 0)
	c.Assert(dangerous, qt.IsFalse)
	c.Assert(b.String(), qt.Equals, "hello")
}

func TestAppendEscapedASCIIControlBytes(t *testing.T) {
	c := qt.New(t)
	var b strings.Builder
	dangerous := AppendEscapedASCII(&b, "a\nb\tc\"d\\e\x01", 0)
	c.Assert(dangerous, qt.IsTrue)
	c.Assert(b.String(), qt.Equals, `a\nb\tc\"d\\e\x01`)
}

func TestAppendEscapedASCIITruncates(t *testing.T) {
	c := qt.New(t)
	var b strings.Builder
	dangerous := AppendEscapedASCII(&b, "abcdef", 3)
	c.Assert(dangerous, qt.IsTrue)
	c.Assert(b.String(), qt.Equals, "abc...")
}

func TestAppendHexBytes(t *testing.T) {
	c := qt.New(t)
	var b strings.Builder
	AppendHexBytes(&b, []byte{0xDE, 0xAD, 0xBE, 0xEF}, 0)
	c.Assert(b.String(), qt.Equals, "DEADBEEF")
}

func TestAppendHexBytesTruncates(t *testing.T) {
	c := qt.New(t)
	var b strings.Builder
	AppendHexBytes(&b, []byte{0xDE, 0xAD, 0xBE, 0xEF}, 2)
	c.Assert(b.String(), qt.Equals, "DEAD...")
}
