// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package crw

import (
	"bytes"
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/openmeta-go/openmeta/store"
)

func writeEntry(buf *bytes.Buffer, tag uint16, size, offset uint32) {
	binary.Write(buf, binary.LittleEndian, tag)
	binary.Write(buf, binary.LittleEndian, size)
	binary.Write(buf, binary.LittleEndian, offset)
}

// buildRootDir builds a directory whose value heap is heap, followed by a
// single entry (tag/size/offset) and a trailer pointing back at the
// entry-count field, matching decode_directory's trailer-last-four-bytes
// convention.
func buildRootDir(heap []byte, tag uint16, size, offset uint32) []byte {
	var buf bytes.Buffer
	buf.Write(heap)
	entryOff := uint32(buf.Len())
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // entry_count
	writeEntry(&buf, tag, size, offset)
	binary.Write(&buf, binary.LittleEndian, entryOff) // trailer
	return buf.Bytes()
}

func buildFile(dir []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint32(14)) // root offset
	buf.WriteString("HEAPCCDR")
	buf.Write(dir)
	return buf.Bytes()
}

func TestDecodeBasicEntry(t *testing.T) {
	c := qt.New(t)

	heap := []byte{0x2A, 0x00, 0x00, 0x00} // u32 = 42
	dir := buildRootDir(heap, 0x1834, 4, 0)
	file := buildFile(dir)

	m := store.New(store.Limits{})
	status := Decode(m, file)
	c.Assert(status, qt.Equals, store.Ok)

	m.Finalize()
	e, ok := m.Find(store.MetaKeyView{Kind: store.KeyExifTag, Ifd: "ciff_root", Tag: 0x1834})
	c.Assert(ok, qt.IsTrue)
	c.Assert(e.Value.Scalar.U64, qt.Equals, uint64(42))
}

func TestDecodeCameraObjectProjectsMakeAndModel(t *testing.T) {
	c := qt.New(t)

	childHeap := []byte("Canon\x00EOS R5\x00")
	childDir := buildRootDir(childHeap, 0x080A, uint32(len(childHeap)), 0)

	rootDir := buildRootDir(childDir, 0x2807, uint32(len(childDir)), 0)
	file := buildFile(rootDir)

	m := store.New(store.Limits{})
	status := Decode(m, file)
	c.Assert(status, qt.Equals, store.Ok)

	m.Finalize()

	make_, ok := m.Find(store.MetaKeyView{Kind: store.KeyExifTag, Ifd: "ifd0", Tag: 0x010F})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.Text(make_.Value), qt.Equals, "Canon")

	model, ok := m.Find(store.MetaKeyView{Kind: store.KeyExifTag, Ifd: "ifd0", Tag: 0x0110})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.Text(model.Value), qt.Equals, "EOS R5")

	raw, ok := m.Find(store.MetaKeyView{Kind: store.KeyExifTag, Ifd: "ciff_2807_0", Tag: 0x080A})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.BytesOf(raw.Value), qt.DeepEquals, []byte("Canon\x00EOS R5\x00"))
}

func TestDecodeRejectsBadSignature(t *testing.T) {
	c := qt.New(t)
	m := store.New(store.Limits{})
	status := Decode(m, []byte("not a crw file at all........"))
	c.Assert(status, qt.Equals, store.Unsupported)
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	c := qt.New(t)
	m := store.New(store.Limits{})
	status := Decode(m, []byte{0x49, 0x49})
	c.Assert(status, qt.Equals, store.Unsupported)
}
