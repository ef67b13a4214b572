// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package exr

import (
	"bytes"
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/openmeta-go/openmeta/store"
)

func writeAttr(buf *bytes.Buffer, name, typ string, value []byte) {
	buf.WriteString(name)
	buf.WriteByte(0)
	buf.WriteString(typ)
	buf.WriteByte(0)
	binary.Write(buf, binary.LittleEndian, uint32(len(value)))
	buf.Write(value)
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestDecodeSinglePartHeader(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(magic))
	binary.Write(&buf, binary.LittleEndian, uint32(supportedVersion))
	writeAttr(&buf, "pixelAspectRatio", "float", le32(0x3f800000))
	buf.WriteByte(0)

	m := store.New(store.Limits{})
	newBlock := func() store.BlockID {
		id, err := m.AddBlock(store.BlockInfo{Kind: store.BlockKindExrPart, Label: "part"})
		c.Assert(err, qt.IsNil)
		return id
	}

	status := Decode(m, newBlock, buf.Bytes())
	c.Assert(status, qt.Equals, store.Ok)

	m.Finalize()
	e, ok := m.Find(store.MetaKeyView{Kind: store.KeyExrAttribute, PartIndex: 0, Name: "pixelAspectRatio"})
	c.Assert(ok, qt.IsTrue)
	c.Assert(e.Value.ElemType, qt.Equals, store.ElemF32Bits)
	c.Assert(e.Value.Scalar.U64, qt.Equals, uint64(0x3f800000))
}

func TestDecodeMultipartHeader(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(magic))
	binary.Write(&buf, binary.LittleEndian, uint32(supportedVersion|flagMultipart))
	writeAttr(&buf, "name", "string", []byte("first"))
	buf.WriteByte(0) // end of part 0
	writeAttr(&buf, "name", "string", []byte("second"))
	buf.WriteByte(0) // end of part 1
	buf.WriteByte(0) // end of file

	m := store.New(store.Limits{})
	newBlock := func() store.BlockID {
		id, err := m.AddBlock(store.BlockInfo{Kind: store.BlockKindExrPart, Label: "part"})
		c.Assert(err, qt.IsNil)
		return id
	}

	status := Decode(m, newBlock, buf.Bytes())
	c.Assert(status, qt.Equals, store.Ok)

	m.Finalize()
	e0, ok := m.Find(store.MetaKeyView{Kind: store.KeyExrAttribute, PartIndex: 0, Name: "name"})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.Text(e0.Value), qt.Equals, "first")

	e1, ok := m.Find(store.MetaKeyView{Kind: store.KeyExrAttribute, PartIndex: 1, Name: "name"})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.Text(e1.Value), qt.Equals, "second")
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	c := qt.New(t)
	m := store.New(store.Limits{})
	newBlock := func() store.BlockID {
		id, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindExrPart, Label: "part"})
		return id
	}
	status := Decode(m, newBlock, []byte{0, 0, 0, 0, 2, 0, 0, 0})
	c.Assert(status, qt.Equals, store.Unsupported)
}

func TestDecodeRejectsInvalidFlags(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(magic))
	binary.Write(&buf, binary.LittleEndian, uint32(supportedVersion|0x4000)) // unknown flag bit

	m := store.New(store.Limits{})
	newBlock := func() store.BlockID {
		id, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindExrPart, Label: "part"})
		return id
	}
	status := Decode(m, newBlock, buf.Bytes())
	c.Assert(status, qt.Equals, store.Malformed)
}
