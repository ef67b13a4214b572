// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jumbf

import (
	"bytes"
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/openmeta-go/openmeta/store"
)

func writeBox(buf *bytes.Buffer, typ string, payload []byte) {
	binary.Write(buf, binary.BigEndian, uint32(8+len(payload)))
	buf.WriteString(typ)
	buf.Write(payload)
}

func TestDecodeStructuralFields(t *testing.T) {
	c := qt.New(t)

	var inner bytes.Buffer
	writeBox(&inner, "jumd", []byte("some jumbf description box"))

	var outer bytes.Buffer
	writeBox(&outer, "jumb", inner.Bytes())

	m := store.New(store.Limits{})
	block, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindJumbf, Label: "test"})

	result := Decode(m, block, outer.Bytes(), 0, DefaultOptions())
	c.Assert(result.Status, qt.Equals, store.Ok)
	c.Assert(result.BoxesDecoded, qt.Equals, uint32(2))

	m.Finalize()
	e, ok := m.Find(store.MetaKeyView{Kind: store.KeyJumbfField, Field: "box.0.type"})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.Text(e.Value), qt.Equals, "jumb")
}

func TestDecodeC2PADetectedByJumdPayload(t *testing.T) {
	c := qt.New(t)

	var inner bytes.Buffer
	writeBox(&inner, "jumd", []byte("urn:uuid:c2pa-manifest-box"))

	var outer bytes.Buffer
	writeBox(&outer, "jumb", inner.Bytes())

	m := store.New(store.Limits{})
	block, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindJumbf, Label: "test"})

	result := Decode(m, block, outer.Bytes(), 0, DefaultOptions())
	c.Assert(result.Status, qt.Equals, store.Ok)

	m.Finalize()
	e, ok := m.Find(store.MetaKeyView{Kind: store.KeyJumbfField, Field: "c2pa.detected"})
	c.Assert(ok, qt.IsTrue)
	c.Assert(e.Value.Scalar.U64, qt.Equals, uint64(1))
}

// buildCborMap encodes a definite-length map with two text-keyed entries:
// {"manifest": "m1", "claim_generator": "acme/1.0"}.
func buildCborMap() []byte {
	var b bytes.Buffer
	b.WriteByte(0xa2) // map(2)

	writeCborText := func(s string) {
		b.WriteByte(0x60 | byte(len(s)))
		b.WriteString(s)
	}

	writeCborText("manifest")
	writeCborText("m1")
	writeCborText("claim_generator")
	writeCborText("acme/1.0")
	return b.Bytes()
}

func TestDecodeCborMapAndSemanticMarker(t *testing.T) {
	c := qt.New(t)

	var inner bytes.Buffer
	writeBox(&inner, "cbor", buildCborMap())

	var outer bytes.Buffer
	writeBox(&outer, "jumb", inner.Bytes())

	m := store.New(store.Limits{})
	block, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindJumbf, Label: "test"})

	result := Decode(m, block, outer.Bytes(), 0, DefaultOptions())
	c.Assert(result.Status, qt.Equals, store.Ok)

	m.Finalize()
	e, ok := m.Find(store.MetaKeyView{Kind: store.KeyJumbfCborKey, Field: "box.0.0.cbor.manifest"})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.Text(e.Value), qt.Equals, "m1")

	marker, ok := m.Find(store.MetaKeyView{Kind: store.KeyJumbfField, Field: "c2pa.detected"})
	c.Assert(ok, qt.IsTrue)
	c.Assert(marker.Value.Scalar.U64, qt.Equals, uint64(1))

	gen, ok := m.Find(store.MetaKeyView{Kind: store.KeyJumbfField, Field: "c2pa.semantic.claim_generator"})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.Text(gen.Value), qt.Equals, "acme/1.0")
}

func TestDecodeRejectsNonBoxInput(t *testing.T) {
	c := qt.New(t)
	m := store.New(store.Limits{})
	block, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindJumbf, Label: "test"})

	result := Decode(m, block, []byte{0x00, 0x01, 0x02}, 0, DefaultOptions())
	c.Assert(result.Status, qt.Equals, store.Unsupported)
}
