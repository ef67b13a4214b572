// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package irb

import (
	"bytes"
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/openmeta-go/openmeta/store"
)

func writeResource(buf *bytes.Buffer, id uint16, payload []byte) {
	buf.WriteString("8BIM")
	binary.Write(buf, binary.BigEndian, id)
	buf.WriteByte(0) // empty Pascal name, padded to 2 bytes total
	buf.WriteByte(0)
	binary.Write(buf, binary.BigEndian, uint32(len(payload)))
	buf.Write(payload)
	if len(payload)%2 == 1 {
		buf.WriteByte(0)
	}
}

func TestDecodeTwoResources(t *testing.T) {
	c := qt.New(t)
	m := store.New(store.Limits{})
	block, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindIrb, Label: "test"})

	var buf bytes.Buffer
	writeResource(&buf, 0x0404, []byte("iptc-payload"))
	writeResource(&buf, 0x040a, []byte("x")) // odd length, exercises padding

	status := Decode(m, block, buf.Bytes())
	c.Assert(status, qt.Equals, store.Ok)

	m.Finalize()
	e, ok := m.Find(store.MetaKeyView{Kind: store.KeyPhotoshopIrb, ResourceID: 0x0404})
	c.Assert(ok, qt.IsTrue)
	c.Assert(string(m.BytesOf(e.Value)), qt.Equals, "iptc-payload")

	e2, ok := m.Find(store.MetaKeyView{Kind: store.KeyPhotoshopIrb, ResourceID: 0x040a})
	c.Assert(ok, qt.IsTrue)
	c.Assert(string(m.BytesOf(e2.Value)), qt.Equals, "x")
}
