// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package xmp

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/openmeta-go/openmeta/store"
)

const samplePacket = `<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about=""
    xmlns:dc="http://purl.org/dc/elements/1.1/"
    xmlns:photoshop="http://ns.adobe.com/photoshop/1.0/">
   <dc:creator>
    <rdf:Seq>
     <rdf:li>Jane Doe</rdf:li>
    </rdf:Seq>
   </dc:creator>
   <photoshop:City>Oslo</photoshop:City>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`

func TestDecodeXMPLeafProperties(t *testing.T) {
	c := qt.New(t)
	m := store.New(store.Limits{})
	block, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindXmp, Label: "test"})

	status := Decode(m, block, []byte(samplePacket), DefaultOptions())
	c.Assert(status, qt.Equals, store.Ok)

	m.Finalize()

	e, ok := m.Find(store.MetaKeyView{
		Kind:         store.KeyXmpProperty,
		SchemaNS:     "http://ns.adobe.com/photoshop/1.0/",
		PropertyPath: "City",
	})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.Text(e.Value), qt.Equals, "Oslo")

	// The rdf:li array item under dc:creator/rdf:Seq is attributed to
	// dc:creator's own namespace, the nearest non-RDF ancestor — not to
	// rdf:li's own RDF namespace (spec §4.6).
	e2, ok := m.Find(store.MetaKeyView{
		Kind:         store.KeyXmpProperty,
		SchemaNS:     "http://purl.org/dc/elements/1.1/",
		PropertyPath: "creator/[1]",
	})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.Text(e2.Value), qt.Equals, "Jane Doe")
}

func TestDecodeXMPRdfResource(t *testing.T) {
	c := qt.New(t)
	m := store.New(store.Limits{})
	block, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindXmp, Label: "test"})

	packet := `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
 <rdf:Description xmlns:xmpMM="http://ns.adobe.com/xap/1.0/mm/">
  <xmpMM:InstanceID rdf:resource="uuid:123"/>
 </rdf:Description>
</rdf:RDF>`

	status := Decode(m, block, []byte(packet), DefaultOptions())
	c.Assert(status, qt.Equals, store.Ok)

	m.Finalize()
	e, ok := m.Find(store.MetaKeyView{
		Kind:         store.KeyXmpProperty,
		SchemaNS:     "http://ns.adobe.com/xap/1.0/mm/",
		PropertyPath: "InstanceID",
	})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.Text(e.Value), qt.Equals, "uuid:123")
}

func TestDecodeXMPEmptyLeafStillEmits(t *testing.T) {
	c := qt.New(t)
	m := store.New(store.Limits{})
	block, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindXmp, Label: "test"})

	packet := `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
 <rdf:Description xmlns:xmp="http://ns.adobe.com/xap/1.0/">
  <xmp:Label/>
 </rdf:Description>
</rdf:RDF>`

	status := Decode(m, block, []byte(packet), DefaultOptions())
	c.Assert(status, qt.Equals, store.Ok)

	m.Finalize()
	e, ok := m.Find(store.MetaKeyView{
		Kind:         store.KeyXmpProperty,
		SchemaNS:     "http://ns.adobe.com/xap/1.0/",
		PropertyPath: "Label",
	})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.Text(e.Value), qt.Equals, "")
}

func TestDecodeXMPDescriptionAttributesGatedByOption(t *testing.T) {
	c := qt.New(t)
	packet := `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
 <rdf:Description rdf:about="" xmlns:xmp="http://ns.adobe.com/xap/1.0/" xmp:Rating="5"/>
</rdf:RDF>`

	m := store.New(store.Limits{})
	block, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindXmp, Label: "test"})
	opts := DefaultOptions()
	opts.DecodeDescriptionAttributes = false
	status := Decode(m, block, []byte(packet), opts)
	c.Assert(status, qt.Equals, store.Ok)
	m.Finalize()
	_, ok := m.Find(store.MetaKeyView{Kind: store.KeyXmpProperty, SchemaNS: "http://ns.adobe.com/xap/1.0/", PropertyPath: "Rating"})
	c.Assert(ok, qt.IsFalse)

	m2 := store.New(store.Limits{})
	block2, _ := m2.AddBlock(store.BlockInfo{Kind: store.BlockKindXmp, Label: "test"})
	status2 := Decode(m2, block2, []byte(packet), DefaultOptions())
	c.Assert(status2, qt.Equals, store.Ok)
	m2.Finalize()
	e, ok := m2.Find(store.MetaKeyView{Kind: store.KeyXmpProperty, SchemaNS: "http://ns.adobe.com/xap/1.0/", PropertyPath: "Rating"})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m2.Text(e.Value), qt.Equals, "5")
}
