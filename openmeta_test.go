// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package openmeta

import (
	"bytes"
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/openmeta-go/openmeta/scanner"
	"github.com/openmeta-go/openmeta/store"
)

func writePNGChunk(buf *bytes.Buffer, typ string, data []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.WriteString(typ)
	buf.Write(data)
	buf.Write([]byte{0, 0, 0, 0}) // crc, unchecked by the scanner
}

func buildPNGWithXMP(rdf string) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})

	var itxt bytes.Buffer
	itxt.WriteString("XML:com.adobe.xmp")
	itxt.WriteByte(0)    // keyword terminator
	itxt.WriteByte(0)    // compression flag: uncompressed
	itxt.WriteByte(0)    // compression method
	itxt.WriteByte(0)    // language tag terminator
	itxt.WriteByte(0)    // translated keyword terminator
	itxt.WriteString(rdf)
	writePNGChunk(&buf, "iTXt", itxt.Bytes())

	writePNGChunk(&buf, "IEND", nil)
	return buf.Bytes()
}

func TestReadMetaDecodesPNGXMP(t *testing.T) {
	c := qt.New(t)

	rdf := `<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"><rdf:Description xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>hello</dc:title></rdf:Description></rdf:RDF></x:xmpmeta>`
	file := buildPNGWithXMP(rdf)

	m := store.New(store.Limits{})
	scratch := make([]scanner.ContainerBlockRef, 16)
	result := ReadMeta(m, file, scratch, Options{})

	c.Assert(result.Status, qt.Equals, Ok)
	c.Assert(result.BlocksFound, qt.Equals, 1)
	c.Assert(result.BlocksDecoded, qt.Equals, 1)
}

func TestReadMetaGrowsScratchOnTruncation(t *testing.T) {
	c := qt.New(t)

	rdf := `<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"/></x:xmpmeta>`
	file := buildPNGWithXMP(rdf)

	m := store.New(store.Limits{})
	scratch := make([]scanner.ContainerBlockRef, 0)
	result := ReadMeta(m, file, scratch, Options{})
	c.Assert(result.Status, qt.Equals, OutputTruncated)
	c.Assert(result.BlocksNeeded, qt.Equals, 1)

	scratch = make([]scanner.ContainerBlockRef, result.BlocksNeeded)
	result = ReadMeta(m, file, scratch, Options{})
	c.Assert(result.Status, qt.Equals, Ok)
}

func TestReadMetaSkipsUndecodableKinds(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	var text bytes.Buffer
	text.WriteString("Comment")
	text.WriteByte(0)
	text.WriteString("just a comment")
	writePNGChunk(&buf, "tEXt", text.Bytes())
	writePNGChunk(&buf, "IEND", nil)

	m := store.New(store.Limits{})
	scratch := make([]scanner.ContainerBlockRef, 16)
	result := ReadMeta(m, buf.Bytes(), scratch, Options{})

	c.Assert(result.Status, qt.Equals, Ok)
	c.Assert(result.BlocksFound, qt.Equals, 1)
	c.Assert(result.BlocksDecoded, qt.Equals, 0)
}

// buildMinimalCRW builds a CRW/CIFF file whose "II"/"MM" byte-order mark
// makes ScanTIFF (and so ScanAuto) reject it as an invalid TIFF, exercising
// ReadMeta's CRW whole-file fallback path. Layout mirrors crw_test.go's
// buildRootDir/buildFile helpers: a heap holding one unsignedLong value,
// one 10-byte directory entry pointing at it, and a trailer giving the
// entry table's offset.
func buildMinimalCRW() []byte {
	var dir bytes.Buffer
	heap := []byte{0x2A, 0x00, 0x00, 0x00} // u32 = 42
	dir.Write(heap)
	entryOff := uint32(dir.Len())
	binary.Write(&dir, binary.LittleEndian, uint16(1)) // entry_count
	binary.Write(&dir, binary.LittleEndian, uint16(0x1834))
	binary.Write(&dir, binary.LittleEndian, uint32(4))
	binary.Write(&dir, binary.LittleEndian, uint32(0))
	binary.Write(&dir, binary.LittleEndian, entryOff) // trailer

	var file bytes.Buffer
	file.WriteString("II")
	binary.Write(&file, binary.LittleEndian, uint32(14)) // root offset
	file.WriteString("HEAPCCDR")
	file.Write(dir.Bytes())
	return file.Bytes()
}

func TestReadMetaUnknownFormatTriesCRW(t *testing.T) {
	c := qt.New(t)

	m := store.New(store.Limits{})
	scratch := make([]scanner.ContainerBlockRef, 16)
	result := ReadMeta(m, buildMinimalCRW(), scratch, Options{})

	c.Assert(result.Status, qt.Equals, Ok)

	m.Finalize()
	e, ok := m.Find(store.MetaKeyView{Kind: store.KeyExifTag, Ifd: "ciff_root", Tag: 0x1834})
	c.Assert(ok, qt.IsTrue)
	c.Assert(e.Value.Scalar.U64, qt.Equals, uint64(42))
}
