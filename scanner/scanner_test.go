// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package scanner

import (
	"bytes"
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"
)

func buildJPEGWithExif(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xd8})
	seg := append(append([]byte{}, exifPrefix...), payload...)
	buf.Write([]byte{0xff, 0xe1})
	binary.Write(&buf, binary.BigEndian, uint16(len(seg)+2))
	buf.Write(seg)
	buf.Write([]byte{0xff, 0xd9})
	return buf.Bytes()
}

func TestScanJPEGExif(t *testing.T) {
	c := qt.New(t)
	b := buildJPEGWithExif([]byte("II*\x00\x08\x00\x00\x00"))
	out := make([]ContainerBlockRef, 4)
	res := ScanJPEG(b, out)
	c.Assert(res.Status, qt.Equals, Ok)
	c.Assert(res.Written, qt.Equals, 1)
	c.Assert(out[0].Kind, qt.Equals, BlockExif)
	c.Assert(out[0].Format, qt.Equals, FormatJPEG)
}

func TestScanJPEGOutputTruncated(t *testing.T) {
	c := qt.New(t)
	b := buildJPEGWithExif([]byte("II*\x00\x08\x00\x00\x00"))
	out := make([]ContainerBlockRef, 0)
	res := ScanJPEG(b, out)
	c.Assert(res.Status, qt.Equals, OutputTruncated)
	c.Assert(res.Written, qt.Equals, 0)
	c.Assert(res.Needed, qt.Equals, 1)
}

func buildPNGWithEXIf(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Write(pngSignature)
	writeChunk(&buf, "eXIf", payload)
	writeChunk(&buf, "IEND", nil)
	return buf.Bytes()
}

func writeChunk(buf *bytes.Buffer, typ string, data []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(typ)
	buf.Write(data)
	binary.Write(buf, binary.BigEndian, uint32(0)) // fake crc, unchecked
}

func TestScanPNGExif(t *testing.T) {
	c := qt.New(t)
	b := buildPNGWithEXIf([]byte("MM\x00*\x00\x00\x00\x08"))
	out := make([]ContainerBlockRef, 4)
	res := ScanPNG(b, out)
	c.Assert(res.Status, qt.Equals, Ok)
	c.Assert(res.Written, qt.Equals, 1)
	c.Assert(out[0].Kind, qt.Equals, BlockExif)
}

func TestScanGIFApplicationExtensionXMP(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer
	buf.WriteString("GIF89a")
	buf.Write([]byte{0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}) // screen descriptor, no global color table
	buf.Write([]byte{0x21, 0xff, 0x0b})
	buf.WriteString("XMP DataXMP")
	xml := []byte("<x:xmpmeta/>")
	buf.WriteByte(byte(len(xml)))
	buf.Write(xml)
	buf.WriteByte(0x00) // sub-block chain terminator
	buf.WriteByte(0x3b)

	out := make([]ContainerBlockRef, 4)
	res := ScanGIF(buf.Bytes(), out)
	c.Assert(res.Status, qt.Equals, Ok)
	c.Assert(res.Written, qt.Equals, 1)
	c.Assert(out[0].Kind, qt.Equals, BlockXmp)
	c.Assert(out[0].Chunking, qt.Equals, ChunkingGifSubBlocks)
}

func buildClassicTIFFWithXMP(xmp []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint16(42))
	binary.Write(&buf, binary.LittleEndian, uint32(8))

	// single-entry IFD at offset 8: tag=XMP, type=1(byte), count=len(xmp), value offset after table.
	entryOff := 8
	tableSize := 2 + 12 + 4
	valueOff := entryOff + tableSize
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(tiffTagXMP))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(len(xmp)))
	binary.Write(&buf, binary.LittleEndian, uint32(valueOff))
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // next IFD
	buf.Write(xmp)
	return buf.Bytes()
}

func TestScanTIFFXMP(t *testing.T) {
	c := qt.New(t)
	b := buildClassicTIFFWithXMP([]byte("<x:xmpmeta/>"))
	out := make([]ContainerBlockRef, 4)
	res := ScanTIFF(b, out)
	c.Assert(res.Status, qt.Equals, Ok)
	c.Assert(res.Written, qt.Equals, 1)
	c.Assert(out[0].Kind, qt.Equals, BlockXmp)
}

func TestScanAutoDispatchesByMagic(t *testing.T) {
	c := qt.New(t)
	jpeg := buildJPEGWithExif([]byte("II*\x00\x08\x00\x00\x00"))
	out := make([]ContainerBlockRef, 4)
	res := ScanAuto(jpeg, out)
	c.Assert(res.Format, qt.Equals, FormatJPEG)
	c.Assert(res.Status, qt.Equals, Ok)
}

func TestScanAutoUnknownIsUnsupported(t *testing.T) {
	c := qt.New(t)
	out := make([]ContainerBlockRef, 4)
	res := ScanAuto([]byte("not a real image"), out)
	c.Assert(res.Status, qt.Equals, Unsupported)
}
