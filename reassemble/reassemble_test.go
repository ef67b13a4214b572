// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package reassemble

import (
	"bytes"
	"compress/zlib"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/openmeta-go/openmeta/scanner"
)

func TestExtractPayloadSingleExtent(t *testing.T) {
	c := qt.New(t)
	src := []byte("xxxxHELLOxxxx")
	parts := []scanner.ContainerBlockRef{
		{DataOffset: 4, DataSize: 5},
	}
	out := make([]byte, 16)
	res := ExtractPayload(src, parts, out, Limits{})
	c.Assert(res.Status, qt.Equals, Ok)
	c.Assert(string(out[:res.Written]), qt.Equals, "HELLO")
}

func TestExtractPayloadSeqTotalOrdering(t *testing.T) {
	c := qt.New(t)
	src := []byte("BBBBAAAA")
	parts := []scanner.ContainerBlockRef{
		{DataOffset: 0, DataSize: 4, PartIndex: 1, Chunking: scanner.ChunkingJpegApp2SeqTotal},
		{DataOffset: 4, DataSize: 4, PartIndex: 0, Chunking: scanner.ChunkingJpegApp2SeqTotal},
	}
	out := make([]byte, 16)
	res := ExtractPayload(src, parts, out, Limits{})
	c.Assert(res.Status, qt.Equals, Ok)
	c.Assert(string(out[:res.Written]), qt.Equals, "AAAABBBB")
}

func TestExtractPayloadTruncated(t *testing.T) {
	c := qt.New(t)
	src := []byte("HELLOWORLD")
	parts := []scanner.ContainerBlockRef{{DataOffset: 0, DataSize: 10}}
	out := make([]byte, 4)
	res := ExtractPayload(src, parts, out, Limits{})
	c.Assert(res.Status, qt.Equals, OutputTruncated)
	c.Assert(res.Written, qt.Equals, 4)
	c.Assert(res.Needed, qt.Equals, 10)
}

func TestExtractPayloadDeflate(t *testing.T) {
	c := qt.New(t)
	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, err := w.Write([]byte("decompressed payload"))
	c.Assert(err, qt.IsNil)
	c.Assert(w.Close(), qt.IsNil)

	parts := []scanner.ContainerBlockRef{
		{DataOffset: 0, DataSize: int64(compressed.Len()), Compression: scanner.CompressionDeflate},
	}
	out := make([]byte, 64)
	res := ExtractPayload(compressed.Bytes(), parts, out, Limits{})
	c.Assert(res.Status, qt.Equals, Ok)
	c.Assert(string(out[:res.Written]), qt.Equals, "decompressed payload")
}

func TestExtractPayloadBrotliUnsupported(t *testing.T) {
	c := qt.New(t)
	parts := []scanner.ContainerBlockRef{
		{DataOffset: 0, DataSize: 4, Compression: scanner.CompressionBrotli},
	}
	out := make([]byte, 16)
	res := ExtractPayload([]byte("abcd"), parts, out, Limits{})
	c.Assert(res.Status, qt.Equals, Unsupported)
}

func TestExtractPayloadGifSubBlocks(t *testing.T) {
	c := qt.New(t)
	var region bytes.Buffer
	region.WriteByte(3)
	region.WriteString("abc")
	region.WriteByte(2)
	region.WriteString("de")
	region.WriteByte(0)

	parts := []scanner.ContainerBlockRef{
		{DataOffset: 0, DataSize: int64(region.Len()), Chunking: scanner.ChunkingGifSubBlocks},
	}
	out := make([]byte, 16)
	res := ExtractPayload(region.Bytes(), parts, out, Limits{})
	c.Assert(res.Status, qt.Equals, Ok)
	c.Assert(string(out[:res.Written]), qt.Equals, "abcde")
}
