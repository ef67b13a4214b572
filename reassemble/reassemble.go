// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package reassemble turns one or more scanner.ContainerBlockRef parts,
// sharing a single logical block, into one contiguous payload ready for a
// format decoder. It applies the chunking discipline named by the ref
// (sequence/total, GUID+offset, GIF sub-blocks, BMFF multi-extent) and then
// any required decompression (spec §4.4 "Reassembly & decompression").
//
// Grounded on the teacher's io.go buffered-reader/io.LimitReader chaining
// (imagedecoder_jpg.go's handleEXIF/handleIPTC), generalized from "stream
// straight into a decoder" to "concatenate scattered extents into a
// caller-owned buffer, then stream that through compress/zlib".
package reassemble

import (
	"bytes"
	"compress/zlib"
	"io"
	"sort"

	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/scanner"
	"github.com/openmeta-go/openmeta/store"
)

// Status aliases store.Status so callers that only import reassemble don't
// need the store package for this alone.
type Status = store.Status

const (
	Ok              = store.Ok
	OutputTruncated = store.OutputTruncated
	Unsupported     = store.Unsupported
	Malformed       = store.Malformed
	LimitExceeded   = store.LimitExceeded
)

// Limits bounds the size of a single reassembled payload.
type Limits struct {
	// MaxPayloadBytes caps the reassembled (post-decompression) payload
	// size. Zero means DefaultLimits().MaxPayloadBytes.
	MaxPayloadBytes int
}

// DefaultLimits matches the teacher's conservative defaults
// (defaultLimitNumTags / defaultLimitTagSize in imagemeta.go), scaled to
// the larger payloads (ICC profiles, extended XMP) this package handles.
func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 64 << 20}
}

func (l Limits) withDefaults() Limits {
	if l.MaxPayloadBytes <= 0 {
		l.MaxPayloadBytes = DefaultLimits().MaxPayloadBytes
	}
	return l
}

// Result is the outcome of ExtractPayload.
type Result struct {
	Status Status
	// Written is the number of bytes actually copied into the caller's out
	// slice.
	Written int
	// Needed is the total reassembled payload size; Needed > Written when
	// Status includes OutputTruncated. On LimitExceeded, Needed reports the
	// oversized length and Written is 0.
	Needed int
}

// ExtractPayload reassembles parts (all parts of a single logical block,
// sharing Chunking/Group/ID) against src (the full source file bytes) and
// writes the result into out[:cap(out)], per spec §4.4. parts need not be
// pre-sorted; ExtractPayload orders them per the chunking discipline.
func ExtractPayload(src []byte, parts []scanner.ContainerBlockRef, out []byte, limits Limits) Result {
	limits = limits.withDefaults()
	if len(parts) == 0 {
		return Result{Status: Malformed}
	}

	raw, status := concatenate(src, parts)
	if status == Malformed {
		return Result{Status: Malformed}
	}

	comp := parts[0].Compression
	var payload []byte
	switch comp {
	case scanner.CompressionNone:
		payload = raw
	case scanner.CompressionDeflate:
		decoded, derr := inflate(raw, limits.MaxPayloadBytes)
		if derr != nil {
			return Result{Status: store.Merge(status, Malformed)}
		}
		payload = decoded
	case scanner.CompressionBrotli:
		// No Brotli decoder is available anywhere in this module's
		// dependency set; report unsupported rather than guess.
		return Result{Status: store.Merge(status, Unsupported)}
	default:
		payload = raw
	}

	if len(payload) > limits.MaxPayloadBytes {
		return Result{Status: LimitExceeded, Needed: len(payload)}
	}

	n := copy(out[:cap(out)], payload)
	res := Result{Status: status, Written: n, Needed: len(payload)}
	if n < len(payload) {
		res.Status = store.Merge(res.Status, OutputTruncated)
	}
	return res
}

// concatenate orders parts by their chunking discipline and appends the raw
// (still-compressed, if applicable) extent bytes for each.
func concatenate(src []byte, parts []scanner.ContainerBlockRef) ([]byte, Status) {
	ordered := make([]scanner.ContainerBlockRef, len(parts))
	copy(ordered, parts)

	switch parts[0].Chunking {
	case scanner.ChunkingJpegApp2SeqTotal, scanner.ChunkingBmffExifTiffOffsetU32Be:
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].PartIndex < ordered[j].PartIndex })
		if !seqTotalCovers(ordered) {
			return nil, Malformed
		}
	case scanner.ChunkingJpegXmpExtendedGuidOffset:
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].LogicalOff < ordered[j].LogicalOff })
		if !offsetsCover(ordered) {
			return nil, Malformed
		}
	case scanner.ChunkingGifSubBlocks:
		if len(ordered) != 1 {
			return nil, Malformed
		}
		return concatGifSubBlocks(src, ordered[0])
	case scanner.ChunkingJp2UuidPayload, scanner.ChunkingPsIrb8Bim, scanner.ChunkingNone:
		// single-extent disciplines: nothing to order.
	}

	var buf bytes.Buffer
	for _, p := range ordered {
		if !validExtent(src, p) {
			return nil, Malformed
		}
		buf.Write(src[p.DataOffset : p.DataOffset+p.DataSize])
	}
	out := buf.Bytes()
	if parts[0].Chunking == scanner.ChunkingBmffExifTiffOffsetU32Be {
		tiffOff, ok := bytesreader.U32BE(out, 0)
		if !ok || uint64(tiffOff) > uint64(len(out)) {
			return nil, Malformed
		}
		out = out[tiffOff:]
	}
	return out, Ok
}

// seqTotalCovers reports whether ordered (already sorted by PartIndex)
// indices form exactly 0..part_count once each, per spec §4.4 "Ordering
// and completeness" and §8 property 4. PartCount of zero (no total
// declared by the source) falls back to the part count actually present.
func seqTotalCovers(ordered []scanner.ContainerBlockRef) bool {
	count := ordered[0].PartCount
	if count == 0 {
		count = uint32(len(ordered))
	}
	if uint32(len(ordered)) != count {
		return false
	}
	seen := make(map[uint32]bool, len(ordered))
	for _, p := range ordered {
		if p.PartIndex >= count || seen[p.PartIndex] {
			return false
		}
		seen[p.PartIndex] = true
	}
	return true
}

// offsetsCover reports whether ordered (already sorted by LogicalOff)
// parts tile [0, logical_size) exactly: each part's LogicalOff equals the
// running end of the previous part, with no gap and no overlap, and the
// parts collectively sum to the declared LogicalSize when non-zero, per
// spec §4.4 "Offset streams" and §8 property 3.
func offsetsCover(ordered []scanner.ContainerBlockRef) bool {
	var expected uint64
	for _, p := range ordered {
		if p.DataSize < 0 || p.LogicalOff != expected {
			return false
		}
		expected += uint64(p.DataSize)
	}
	if declared := ordered[0].LogicalSize; declared != 0 && expected != declared {
		return false
	}
	return true
}

func validExtent(src []byte, p scanner.ContainerBlockRef) bool {
	if p.DataOffset < 0 || p.DataSize < 0 {
		return false
	}
	end := p.DataOffset + p.DataSize
	return end >= p.DataOffset && end <= int64(len(src))
}

// concatGifSubBlocks strips the length-prefix byte from each sub-block in
// the chain and concatenates only the payload bytes.
func concatGifSubBlocks(src []byte, p scanner.ContainerBlockRef) ([]byte, Status) {
	if !validExtent(src, p) {
		return nil, Malformed
	}
	region := src[p.DataOffset : p.DataOffset+p.DataSize]
	var buf bytes.Buffer
	pos := 0
	for pos < len(region) {
		n := int(region[pos])
		pos++
		if n == 0 {
			break
		}
		if pos+n > len(region) {
			return nil, Malformed
		}
		buf.Write(region[pos : pos+n])
		pos += n
	}
	return buf.Bytes(), Ok
}

// inflate runs a zlib-wrapped DEFLATE stream (the form PNG and JPEG-embedded
// compressed metadata use) through compress/zlib, bounding output at
// maxBytes to guard against decompression bombs.
func inflate(raw []byte, maxBytes int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	limited := io.LimitReader(zr, int64(maxBytes)+1)
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, limited); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
