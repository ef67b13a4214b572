// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package scanner implements the container scanner (spec §4.3): format
// detection plus a walk of JPEG/PNG/WebP/GIF/TIFF/ISO-BMFF containers that
// emits a ContainerBlockRef for every metadata block it finds, into
// caller-provided scratch. It never decodes payloads itself — that is
// reassemble.ExtractPayload's job — and it never allocates the output
// slice, mirroring the teacher's callback-driven, caller-owns-memory style
// (imagemeta.Options/HandleTag) generalized to a sink instead of a callback.
package scanner

import "github.com/openmeta-go/openmeta/store"

// Format names the detected container format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatPNG
	FormatWebP
	FormatGIF
	FormatTIFF
	FormatJP2
	FormatJXL
	FormatISOBMFF
)

// BlockKind names what kind of metadata payload a ContainerBlockRef
// describes.
type BlockKind uint8

const (
	BlockUnknown BlockKind = iota
	BlockExif
	BlockXmp
	BlockXmpExtended
	BlockIcc
	BlockIptcIim
	BlockPhotoshopIrb
	BlockMpf
	BlockComment
	BlockCompressedMetadata
	BlockJumbf
)

// Compression names the discipline required to go from the outer bytes to
// the logical payload.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionDeflate
	CompressionBrotli
)

// Chunking names the reassembly discipline for a block's payload, per spec
// §4.3 "Semantics of chunking tags".
type Chunking uint8

const (
	ChunkingNone Chunking = iota
	ChunkingJpegApp2SeqTotal
	ChunkingJpegXmpExtendedGuidOffset
	ChunkingGifSubBlocks
	ChunkingBmffExifTiffOffsetU32Be
	ChunkingBrobU32BeRealTypePrefix
	ChunkingJp2UuidPayload
	ChunkingPsIrb8Bim
)

// ContainerBlockRef is one discovered metadata block, scoped to the
// caller's scratch slice and the source file bytes (never retained past the
// call, per spec §3.3).
type ContainerBlockRef struct {
	Format      Format
	Kind        BlockKind
	Compression Compression
	Chunking    Chunking

	OuterOffset int64
	OuterSize   int64
	DataOffset  int64
	DataSize    int64

	ID         uint32
	PartIndex  uint32
	PartCount  uint32
	LogicalOff uint64
	LogicalSize uint64
	Group      uint64
	AuxU32     uint32
}

// ScanResult is the outcome of a scan call.
type ScanResult struct {
	Status Status
	Format Format
	// Written is the number of refs actually recorded into the caller's
	// scratch slice.
	Written int
	// Needed is the total number of refs the scan would have emitted given
	// unlimited scratch; Needed > Written iff Status == OutputTruncated.
	Needed int
}

// Status mirrors store.Status but is re-exported here so callers that only
// import scanner don't need the store package for this alone.
type Status = store.Status

const (
	Ok              = store.Ok
	OutputTruncated = store.OutputTruncated
	Unsupported     = store.Unsupported
	Malformed       = store.Malformed
	LimitExceeded   = store.LimitExceeded
)

// sink implements the "emit increments needed; if written < cap, record in
// place, else set status = OutputTruncated on first overflow" discipline
// from spec §4.3.
type sink struct {
	out    []ContainerBlockRef
	needed int
	status Status
}

func newSink(out []ContainerBlockRef) *sink {
	return &sink{out: out[:0]}
}

func (s *sink) emit(ref ContainerBlockRef) {
	ref.ID = uint32(s.needed)
	if len(s.out) < cap(s.out) {
		s.out = append(s.out, ref)
	} else {
		s.status = OutputTruncated
	}
	s.needed++
}

func (s *sink) result(format Format, base Status) ScanResult {
	return ScanResult{
		Status: store.Merge(base, s.status),
		Format: format,
		Written: len(s.out),
		Needed:  s.needed,
	}
}
