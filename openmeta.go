// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package openmeta is the library entry point: ReadMeta scans a file,
// reassembles each metadata-bearing block it finds, and dispatches the
// reassembled payload to the matching decoder (spec §4.10 "Orchestration:
// simple_meta_read", §6.1 "Library entry points").
//
// Grounded on the teacher's imagemeta.go Decode(opts Options) entry point
// for its overall shape (one call wires scan -> extract -> decode,
// recovers decoder panics into a Status rather than letting them escape,
// and takes an optional Warnf hook for non-fatal anomalies) generalized
// from a single streaming TIFF/JPEG walk to the store/scanner/reassemble
// pipeline built for this module.
package openmeta

import (
	"fmt"

	"github.com/openmeta-go/openmeta/crw"
	"github.com/openmeta-go/openmeta/exif"
	"github.com/openmeta-go/openmeta/exr"
	"github.com/openmeta-go/openmeta/icc"
	"github.com/openmeta-go/openmeta/iptc"
	"github.com/openmeta-go/openmeta/irb"
	"github.com/openmeta-go/openmeta/jumbf"
	"github.com/openmeta-go/openmeta/reassemble"
	"github.com/openmeta-go/openmeta/scanner"
	"github.com/openmeta-go/openmeta/store"
	"github.com/openmeta-go/openmeta/xmp"
)

// Options configures ReadMeta. Every decoder-specific limit not named here
// is left at its package's own default.
type Options struct {
	// Warnf, when set, is called for recoverable anomalies that don't
	// change the returned Status: a decoder panic recovered into
	// Malformed, a block kind with no decoder, a compression scheme no
	// library in this module can decompress. Mirrors the teacher's
	// Options.Warnf, generalized from one streaming decode to the whole
	// scan -> reassemble -> decode pipeline.
	Warnf func(format string, args ...any)

	// Jumbf configures the JUMBF/CBOR/C2PA decoder. Zero value falls back
	// to jumbf.DefaultOptions().
	Jumbf jumbf.Options

	// Xmp configures the XMP/RDF decoder. Zero value falls back to
	// xmp.DefaultOptions().
	Xmp xmp.Options

	// Payload bounds reassembled payload size. Zero value falls back to
	// reassemble.DefaultLimits().
	Payload reassemble.Limits
}

func (o Options) warnf(format string, args ...any) {
	if o.Warnf != nil {
		o.Warnf(format, args...)
	}
}

func (o Options) jumbfOptions() jumbf.Options {
	if o.Jumbf.Limits == (jumbf.Limits{}) && !o.Jumbf.DecodeCBOR && !o.Jumbf.DetectC2PA {
		return jumbf.DefaultOptions()
	}
	return o.Jumbf
}

func (o Options) xmpOptions() xmp.Options {
	if o.Xmp.Limits == (xmp.Limits{}) && !o.Xmp.DecodeDescriptionAttributes {
		return xmp.DefaultOptions()
	}
	return o.Xmp
}

// Result is the outcome of a ReadMeta call.
type Result struct {
	Status Status

	// BlocksFound is the number of ContainerBlockRef entries the scan
	// wrote into blocksScratch (scanner.ScanResult.Written).
	BlocksFound int

	// BlocksNeeded is the number of ContainerBlockRef entries the scan
	// would have written given unlimited scratch
	// (scanner.ScanResult.Needed).
	BlocksNeeded int

	// BlocksDecoded counts logical blocks (after grouping multi-part
	// chunks into one) that a decoder accepted with Status == Ok.
	BlocksDecoded int
}

// Status re-exports store.Status so callers of this package need not
// import store directly for the common case.
type Status = store.Status

const (
	Ok              = store.Ok
	OutputTruncated = store.OutputTruncated
	Unsupported     = store.Unsupported
	Malformed       = store.Malformed
	LimitExceeded   = store.LimitExceeded
)

// ReadMeta scans fileBytes for metadata-bearing blocks, reassembles each
// one, and dispatches it to the matching decoder, writing every decoded
// fact into m (spec §4.10).
//
// blocksScratch is caller-owned scan scratch; like scanner.ScanAuto
// itself, ReadMeta does not grow it on the caller's behalf -- on
// OutputTruncated the caller should regrow blocksScratch to
// result.BlocksNeeded and call ReadMeta again, matching spec §6.1's
// scratch-buffer-growth contract.
func ReadMeta(m *store.MetaStore, fileBytes []byte, blocksScratch []scanner.ContainerBlockRef, opts Options) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			opts.warnf("openmeta: recovered panic: %v", r)
			result.Status = store.Merge(result.Status, Malformed)
		}
	}()

	scan := scanner.ScanAuto(fileBytes, blocksScratch)
	result.Status = scan.Status
	result.BlocksFound = scan.Written
	result.BlocksNeeded = scan.Needed

	if scan.Status == OutputTruncated {
		return result
	}

	refs := blocksScratch[:scan.Written]
	haveExifBlock := false
	for _, grp := range groupBlocks(refs) {
		if grp[0].Kind == scanner.BlockExif {
			haveExifBlock = true
		}
		st := decodeGroup(m, fileBytes, grp, opts)
		result.Status = store.Merge(result.Status, st)
		if st == Ok {
			result.BlocksDecoded++
		}
	}

	if scan.Format == scanner.FormatTIFF && !haveExifBlock && scan.Status != Unsupported {
		result.Status = store.Merge(result.Status, decodeWholeFileTIFF(m, fileBytes))
	}

	// Whole-file container kinds scanner.ScanAuto either doesn't
	// recognize at all (FormatUnknown), or misidentifies as a plain TIFF
	// and then rejects (legacy Canon CRW/CIFF opens with the same "II"/
	// "MM" byte-order mark as TIFF but fails ScanTIFF's version check):
	// spec §4.10 point 3's "EXR decoder runs on whole files when the EXR
	// magic matches", generalized to also try CRW/CIFF, since CIFF has no
	// ContainerBlockRef Kind of its own -- its tags are discovered by
	// fully parsing the container, not by a cheap signature scan.
	if len(refs) == 0 && scan.Status == Unsupported {
		if st := tryWholeFileEXR(m, fileBytes); st != Unsupported {
			result.Status = store.Merge(result.Status, st)
		} else if st := crw.Decode(m, fileBytes); st != Unsupported {
			result.Status = store.Merge(result.Status, st)
		}
	}

	return result
}

func tryWholeFileEXR(m *store.MetaStore, data []byte) Status {
	newBlock := func() store.BlockID {
		id, _ := m.AddBlock(store.BlockInfo{Kind: store.BlockKindExrPart, Label: "exr"})
		return id
	}
	return exr.Decode(m, newBlock, data)
}

func decodeWholeFileTIFF(m *store.MetaStore, data []byte) Status {
	block, err := m.AddBlock(store.BlockInfo{Kind: store.BlockKindIfd, Label: "tiff"})
	if err != nil {
		return LimitExceeded
	}
	return exif.Decode(m, block, data)
}

// groupBlocks partitions refs into the logical blocks reassemble.ExtractPayload
// expects: parts "sharing Chunking/Group/ID" per its doc comment. ID is
// assigned sequentially by the scanner's sink and is never shared across
// parts, so a ChunkingNone ref is always its own singleton group; a
// chunked ref (Chunking != ChunkingNone) groups with every other ref of
// the same Kind and Group.
func groupBlocks(refs []scanner.ContainerBlockRef) [][]scanner.ContainerBlockRef {
	type key struct {
		kind     scanner.BlockKind
		chunking scanner.Chunking
		group    uint64
		id       uint32
	}
	order := make([]key, 0, len(refs))
	groups := make(map[key][]scanner.ContainerBlockRef, len(refs))
	for _, r := range refs {
		k := key{kind: r.Kind, chunking: r.Chunking, group: r.Group}
		if r.Chunking == scanner.ChunkingNone {
			k.id = r.ID
		}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}
	out := make([][]scanner.ContainerBlockRef, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}

// decodable reports whether kind is one of the scanner.BlockKind values spec §4.10 point 2
// names as decodable; BlockMpf, BlockComment and BlockUnknown are scanned
// for completeness but have no decoder in this module.
func decodable(kind scanner.BlockKind) bool {
	switch kind {
	case scanner.BlockExif, scanner.BlockXmp, scanner.BlockXmpExtended, scanner.BlockIcc,
		scanner.BlockIptcIim, scanner.BlockPhotoshopIrb, scanner.BlockCompressedMetadata, scanner.BlockJumbf:
		return true
	default:
		return false
	}
}

func decodeGroup(m *store.MetaStore, fileBytes []byte, parts []scanner.ContainerBlockRef, opts Options) Status {
	kind := parts[0].Kind
	if !decodable(kind) {
		opts.warnf("openmeta: block kind %d: no decoder", kind)
		return Ok
	}

	payload, status, ok := extract(fileBytes, parts, opts.Payload)
	if !ok {
		return status
	}
	if status == Unsupported {
		opts.warnf("openmeta: block kind %d: unsupported compression", kind)
		return Ok
	}

	block, err := m.AddBlock(store.BlockInfo{Kind: blockKindFor(kind), Label: blockLabelFor(kind)})
	if err != nil {
		return LimitExceeded
	}

	switch kind {
	case scanner.BlockExif:
		return exif.Decode(m, block, payload)
	case scanner.BlockXmp, scanner.BlockXmpExtended:
		return xmp.Decode(m, block, payload, opts.xmpOptions())
	case scanner.BlockIcc:
		return icc.Decode(m, block, payload)
	case scanner.BlockIptcIim:
		return iptc.Decode(m, block, payload)
	case scanner.BlockPhotoshopIrb:
		return irb.Decode(m, block, payload)
	case scanner.BlockJumbf:
		res := jumbf.Decode(m, block, payload, 0, opts.jumbfOptions())
		return res.Status
	case scanner.BlockCompressedMetadata:
		return decodeOpaqueMetadata(m, block, payload)
	default:
		return Ok
	}
}

// extract reassembles parts, growing the output buffer once if the first
// attempt (sized from the sum of each part's DataSize, an exact bound for
// uncompressed parts and a lower bound otherwise) reports
// OutputTruncated.
func extract(fileBytes []byte, parts []scanner.ContainerBlockRef, limits reassemble.Limits) (payload []byte, status Status, ok bool) {
	guess := 0
	for _, p := range parts {
		if p.DataSize > 0 {
			guess += int(p.DataSize)
		}
	}
	out := make([]byte, guess)
	res := reassemble.ExtractPayload(fileBytes, parts, out, limits)
	if res.Status == OutputTruncated {
		out = make([]byte, res.Needed)
		res = reassemble.ExtractPayload(fileBytes, parts, out, limits)
	}
	switch res.Status {
	case Malformed, LimitExceeded:
		return nil, res.Status, false
	}
	return out[:res.Written], res.Status, true
}

// decodeOpaqueMetadata handles scanner.BlockCompressedMetadata: a PNG zTXt
// chunk (or similar) whose keyword the scanner did not recognize, already
// decompressed by reassemble.ExtractPayload. Nothing in spec.md ties an
// unrecognized compressed-text chunk to a specific decoder, so this
// sniffs the decompressed payload's own leading bytes the same way
// scanner.ScanAuto sniffs a whole file, and falls through to Unsupported
// if nothing matches.
func decodeOpaqueMetadata(m *store.MetaStore, block store.BlockID, payload []byte) Status {
	switch {
	case len(payload) >= 8 && (payload[0] == 'I' && payload[1] == 'I' || payload[0] == 'M' && payload[1] == 'M'):
		return exif.Decode(m, block, payload)
	case len(payload) >= 1 && payload[0] == 0x1c:
		return iptc.Decode(m, block, payload)
	default:
		return Unsupported
	}
}

func blockKindFor(kind scanner.BlockKind) store.BlockKind {
	switch kind {
	case scanner.BlockExif:
		return store.BlockKindIfd
	case scanner.BlockXmp, scanner.BlockXmpExtended:
		return store.BlockKindXmp
	case scanner.BlockIcc:
		return store.BlockKindIcc
	case scanner.BlockIptcIim:
		return store.BlockKindIptc
	case scanner.BlockPhotoshopIrb:
		return store.BlockKindIrb
	case scanner.BlockJumbf:
		return store.BlockKindJumbf
	default:
		return store.BlockKindUnknown
	}
}

func blockLabelFor(kind scanner.BlockKind) string {
	switch kind {
	case scanner.BlockExif:
		return "exif"
	case scanner.BlockXmp:
		return "xmp"
	case scanner.BlockXmpExtended:
		return "xmp-extended"
	case scanner.BlockIcc:
		return "icc"
	case scanner.BlockIptcIim:
		return "iptc-iim"
	case scanner.BlockPhotoshopIrb:
		return "photoshop-irb"
	case scanner.BlockJumbf:
		return "jumbf"
	case scanner.BlockCompressedMetadata:
		return "compressed-metadata"
	default:
		return fmt.Sprintf("block-kind-%d", kind)
	}
}
