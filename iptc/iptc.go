// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package iptc decodes an IPTC-IIM dataset stream (the payload of a
// Photoshop 8BIM 0x0404 resource, or a bare Exif/TIFF IPTC-NAA tag) into
// store.MetaStore entries keyed by store.KeyIptcDataset (spec §4.7
// "IPTC-IIM decoder").
//
// Grounded on the teacher's metadecoder_iptc.go record loop (0x1C marker,
// record/dataset/size triplet), generalized to the IPTC-IIM "extended
// dataset" length form (size field's high bit set means "N more
// length-bytes follow") that the teacher's fixed-width read2 length
// doesn't handle, and simplified to store every dataset's raw bytes rather
// than apply the teacher's per-field name/format table (metadecoder_iptc's
// embedded exiftool JSON asset isn't reproduced here).
package iptc

import (
	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/store"
)

const datasetCodedCharacterSet = 90

// Decode walks the 0x1C-delimited dataset stream in data and records one
// entry per dataset under block.
func Decode(m *store.MetaStore, block store.BlockID, data []byte) store.Status {
	status := store.Ok
	pos := 0
	order := uint32(0)

	for pos < len(data) {
		marker, ok := bytesreader.U8(data, pos)
		if !ok {
			break
		}
		if marker != 0x1c {
			// Trailing padding or a non-IIM tail; stop cleanly rather than
			// flag every file with a padding byte as malformed.
			break
		}
		if !bytesreader.InBounds(len(data), pos+1, 3) {
			status = store.Merge(status, store.Malformed)
			break
		}
		record, _ := bytesreader.U8(data, pos+1)
		dataset, _ := bytesreader.U8(data, pos+2)
		lenField, _ := bytesreader.U16BE(data, pos+3)
		headerEnd := pos + 5

		var size int
		if lenField&0x8000 != 0 {
			extBytes := int(lenField & 0x7fff)
			if extBytes > 8 || !bytesreader.InBounds(len(data), headerEnd, extBytes) {
				status = store.Merge(status, store.Malformed)
				break
			}
			size = 0
			for i := 0; i < extBytes; i++ {
				b, _ := bytesreader.U8(data, headerEnd+i)
				size = size<<8 | int(b)
			}
			headerEnd += extBytes
		} else {
			size = int(lenField)
		}

		if !bytesreader.InBounds(len(data), headerEnd, size) {
			status = store.Merge(status, store.Malformed)
			break
		}
		raw := data[headerEnd : headerEnd+size]

		key := store.MetaKeyView{Kind: store.KeyIptcDataset, Record: record, Dataset: dataset}
		val := m.BytesValue(raw)
		origin := store.Origin{OrderInBlock: order, WireFamily: store.WireFamilyIptc, WireCode: uint16(dataset), WireCount: uint32(size)}
		m.AddEntry(block, key, val, origin, 0)
		order++

		pos = headerEnd + size
	}

	return status
}
