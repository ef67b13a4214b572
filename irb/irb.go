// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package irb decodes a Photoshop Image Resource Block stream (8BIM
// resources) into store.MetaStore entries keyed by store.KeyPhotoshopIrb
// (spec §4.7 "Photoshop IRB decoder"). The IPTC-IIM payload living inside
// resource 0x0404 is not decoded here — that's the iptc package's job; this
// package only records it as a raw blob so a caller can reassemble+decode
// it as its own block.
//
// Grounded on the teacher's metadecoder_iptc.go decodeBlocks, which walks
// the same "8BIM" + id + Pascal-string name + size grammar on its way to
// finding resource 0x0404; generalized from "only care about 0x0404" to
// "record every resource".
package irb

import (
	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/store"
)

var signature8BIM = [4]byte{'8', 'B', 'I', 'M'}

// Decode walks the 8BIM resource chain in data and records one entry per
// resource under block.
func Decode(m *store.MetaStore, block store.BlockID, data []byte) store.Status {
	status := store.Ok
	pos := 0
	order := uint32(0)

	for pos < len(data) {
		if !bytesreader.InBounds(len(data), pos, 4) {
			break
		}
		if [4]byte(data[pos:pos+4]) != signature8BIM {
			status = store.Merge(status, store.Malformed)
			break
		}
		id, ok := bytesreader.U16BE(data, pos+4)
		if !ok {
			status = store.Merge(status, store.Malformed)
			break
		}

		nameLenOff := pos + 6
		nameLen, ok := bytesreader.U8(data, nameLenOff)
		if !ok {
			status = store.Merge(status, store.Malformed)
			break
		}
		nameTotal := int(nameLen) + 1
		if nameTotal%2 == 1 {
			nameTotal++
		}
		sizeOff := nameLenOff + nameTotal
		size, ok := bytesreader.U32BE(data, sizeOff)
		if !ok {
			status = store.Merge(status, store.Malformed)
			break
		}
		dataOff := sizeOff + 4
		if !bytesreader.InBounds(len(data), dataOff, int(size)) {
			status = store.Merge(status, store.Malformed)
			break
		}
		raw := data[dataOff : dataOff+int(size)]

		key := store.MetaKeyView{Kind: store.KeyPhotoshopIrb, ResourceID: id}
		val := m.BytesValue(raw)
		origin := store.Origin{OrderInBlock: order, WireFamily: store.WireFamilyIrb, WireCode: id, WireCount: size}
		m.AddEntry(block, key, val, origin, 0)
		order++

		next := dataOff + int(size)
		if size%2 == 1 {
			next++ // resource data is padded to an even length
		}
		pos = next
	}

	return status
}
