// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package exif

import (
	"strconv"

	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/store"
)

var printIMMagic = [8]byte{'P', 'r', 'i', 'n', 't', 'I', 'M', 0}

// decodePrintIM decodes an Epson Print Image Matching (PrintIM) sub-block,
// found inline in EXIF tag 0xC4A5. The format is "PrintIM\0" + version(2) +
// unknown(2) + count(2, little-endian) + count * (id(2) + value(4)), always
// little-endian regardless of the surrounding TIFF byte order. Supplemented
// from original_source (not present in the teacher, which has no RAW/
// maker-note decoding beyond plain EXIF tags).
func decodePrintIM(m *store.MetaStore, block store.BlockID, order uint32, raw []byte) store.Status {
	if len(raw) < 14 || [8]byte(raw[0:8]) != printIMMagic {
		return store.Unsupported
	}
	count, ok := bytesreader.U16LE(raw, 12)
	if !ok {
		return store.Malformed
	}

	status := store.Ok
	pos := 14
	for i := 0; i < int(count); i++ {
		if !bytesreader.InBounds(len(raw), pos, 6) {
			status = store.Merge(status, store.Malformed)
			break
		}
		id, _ := bytesreader.U16LE(raw, pos)
		value, _ := bytesreader.U32LE(raw, pos+4)
		key := store.MetaKeyView{Kind: store.KeyPrintImField, Field: "0x" + strconv.FormatUint(uint64(id), 16)}
		val := store.ScalarU64(store.ElemU32, uint64(value))
		origin := store.Origin{OrderInBlock: order, WireFamily: store.WireFamilyTiff, WireCode: id}
		m.AddEntry(block, key, val, origin, 0)
		pos += 6
	}
	return status
}
