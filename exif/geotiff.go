// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package exif

import (
	"encoding/binary"

	"github.com/openmeta-go/openmeta/store"
)

// decodeGeoKeys decodes the GeoTIFF GeoKeyDirectoryTag (0x87AF): an array of
// uint16 values, header (version, keyRevision, minorRevision, numberOfKeys)
// followed by numberOfKeys 4-tuples of (keyID, tiffTagLocation, count,
// valueOffset). When tiffTagLocation is 0 the value is the raw short
// itself; otherwise it's an offset into GeoDoubleParamsTag/
// GeoAsciiParamsTag, which this decoder does not cross-reference — it
// records the (location, count, offset) triple as the value so a caller
// with access to the sibling tags can resolve it. Supplemented from
// original_source; the teacher has no GeoTIFF support.
func decodeGeoKeys(m *store.MetaStore, block store.BlockID, order uint32, raw []byte, byteOrder binary.ByteOrder) store.Status {
	if len(raw) < 8 {
		return store.Malformed
	}
	numKeys := byteOrder.Uint16(raw[6:8])

	status := store.Ok
	pos := 8
	for i := 0; i < int(numKeys); i++ {
		if pos+8 > len(raw) {
			status = store.Merge(status, store.Malformed)
			break
		}
		keyID := byteOrder.Uint16(raw[pos : pos+2])
		location := byteOrder.Uint16(raw[pos+2 : pos+4])
		count := byteOrder.Uint16(raw[pos+4 : pos+6])
		valueOrOffset := byteOrder.Uint16(raw[pos+6 : pos+8])

		key := store.MetaKeyView{Kind: store.KeyGeotiffKey, GeoKey: keyID}
		var val store.MetaValue
		if location == 0 {
			val = store.ScalarU64(store.ElemU16, uint64(valueOrOffset))
		} else {
			packed := make([]byte, 6)
			byteOrder.PutUint16(packed[0:2], location)
			byteOrder.PutUint16(packed[2:4], count)
			byteOrder.PutUint16(packed[4:6], valueOrOffset)
			val = m.BytesValue(packed)
		}
		origin := store.Origin{OrderInBlock: order, WireFamily: store.WireFamilyTiff, WireCode: keyID}
		m.AddEntry(block, key, val, origin, 0)
		pos += 8
	}
	return status
}
