// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package icc decodes an ICC profile's 128-byte header and tag table into
// store.MetaStore entries keyed by store.KeyIccHeaderField (one per header
// field, addressed by its byte offset) and store.KeyIccTag (one per tag,
// addressed by its 4-byte signature), per spec §4.7 "ICC profile decoder".
//
// The teacher has no ICC decoder at all (bep-imagemeta only forwards the
// raw ICC_PROFILE APP2 bytes to the caller's HandleTag); this package is
// grounded on the teacher's general binary-reader idiom (fixed big-endian
// header fields read positionally, as metadecoder_exif.go reads the TIFF
// header) applied to the ICC.1:2022 header layout.
package icc

import (
	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/store"
)

// Header field byte offsets, per the ICC.1:2022 specification §7.2.
const (
	offProfileSize          = 0
	offCMMType              = 4
	offProfileVersion       = 8
	offDeviceClass          = 12
	offColorSpace           = 16
	offPCS                  = 20
	offCreationDateTime     = 24
	offSignature            = 36 // "acsp"
	offPrimaryPlatform      = 40
	offProfileFlags         = 44
	offDeviceManufacturer   = 48
	offDeviceModel          = 52
	offDeviceAttributes     = 56
	offRenderingIntent      = 64
	offPCSIlluminant        = 68
	offProfileCreator       = 80
	offProfileID            = 84 // 16-byte MD5
)

var headerFields = []struct {
	offset uint32
	size   int
}{
	{offProfileSize, 4},
	{offCMMType, 4},
	{offProfileVersion, 4},
	{offDeviceClass, 4},
	{offColorSpace, 4},
	{offPCS, 4},
	{offCreationDateTime, 12},
	{offSignature, 4},
	{offPrimaryPlatform, 4},
	{offProfileFlags, 4},
	{offDeviceManufacturer, 4},
	{offDeviceModel, 4},
	{offDeviceAttributes, 8},
	{offRenderingIntent, 4},
	{offPCSIlluminant, 12},
	{offProfileCreator, 4},
	{offProfileID, 16},
}

// Decode parses the 128-byte ICC header plus the tag table that follows it,
// recording one entry per header field and one per tag.
func Decode(m *store.MetaStore, block store.BlockID, data []byte) store.Status {
	if len(data) < 132 {
		return store.Unsupported
	}
	if string(data[offSignature:offSignature+4]) != "acsp" {
		return store.Unsupported
	}

	status := store.Ok
	order := uint32(0)

	if declaredSize, ok := bytesreader.U32BE(data, offProfileSize); !ok || int(declaredSize) != len(data) {
		status = store.Merge(status, store.Malformed)
	}

	for _, f := range headerFields {
		if !bytesreader.InBounds(len(data), int(f.offset), f.size) {
			status = store.Merge(status, store.Malformed)
			continue
		}
		raw := data[f.offset : f.offset+uint32(f.size)]
		key := store.MetaKeyView{Kind: store.KeyIccHeaderField, Offset: f.offset}
		val := m.BytesValue(raw)
		origin := store.Origin{OrderInBlock: order, WireFamily: store.WireFamilyIcc, WireCount: uint32(f.size)}
		m.AddEntry(block, key, val, origin, 0)
		order++
	}

	tagCount, ok := bytesreader.U32BE(data, 128)
	if !ok {
		return store.Merge(status, store.Malformed)
	}

	const tagTableStart = 132
	const tagEntrySize = 12
	for i := uint32(0); i < tagCount; i++ {
		entryOff := tagTableStart + int(i)*tagEntrySize
		sig, ok1 := bytesreader.U32BE(data, entryOff)
		tagOffset, ok2 := bytesreader.U32BE(data, entryOff+4)
		tagSize, ok3 := bytesreader.U32BE(data, entryOff+8)
		if !ok1 || !ok2 || !ok3 {
			status = store.Merge(status, store.Malformed)
			break
		}
		if !bytesreader.InBounds(len(data), int(tagOffset), int(tagSize)) {
			status = store.Merge(status, store.Malformed)
			continue
		}
		raw := data[tagOffset : tagOffset+tagSize]
		key := store.MetaKeyView{Kind: store.KeyIccTag, Signature: sig}
		val := m.BytesValue(raw)
		origin := store.Origin{OrderInBlock: order, WireFamily: store.WireFamilyIcc, WireCount: tagSize}
		m.AddEntry(block, key, val, origin, 0)
		order++
	}

	return status
}
