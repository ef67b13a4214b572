// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package store

// BlockID identifies a BlockInfo, dense and monotonic from AddBlock.
type BlockID uint32

// EntryID identifies an Entry, dense and monotonic from AddEntry.
type EntryID uint32

// EntryFlags is a bitset of synthesis/truncation markers.
type EntryFlags uint8

const (
	// FlagDerived marks an entry synthesized from another rather than read
	// directly off the wire (e.g. the entries the crw package projects, or
	// the C2PA semantic projection). IPTC datasets inside a Photoshop IRB
	// 0x0404 resource are not decoded into derived entries.
	FlagDerived EntryFlags = 1 << iota
	// FlagTruncated marks a value clipped by a configured limit.
	FlagTruncated
)

// WireFamily names the broad class a wire_type code belongs to, purely for
// diagnostics (origin.wire_type).
type WireFamily uint8

const (
	WireFamilyNone WireFamily = iota
	WireFamilyTiff
	WireFamilyIptc
	WireFamilyXmp
	WireFamilyIcc
	WireFamilyIrb
	WireFamilyExr
	WireFamilyJumbf
	WireFamilyCbor
)

// Origin records where a decoded value came from on the wire.
type Origin struct {
	Block        BlockID
	OrderInBlock uint32
	WireFamily   WireFamily
	WireCode     uint16
	WireCount    uint32
	// WireTypeName is set only when a decoder opts to preserve an unknown
	// wire type's name string (e.g. EXR preserve_unknown_type_name).
	WireTypeName ByteSpan
	HasTypeName  bool
}

// Entry is one decoded fact, keyed and typed, attributable to a Block.
type Entry struct {
	Key    MetaKeyKind
	KeyRaw storedKey
	Value  MetaValue
	Origin Origin
	Flags  EntryFlags
}

// storedKey holds the key's kind-specific fields with strings resolved to
// arena ByteSpans, so Entry never retains a caller-owned string.
type storedKey struct {
	ifd          ByteSpan
	tag          uint16
	record       uint8
	dataset      uint8
	schemaNS     ByteSpan
	propertyPath ByteSpan
	offset       uint32
	signature    uint32
	resourceID   uint16
	partIndex    uint32
	name         ByteSpan
	field        ByteSpan
	geoKey       uint16
}

// BlockKind names what a BlockInfo represents, for diagnostics only; the
// authoritative grouping is the BlockID itself.
type BlockKind uint8

const (
	BlockKindUnknown BlockKind = iota
	BlockKindIfd
	BlockKindIcc
	BlockKindIptc
	BlockKindIrb
	BlockKindXmp
	BlockKindExrPart
	BlockKindJumbf
	BlockKindCrw
)

// BlockInfo is an administrative grouping used to attribute entries to
// their source region (an IFD, an ICC profile, a JUMBF context, etc.).
type BlockInfo struct {
	Kind  BlockKind
	Label string
}

// HasFlag reports whether f is set.
func (f EntryFlags) HasFlag(x EntryFlags) bool { return f&x != 0 }
