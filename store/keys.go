// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package store

// MetaKeyKind discriminates the tagged union of key shapes an Entry can
// carry. Every decoder family in openmeta owns one or more of these.
type MetaKeyKind uint8

const (
	KeyExifTag MetaKeyKind = iota + 1
	KeyIptcDataset
	KeyXmpProperty
	KeyIccHeaderField
	KeyIccTag
	KeyPhotoshopIrb
	KeyExrAttribute
	KeyJumbfField
	KeyJumbfCborKey
	KeyPrintImField
	KeyGeotiffKey
)

func (k MetaKeyKind) String() string {
	switch k {
	case KeyExifTag:
		return "ExifTag"
	case KeyIptcDataset:
		return "IptcDataset"
	case KeyXmpProperty:
		return "XmpProperty"
	case KeyIccHeaderField:
		return "IccHeaderField"
	case KeyIccTag:
		return "IccTag"
	case KeyPhotoshopIrb:
		return "PhotoshopIrb"
	case KeyExrAttribute:
		return "ExrAttribute"
	case KeyJumbfField:
		return "JumbfField"
	case KeyJumbfCborKey:
		return "JumbfCborKey"
	case KeyPrintImField:
		return "PrintImField"
	case KeyGeotiffKey:
		return "GeotiffKey"
	default:
		return "KeyUnknown"
	}
}

// MetaKeyView is the comparable, borrowed-string view of a key used for
// lookups (Find/FindAll). Entries store the same shape but with string
// fields resolved into arena ByteSpans; MetaKeyView.matches below is the
// single place that defines key equality (spec §4.1 "Key equality").
type MetaKeyView struct {
	Kind MetaKeyKind

	// ExifTag
	Ifd string
	Tag uint16

	// IptcDataset
	Record  uint8
	Dataset uint8

	// XmpProperty
	SchemaNS     string
	PropertyPath string

	// IccHeaderField / IccTag
	Offset    uint32
	Signature uint32

	// PhotoshopIrb
	ResourceID uint16

	// ExrAttribute
	PartIndex uint32
	Name      string

	// JumbfField / JumbfCborKey / PrintImField
	Field string

	// GeotiffKey
	GeoKey uint16
}

// matches reports whether two key views refer to the same logical key:
// kinds equal and every kind-specific field equal, strings compared by byte
// content (case-sensitive, verbatim) per spec §4.1.
func (v MetaKeyView) matches(o MetaKeyView) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KeyExifTag:
		return v.Ifd == o.Ifd && v.Tag == o.Tag
	case KeyIptcDataset:
		return v.Record == o.Record && v.Dataset == o.Dataset
	case KeyXmpProperty:
		return v.SchemaNS == o.SchemaNS && v.PropertyPath == o.PropertyPath
	case KeyIccHeaderField:
		return v.Offset == o.Offset
	case KeyIccTag:
		return v.Signature == o.Signature
	case KeyPhotoshopIrb:
		return v.ResourceID == o.ResourceID
	case KeyExrAttribute:
		return v.PartIndex == o.PartIndex && v.Name == o.Name
	case KeyJumbfField:
		return v.Field == o.Field
	case KeyJumbfCborKey:
		return v.Field == o.Field
	case KeyPrintImField:
		return v.Field == o.Field
	case KeyGeotiffKey:
		return v.GeoKey == o.GeoKey
	default:
		return false
	}
}

// hashKey produces a bucketing hash for the index; collisions are resolved
// by matches, so correctness never depends on this function's quality.
func hashKey(v MetaKeyView) uint64 {
	const prime = 1099511628211
	h := uint64(14695981039346656037)
	mix := func(x uint64) {
		h ^= x
		h *= prime
	}
	mixStr := func(s string) {
		for i := 0; i < len(s); i++ {
			mix(uint64(s[i]))
		}
	}
	mix(uint64(v.Kind))
	switch v.Kind {
	case KeyExifTag:
		mixStr(v.Ifd)
		mix(uint64(v.Tag))
	case KeyIptcDataset:
		mix(uint64(v.Record))
		mix(uint64(v.Dataset))
	case KeyXmpProperty:
		mixStr(v.SchemaNS)
		mixStr(v.PropertyPath)
	case KeyIccHeaderField:
		mix(uint64(v.Offset))
	case KeyIccTag:
		mix(uint64(v.Signature))
	case KeyPhotoshopIrb:
		mix(uint64(v.ResourceID))
	case KeyExrAttribute:
		mix(uint64(v.PartIndex))
		mixStr(v.Name)
	case KeyJumbfField, KeyJumbfCborKey, KeyPrintImField:
		mixStr(v.Field)
	case KeyGeotiffKey:
		mix(uint64(v.GeoKey))
	}
	return h
}
