// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package store

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestAddEntryAndFindAll(t *testing.T) {
	c := qt.New(t)

	s := New(Limits{})
	blk, err := s.AddBlock(BlockInfo{Kind: BlockKindIfd, Label: "IFD0"})
	c.Assert(err, qt.IsNil)

	key := MetaKeyView{Kind: KeyExifTag, Ifd: "ifd0", Tag: 0x010f}
	v := s.TextValue("Canon", TextAscii)
	id, err := s.AddEntry(blk, key, v, Origin{OrderInBlock: 0, WireFamily: WireFamilyTiff, WireCode: 2, WireCount: 6}, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, EntryID(0))

	s.Finalize()

	ids := s.FindAll(MetaKeyView{Kind: KeyExifTag, Ifd: "ifd0", Tag: 0x010f})
	c.Assert(ids, qt.HasLen, 1)
	e := s.Entry(ids[0])
	c.Assert(s.Text(e.Value), qt.Equals, "Canon")

	// A different tag must not match.
	c.Assert(s.FindAll(MetaKeyView{Kind: KeyExifTag, Ifd: "ifd0", Tag: 0x0110}), qt.HasLen, 0)
}

func TestFindAllPreservesInsertionOrder(t *testing.T) {
	c := qt.New(t)
	s := New(Limits{})
	blk, _ := s.AddBlock(BlockInfo{Kind: BlockKindIfd})

	key := MetaKeyView{Kind: KeyXmpProperty, SchemaNS: "ns", PropertyPath: "creator[1]"}
	for i := 0; i < 5; i++ {
		_, err := s.AddEntry(blk, key, s.TextValue("v", TextUtf8), Origin{OrderInBlock: uint32(i)}, 0)
		c.Assert(err, qt.IsNil)
	}

	s.Finalize()
	ids := s.FindAll(key)
	c.Assert(ids, qt.HasLen, 5)
	for i, id := range ids {
		c.Assert(s.Entry(id).Origin.OrderInBlock, qt.Equals, uint32(i))
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	c := qt.New(t)
	s := New(Limits{})
	blk, _ := s.AddBlock(BlockInfo{})
	key := MetaKeyView{Kind: KeyIccTag, Signature: 0x64657363}
	_, _ = s.AddEntry(blk, key, s.BytesValue([]byte("abc")), Origin{}, 0)

	s.Finalize()
	first := s.FindAll(key)
	s.Finalize()
	second := s.FindAll(key)

	c.Assert(first, qt.DeepEquals, second)
}

func TestAddEntryLimitExceeded(t *testing.T) {
	c := qt.New(t)
	s := New(Limits{MaxEntries: 1})
	blk, _ := s.AddBlock(BlockInfo{})
	_, err := s.AddEntry(blk, MetaKeyView{Kind: KeyIccTag, Signature: 1}, EmptyValue, Origin{}, 0)
	c.Assert(err, qt.IsNil)
	_, err = s.AddEntry(blk, MetaKeyView{Kind: KeyIccTag, Signature: 2}, EmptyValue, Origin{}, 0)
	c.Assert(err, qt.ErrorMatches, ".*limit exceeded.*")
}
