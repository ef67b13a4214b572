// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package store implements the MetaStore: the single append-only,
// arena-backed catalog every decoder in openmeta writes into and every
// caller reads from (spec §3, §4.1). It replaces the teacher's
// (imagemeta.Tags, imagemeta.TagInfo) pair with the richer typed-entry
// model the full specification requires, while keeping the teacher's
// append-then-read shape: decoders only ever add, readers only ever
// iterate after a single Finalize call.
package store

import "fmt"

// Limits bounds the store itself; decoder-specific limits live on each
// decoder's own options struct.
type Limits struct {
	MaxBlocks uint32
	MaxEntries uint32
}

// DefaultLimits mirrors the teacher's own defaults in spirit
// (imagemeta.go's defaultLimitNumTags/defaultLimitTagSize): generous but
// not unbounded.
func DefaultLimits() Limits {
	return Limits{MaxBlocks: 1 << 20, MaxEntries: 1 << 22}
}

// MetaStore owns an ordered sequence of Entry records, a set of BlockInfo
// records, and a byte arena backing every string/blob an Entry refers to.
type MetaStore struct {
	limits Limits

	blocks  []BlockInfo
	entries []Entry
	arena   *arena

	finalized bool
	index     map[uint64][]EntryID
	byBlock   map[BlockID][]EntryID
}

// New creates an empty MetaStore with the given limits. Passing the zero
// Limits value is equivalent to DefaultLimits.
func New(limits Limits) *MetaStore {
	if limits.MaxBlocks == 0 {
		limits.MaxBlocks = DefaultLimits().MaxBlocks
	}
	if limits.MaxEntries == 0 {
		limits.MaxEntries = DefaultLimits().MaxEntries
	}
	return &MetaStore{
		limits: limits,
		arena:  newArena(8192),
	}
}

// AddBlock appends a new BlockInfo and returns its dense, monotonic id.
func (m *MetaStore) AddBlock(info BlockInfo) (BlockID, error) {
	if uint32(len(m.blocks)) >= m.limits.MaxBlocks {
		return 0, fmt.Errorf("%w: max blocks (%d) reached", ErrLimitExceeded, m.limits.MaxBlocks)
	}
	id := BlockID(len(m.blocks))
	m.blocks = append(m.blocks, info)
	return id, nil
}

// Block returns the BlockInfo for id.
func (m *MetaStore) Block(id BlockID) BlockInfo {
	return m.blocks[id]
}

// NumBlocks returns the number of blocks added so far.
func (m *MetaStore) NumBlocks() int { return len(m.blocks) }

// NumEntries returns the number of entries added so far.
func (m *MetaStore) NumEntries() int { return len(m.entries) }

// ErrLimitExceeded is wrapped into the error returned by AddBlock/AddEntry
// when a configured store-level cap is hit.
var ErrLimitExceeded = fmt.Errorf("metastore: limit exceeded")

// AddEntry appends an Entry built from a borrowed-string MetaKeyView, a
// value, an origin, and flags. String fields in the key are interned into
// the arena; the returned EntryID is dense and stable.
func (m *MetaStore) AddEntry(block BlockID, key MetaKeyView, value MetaValue, origin Origin, flags EntryFlags) (EntryID, error) {
	if uint32(len(m.entries)) >= m.limits.MaxEntries {
		return 0, fmt.Errorf("%w: max entries (%d) reached", ErrLimitExceeded, m.limits.MaxEntries)
	}
	if int(block) >= len(m.blocks) {
		return 0, fmt.Errorf("metastore: block %d not registered", block)
	}

	sk := storedKey{
		tag:        key.Tag,
		record:     key.Record,
		dataset:    key.Dataset,
		offset:     key.Offset,
		signature:  key.Signature,
		resourceID: key.ResourceID,
		partIndex:  key.PartIndex,
		geoKey:     key.GeoKey,
	}
	if key.Ifd != "" {
		sk.ifd = m.arena.AppendString(key.Ifd)
	}
	if key.SchemaNS != "" {
		sk.schemaNS = m.arena.AppendString(key.SchemaNS)
	}
	if key.PropertyPath != "" {
		sk.propertyPath = m.arena.AppendString(key.PropertyPath)
	}
	if key.Name != "" {
		sk.name = m.arena.AppendString(key.Name)
	}
	if key.Field != "" {
		sk.field = m.arena.AppendString(key.Field)
	}

	origin.Block = block
	e := Entry{
		Key:    key.Kind,
		KeyRaw: sk,
		Value:  value,
		Origin: origin,
		Flags:  flags,
	}
	id := EntryID(len(m.entries))
	m.entries = append(m.entries, e)
	m.finalized = false
	return id, nil
}

// AppendBytes interns b into the arena and returns the span.
func (m *MetaStore) AppendBytes(b []byte) ByteSpan { return m.arena.Append(b) }

// AppendString interns s into the arena and returns the span.
func (m *MetaStore) AppendString(s string) ByteSpan { return m.arena.AppendString(s) }

// Allocate reserves size bytes (honoring align) and returns the span.
func (m *MetaStore) Allocate(size, align int) ByteSpan { return m.arena.Allocate(size, align) }

// Span returns the arena bytes identified by s.
func (m *MetaStore) Span(s ByteSpan) []byte { return m.arena.Span(s) }

// SpanMut returns a mutable view of the arena bytes identified by s.
func (m *MetaStore) SpanMut(s ByteSpan) []byte { return m.arena.SpanMut(s) }

// Entry returns the entry for id. Valid after AddEntry returns it.
func (m *MetaStore) Entry(id EntryID) Entry { return m.entries[id] }

// viewOf reconstructs a MetaKeyView (with arena-resolved strings) for an
// entry's stored key, used by Finalize/FindAll.
func (m *MetaStore) viewOf(e Entry) MetaKeyView {
	sk := e.KeyRaw
	v := MetaKeyView{
		Kind:       e.Key,
		Tag:        sk.tag,
		Record:     sk.record,
		Dataset:    sk.dataset,
		Offset:     sk.offset,
		Signature:  sk.signature,
		ResourceID: sk.resourceID,
		PartIndex:  sk.partIndex,
		GeoKey:     sk.geoKey,
	}
	if sk.ifd.Size > 0 {
		v.Ifd = m.arena.stringAt(sk.ifd)
	}
	if sk.schemaNS.Size > 0 {
		v.SchemaNS = m.arena.stringAt(sk.schemaNS)
	}
	if sk.propertyPath.Size > 0 {
		v.PropertyPath = m.arena.stringAt(sk.propertyPath)
	}
	if sk.name.Size > 0 {
		v.Name = m.arena.stringAt(sk.name)
	}
	if sk.field.Size > 0 {
		v.Field = m.arena.stringAt(sk.field)
	}
	return v
}

// Finalize builds the lookup index from MetaKeyView to matching EntryIDs,
// preserving insertion order. It is idempotent: calling it twice (or after
// further AddEntry calls) simply rebuilds the index from the current
// entries.
func (m *MetaStore) Finalize() {
	m.index = make(map[uint64][]EntryID, len(m.entries))
	m.byBlock = make(map[BlockID][]EntryID, len(m.blocks))
	for i, e := range m.entries {
		id := EntryID(i)
		v := m.viewOf(e)
		h := hashKey(v)
		m.index[h] = append(m.index[h], id)
		m.byBlock[e.Origin.Block] = append(m.byBlock[e.Origin.Block], id)
	}
	m.finalized = true
}

// FindAll returns the ids of every entry whose key matches key, in
// insertion order. Valid only after Finalize; returns nil if called
// beforehand.
func (m *MetaStore) FindAll(key MetaKeyView) []EntryID {
	if !m.finalized {
		return nil
	}
	bucket := m.index[hashKey(key)]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]EntryID, 0, len(bucket))
	for _, id := range bucket {
		if m.viewOf(m.entries[id]).matches(key) {
			out = append(out, id)
		}
	}
	return out
}

// Find returns the first entry matching key, if any.
func (m *MetaStore) Find(key MetaKeyView) (Entry, bool) {
	ids := m.FindAll(key)
	if len(ids) == 0 {
		return Entry{}, false
	}
	return m.entries[ids[0]], true
}

// EntriesInBlock returns the ids of every entry produced by block, in
// insertion order. Valid only after Finalize.
func (m *MetaStore) EntriesInBlock(block BlockID) []EntryID {
	if !m.finalized {
		return nil
	}
	return m.byBlock[block]
}

// AllEntries returns every entry id in insertion order, regardless of
// finalization state.
func (m *MetaStore) AllEntries() []EntryID {
	ids := make([]EntryID, len(m.entries))
	for i := range ids {
		ids[i] = EntryID(i)
	}
	return ids
}

// Text returns the decoded string for a Text-kind value.
func (m *MetaStore) Text(v MetaValue) string {
	if v.Kind != ValueText {
		return ""
	}
	return m.arena.stringAt(v.Text)
}

// BytesOf returns the decoded bytes for a Bytes-kind value.
func (m *MetaStore) BytesOf(v MetaValue) []byte {
	if v.Kind != ValueBytes {
		return nil
	}
	return m.arena.Span(v.Bytes)
}
