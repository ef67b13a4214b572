// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jumbf

import (
	"strconv"
	"unicode/utf8"

	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/store"
)

// cborHead is one decoded CBOR initial-byte-plus-argument, per RFC 8949 §3.
type cborHead struct {
	major      uint8
	addl       uint8
	arg        uint64
	indefinite bool
}

func readCborHead(b []byte, pos *int) (cborHead, bool) {
	if *pos >= len(b) {
		return cborHead{}, false
	}
	ib := b[*pos]
	*pos++
	h := cborHead{major: (ib >> 5) & 0x07, addl: ib & 0x1f}

	switch {
	case h.addl <= 23:
		h.arg = uint64(h.addl)
		return h, true
	case h.addl == 24:
		v, ok := bytesreader.U8(b, *pos)
		if !ok {
			return cborHead{}, false
		}
		*pos++
		h.arg = uint64(v)
		return h, true
	case h.addl == 25:
		v, ok := bytesreader.U16BE(b, *pos)
		if !ok {
			return cborHead{}, false
		}
		*pos += 2
		h.arg = uint64(v)
		return h, true
	case h.addl == 26:
		v, ok := bytesreader.U32BE(b, *pos)
		if !ok {
			return cborHead{}, false
		}
		*pos += 4
		h.arg = uint64(v)
		return h, true
	case h.addl == 27:
		v, ok := bytesreader.U64BE(b, *pos)
		if !ok {
			return cborHead{}, false
		}
		*pos += 8
		h.arg = v
		return h, true
	case h.addl == 31:
		h.indefinite = true
		return h, h.major != 7
	default:
		return cborHead{}, false
	}
}

func (d *decoder) cborItemBudgetTake() bool {
	d.result.CborItems++
	max := d.opts.Limits.MaxCborItems
	if max != 0 && int(d.result.CborItems) > max {
		d.result.Status = store.LimitExceeded
		return false
	}
	return true
}

func (d *decoder) cborDepthOK(depth int) bool {
	max := d.opts.Limits.MaxCborDepth
	if max != 0 && depth > max {
		d.result.Status = store.LimitExceeded
		return false
	}
	return true
}

func cborPeekBreak(b []byte, pos int) bool {
	return pos < len(b) && b[pos] == 0xff
}

func cborConsumeBreak(b []byte, pos *int) bool {
	if !cborPeekBreak(b, *pos) {
		return false
	}
	*pos++
	return true
}

func readCborSlice(b []byte, pos *int, n uint64) ([]byte, bool) {
	if *pos > len(b) || n > uint64(len(b)-*pos) {
		return nil, false
	}
	out := b[*pos : *pos+int(n)]
	*pos += int(n)
	return out, true
}

// readByteOrTextPayload concatenates a (possibly chunked/indefinite-length)
// byte- or text-string into one slice, bounded by maxTotal.
func (d *decoder) readByteOrTextPayload(b []byte, pos *int, head cborHead) ([]byte, bool) {
	maxTotal := d.opts.Limits.MaxCborBytesBytes
	if head.major == 3 {
		maxTotal = d.opts.Limits.MaxCborTextBytes
	}
	if !head.indefinite {
		payload, ok := readCborSlice(b, pos, head.arg)
		if !ok {
			return nil, false
		}
		if maxTotal != 0 && len(payload) > maxTotal {
			d.result.Status = store.LimitExceeded
			return nil, false
		}
		return append([]byte(nil), payload...), true
	}

	var out []byte
	for {
		if cborPeekBreak(b, *pos) {
			cborConsumeBreak(b, pos)
			return out, true
		}
		chunk, ok := readCborHead(b, pos)
		if !ok || !d.cborItemBudgetTake() {
			return nil, false
		}
		if chunk.major != head.major || chunk.indefinite {
			return nil, false
		}
		payload, ok := readCborSlice(b, pos, chunk.arg)
		if !ok {
			return nil, false
		}
		out = append(out, payload...)
		if maxTotal != 0 && len(out) > maxTotal {
			d.result.Status = store.LimitExceeded
			return nil, false
		}
	}
}

func (d *decoder) skipCborItem(b []byte, pos *int, depth int) bool {
	if !d.cborDepthOK(depth) {
		return false
	}
	head, ok := readCborHead(b, pos)
	if !ok || !d.cborItemBudgetTake() {
		return false
	}
	return d.skipCborItemFromHead(b, pos, depth, head)
}

func (d *decoder) skipCborItemFromHead(b []byte, pos *int, depth int, head cborHead) bool {
	switch head.major {
	case 0, 1, 7:
		return true
	case 2, 3:
		_, ok := d.readByteOrTextPayload(b, pos, head)
		return ok
	case 4:
		if !head.indefinite {
			for i := uint64(0); i < head.arg; i++ {
				if !d.skipCborItem(b, pos, depth+1) {
					return false
				}
			}
			return true
		}
		for {
			if cborPeekBreak(b, *pos) {
				return cborConsumeBreak(b, pos)
			}
			if !d.skipCborItem(b, pos, depth+1) {
				return false
			}
		}
	case 5:
		if !head.indefinite {
			for i := uint64(0); i < head.arg; i++ {
				if !d.skipCborItem(b, pos, depth+1) || !d.skipCborItem(b, pos, depth+1) {
					return false
				}
			}
			return true
		}
		for {
			if cborPeekBreak(b, *pos) {
				return cborConsumeBreak(b, pos)
			}
			if !d.skipCborItem(b, pos, depth+1) || !d.skipCborItem(b, pos, depth+1) {
				return false
			}
		}
	case 6:
		if head.indefinite {
			return false
		}
		return d.skipCborItem(b, pos, depth+1)
	default:
		return false
	}
}

func cborMajorSuffix(major uint8) string {
	switch major {
	case 0:
		return "u"
	case 1:
		return "n"
	case 2:
		return "bytes"
	case 3:
		return "text"
	case 4:
		return "arr"
	case 5:
		return "map"
	case 6:
		return "tag"
	case 7:
		return "simple"
	default:
		return "key"
	}
}

func sanitizeCborPathSegment(b []byte, maxOutputBytes int) string {
	if len(b) == 0 {
		return "_"
	}
	limit := len(b)
	if maxOutputBytes != 0 && limit > maxOutputBytes {
		limit = maxOutputBytes
	}
	out := make([]byte, 0, limit)
	for i := 0; i < limit; i++ {
		c := b[i]
		allowed := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-' || c == '.'
		if allowed {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}

func assignSynthCborKey(mapIndex uint32, suffix string, maxOutputBytes int) string {
	out := "k" + strconv.FormatUint(uint64(mapIndex), 10) + "_" + suffix
	if maxOutputBytes != 0 && len(out) > maxOutputBytes {
		out = out[:maxOutputBytes]
	}
	if out == "" {
		return "_"
	}
	return out
}

// parseCborKey decodes one map key into a path segment, following the
// reference's rule: text keys are sanitized to [A-Za-z0-9_.-], integer
// keys become their decimal form (negatives prefixed "n"), booleans/
// null/undefined/simple become their literal name, and anything else is
// skipped and replaced with a synthesized "kN_<majorsuffix>" segment.
func (d *decoder) parseCborKey(b []byte, pos *int, depth int, mapIndex uint32) (string, bool) {
	if !d.cborDepthOK(depth) {
		return "", false
	}
	head, ok := readCborHead(b, pos)
	if !ok || !d.cborItemBudgetTake() {
		return "", false
	}

	switch head.major {
	case 3:
		text, ok := d.readByteOrTextPayload(b, pos, head)
		if !ok {
			return "", false
		}
		return sanitizeCborPathSegment(text, d.opts.Limits.MaxCborKeyBytes), true
	case 0:
		return strconv.FormatUint(head.arg, 10), true
	case 1:
		return "n" + strconv.FormatUint(head.arg, 10), true
	case 7:
		if head.indefinite {
			return "", false
		}
		switch head.addl {
		case 20:
			return "false", true
		case 21:
			return "true", true
		case 22:
			return "null", true
		case 23:
			return "undefined", true
		default:
			return "simple", true
		}
	default:
		if !d.skipCborItemFromHead(b, pos, depth+1, head) {
			return "", false
		}
		return assignSynthCborKey(mapIndex, cborMajorSuffix(head.major), d.opts.Limits.MaxCborKeyBytes), true
	}
}

// parseCborItem decodes one CBOR data item at *pos, emitting it (and
// recursively, its children) under the synthesized path.
func (d *decoder) parseCborItem(b []byte, pos *int, depth int, path string) bool {
	if !d.cborDepthOK(depth) {
		return false
	}
	head, ok := readCborHead(b, pos)
	if !ok || !d.cborItemBudgetTake() {
		return false
	}

	switch head.major {
	case 0:
		return d.emitCborValue(path, store.ScalarU64(store.ElemU64, head.arg))
	case 1:
		if head.arg >= 1<<63-1 {
			return d.emitCborValue(path, d.m.TextValue("-(1+"+strconv.FormatUint(head.arg, 10)+")", store.TextAscii))
		}
		return d.emitCborValue(path, store.ScalarI64(store.ElemI64, -1-int64(head.arg)))
	case 2:
		data, ok := d.readByteOrTextPayload(b, pos, head)
		if !ok {
			return false
		}
		return d.emitCborValue(path, d.m.BytesValue(data))
	case 3:
		text, ok := d.readByteOrTextPayload(b, pos, head)
		if !ok {
			return false
		}
		if utf8.Valid(text) {
			return d.emitCborValue(path, d.m.TextValue(string(text), store.TextUtf8))
		}
		return d.emitCborValue(path, d.m.BytesValue(text))
	case 4:
		index := uint64(0)
		for {
			if head.indefinite && cborPeekBreak(b, *pos) {
				return cborConsumeBreak(b, pos)
			}
			if !head.indefinite && index >= head.arg {
				return true
			}
			childPath := path + "[" + strconv.FormatUint(index, 10) + "]"
			if !d.parseCborItem(b, pos, depth+1, childPath) {
				return false
			}
			index++
		}
	case 5:
		mapIndex := uint32(0)
		for {
			if head.indefinite && cborPeekBreak(b, *pos) {
				return cborConsumeBreak(b, pos)
			}
			if !head.indefinite && uint64(mapIndex) >= head.arg {
				return true
			}
			keySeg, ok := d.parseCborKey(b, pos, depth+1, mapIndex)
			if !ok {
				return false
			}
			childPath := keySeg
			if path != "" {
				childPath = path + "." + keySeg
			}
			if !d.parseCborItem(b, pos, depth+1, childPath) {
				return false
			}
			mapIndex++
		}
	case 6:
		if head.indefinite {
			return false
		}
		if !d.emitCborValue(path+".@tag", store.ScalarU64(store.ElemU64, head.arg)) {
			return false
		}
		return d.parseCborItem(b, pos, depth+1, path)
	case 7:
		if head.indefinite {
			return false
		}
		switch {
		case head.addl <= 19:
			return d.emitCborValue(path, store.ScalarU64(store.ElemU8, uint64(head.addl)))
		case head.addl == 20:
			return d.emitCborValue(path, store.ScalarU64(store.ElemU8, 0))
		case head.addl == 21:
			return d.emitCborValue(path, store.ScalarU64(store.ElemU8, 1))
		case head.addl == 22:
			return d.emitCborValue(path, d.m.TextValue("null", store.TextAscii))
		case head.addl == 23:
			return d.emitCborValue(path, d.m.TextValue("undefined", store.TextAscii))
		case head.addl == 24:
			return d.emitCborValue(path, store.ScalarU64(store.ElemU8, head.arg&0xff))
		case head.addl == 25:
			return d.emitCborValue(path, store.ScalarF32Bits(bytesreader.Half2Float32Bits(uint16(head.arg&0xffff))))
		case head.addl == 26:
			return d.emitCborValue(path, store.ScalarF32Bits(uint32(head.arg&0xffffffff)))
		case head.addl == 27:
			return d.emitCborValue(path, store.ScalarF64Bits(head.arg))
		default:
			return d.emitCborValue(path, d.m.TextValue("simple("+strconv.FormatUint(uint64(head.addl), 10)+")", store.TextAscii))
		}
	default:
		return false
	}
}

func (d *decoder) decodeCborPayload(payload []byte, pathPrefix string) bool {
	offset := 0
	for offset < len(payload) {
		if !d.parseCborItem(payload, &offset, 0, pathPrefix) {
			return false
		}
	}
	return true
}
