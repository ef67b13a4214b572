// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package scanner

import (
	"bytes"

	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/store"
)

var (
	gif87a = []byte("GIF87a")
	gif89a = []byte("GIF89a")

	gifAppXMP  = []byte("XMP DataXMP")
	gifAppICC  = []byte("ICCRGBG1012")
)

// ScanGIF skips the logical screen descriptor and optional global color
// table, then walks extensions: a 0x21 0xFF application extension whose
// 11-byte app id matches "XMP DataXMP" or "ICCRGBG1012" is emitted with
// Chunking=GifSubBlocks, the payload being the data sub-block chain that
// follows (spec §4.3 "GIF"). The teacher does not support GIF; this is
// generalized from its PNG/WebP chunk-walk idiom (imagedecoder_png.go,
// imagedecoder_webp.go) applied to the GIF89a extension-block grammar.
func ScanGIF(b []byte, out []ContainerBlockRef) ScanResult {
	sk := newSink(out)
	if len(b) < 13 || (!bytes.Equal(b[:6], gif87a) && !bytes.Equal(b[:6], gif89a)) {
		return sk.result(FormatGIF, Unsupported)
	}

	packed := b[10]
	pos := 13
	if packed&0x80 != 0 {
		tableSize := 3 * (1 << (uint(packed&0x07) + 1))
		pos += tableSize
	}

	status := Ok
	for pos < len(b) {
		switch b[pos] {
		case 0x3b: // trailer
			return sk.result(FormatGIF, status)
		case 0x21: // extension introducer
			if pos+2 > len(b) {
				status = store.Merge(status, Malformed)
				return sk.result(FormatGIF, status)
			}
			label := b[pos+1]
			blockStart := pos + 2
			if label == 0xff { // application extension
				if blockStart+12 > len(b) {
					status = store.Merge(status, Malformed)
					return sk.result(FormatGIF, status)
				}
				blockSize := b[blockStart]
				appID := b[blockStart+1 : blockStart+1+11]
				isXMP := blockSize == 11 && bytes.Equal(appID, gifAppXMP)
				isICC := blockSize == 11 && bytes.Equal(appID, gifAppICC)
				dataStart := blockStart + 12
				end, ok := scanSubBlockChain(b, dataStart)
				if !ok {
					status = store.Merge(status, Malformed)
					return sk.result(FormatGIF, status)
				}
				if isXMP || isICC {
					kind := BlockXmp
					if isICC {
						kind = BlockIcc
					}
					sk.emit(ContainerBlockRef{
						Format: FormatGIF, Kind: kind,
						Chunking:    ChunkingGifSubBlocks,
						OuterOffset: int64(pos), OuterSize: int64(end - pos),
						DataOffset: int64(dataStart), DataSize: int64(end - dataStart),
					})
				}
				pos = end
				continue
			}
			// Other extensions: walk and skip their sub-block chain.
			end, ok := scanSubBlockChain(b, blockStart)
			if !ok {
				status = store.Merge(status, Malformed)
				return sk.result(FormatGIF, status)
			}
			pos = end
		case 0x2c: // image descriptor
			end, ok := skipImageDescriptor(b, pos)
			if !ok {
				status = store.Merge(status, Malformed)
				return sk.result(FormatGIF, status)
			}
			pos = end
		default:
			status = store.Merge(status, Malformed)
			return sk.result(FormatGIF, status)
		}
	}

	return sk.result(FormatGIF, status)
}

// scanSubBlockChain walks `len,byte*` blocks terminated by a zero length,
// returning the offset just past the terminator.
func scanSubBlockChain(b []byte, pos int) (int, bool) {
	for {
		n, ok := bytesreader.U8(b, pos)
		if !ok {
			return 0, false
		}
		pos++
		if n == 0 {
			return pos, true
		}
		if !bytesreader.InBounds(len(b), pos, int(n)) {
			return 0, false
		}
		pos += int(n)
	}
}

func skipImageDescriptor(b []byte, pos int) (int, bool) {
	// 0x2c + left,top,width,height (4x u16 LE) + packed byte.
	const header = 1 + 8 + 1
	if !bytesreader.InBounds(len(b), pos, header) {
		return 0, false
	}
	packed := b[pos+9]
	pos += header
	if packed&0x80 != 0 {
		tableSize := 3 * (1 << (uint(packed&0x07) + 1))
		pos += tableSize
	}
	// LZW min code size byte, then sub-block image data.
	if !bytesreader.InBounds(len(b), pos, 1) {
		return 0, false
	}
	pos++
	return scanSubBlockChain(b, pos)
}
