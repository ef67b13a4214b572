// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package scanner

import (
	"bytes"

	"github.com/openmeta-go/openmeta/internal/bytesreader"
	"github.com/openmeta-go/openmeta/store"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ScanPNG walks PNG chunks (size/type/data/crc), emitting refs for eXIf,
// iCCP, iTXt (keyword XML:com.adobe.xmp), zTXt, and tEXt; stops at IEND
// (spec §4.3 "PNG"). Grounded on the teacher's imagedecoder_png.go chunk
// walk, generalized to the full set of PNG metadata chunk types.
func ScanPNG(b []byte, out []ContainerBlockRef) ScanResult {
	sk := newSink(out)
	if len(b) < 8 || !bytes.Equal(b[:8], pngSignature) {
		return sk.result(FormatPNG, Unsupported)
	}

	pos := 8
	status := Ok
	for {
		if pos+8 > len(b) {
			break
		}
		length, _ := bytesreader.U32BE(b, pos)
		typ := b[pos+4 : pos+8]
		dataStart := pos + 8
		dataEnd := dataStart + int(length)
		if dataEnd+4 > len(b) {
			status = store.Merge(status, Malformed)
			break
		}
		data := b[dataStart:dataEnd]

		switch string(typ) {
		case "IEND":
			return sk.result(FormatPNG, status)
		case "eXIf":
			sk.emit(ContainerBlockRef{
				Format: FormatPNG, Kind: BlockExif,
				OuterOffset: int64(pos), OuterSize: int64(dataEnd + 4 - pos),
				DataOffset: int64(dataStart), DataSize: int64(length),
			})
		case "iCCP":
			nameEnd := bytes.IndexByte(data, 0)
			if nameEnd >= 0 && nameEnd+2 <= len(data) {
				sk.emit(ContainerBlockRef{
					Format: FormatPNG, Kind: BlockIcc,
					Compression: CompressionDeflate,
					OuterOffset: int64(pos), OuterSize: int64(dataEnd + 4 - pos),
					DataOffset: int64(dataStart + nameEnd + 2),
					DataSize:   int64(len(data) - nameEnd - 2),
				})
			}
		case "iTXt":
			decodeITXt(sk, data, pos, dataStart, dataEnd)
		case "zTXt":
			decodeZTXt(sk, data, pos, dataStart, dataEnd)
		case "tEXt":
			nameEnd := bytes.IndexByte(data, 0)
			if nameEnd >= 0 {
				sk.emit(ContainerBlockRef{
					Format: FormatPNG, Kind: BlockComment,
					OuterOffset: int64(pos), OuterSize: int64(dataEnd + 4 - pos),
					DataOffset: int64(dataStart + nameEnd + 1),
					DataSize:   int64(len(data) - nameEnd - 1),
				})
			}
		}

		pos = dataEnd + 4
	}

	return sk.result(FormatPNG, status)
}

func decodeITXt(sk *sink, data []byte, chunkStart, dataStart, dataEnd int) {
	// keyword\0 compressionFlag compressionMethod languageTag\0 translatedKeyword\0 text
	nameEnd := bytes.IndexByte(data, 0)
	if nameEnd < 0 || nameEnd+2 > len(data) {
		return
	}
	keyword := string(data[:nameEnd])
	if keyword != "XML:com.adobe.xmp" {
		return
	}
	compressed := data[nameEnd+1] != 0
	rest := data[nameEnd+3:]
	langEnd := bytes.IndexByte(rest, 0)
	if langEnd < 0 {
		return
	}
	rest = rest[langEnd+1:]
	transEnd := bytes.IndexByte(rest, 0)
	if transEnd < 0 {
		return
	}
	textOff := len(data) - len(rest) + transEnd + 1
	comp := CompressionNone
	if compressed {
		comp = CompressionDeflate
	}
	sk.emit(ContainerBlockRef{
		Format: FormatPNG, Kind: BlockXmp,
		Compression: comp,
		OuterOffset: int64(chunkStart), OuterSize: int64(dataEnd + 4 - chunkStart),
		DataOffset: int64(dataStart + textOff),
		DataSize:   int64(len(data) - textOff),
	})
}

func decodeZTXt(sk *sink, data []byte, chunkStart, dataStart, dataEnd int) {
	nameEnd := bytes.IndexByte(data, 0)
	if nameEnd < 0 || nameEnd+2 > len(data) {
		return
	}
	sk.emit(ContainerBlockRef{
		Format: FormatPNG, Kind: BlockCompressedMetadata,
		Compression: CompressionDeflate,
		OuterOffset: int64(chunkStart), OuterSize: int64(dataEnd + 4 - chunkStart),
		DataOffset: int64(dataStart + nameEnd + 2),
		DataSize:   int64(len(data) - nameEnd - 2),
	})
}
