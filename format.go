// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bars

import (
	"encoding/binary"
	"fmt"

	"github.com/vazrupe/endibuf"
)

// BARS format constants
const (
	// Section magics
	barsMagic = "BARS"
	amtaMagic = "AMTA"
	bwavMagic = "BWAV"
	dataMagic = "DATA"
	strgMagic = "STRG"

	// Fixed header sizes
	barsHeaderSize  = 0x10 // magic + size + bom + version + entry count
	amtaHeaderSize  = 0x24 // magic + bom + version + size + six section offsets
	bwavHeaderSize  = 0x10 // magic + bom + version + crc + prefetch + channel count
	channelInfoSize = 0x4C // per-channel summary + coefficients + loop/history block

	// Per-entry index cost: one 32-bit hash plus a (meta, asset) offset pair
	entryIndexSize = 12

	// Alignment boundaries
	sampleAlign = 64 // sample blobs between channels and between assets
	metaAlign   = 4  // metadata records
)

// Codec identifies the coding of one channel's sample data.
type Codec uint16

const (
	CodecPCM16 Codec = 0 // uncompressed 16-bit signed samples
	CodecADPCM Codec = 1 // DSP-ADPCM, 4-bit predictive
	CodecOpus  Codec = 2 // framed Opus packet stream
)

// Prefetch byte budgets per codec. A channel qualifies for prefetch
// truncation once it holds at least this much data.
var prefetchBytes = [3]int{0x2000, 0x2000, 0x12200}

// Sample counts declared by a prefetch channel, per codec.
var prefetchSamples = [3]uint32{0x1000, 0x3800, 0x9000}

// padCount returns the number of bytes needed to advance pos to the next
// multiple of align, or 0 if pos is already aligned.
func padCount(pos, align int) int {
	diff := pos % align
	if diff == 0 {
		return 0
	}
	return align - diff
}

// padTill returns pos rounded up to the next multiple of align.
func padTill(pos, align int) int {
	return pos + padCount(pos, align)
}

// readBOM consumes a 2-byte byte-order mark and returns the byte order it
// selects. FE FF is big-endian, FF FE is little-endian.
func readBOM(r *endibuf.Reader) (binary.ByteOrder, error) {
	b, err := r.ReadBytes(2)
	if err != nil || len(b) < 2 {
		return nil, fmt.Errorf("%w: missing byte order mark", ErrFormat)
	}
	switch {
	case b[0] == 0xFE && b[1] == 0xFF:
		return binary.BigEndian, nil
	case b[0] == 0xFF && b[1] == 0xFE:
		return binary.LittleEndian, nil
	}
	return nil, fmt.Errorf("%w: invalid byte order mark %02X %02X", ErrFormat, b[0], b[1])
}

// bomBytes returns the on-disk byte-order mark for order.
func bomBytes(order binary.ByteOrder) []byte {
	if order == binary.ByteOrder(binary.BigEndian) {
		return []byte{0xFE, 0xFF}
	}
	return []byte{0xFF, 0xFE}
}
