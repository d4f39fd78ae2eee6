// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bars

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/vazrupe/endibuf"
)

// ChannelInfo is the fixed-layout descriptor of one audio channel in a
// structured asset.
type ChannelInfo struct {
	Codec       Codec
	Pan         uint16
	SampleRate  uint32
	SamplesFull uint32 // sample count of the full (non-prefetch) asset
	Samples     uint32 // sample count of this asset

	// Coeffs is the 8-pair DSP-ADPCM coefficient table, kept in file
	// byte order and decoded on use.
	Coeffs [32]byte

	StartFull uint32 // byte offset of the full asset's sample data
	Start     uint32 // byte offset of this channel's sample data

	Looping        bool
	LoopEnd        uint32
	LoopStart      uint32
	PredictorScale uint16
	History1       int16
	History2       int16
	reserved       uint16

	samples []byte // raw coded bytes for this channel
}

// Asset is one audio asset in a container: either a structured
// multi-channel asset or an opaque blob with an unrecognized magic.
// Opaque blobs round-trip byte for byte and reject decode operations.
type Asset struct {
	raw []byte // opaque payload; nil for structured assets

	order        binary.ByteOrder
	versionMinor uint8
	versionMajor uint8
	crc          uint32
	prefetch     bool
	channels     []*ChannelInfo

	decoded [][]int16 // per-channel full-decode cache
}

// ParseAsset reads an audio asset from data. An unrecognized magic yields
// an opaque asset rather than an error, preserving forward compatibility;
// a recognized magic with a truncated header is a format error.
func ParseAsset(data []byte) (*Asset, error) {
	if len(data) < 4 || string(data[:4]) != bwavMagic {
		return &Asset{raw: append([]byte(nil), data...)}, nil
	}

	r := endibuf.NewReader(bytes.NewReader(data))
	if _, err := r.ReadBytes(4); err != nil {
		return nil, fmt.Errorf("%w: truncated asset header", ErrFormat)
	}

	a := &Asset{}
	var err error
	if a.order, err = readBOM(r); err != nil {
		return nil, err
	}
	r.Endian = a.order

	if a.versionMinor, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("%w: truncated asset header", ErrFormat)
	}
	if a.versionMajor, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("%w: truncated asset header", ErrFormat)
	}
	if a.crc, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("%w: truncated asset header", ErrFormat)
	}
	prefetch, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated asset header", ErrFormat)
	}
	a.prefetch = prefetch == 1
	channelCount, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated asset header", ErrFormat)
	}
	if channelCount == 0 {
		return nil, fmt.Errorf("%w: asset declares zero channels", ErrFormat)
	}

	for i := 0; i < int(channelCount); i++ {
		ci, err := parseChannelInfo(r)
		if err != nil {
			return nil, err
		}
		a.channels = append(a.channels, ci)
	}

	for i, ci := range a.channels {
		ci.samples = a.channelSpan(data, i)
	}
	a.decoded = make([][]int16, len(a.channels))
	return a, nil
}

// parseChannelInfo reads one fixed-layout channel descriptor.
func parseChannelInfo(r *endibuf.Reader) (*ChannelInfo, error) {
	ci := &ChannelInfo{}
	fail := func() (*ChannelInfo, error) {
		return nil, fmt.Errorf("%w: truncated channel info", ErrFormat)
	}

	codec, err := r.ReadUint16()
	if err != nil {
		return fail()
	}
	ci.Codec = Codec(codec)
	if ci.Pan, err = r.ReadUint16(); err != nil {
		return fail()
	}
	if ci.SampleRate, err = r.ReadUint32(); err != nil {
		return fail()
	}
	if ci.SamplesFull, err = r.ReadUint32(); err != nil {
		return fail()
	}
	if ci.Samples, err = r.ReadUint32(); err != nil {
		return fail()
	}
	coeffs, err := r.ReadBytes(32)
	if err != nil || len(coeffs) < 32 {
		return fail()
	}
	copy(ci.Coeffs[:], coeffs)
	if ci.StartFull, err = r.ReadUint32(); err != nil {
		return fail()
	}
	if ci.Start, err = r.ReadUint32(); err != nil {
		return fail()
	}
	looping, err := r.ReadUint32()
	if err != nil {
		return fail()
	}
	ci.Looping = looping == 1
	if ci.LoopEnd, err = r.ReadUint32(); err != nil {
		return fail()
	}
	if ci.LoopStart, err = r.ReadUint32(); err != nil {
		return fail()
	}
	if ci.PredictorScale, err = r.ReadUint16(); err != nil {
		return fail()
	}
	h1, err := r.ReadUint16()
	if err != nil {
		return fail()
	}
	ci.History1 = int16(h1)
	h2, err := r.ReadUint16()
	if err != nil {
		return fail()
	}
	ci.History2 = int16(h2)
	if ci.reserved, err = r.ReadUint16(); err != nil {
		return fail()
	}
	return ci, nil
}

// channelSpan returns the raw coded bytes of channel i. Opus channels
// carry their own length at a fixed header offset; for the others the
// span runs to the next channel's start, or to the end of the buffer for
// the last channel.
func (a *Asset) channelSpan(data []byte, i int) []byte {
	ci := a.channels[i]
	start := int(ci.Start)
	if start < 0 || start > len(data) {
		return nil
	}

	var end int
	switch {
	case ci.Codec == CodecOpus:
		if start+40 > len(data) {
			return nil
		}
		end = start + int(a.order.Uint32(data[start+36:])) + 40
	case i+1 < len(a.channels):
		end = int(a.channels[i+1].Start)
	default:
		end = len(data)
	}
	if end > len(data) {
		end = len(data)
	}
	if end < start {
		end = start
	}
	return append([]byte(nil), data[start:end]...)
}

// Opaque reports whether the asset is an uninterpreted blob.
func (a *Asset) Opaque() bool { return a.channels == nil }

// IsPrefetch reports whether the asset is a truncated prefetch variant.
// Opaque assets report false.
func (a *Asset) IsPrefetch() bool { return !a.Opaque() && a.prefetch }

// CRC returns the asset's declared checksum over its sample data.
func (a *Asset) CRC() uint32 { return a.crc }

// NumChannels returns the channel count, 0 for opaque assets.
func (a *Asset) NumChannels() int { return len(a.channels) }

// Channel returns the descriptor of channel i.
func (a *Asset) Channel(i int) *ChannelInfo { return a.channels[i] }

// getSize returns the serialized length of the asset: header and channel
// descriptors plus the sample blobs, deduplicated by start offset since
// channels may share one blob. Every unique blob except the last is
// padded to the sample alignment.
func (a *Asset) getSize() int {
	if a.Opaque() {
		return len(a.raw)
	}
	headerPart := bwavHeaderSize + len(a.channels)*channelInfoSize

	uniques := a.uniqueChannels()
	lastIdx := uniques[len(uniques)-1]

	samplesPart := 0
	for _, idx := range uniques {
		n := len(a.channels[idx].samples)
		if idx != lastIdx {
			n = padTill(n, sampleAlign)
		}
		samplesPart += n
	}
	if samplesPart == 0 {
		return headerPart
	}
	return padTill(headerPart, sampleAlign) + samplesPart
}

// uniqueChannels returns the indices of the first channel at each
// distinct sample start offset, in channel order.
func (a *Asset) uniqueChannels() []int {
	var uniques []int
	seen := make(map[uint32]bool, len(a.channels))
	for i, ci := range a.channels {
		if seen[ci.Start] {
			continue
		}
		seen[ci.Start] = true
		uniques = append(uniques, i)
	}
	return uniques
}

// write serializes the asset into w. Structured assets lay their sample
// blobs out at each channel's recorded start offset, zero-padding the
// gaps.
func (a *Asset) write(w *bytes.Buffer) {
	if a.Opaque() {
		w.Write(a.raw)
		return
	}
	base := w.Len()

	w.WriteString(bwavMagic)
	w.Write(bomBytes(a.order))
	w.WriteByte(a.versionMinor)
	w.WriteByte(a.versionMajor)
	binary.Write(w, a.order, a.crc)
	binary.Write(w, a.order, boolToUint16(a.prefetch))
	binary.Write(w, a.order, uint16(len(a.channels)))

	for _, ci := range a.channels {
		binary.Write(w, a.order, uint16(ci.Codec))
		binary.Write(w, a.order, ci.Pan)
		binary.Write(w, a.order, ci.SampleRate)
		binary.Write(w, a.order, ci.SamplesFull)
		binary.Write(w, a.order, ci.Samples)
		w.Write(ci.Coeffs[:])
		binary.Write(w, a.order, ci.StartFull)
		binary.Write(w, a.order, ci.Start)
		binary.Write(w, a.order, boolToUint32(ci.Looping))
		binary.Write(w, a.order, ci.LoopEnd)
		binary.Write(w, a.order, ci.LoopStart)
		binary.Write(w, a.order, ci.PredictorScale)
		binary.Write(w, a.order, uint16(ci.History1))
		binary.Write(w, a.order, uint16(ci.History2))
		binary.Write(w, a.order, ci.reserved)
	}

	for _, idx := range a.uniqueChannels() {
		ci := a.channels[idx]
		if gap := int(ci.Start) - (w.Len() - base); gap > 0 {
			w.Write(make([]byte, gap))
		}
		w.Write(ci.samples)
	}
}

// Info returns a human-readable dump of the asset's header and channel
// descriptors.
func (a *Asset) Info() string {
	var b strings.Builder
	if a.Opaque() {
		fmt.Fprintf(&b, "Magic:       RAW/UNKNOWN (not parsed)\n")
		fmt.Fprintf(&b, "Length:      %d bytes\n", len(a.raw))
		return b.String()
	}

	panNames := []string{
		"Left", "Right", "Middle", "Sub",
		"Side left", "Side right", "Rear left", "Rear right",
	}

	endian := "Little Endian"
	if a.order == binary.ByteOrder(binary.BigEndian) {
		endian = "Big Endian"
	}
	fmt.Fprintf(&b, "Magic:       %s\n", bwavMagic)
	fmt.Fprintf(&b, "BOM:         %s\n", endian)
	fmt.Fprintf(&b, "Version:     %d.%d\n", a.versionMajor, a.versionMinor)
	fmt.Fprintf(&b, "CRC:         %d\n", a.crc)
	fmt.Fprintf(&b, "Is prefetch: %v\n", a.prefetch)
	fmt.Fprintf(&b, "Channels:    %d\n", len(a.channels))

	for i, ci := range a.channels {
		pan := "Unknown"
		if int(ci.Pan) < len(panNames) {
			pan = panNames[ci.Pan]
		}
		fmt.Fprintf(&b, "\tChannel:           %d\n", i)
		fmt.Fprintf(&b, "\tCodec:             %d\n", ci.Codec)
		fmt.Fprintf(&b, "\tPan:               %s\n", pan)
		fmt.Fprintf(&b, "\tSample rate:       %d\n", ci.SampleRate)
		fmt.Fprintf(&b, "\tSamples full:      %d\n", ci.SamplesFull)
		fmt.Fprintf(&b, "\tSamples this:      %d\n", ci.Samples)
		fmt.Fprintf(&b, "\tStart full:        %d\n", ci.StartFull)
		fmt.Fprintf(&b, "\tStart this:        %d\n", ci.Start)
		fmt.Fprintf(&b, "\tIs looping:        %v\n", ci.Looping)
		fmt.Fprintf(&b, "\tLoop end sample:   %d\n", ci.LoopEnd)
		fmt.Fprintf(&b, "\tLoop start sample: %d\n", ci.LoopStart)
		fmt.Fprintf(&b, "\n")
	}
	return b.String()
}

func boolToUint16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
