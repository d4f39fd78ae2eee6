// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bars

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/thesyncim/gopus"
)

// Opus transcode parameters: 20 ms frames at 48 kHz, and the encoder's
// algorithmic delay at that rate, declared in the stream header.
const (
	opusFrameSamples = 960
	opusSampleRate   = 48000
	opusEncoderDelay = 312
)

// opusStreamPreamble is the fixed leading portion of the per-channel Opus
// stream header. The encoder delay and the total packet-stream length are
// appended after it.
var opusStreamPreamble = []byte{
	0x01, 0x00, 0x00, 0x80, 0x18, 0x00, 0x00, 0x00,
	0x00, 0x01, 0x00, 0x00, 0x80, 0xBB, 0x00, 0x00,
	0x20, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// ConvertToPrefetch truncates each channel to its codec's prefetch byte
// budget and marks the asset as prefetch. A channel is truncated only if
// it already holds at least the budget; channel start offsets are
// recomputed from the truncated sizes. Returns true if the asset is
// already prefetch, false if no channel qualified.
func (a *Asset) ConvertToPrefetch() (bool, error) {
	if a.Opaque() {
		return false, nil
	}
	if a.prefetch {
		return true, nil
	}

	base := a.channels[0].Start
	converted := false
	for idx, ci := range a.channels {
		codec := int(ci.Codec)
		if codec >= len(prefetchBytes) {
			continue
		}
		budgetSamples := prefetchSamples[codec]
		budgetBytes := prefetchBytes[codec]

		samples := ci.samples
		if ci.Codec == CodecOpus {
			// The prefetch variant of an Opus channel carries plain PCM16.
			pcm, err := a.DecodeChannel(idx, budgetBytes/2)
			if err != nil {
				return false, err
			}
			samples = pcmBytes(pcm, a.order)
		}

		if ci.Samples < budgetSamples && len(samples) < budgetBytes {
			continue
		}

		if len(samples) > budgetBytes {
			samples = samples[:budgetBytes]
		}
		ci.Samples = budgetSamples
		ci.samples = append([]byte(nil), samples...)
		ci.Start = base + uint32(idx*budgetBytes)
		converted = true
	}

	if converted {
		a.prefetch = true
		a.invalidateDecode()
	}
	return converted, nil
}

// ConvertToOpus transcodes every channel to a framed Opus packet stream.
// The asset must be non-prefetch, not already Opus coded, and uniformly
// 48 kHz. ADPCM-specific channel fields are zeroed, looping is forced to
// the full range, channel offsets are recomputed with sample alignment,
// and the asset CRC is refreshed.
func (a *Asset) ConvertToOpus() error {
	if a.Opaque() {
		return fmt.Errorf("convert to opus: %w", ErrOpaqueAsset)
	}
	for _, ci := range a.channels {
		if ci.Codec == CodecOpus {
			return fmt.Errorf("%w: asset is already opus", ErrIncompatibleCodec)
		}
	}
	if a.prefetch {
		return fmt.Errorf("%w: cannot convert a prefetch asset", ErrIncompatibleCodec)
	}
	for _, ci := range a.channels {
		if ci.SampleRate != opusSampleRate {
			return fmt.Errorf("%w: sample rate must be %d Hz, have %d",
				ErrIncompatibleCodec, opusSampleRate, ci.SampleRate)
		}
	}

	converted := make([][]byte, len(a.channels))
	for i := range a.channels {
		pcm, err := a.DecodeChannel(i, 0)
		if err != nil {
			return err
		}
		stream, err := encodeOpusStream(pcm, a.order)
		if err != nil {
			return err
		}
		converted[i] = stream
	}

	offset := a.channels[0].Start
	for i, ci := range a.channels {
		ci.Codec = CodecOpus
		ci.Coeffs = [32]byte{}
		ci.PredictorScale = 0
		ci.History1 = 0
		ci.History2 = 0
		ci.samples = converted[i]
		ci.Start = offset
		ci.StartFull = offset

		// Full-range looping, as shipped Opus assets declare.
		ci.Looping = true
		ci.LoopStart = 0
		ci.LoopEnd = 0xFFFFFFFF

		offset += uint32(padTill(len(converted[i]), sampleAlign))
	}

	a.invalidateDecode()
	a.RecalculateCRC()
	return nil
}

// encodeOpusStream encodes PCM16 in fixed 20 ms frames, zero-padding the
// final partial frame, and frames the packets as (big-endian length,
// 4 reserved bytes, payload) records behind the fixed stream header.
func encodeOpusStream(pcm []int16, order binary.ByteOrder) ([]byte, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, 1, gopus.ApplicationAudio)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}

	var packets bytes.Buffer
	frame := make([]int16, opusFrameSamples)
	for off := 0; off < len(pcm); off += opusFrameSamples {
		for i := range frame {
			frame[i] = 0
		}
		copy(frame, pcm[off:])

		packet, err := enc.EncodeInt16Slice(frame)
		if err != nil {
			return nil, fmt.Errorf("opus encode: %w", err)
		}
		binary.Write(&packets, binary.BigEndian, uint32(len(packet)))
		packets.Write([]byte{0, 0, 0, 0})
		packets.Write(packet)
	}

	var stream bytes.Buffer
	stream.Write(opusStreamPreamble)
	binary.Write(&stream, order, uint32(opusEncoderDelay))
	stream.Write([]byte{0x04, 0x00, 0x00, 0x80})
	binary.Write(&stream, order, uint32(packets.Len()))
	stream.Write(packets.Bytes())
	return stream.Bytes(), nil
}

// RecalculateCRC recomputes the asset checksum over the concatenation of
// all channel sample bytes.
func (a *Asset) RecalculateCRC() {
	if a.Opaque() {
		return
	}
	crc := uint32(0)
	for _, ci := range a.channels {
		crc = crc32.Update(crc, crc32.IEEETable, ci.samples)
	}
	a.crc = crc
}

// pcmBytes packs samples as 16-bit values in the given byte order.
func pcmBytes(samples []int16, order binary.ByteOrder) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		order.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
