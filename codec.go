// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bars

import (
	"encoding/binary"
	"fmt"

	"github.com/thesyncim/gopus"
)

// DSP-ADPCM frames carry one header byte followed by 14 packed samples.
const adpcmSamplesPerFrame = 14

// Opus channel blobs start with a fixed 40-byte stream header; the packet
// stream follows as (big-endian length, 4 reserved bytes, payload) records.
const opusStreamHeaderSize = 40

// DecodeChannel decodes channel i to 16-bit signed PCM. A positive
// sampleLimit truncates the output; only unbounded (complete) decodes are
// cached, so a truncated result is never served later as if it were the
// whole channel.
func (a *Asset) DecodeChannel(i int, sampleLimit int) ([]int16, error) {
	if a.Opaque() {
		return nil, fmt.Errorf("decode: %w", ErrOpaqueAsset)
	}
	if i < 0 || i >= len(a.channels) {
		return nil, fmt.Errorf("decode: channel %d out of range", i)
	}
	if cached := a.decoded[i]; cached != nil {
		if sampleLimit > 0 && len(cached) > sampleLimit {
			return cached[:sampleLimit], nil
		}
		return cached, nil
	}

	ci := a.channels[i]
	var (
		dst     []int16
		reduced bool
		err     error
	)
	switch ci.Codec {
	case CodecPCM16:
		dst, reduced = decodePCM16(ci.samples, a.order, sampleLimit)
	case CodecADPCM:
		dst, reduced = decodeADPCM(ci, a.order, sampleLimit)
	case CodecOpus:
		dst, reduced, err = decodeOpus(ci, sampleLimit)
	default:
		return nil, fmt.Errorf("decode: unsupported codec %d", ci.Codec)
	}
	if err != nil {
		return nil, err
	}

	if !reduced {
		a.decoded[i] = dst
	}
	return dst, nil
}

// Decode decodes every channel. A positive sampleLimit bounds each
// channel's output independently.
func (a *Asset) Decode(sampleLimit int) ([][]int16, error) {
	if a.Opaque() {
		return nil, fmt.Errorf("decode: %w", ErrOpaqueAsset)
	}
	result := make([][]int16, len(a.channels))
	for i := range a.channels {
		samples, err := a.DecodeChannel(i, sampleLimit)
		if err != nil {
			return nil, err
		}
		result[i] = samples
	}
	return result, nil
}

// PeakVolume decodes every channel fully and returns the highest sample
// magnitude as a linear value in [0, 1]. Opaque assets report the neutral
// value 1.0, since they cannot be decoded.
func (a *Asset) PeakVolume() (float32, error) {
	if a.Opaque() {
		return 1.0, nil
	}
	decoded, err := a.Decode(0)
	if err != nil {
		return 0, err
	}
	peak := 0
	for _, channel := range decoded {
		for _, s := range channel {
			v := int(s)
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
	}
	return float32(peak) / 32768, nil
}

// invalidateDecode drops all cached decodes. Called whenever a channel's
// sample bytes are replaced.
func (a *Asset) invalidateDecode() {
	a.decoded = make([][]int16, len(a.channels))
}

// decodePCM16 reinterprets the raw bytes as 16-bit samples in the
// container byte order.
func decodePCM16(src []byte, order binary.ByteOrder, sampleLimit int) ([]int16, bool) {
	reduced := false
	if byteLimit := sampleLimit * 2; sampleLimit > 0 && len(src) > byteLimit {
		src = src[:byteLimit]
		reduced = true
	}
	dst := make([]int16, len(src)/2)
	for i := range dst {
		dst[i] = int16(order.Uint16(src[i*2:]))
	}
	return dst, reduced
}

// decodeADPCM decodes DSP-ADPCM frames: a header byte whose high nibble
// selects one of 8 coefficient pairs and whose low nibble is a
// power-of-two scale, then 14 signed 4-bit residuals combined with
// two-tap prediction over running history, clamped to int16 range.
func decodeADPCM(ci *ChannelInfo, order binary.ByteOrder, sampleLimit int) ([]int16, bool) {
	var coefs [16]int16
	for i := range coefs {
		coefs[i] = int16(order.Uint16(ci.Coeffs[i*2:]))
	}

	src := ci.samples
	total := int(ci.Samples)
	dst := make([]int16, 0, total)
	hist1, hist2 := int(ci.History1), int(ci.History2)

	idx := 0
	remaining := total
	reduced := false
	for remaining > 0 && idx < len(src) {
		header := src[idx]
		idx++
		predictor := int(header >> 4 & 0x0F)
		scale := 1 << (header & 0x0F)
		c1 := int(coefs[predictor*2])
		c2 := int(coefs[predictor*2+1])

		toRead := adpcmSamplesPerFrame
		if remaining < toRead {
			toRead = remaining
		}
		even := true
		for s := 0; s < toRead && idx < len(src); s++ {
			var nibble int
			if even {
				nibble = int(src[idx] >> 4 & 0x0F)
			} else {
				nibble = int(src[idx] & 0x0F)
				idx++
			}
			even = !even
			if nibble >= 8 {
				nibble -= 16
			}

			sample := (((scale * nibble) << 11) + 1024 + (c1*hist1 + c2*hist2)) >> 11
			if sample > 32767 {
				sample = 32767
			} else if sample < -32768 {
				sample = -32768
			}
			hist2 = hist1
			hist1 = sample
			dst = append(dst, int16(sample))
		}
		remaining -= toRead

		if sampleLimit > 0 && len(dst) >= sampleLimit {
			if len(dst) > sampleLimit {
				dst = dst[:sampleLimit]
			}
			reduced = len(dst) < total
			break
		}
	}
	return dst, reduced
}

// decodeOpus walks the packet stream after the fixed header and decodes
// each packet with a mono decoder at the channel's sample rate.
func decodeOpus(ci *ChannelInfo, sampleLimit int) ([]int16, bool, error) {
	dec, err := gopus.NewDecoder(int(ci.SampleRate), 1)
	if err != nil {
		return nil, false, fmt.Errorf("opus decoder: %w", err)
	}

	src := ci.samples
	var dst []int16
	reduced := false
	cur := opusStreamHeaderSize
	for cur+8 <= len(src) {
		packetLen := int(binary.BigEndian.Uint32(src[cur:]))
		cur += 8 // skip 4 reserved bytes after the length
		if packetLen <= 0 || cur+packetLen > len(src) {
			break
		}
		pcm, err := dec.DecodeInt16Slice(src[cur : cur+packetLen])
		if err != nil {
			return nil, false, fmt.Errorf("opus decode: %w", err)
		}
		dst = append(dst, pcm...)
		cur += packetLen

		if sampleLimit > 0 && len(dst) > sampleLimit {
			dst = dst[:sampleLimit]
			reduced = true
			break
		}
	}
	return dst, reduced, nil
}
