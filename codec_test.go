// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bars

import (
	"encoding/binary"
	"testing"
)

// adpcmAsset wraps a single hand-built ADPCM channel in an asset.
func adpcmAsset(ci *ChannelInfo) *Asset {
	ci.Codec = CodecADPCM
	return &Asset{
		order:    binary.LittleEndian,
		channels: []*ChannelInfo{ci},
		decoded:  make([][]int16, 1),
	}
}

// One frame, predictor pair 0 with c1=2048 (unity feedback on the previous
// sample) and scale 1. Residuals 1,1,0,0,... accumulate to 1,2 and then
// hold at 2, worked out by hand from the prediction formula.
func TestDecodeADPCMGolden(t *testing.T) {
	ci := &ChannelInfo{SampleRate: 48000, Samples: 14}
	binary.LittleEndian.PutUint16(ci.Coeffs[0:], 2048) // c1
	ci.samples = []byte{0x00, 0x11, 0, 0, 0, 0, 0, 0}

	got, err := adpcmAsset(ci).DecodeChannel(0, 0)
	if err != nil {
		t.Fatalf("DecodeChannel: %v", err)
	}
	want := []int16{1, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2}
	if !int16sEqual(got, want) {
		t.Errorf("decoded = %v, want %v", got, want)
	}
}

// Scale shift 1 doubles the residual; zero coefficients remove the
// prediction term. Nibbles 3 and -4 give 6 and -8.
func TestDecodeADPCMScale(t *testing.T) {
	ci := &ChannelInfo{SampleRate: 48000, Samples: 2}
	ci.samples = []byte{0x01, 0x3C}

	got, err := adpcmAsset(ci).DecodeChannel(0, 0)
	if err != nil {
		t.Fatalf("DecodeChannel: %v", err)
	}
	want := []int16{6, -8}
	if !int16sEqual(got, want) {
		t.Errorf("decoded = %v, want %v", got, want)
	}
}

// The prediction history seeds the first samples of the stream.
func TestDecodeADPCMHistory(t *testing.T) {
	ci := &ChannelInfo{SampleRate: 48000, Samples: 1, History1: 100, History2: 50}
	binary.LittleEndian.PutUint16(ci.Coeffs[0:], 2048)  // c1
	binary.LittleEndian.PutUint16(ci.Coeffs[2:], 1024)  // c2
	ci.samples = []byte{0x00, 0x00}

	got, err := adpcmAsset(ci).DecodeChannel(0, 0)
	if err != nil {
		t.Fatalf("DecodeChannel: %v", err)
	}
	// (0 + 1024 + 2048*100 + 1024*50) >> 11 = 125
	want := []int16{125}
	if !int16sEqual(got, want) {
		t.Errorf("decoded = %v, want %v", got, want)
	}
}

func TestDecodeADPCMClamp(t *testing.T) {
	// Max positive residual at max scale saturates to the int16 ceiling.
	ci := &ChannelInfo{SampleRate: 48000, Samples: 1}
	ci.samples = []byte{0x0F, 0x70}

	got, err := adpcmAsset(ci).DecodeChannel(0, 0)
	if err != nil {
		t.Fatalf("DecodeChannel: %v", err)
	}
	if got[0] != 32767 {
		t.Errorf("decoded = %d, want 32767", got[0])
	}
}

func TestDecodeChannelSampleLimit(t *testing.T) {
	samples := sineSamples(200, 20, 1000)
	raw := buildPCMAsset(t, binary.LittleEndian, [][]int16{samples})
	a, err := ParseAsset(raw)
	if err != nil {
		t.Fatalf("ParseAsset: %v", err)
	}

	limited, err := a.DecodeChannel(0, 50)
	if err != nil {
		t.Fatalf("DecodeChannel limited: %v", err)
	}
	if len(limited) != 50 {
		t.Fatalf("limited decode returned %d samples, want 50", len(limited))
	}

	// A truncated decode must not poison the cache.
	full, err := a.DecodeChannel(0, 0)
	if err != nil {
		t.Fatalf("DecodeChannel full: %v", err)
	}
	if len(full) < len(samples) {
		t.Fatalf("full decode returned %d samples, want at least %d", len(full), len(samples))
	}
	if !int16sEqual(full[:len(samples)], samples) {
		t.Error("full decode after a limited decode lost samples")
	}

	// Cached full decodes serve limited requests by slicing.
	again, err := a.DecodeChannel(0, 10)
	if err != nil {
		t.Fatalf("DecodeChannel cached: %v", err)
	}
	if !int16sEqual(again, samples[:10]) {
		t.Errorf("cached limited decode = %v, want %v", again, samples[:10])
	}
}

func TestDecodeChannelOutOfRange(t *testing.T) {
	raw := buildPCMAsset(t, binary.LittleEndian, [][]int16{{1, 2}})
	a, err := ParseAsset(raw)
	if err != nil {
		t.Fatalf("ParseAsset: %v", err)
	}
	if _, err := a.DecodeChannel(1, 0); err == nil {
		t.Error("expected an error for channel index past the end")
	}
	if _, err := a.DecodeChannel(-1, 0); err == nil {
		t.Error("expected an error for a negative channel index")
	}
}

func TestPeakVolume(t *testing.T) {
	raw := buildPCMAsset(t, binary.LittleEndian, [][]int16{
		{100, -2000, 300},
		{-50, 40, 1500},
	})
	a, err := ParseAsset(raw)
	if err != nil {
		t.Fatalf("ParseAsset: %v", err)
	}
	peak, err := a.PeakVolume()
	if err != nil {
		t.Fatalf("PeakVolume: %v", err)
	}
	if want := float32(2000) / 32768; peak != want {
		t.Errorf("PeakVolume = %v, want %v", peak, want)
	}

	opaque, _ := ParseAsset([]byte("not audio"))
	peak, err = opaque.PeakVolume()
	if err != nil {
		t.Fatalf("PeakVolume on opaque: %v", err)
	}
	if peak != 1.0 {
		t.Errorf("opaque PeakVolume = %v, want 1.0", peak)
	}
}
