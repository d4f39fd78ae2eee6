// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bars

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
)

// buildPCMAsset assembles a structured asset holding PCM16 channels, laid
// out the way shipped files are: channel blobs at sample-aligned offsets,
// the last one unpadded.
func buildPCMAsset(t *testing.T, order binary.ByteOrder, chans [][]int16) []byte {
	t.Helper()
	n := len(chans)

	start := padTill(bwavHeaderSize+n*channelInfoSize, sampleAlign)
	starts := make([]int, n)
	for i := range chans {
		starts[i] = start
		start += padTill(len(chans[i])*2, sampleAlign)
	}

	crc := uint32(0)
	for _, ch := range chans {
		crc = crc32.Update(crc, crc32.IEEETable, pcmBytes(ch, order))
	}

	var w bytes.Buffer
	w.WriteString(bwavMagic)
	w.Write(bomBytes(order))
	w.WriteByte(0) // version minor
	w.WriteByte(1) // version major
	binary.Write(&w, order, crc)
	binary.Write(&w, order, uint16(0)) // not prefetch
	binary.Write(&w, order, uint16(n))

	for i, ch := range chans {
		binary.Write(&w, order, uint16(CodecPCM16))
		binary.Write(&w, order, uint16(i)) // pan
		binary.Write(&w, order, uint32(48000))
		binary.Write(&w, order, uint32(len(ch))) // samples, full asset
		binary.Write(&w, order, uint32(len(ch))) // samples, this asset
		w.Write(make([]byte, 32))                // no ADPCM coefficients
		binary.Write(&w, order, uint32(starts[i]))
		binary.Write(&w, order, uint32(starts[i]))
		binary.Write(&w, order, uint32(0)) // not looping
		binary.Write(&w, order, uint32(len(ch)))
		binary.Write(&w, order, uint32(0))
		binary.Write(&w, order, uint16(0)) // predictor scale
		binary.Write(&w, order, uint16(0)) // history 1
		binary.Write(&w, order, uint16(0)) // history 2
		binary.Write(&w, order, uint16(0)) // reserved
	}

	for i, ch := range chans {
		if gap := starts[i] - w.Len(); gap > 0 {
			w.Write(make([]byte, gap))
		}
		w.Write(pcmBytes(ch, order))
	}
	return w.Bytes()
}

func sineSamples(n int, period int, amplitude int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		// Triangle approximation is enough for codec tests.
		phase := i % period
		if phase < period/2 {
			out[i] = amplitude
		} else {
			out[i] = -amplitude
		}
	}
	return out
}

func TestParseAssetPCM(t *testing.T) {
	left := []int16{100, -200, 300, -400}
	right := []int16{5, -5, 10, -10}
	raw := buildPCMAsset(t, binary.LittleEndian, [][]int16{left, right})

	a, err := ParseAsset(raw)
	if err != nil {
		t.Fatalf("ParseAsset: %v", err)
	}
	if a.Opaque() {
		t.Fatal("asset parsed as opaque")
	}
	if a.IsPrefetch() {
		t.Error("asset parsed as prefetch")
	}
	if a.NumChannels() != 2 {
		t.Fatalf("NumChannels = %d, want 2", a.NumChannels())
	}
	if a.Channel(0).Codec != CodecPCM16 {
		t.Errorf("Codec = %d, want PCM16", a.Channel(0).Codec)
	}
	if a.Channel(0).SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", a.Channel(0).SampleRate)
	}

	got, err := a.DecodeChannel(0, len(left))
	if err != nil {
		t.Fatalf("DecodeChannel: %v", err)
	}
	if !int16sEqual(got, left) {
		t.Errorf("channel 0 = %v, want %v", got, left)
	}
	got, err = a.DecodeChannel(1, len(right))
	if err != nil {
		t.Fatalf("DecodeChannel: %v", err)
	}
	if !int16sEqual(got, right) {
		t.Errorf("channel 1 = %v, want %v", got, right)
	}
}

func TestParseAssetBigEndian(t *testing.T) {
	samples := []int16{0x1234, -0x1234, 42}
	raw := buildPCMAsset(t, binary.BigEndian, [][]int16{samples})

	a, err := ParseAsset(raw)
	if err != nil {
		t.Fatalf("ParseAsset: %v", err)
	}
	got, err := a.DecodeChannel(0, len(samples))
	if err != nil {
		t.Fatalf("DecodeChannel: %v", err)
	}
	if !int16sEqual(got, samples) {
		t.Errorf("decoded = %v, want %v", got, samples)
	}
}

func TestParseAssetOpaque(t *testing.T) {
	blob := []byte("RIFF\x10\x00\x00\x00not an understood asset")
	a, err := ParseAsset(blob)
	if err != nil {
		t.Fatalf("ParseAsset: %v", err)
	}
	if !a.Opaque() {
		t.Fatal("expected an opaque asset")
	}
	if a.getSize() != len(blob) {
		t.Errorf("getSize = %d, want %d", a.getSize(), len(blob))
	}

	var w bytes.Buffer
	a.write(&w)
	if !bytes.Equal(w.Bytes(), blob) {
		t.Error("opaque asset did not round-trip byte for byte")
	}

	if _, err := a.DecodeChannel(0, 0); !errors.Is(err, ErrOpaqueAsset) {
		t.Errorf("DecodeChannel err = %v, want ErrOpaqueAsset", err)
	}
	if _, err := a.Decode(0); !errors.Is(err, ErrOpaqueAsset) {
		t.Errorf("Decode err = %v, want ErrOpaqueAsset", err)
	}
}

func TestParseAssetZeroChannels(t *testing.T) {
	var w bytes.Buffer
	w.WriteString(bwavMagic)
	w.Write([]byte{0xFF, 0xFE})
	w.Write([]byte{0, 1})
	binary.Write(&w, binary.LittleEndian, uint32(0)) // crc
	binary.Write(&w, binary.LittleEndian, uint16(0)) // prefetch
	binary.Write(&w, binary.LittleEndian, uint16(0)) // channels

	if _, err := ParseAsset(w.Bytes()); !errors.Is(err, ErrFormat) {
		t.Errorf("err = %v, want ErrFormat", err)
	}
}

func TestParseAssetTruncatedHeader(t *testing.T) {
	if _, err := ParseAsset([]byte("BWAV\xFF\xFE")); !errors.Is(err, ErrFormat) {
		t.Errorf("err = %v, want ErrFormat", err)
	}
}

func TestAssetRoundTrip(t *testing.T) {
	raw := buildPCMAsset(t, binary.LittleEndian, [][]int16{
		sineSamples(100, 20, 8000),
		sineSamples(100, 10, 4000),
	})
	a, err := ParseAsset(raw)
	if err != nil {
		t.Fatalf("ParseAsset: %v", err)
	}
	if a.getSize() != len(raw) {
		t.Errorf("getSize = %d, want %d", a.getSize(), len(raw))
	}
	var w bytes.Buffer
	a.write(&w)
	if !bytes.Equal(w.Bytes(), raw) {
		t.Error("asset did not round-trip byte for byte")
	}
}

func TestAssetInfo(t *testing.T) {
	raw := buildPCMAsset(t, binary.LittleEndian, [][]int16{{1, 2, 3}})
	a, err := ParseAsset(raw)
	if err != nil {
		t.Fatalf("ParseAsset: %v", err)
	}
	info := a.Info()
	for _, want := range []string{"BWAV", "Little Endian", "Channels:    1", "Sample rate:       48000"} {
		if !bytes.Contains([]byte(info), []byte(want)) {
			t.Errorf("Info() missing %q:\n%s", want, info)
		}
	}

	opaque, _ := ParseAsset([]byte("????"))
	if !bytes.Contains([]byte(opaque.Info()), []byte("RAW/UNKNOWN")) {
		t.Errorf("opaque Info() = %q", opaque.Info())
	}
}

func int16sEqual(a, b []int16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
