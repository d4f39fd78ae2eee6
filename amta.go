// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bars

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vazrupe/endibuf"
)

// Loudness is the fixed numeric section of a metadata record. Only the
// peak volume field is understood; the remaining fields carry raw
// loudness-related data.
type Loudness struct {
	R01  uint32
	Peak float32
	R02  float32
	R03  float32
	R04  float32
	R05  float32
}

// Amta is one metadata record (AMTA section) describing a named asset.
//
// Records parsed from a file keep their verbatim byte span and write it
// back unchanged, so fields the model does not interpret round-trip
// exactly. Records built with NewAmta synthesize their bytes on write.
type Amta struct {
	raw []byte // verbatim span; nil for synthesized records

	order        binary.ByteOrder
	versionMinor uint8
	versionMajor uint8
	size         uint32
	sections     [6]uint32 // zero, loudness, track array, MINF, STRINGS, zero

	loudness Loudness
	records  [][4]uint32 // optional track array section
	data     []byte      // opaque DATA payload
	tail     []byte      // trailing bytes, usually the entry name
	name     string
}

// parseAmta reads one metadata record from the start of buf. buf may
// extend past the record; the record's declared size bounds the span.
func parseAmta(buf []byte) (*Amta, error) {
	r := endibuf.NewReader(bytes.NewReader(buf))

	magic, err := r.ReadBytes(4)
	if err != nil || string(magic) != amtaMagic {
		return nil, fmt.Errorf("%w: bad AMTA magic", ErrFormat)
	}

	a := &Amta{}
	if a.order, err = readBOM(r); err != nil {
		return nil, err
	}
	r.Endian = a.order

	if a.versionMinor, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("%w: truncated AMTA header", ErrFormat)
	}
	if a.versionMajor, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("%w: truncated AMTA header", ErrFormat)
	}
	if a.size, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("%w: truncated AMTA header", ErrFormat)
	}
	for i := range a.sections {
		if a.sections[i], err = r.ReadUint32(); err != nil {
			return nil, fmt.Errorf("%w: truncated AMTA header", ErrFormat)
		}
	}

	// Clamp the declared span to what the buffer holds.
	if int(a.size) > len(buf) {
		a.size = uint32(len(buf))
	}
	span := buf[:a.size]

	a.parseLoudness(span)
	a.parseTrackArray(span)
	a.parseDataAndName(span)

	a.raw = append([]byte(nil), span...)
	return a, nil
}

// parseLoudness reads the fixed 24-byte numeric section. A section offset
// pointing outside the span leaves the zero value rather than failing,
// since the span is passed through verbatim anyway.
func (a *Amta) parseLoudness(span []byte) {
	off := int(a.sections[1])
	if off <= 0 || off+24 > len(span) {
		return
	}
	a.loudness.R01 = a.order.Uint32(span[off:])
	floats := [5]*float32{
		&a.loudness.Peak, &a.loudness.R02, &a.loudness.R03,
		&a.loudness.R04, &a.loudness.R05,
	}
	for i, f := range floats {
		*f = math.Float32frombits(a.order.Uint32(span[off+4+i*4:]))
	}
}

// parseTrackArray reads the optional count-prefixed 16-byte-record array.
// A section shorter than its declared count is cut to what is present.
func (a *Amta) parseTrackArray(span []byte) {
	off := int(a.sections[2])
	if off <= 0 || off+4 > len(span) {
		return
	}
	count := int(a.order.Uint32(span[off:]))
	off += 4
	for i := 0; i < count; i++ {
		if off+16 > len(span) {
			break
		}
		var rec [4]uint32
		for j := range rec {
			rec[j] = a.order.Uint32(span[off+j*4:])
		}
		a.records = append(a.records, rec)
		off += 16
	}
}

// parseDataAndName reads the length-prefixed DATA payload that follows the
// fixed header, then recovers the display name from the trailing bytes: a
// length-prefixed STRG chunk when present, otherwise the bytes up to the
// first NUL.
func (a *Amta) parseDataAndName(span []byte) {
	pos := amtaHeaderSize
	if pos+4 <= len(span) && string(span[pos:pos+4]) == dataMagic {
		pos += 4
	}
	dataLen := 0
	if pos+4 <= len(span) {
		dataLen = int(a.order.Uint32(span[pos:]))
		pos += 4
	}
	if dataLen > len(span)-pos {
		dataLen = len(span) - pos
	}
	if dataLen > 0 {
		a.data = append([]byte(nil), span[pos:pos+dataLen]...)
		pos += dataLen
	}
	if pos < len(span) {
		a.tail = append([]byte(nil), span[pos:]...)
	}

	if idx := bytes.Index(a.tail, []byte(strgMagic)); idx >= 0 && idx+8 <= len(a.tail) {
		strLen := int(a.order.Uint32(a.tail[idx+4:]))
		start := idx + 8
		end := start + strLen - 1 // length includes the terminator
		if strLen > 0 && end <= len(a.tail) {
			a.name = string(a.tail[start:end])
			return
		}
	}
	if cut := bytes.IndexByte(a.tail, 0); cut >= 0 {
		a.name = string(a.tail[:cut])
	} else {
		a.name = string(a.tail)
	}
}

// NewAmta synthesizes a minimal metadata record for a new entry, embedding
// the asset's peak volume in the loudness section and the name as the
// trailing bytes.
func NewAmta(name string, asset *Asset) (*Amta, error) {
	peak, err := asset.PeakVolume()
	if err != nil {
		return nil, err
	}

	a := &Amta{
		order:        binary.LittleEndian,
		versionMinor: 0,
		versionMajor: 5,
		sections:     [6]uint32{0, 52, 0, 0, 0, 0},
		loudness: Loudness{
			R01:  79,
			Peak: peak,
			R02:  0.005,
			R03:  -43.6,
			R04:  -43.6,
			R05:  0,
		},
		name: name,
	}

	payload := &bytes.Buffer{}
	payload.Write([]byte{0x00, 0x04})
	binary.Write(payload, a.order, a.loudness)
	a.data = payload.Bytes()

	a.tail = append([]byte(name), 0)
	a.size = uint32(a.getSize())
	return a, nil
}

// Name returns the display name recovered from the record.
func (a *Amta) Name() string { return a.name }

// Loudness returns the record's numeric loudness section.
func (a *Amta) Loudness() Loudness { return a.loudness }

// getSize returns the serialized length of the record: the verbatim span
// for parsed records, the padded synthesized length otherwise.
func (a *Amta) getSize() int {
	if a.raw != nil {
		return len(a.raw)
	}
	return padTill(amtaHeaderSize+8+len(a.data)+len(a.tail), metaAlign)
}

// write serializes the record. Parsed records emit their captured span
// unchanged; synthesized records are built field by field.
func (a *Amta) write(w *bytes.Buffer) {
	if a.raw != nil {
		w.Write(a.raw)
		return
	}
	w.WriteString(amtaMagic)
	w.Write(bomBytes(a.order))
	w.WriteByte(a.versionMinor)
	w.WriteByte(a.versionMajor)
	binary.Write(w, a.order, uint32(a.getSize()))
	binary.Write(w, a.order, a.sections)
	w.WriteString(dataMagic)
	binary.Write(w, a.order, uint32(len(a.data)))
	w.Write(a.data)
	w.Write(a.tail)
	writePadding(w, amtaHeaderSize+8+len(a.data)+len(a.tail), metaAlign)
}

// writePadding appends the zero bytes needed to advance pos to align.
func writePadding(w *bytes.Buffer, pos, align int) {
	w.Write(make([]byte, padCount(pos, align)))
}
