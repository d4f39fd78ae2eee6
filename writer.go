// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bars

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// layout holds the computed byte positions of every region of a
// serialized archive. All offsets are relative to the start of the file.
type layout struct {
	metaOffsets  []int
	assetOffsets []int // per entry; aliased entries share a value
	headerEnd    int   // sample-aligned end of the metadata region
	total        int
}

// computeLayout derives the full file layout from the current entry set.
//
// Metadata records pack back to back after the index tables and the
// trailer. The asset region starts at the next sample-aligned position;
// each distinct asset (by identity, in first-appearance order) is padded
// to sample alignment except the last, which ends the file.
func (b *Bars) computeLayout() layout {
	n := len(b.hashes)
	lay := layout{
		metaOffsets:  make([]int, n),
		assetOffsets: make([]int, n),
	}

	pos := barsHeaderSize + n*entryIndexSize + len(b.trailer)
	for i, m := range b.metas {
		lay.metaOffsets[i] = pos
		pos += m.getSize()
	}
	lay.headerEnd = padTill(pos, sampleAlign)
	lay.total = lay.headerEnd

	offsetOf := make(map[*Asset]int, n)
	var uniques []*Asset
	for _, a := range b.assets {
		if _, seen := offsetOf[a]; !seen {
			offsetOf[a] = 0
			uniques = append(uniques, a)
		}
	}

	pos = lay.headerEnd
	for k, a := range uniques {
		offsetOf[a] = pos
		size := a.getSize()
		if k == len(uniques)-1 {
			lay.total = pos + size
		} else {
			pos += padTill(size, sampleAlign)
			lay.total = pos
		}
	}

	for i, a := range b.assets {
		lay.assetOffsets[i] = offsetOf[a]
	}
	return lay
}

// GetSize returns the exact byte length Bytes would produce.
func (b *Bars) GetSize() int {
	return b.computeLayout().total
}

// Bytes serializes the archive. Parsed records and assets that were never
// modified reproduce their original bytes; offsets are always recomputed
// from the current entry set, so inserts and resizes shift later regions
// correctly.
func (b *Bars) Bytes() []byte {
	lay := b.computeLayout()

	w := &bytes.Buffer{}
	w.Grow(lay.total)

	w.WriteString(barsMagic)
	binary.Write(w, b.order, uint32(lay.total))
	w.Write(bomBytes(b.order))
	w.WriteByte(b.versionMinor)
	w.WriteByte(b.versionMajor)
	binary.Write(w, b.order, uint32(len(b.hashes)))

	for _, h := range b.hashes {
		binary.Write(w, b.order, h)
	}
	for i := range b.hashes {
		binary.Write(w, b.order, uint32(lay.metaOffsets[i]))
		binary.Write(w, b.order, uint32(lay.assetOffsets[i]))
	}

	w.Write(b.trailer)
	for _, m := range b.metas {
		m.write(w)
	}
	writePadding(w, w.Len(), sampleAlign)

	written := make(map[*Asset]bool, len(b.assets))
	for i, a := range b.assets {
		if written[a] {
			continue
		}
		written[a] = true
		if gap := lay.assetOffsets[i] - w.Len(); gap > 0 {
			w.Write(make([]byte, gap))
		}
		a.write(w)
	}

	return w.Bytes()
}

// Write serializes the archive to a file.
func (b *Bars) Write(path string) error {
	if err := os.WriteFile(path, b.Bytes(), 0644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}
