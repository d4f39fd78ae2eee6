// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bars

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/vazrupe/endibuf"
)

// Bars is a parsed audio archive: an ordered collection of entries, each
// pairing a name hash with a metadata record and an audio asset.
//
// Assets are held by identity. Several entries may reference the same
// *Asset (aliasing); serialization writes each distinct asset once and
// points every referencing entry at it. A Bars is not safe for concurrent
// mutation; distinct instances share no state.
type Bars struct {
	order        binary.ByteOrder
	versionMinor uint8
	versionMajor uint8

	hashes  []uint32
	metas   []*Amta
	assets  []*Asset
	trailer []byte // uninterpreted bytes between the offset table and the first record
}

// Outcome reports what InsertOrReplace did.
type Outcome int

const (
	Failed Outcome = iota
	Inserted
	Replaced
)

// Open reads and parses an archive from disk.
func Open(path string) (*Bars, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return Parse(data)
}

// Parse reads an archive from an in-memory buffer.
//
// An offset-pair table shorter than the declared entry count clamps the
// count to what is present instead of failing: these files are routinely
// hand-edited or partially downloaded, and the readable prefix is still
// useful. Structural impossibilities (bad magic, truncated fixed header,
// out-of-range record offsets) fail with ErrFormat.
func Parse(data []byte) (*Bars, error) {
	r := endibuf.NewReader(bytes.NewReader(data))

	magic, err := r.ReadBytes(4)
	if err != nil || string(magic) != barsMagic {
		return nil, fmt.Errorf("%w: bad container magic", ErrFormat)
	}

	// The total size precedes the byte order mark; hold the raw bytes and
	// decode them once the mark is known.
	sizeRaw, err := r.ReadBytes(4)
	if err != nil || len(sizeRaw) < 4 {
		return nil, fmt.Errorf("%w: truncated container header", ErrFormat)
	}

	b := &Bars{}
	if b.order, err = readBOM(r); err != nil {
		return nil, err
	}
	r.Endian = b.order
	declaredSize := int(b.order.Uint32(sizeRaw))

	if b.versionMinor, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("%w: truncated container header", ErrFormat)
	}
	if b.versionMajor, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("%w: truncated container header", ErrFormat)
	}
	count, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated container header", ErrFormat)
	}

	b.hashes = make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		h, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated hash table", ErrFormat)
		}
		b.hashes = append(b.hashes, h)
	}

	// Offset-pair table; clamp the entry count on truncation.
	var metaOffsets, assetOffsets []uint32
	for i := uint32(0); i < count; i++ {
		mo, err := r.ReadUint32()
		if err != nil {
			break
		}
		ao, err := r.ReadUint32()
		if err != nil {
			break
		}
		metaOffsets = append(metaOffsets, mo)
		assetOffsets = append(assetOffsets, ao)
	}
	b.hashes = b.hashes[:len(metaOffsets)]

	// Preserve the unmodeled region before the first metadata record.
	if len(metaOffsets) > 0 {
		pos := barsHeaderSize + int(count)*entryIndexSize
		end := int(metaOffsets[0])
		if end > len(data) {
			end = len(data)
		}
		if end > pos {
			b.trailer = append([]byte(nil), data[pos:end]...)
		}
	}

	for _, mo := range metaOffsets {
		if int(mo) >= len(data) {
			return nil, fmt.Errorf("%w: metadata offset 0x%X out of range", ErrFormat, mo)
		}
		meta, err := parseAmta(data[mo:])
		if err != nil {
			return nil, err
		}
		b.metas = append(b.metas, meta)
	}

	eof := declaredSize
	if eof > len(data) || eof <= 0 {
		eof = len(data)
	}
	cache := make(map[uint32]*Asset)
	for _, ao := range assetOffsets {
		if cached, ok := cache[ao]; ok {
			b.assets = append(b.assets, cached)
			continue
		}
		if int(ao) > len(data) {
			return nil, fmt.Errorf("%w: asset offset 0x%X out of range", ErrFormat, ao)
		}

		// The asset's span ends at the next strictly greater offset in the
		// table, or at end of file for the last occupant.
		end := eof
		for _, other := range assetOffsets {
			if other > ao && int(other) < end {
				end = int(other)
			}
		}
		if end < int(ao) {
			end = int(ao)
		}

		asset, err := ParseAsset(data[ao:end])
		if err != nil {
			return nil, err
		}
		cache[ao] = asset
		b.assets = append(b.assets, asset)
	}

	return b, nil
}

// EntryCount returns the number of entries in the archive.
func (b *Bars) EntryCount() int { return len(b.hashes) }

// Hash returns the name hash of entry i.
func (b *Bars) Hash(i int) uint32 { return b.hashes[i] }

// Name returns the display name of entry i.
func (b *Bars) Name(i int) string { return b.metas[i].Name() }

// Meta returns the metadata record of entry i.
func (b *Bars) Meta(i int) *Amta { return b.metas[i] }

// Asset returns the audio asset of entry i. The same *Asset may be
// returned for several indices when entries share one physical asset.
func (b *Bars) Asset(i int) *Asset { return b.assets[i] }

// Lookup returns the index of the first entry whose hash matches the
// name's hash.
//
// The hash is not a unique key: distinct names can collide, and the first
// match wins. The scan is linear so lookups stay correct even on archives
// whose hash array was left unsorted by external edits.
func (b *Bars) Lookup(name string) (int, bool) {
	return b.LookupHash(NameHash(name))
}

// LookupHash returns the index of the first entry with the given hash.
func (b *Bars) LookupHash(hash uint32) (int, bool) {
	for i, h := range b.hashes {
		if h == hash {
			return i, true
		}
	}
	return 0, false
}

// Replace swaps the named entry's asset for a new one.
//
// If the existing asset is a prefetch variant, the replacement is
// converted to prefetch automatically. Without allowResize, a replacement
// that would change the container layout is refused: different channel
// count or codec, a non-prefetch target slot, an asset shared by other
// entries, or any padded size difference. Failures are wrapped sentinel
// errors, so a batch caller can match them with errors.Is and continue.
func (b *Bars) Replace(name string, asset *Asset, allowResize bool) error {
	idx, ok := b.Lookup(name)
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrLookupMiss)
	}
	return b.replaceEntry(idx, name, asset, allowResize, true)
}

// ReplaceAt swaps the asset at a specific index, applying only the
// sharing and size policies (no codec compatibility checks).
func (b *Bars) ReplaceAt(idx int, asset *Asset, allowResize bool) error {
	if idx < 0 || idx >= len(b.assets) {
		return fmt.Errorf("index %d: %w", idx, ErrLookupMiss)
	}
	return b.replaceEntry(idx, fmt.Sprintf("entry %d", idx), asset, allowResize, false)
}

func (b *Bars) replaceEntry(idx int, label string, next *Asset, allowResize, checkCodec bool) error {
	old := b.assets[idx]

	if checkCodec && !old.Opaque() && !next.Opaque() {
		if !allowResize {
			if next.NumChannels() != old.NumChannels() {
				return fmt.Errorf("%s: channel count differs: %w", label, ErrSizeChangeDisallowed)
			}
			if next.Channel(0).Codec != old.Channel(0).Codec {
				return fmt.Errorf("%s: codec differs: %w", label, ErrSizeChangeDisallowed)
			}
		}

		if old.IsPrefetch() {
			ok, err := next.ConvertToPrefetch()
			if err != nil {
				return fmt.Errorf("%s: prefetch conversion failed (%v): %w", label, err, ErrIncompatibleCodec)
			}
			if !ok {
				return fmt.Errorf("%s: replacement cannot become prefetch: %w", label, ErrIncompatibleCodec)
			}
		} else {
			if next.IsPrefetch() {
				return fmt.Errorf("%s: prefetch replacement for a non-prefetch entry: %w", label, ErrIncompatibleCodec)
			}
			if !allowResize {
				return fmt.Errorf("%s: replacing a non-prefetch asset: %w", label, ErrSizeChangeDisallowed)
			}
		}
	}

	if !allowResize && b.assetShared(idx) {
		return fmt.Errorf("%s: %w", label, ErrSharedAssetResize)
	}
	if !allowResize {
		if padTill(next.getSize(), sampleAlign) != padTill(old.getSize(), sampleAlign) {
			return fmt.Errorf("%s: %w", label, ErrSizeChangeDisallowed)
		}
	}

	b.assets[idx] = next
	return nil
}

// assetShared reports whether entry idx's asset is referenced by any
// other entry.
func (b *Bars) assetShared(idx int) bool {
	for i, a := range b.assets {
		if i != idx && a == b.assets[idx] {
			return true
		}
	}
	return false
}

// InsertOrReplace adds a new named entry built from raw asset bytes, or
// replaces the existing entry's asset if the name hash is already
// present. New entries get a default metadata record carrying the asset's
// peak volume and are inserted at the position that keeps the hash array
// sorted (assuming it was sorted beforehand).
func (b *Bars) InsertOrReplace(name string, assetData []byte) (Outcome, error) {
	asset, err := ParseAsset(assetData)
	if err != nil {
		return Failed, fmt.Errorf("%q: %w", name, err)
	}

	hash := NameHash(name)
	if idx, ok := b.LookupHash(hash); ok {
		if err := b.replaceEntry(idx, name, asset, true, true); err != nil {
			return Failed, err
		}
		return Replaced, nil
	}

	meta, err := NewAmta(name, asset)
	if err != nil {
		return Failed, fmt.Errorf("%q: %w", name, err)
	}

	pos := sort.Search(len(b.hashes), func(i int) bool { return b.hashes[i] >= hash })
	b.hashes = slices.Insert(b.hashes, pos, hash)
	b.metas = slices.Insert(b.metas, pos, meta)
	b.assets = slices.Insert(b.assets, pos, asset)
	return Inserted, nil
}
