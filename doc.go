// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package bars provides pure Go support for reading and modifying BARS audio
archives, the container format Nintendo titles use to bundle named audio
assets (BWAV) with their loudness metadata (AMTA).

A BARS file is an indexed collection of entries. Each entry pairs a 32-bit
hash of its name with a metadata record and an audio asset; several entries
may share one physical asset. The package parses the index, the metadata
records, and the structured audio assets (PCM16, DSP-ADPCM and Opus coded
channels), and re-serializes the container with recomputed offsets after
insertions or replacements. Byte regions the package does not model are
preserved verbatim, so a parse/serialize round trip keeps unknown data
intact.

# Basic Usage

Replacing an asset in an archive:

	archive, err := bars.Open("Voice_Mario.bars")
	if err != nil {
		log.Fatal(err)
	}

	data, _ := os.ReadFile("new_voice.bwav")
	asset, err := bars.ParseAsset(data)
	if err != nil {
		log.Fatal(err)
	}

	if err := archive.Replace("SE_Voice_Mario_Win", asset, true); err != nil {
		log.Fatal(err)
	}

	if err := archive.Write("Voice_Mario.bars"); err != nil {
		log.Fatal(err)
	}

Adding a new entry, or replacing it if the name already exists:

	outcome, err := archive.InsertOrReplace("SE_Voice_Mario_Lose", data)

Inspecting an asset:

	idx, ok := archive.Lookup("SE_Voice_Mario_Win")
	if ok {
		fmt.Print(archive.Asset(idx).Info())
	}

# Policy on malformed input

Modded archives are frequently hand-edited or partially downloaded, so the
parser is deliberately tolerant where it can be: a truncated offset table
clamps the entry count, a metadata array section shorter than its declared
count is cut to what is actually present, and an asset with an unrecognized
magic becomes an opaque blob that round-trips byte for byte instead of
failing the parse. Only structural impossibilities (wrong container magic,
truncated fixed headers) abort with an error.

# Limitations

This package focuses on the subset of BARS functionality needed for game
audio modding:

  - Opus transcoding requires uniformly 48 kHz, non-prefetch assets
  - Metadata records are passed through verbatim; only the loudness
    section and the entry name are interpreted
  - No support for the transparent compression wrapper some titles apply
    on disk; callers hand the package decompressed buffers
*/
package bars
