// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bars

import "errors"

// Structural failures abort a parse; policy failures are returned from
// mutating operations as wrapped sentinels so a batch caller can match
// them with errors.Is and keep going.
var (
	// ErrFormat indicates a bad magic value or an impossible header.
	ErrFormat = errors.New("invalid format")

	// ErrLookupMiss indicates the requested entry name or hash is not
	// present in the container.
	ErrLookupMiss = errors.New("entry not found")

	// ErrIncompatibleCodec indicates a replacement asset could not be
	// brought to the form the slot requires (prefetch conversion failed,
	// or a prefetch asset was offered for a non-prefetch slot).
	ErrIncompatibleCodec = errors.New("incompatible codec")

	// ErrSizeChangeDisallowed indicates a replacement would change the
	// container layout and resizing was not permitted.
	ErrSizeChangeDisallowed = errors.New("size change disallowed")

	// ErrSharedAssetResize indicates the target asset is referenced by
	// more than one entry and resizing was not permitted.
	ErrSharedAssetResize = errors.New("shared asset resize disallowed")

	// ErrOpaqueAsset indicates a decode or conversion was requested on an
	// asset whose format is not understood.
	ErrOpaqueAsset = errors.New("opaque asset")
)
