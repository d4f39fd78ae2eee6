// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package bars

import "hash/crc32"

// NameHash returns the 32-bit content hash of an entry name, used as its
// lookup and sort key in the container index. BARS uses plain CRC-32/IEEE
// over the UTF-8 bytes of the name.
func NameHash(name string) uint32 {
	return crc32.ChecksumIEEE([]byte(name))
}
