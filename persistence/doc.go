// Package persistence provides the binary envelope and primitive codecs used to
// serialize voyago indexes.
//
// A serialized index is a single blob:
//
//	+------------------------------------------------------------+
//	| magic "VOY1" | version u16 | compression u8 | reserved u8  |
//	| raw length u64 | stored length u64 | CRC32(raw) u32        |
//	+------------------------------------------------------------+
//	| payload (optionally LZ4 or ZSTD compressed)                |
//	+------------------------------------------------------------+
//
// All integers are little-endian. The checksum covers the uncompressed
// payload so corruption is detected regardless of compression.
package persistence
