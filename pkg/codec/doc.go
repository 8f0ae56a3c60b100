// Package codec provides frame serialization and deserialization for actionkv.
//
// A frame is the on-disk encoding of one key-value record. Frames are
// appended back to back with no file header or footer, so an empty file is a
// valid, empty database.
//
// # Frame Format
//
//	[CRC32(4)][KeySize(4)][ValueSize(4)][Key][Value]
//
// All integers are little-endian. The total frame size is
// 12 + len(key) + len(value).
//
// # Checksum
//
// CRC32 is the CRC-32/CKSUM checksum (polynomial 0x04C11DB7, MSB-first,
// init 0, final xor 0xFFFFFFFF) of Key followed by Value. The length fields
// are not covered: a corrupt length shows up either as a short read or as a
// checksum mismatch.
//
// # Decoding
//
// Decode distinguishes three outcomes a caller scanning a log cares about:
//
//   - io.EOF: the source ended cleanly on a frame boundary
//   - ErrTruncatedRecord: the source ended inside a frame (torn write)
//   - ErrChecksumMismatch: the payload is present but corrupt
//
// # Tombstones
//
// A record with an empty value marks its key as deleted.
package codec
