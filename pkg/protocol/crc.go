package protocol

import "hash/crc32"

// bitmapAddressHeader is prepended to every bitmap payload before the
// CRC is computed, and precedes the first data chunk on the wire.
var bitmapAddressHeader = []byte{0x00, 0x1C, 0x00, 0x00}

// computeBitmapCRC computes CRC-32/IEEE over the address header
// concatenated with the original bitmap payload, per spec.md §4.1
// "Bitmap CRC".
func computeBitmapCRC(bitmap []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(bitmapAddressHeader)
	h.Write(bitmap)
	return h.Sum32()
}
