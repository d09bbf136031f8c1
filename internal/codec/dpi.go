package codec

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math"
)

// withJFIFDensity inserts (or replaces) the JFIF APP0 segment so that the
// file declares dpi dots per inch.
func withJFIFDensity(data []byte, dpi int) []byte {
	if dpi == 0 || len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return data
	}

	app0 := []byte{
		0xFF, 0xE0, 0x00, 0x10, // marker, length 16
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x01, // version 1.01
		0x01, // units: dots per inch
		0, 0, 0, 0, // x, y density
		0x00, 0x00, // no thumbnail
	}
	binary.BigEndian.PutUint16(app0[12:], uint16(dpi))
	binary.BigEndian.PutUint16(app0[14:], uint16(dpi))

	rest := data[2:]
	if len(rest) > 4 && rest[0] == 0xFF && rest[1] == 0xE0 {
		n := int(binary.BigEndian.Uint16(rest[2:4]))
		if 2+n <= len(rest) {
			rest = rest[2+n:]
		}
	}

	out := make([]byte, 0, len(data)+len(app0))
	out = append(out, 0xFF, 0xD8)
	out = append(out, app0...)
	return append(out, rest...)
}

// withPHYs inserts a pHYs chunk after IHDR declaring dpi.
func withPHYs(data []byte, dpi int) []byte {
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	if dpi == 0 || len(data) < ihdrEnd || !bytes.Equal(data[12:16], []byte("IHDR")) {
		return data
	}

	ppm := uint32(math.Round(float64(dpi) / 0.0254))
	chunk := make([]byte, 4+4+9+4)
	binary.BigEndian.PutUint32(chunk[0:], 9)
	copy(chunk[4:], "pHYs")
	binary.BigEndian.PutUint32(chunk[8:], ppm)
	binary.BigEndian.PutUint32(chunk[12:], ppm)
	chunk[16] = 1 // unit: metre
	binary.BigEndian.PutUint32(chunk[17:], crc32.ChecksumIEEE(chunk[4:17]))

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:ihdrEnd]...)
	out = append(out, chunk...)
	return append(out, data[ihdrEnd:]...)
}
