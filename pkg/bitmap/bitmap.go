// Package bitmap decodes uncompressed Windows BMP images into the pixel
// representation the matrix panel consumes.
//
// Palette-indexed depths (1/4/8 bpp) keep the raw palette index as the pixel
// value, matching the panel's indexed-color buffer. 16 bpp is consumed
// verbatim as RGB565; 24 and 32 bpp are reduced to RGB565.
package bitmap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MinHeaderSize is the smallest byte count a decodable image can have.
// Uploads below this are rejected before decoding is attempted.
const MinHeaderSize = 138

const supportedDIBHeaderSize = 40 // BITMAPINFOHEADER

var (
	ErrTruncated         = errors.New("bitmap: truncated data")
	ErrBadMagic          = errors.New("bitmap: bad magic signature")
	ErrUnsupportedHeader = errors.New("bitmap: unsupported header version")
)

// Bitmap is a decoded pixel grid. Pixels are row-major with row 0 at the
// top, regardless of the bottom-to-top storage order of the source file.
type Bitmap struct {
	Width        int
	Height       int
	BitsPerPixel int
	Pixels       []uint16
}

// At returns the pixel value at logical coordinates (x, y)
func (b *Bitmap) At(x, y int) uint16 {
	return b.Pixels[y*b.Width+x]
}

// Decode parses a BMP byte sequence. source is a human-readable label
// (upload origin or URL) used in error messages only.
func Decode(data []byte, source string) (*Bitmap, error) {
	if len(data) < MinHeaderSize {
		return nil, fmt.Errorf("%s (%d bytes): %w", source, len(data), ErrTruncated)
	}
	if data[0] != 'B' || data[1] != 'M' {
		return nil, fmt.Errorf("%s: %w", source, ErrBadMagic)
	}

	dataOffset := int(binary.LittleEndian.Uint32(data[10:14]))
	headerSize := int(binary.LittleEndian.Uint32(data[14:18]))
	width := int(binary.LittleEndian.Uint32(data[18:22]))
	height := int(binary.LittleEndian.Uint32(data[22:26]))
	bpp := int(binary.LittleEndian.Uint16(data[28:30]))

	if headerSize != supportedDIBHeaderSize {
		return nil, fmt.Errorf("%s (header size %d): %w", source, headerSize, ErrUnsupportedHeader)
	}

	stride := rowStride(width, bpp)

	// Dimensions must be consistent with the bytes actually supplied before
	// any pixel is read or the pixel grid is allocated. The per-row and
	// per-pixel bounds are checked by division so hostile headers cannot
	// overflow the products. Every stored pixel occupies at least one bit,
	// so the grid can never exceed eight pixels per payload byte.
	avail := int64(len(data)) - int64(dataOffset)
	if width < 0 || height < 0 || avail < 0 ||
		(height != 0 && int64(stride) > avail/int64(height)) ||
		(width != 0 && int64(height) > avail*8/int64(width)) {
		return nil, fmt.Errorf("%s (%dx%d @%d bpp, %d bytes): %w",
			source, width, height, bpp, len(data), ErrTruncated)
	}

	bmp := &Bitmap{
		Width:        width,
		Height:       height,
		BitsPerPixel: bpp,
		Pixels:       make([]uint16, width*height),
	}

	for y := 0; y < height; y++ {
		// Rows are stored bottom-to-top in the file
		fileRow := height - y - 1
		row := data[dataOffset+fileRow*stride : dataOffset+(fileRow+1)*stride]
		decodeRow(bmp.Pixels[y*width:(y+1)*width], row, width, bpp)
	}

	return bmp, nil
}

// rowStride returns the padded byte length of one stored row. Rows are
// padded to 4-byte boundaries; sub-byte depths pad at the bit level to a
// 32-bit boundary.
func rowStride(width, bpp int) int {
	if bpp < 8 {
		bits := width * bpp
		if bits%32 != 0 {
			bits += 32 - bits%32
		}
		return bits / 8
	}

	stride := width * (bpp / 8)
	if stride%4 != 0 {
		stride += 4 - stride%4
	}
	return stride
}

func decodeRow(dst []uint16, row []byte, width, bpp int) {
	for x := 0; x < width; x++ {
		switch bpp {
		case 1:
			// MSB-first within each byte
			dst[x] = uint16(row[x/8]>>(7-x%8)) & 0x01
		case 4:
			if x%2 == 0 {
				dst[x] = uint16(row[x/2]>>4) & 0x0f
			} else {
				dst[x] = uint16(row[x/2]) & 0x0f
			}
		case 8:
			dst[x] = uint16(row[x])
		case 16:
			dst[x] = binary.LittleEndian.Uint16(row[x*2 : x*2+2])
		case 24:
			dst[x] = packRGB565(row[x*3+2], row[x*3+1], row[x*3])
		case 32:
			// Fourth byte is alpha or padding, ignored either way
			dst[x] = packRGB565(row[x*4+2], row[x*4+1], row[x*4])
		default:
			// Unknown depth renders blank rather than failing; the header
			// already proved consistent with the data
			dst[x] = 0
		}
	}
}

// packRGB565 reduces 8-bit channels to the panel's 5-6-5 color space
func packRGB565(r, g, b byte) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}
