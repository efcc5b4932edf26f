// Package matrix drives the physical RGB pixel-matrix panel. The panel
// consumes full RGB565 frames; partial updates are not supported by the
// ingestion pipeline, so the driver surface is deliberately small.
package matrix

// Matrix is the hardware surface the display manager renders to
type Matrix interface {
	// Size returns the panel dimensions in pixels
	Size() (w, h int)
	// Draw blits an RGB565 pixel grid of the given dimensions. Frames
	// larger than the panel are clipped; smaller frames land at the
	// top-left with the remainder black.
	Draw(pixels []uint16, w, h int) error
	// Clear blanks the panel
	Clear() error
	// Halt turns the panel off
	Halt() error
}

// blit composes a full panel-sized frame from an arbitrarily sized source
// grid, clipping or padding as needed.
func blit(dst []uint16, dw, dh int, src []uint16, sw, sh int) {
	for i := range dst {
		dst[i] = 0
	}
	for y := 0; y < dh && y < sh; y++ {
		for x := 0; x < dw && x < sw; x++ {
			dst[y*dw+x] = src[y*sw+x]
		}
	}
}
