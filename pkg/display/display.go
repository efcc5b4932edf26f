// Package display owns the single currently-shown frame and mediates the
// swap from old frame to new so peak memory stays bounded to one frame.
package display

import (
	"errors"
	"fmt"

	"github.com/ulfmagnetics/trix-server/pkg/bitmap"
	"github.com/ulfmagnetics/trix-server/pkg/matrix"
)

// ErrHardware wraps panel driver failures
var ErrHardware = errors.New("display: hardware failure")

// Frame is the displayable form of a decoded image. It takes ownership of
// the decoded pixel grid rather than copying it, so building a Frame never
// doubles the pixel memory.
type Frame struct {
	Width  int
	Height int
	Pixels []uint16
}

// Manager holds at most one Frame at a time. It is not safe for concurrent
// use; the supervisor services one request at a time.
type Manager struct {
	panel   matrix.Matrix
	current *Frame

	resident int
	// Residency is invoked with the number of frames held by the manager
	// after every ownership change. Test instrumentation only.
	Residency func(n int)
}

// NewManager returns a manager rendering to the given panel
func NewManager(panel matrix.Matrix) *Manager {
	return &Manager{panel: panel}
}

// Current returns the currently installed frame, or nil
func (m *Manager) Current() *Frame {
	return m.current
}

// Show replaces the shown frame with the decoded bitmap.
//
// The previous frame is released before the new one is built, so the
// manager never holds two frames at once, and the new Frame aliases the
// bitmap's pixel grid rather than duplicating it.
func (m *Manager) Show(bmp *bitmap.Bitmap) error {
	m.drop()

	frame := &Frame{
		Width:  bmp.Width,
		Height: bmp.Height,
		Pixels: bmp.Pixels,
	}
	bmp.Pixels = nil // frame owns the grid now

	m.current = frame
	m.track(1)

	if err := m.panel.Draw(frame.Pixels, frame.Width, frame.Height); err != nil {
		return fmt.Errorf("%w: %v", ErrHardware, err)
	}
	return nil
}

// Clear removes the shown frame and blanks the panel
func (m *Manager) Clear() error {
	m.drop()

	if err := m.panel.Clear(); err != nil {
		return fmt.Errorf("%w: %v", ErrHardware, err)
	}
	return nil
}

func (m *Manager) drop() {
	if m.current == nil {
		return
	}
	m.current = nil
	m.track(-1)
}

func (m *Manager) track(delta int) {
	m.resident += delta
	if m.Residency != nil {
		m.Residency(m.resident)
	}
}
