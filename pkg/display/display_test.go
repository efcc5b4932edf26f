package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ulfmagnetics/trix-server/pkg/bitmap"
	"github.com/ulfmagnetics/trix-server/pkg/matrix"
)

func testBitmap(w, h int, fill uint16) *bitmap.Bitmap {
	px := make([]uint16, w*h)
	for i := range px {
		px[i] = fill
	}
	return &bitmap.Bitmap{Width: w, Height: h, BitsPerPixel: 16, Pixels: px}
}

func TestShowInstallsFrame(t *testing.T) {
	panel := matrix.NewFake(4, 4)
	m := NewManager(panel)

	require.NoError(t, m.Show(testBitmap(4, 4, 0xF800)))

	require.NotNil(t, m.Current())
	assert.Equal(t, 1, panel.Draws)
	assert.Equal(t, uint16(0xF800), panel.Buffer[0])
}

func TestShowReleasesOldBeforeInstallingNew(t *testing.T) {
	panel := matrix.NewFake(4, 4)
	m := NewManager(panel)

	var residency []int
	m.Residency = func(n int) { residency = append(residency, n) }

	require.NoError(t, m.Show(testBitmap(4, 4, 1)))
	require.NoError(t, m.Show(testBitmap(4, 4, 2)))
	require.NoError(t, m.Show(testBitmap(4, 4, 3)))

	// Every transition passes through zero before reaching one; two frames
	// are never resident at once.
	assert.Equal(t, []int{1, 0, 1, 0, 1}, residency)
	for _, n := range residency {
		assert.LessOrEqual(t, n, 1)
	}
}

func TestShowTakesOwnershipOfPixels(t *testing.T) {
	panel := matrix.NewFake(2, 2)
	m := NewManager(panel)

	bmp := testBitmap(2, 2, 7)
	require.NoError(t, m.Show(bmp))

	// The decoded grid moves into the frame instead of being copied
	assert.Nil(t, bmp.Pixels)
	assert.Equal(t, uint16(7), m.Current().Pixels[0])
}

func TestClear(t *testing.T) {
	panel := matrix.NewFake(4, 4)
	m := NewManager(panel)

	var residency []int
	m.Residency = func(n int) { residency = append(residency, n) }

	require.NoError(t, m.Show(testBitmap(4, 4, 9)))
	require.NoError(t, m.Clear())

	assert.Nil(t, m.Current())
	assert.Equal(t, []int{1, 0}, residency)
	assert.Equal(t, uint16(0), panel.Buffer[0])
}

func TestClearWithoutFrame(t *testing.T) {
	panel := matrix.NewFake(4, 4)
	m := NewManager(panel)

	require.NoError(t, m.Clear())
	assert.Equal(t, 1, panel.Clears)
}

func TestHardwareErrorIsWrapped(t *testing.T) {
	panel := matrix.NewFake(4, 4)
	panel.FailAll = true
	m := NewManager(panel)

	err := m.Show(testBitmap(4, 4, 1))
	require.ErrorIs(t, err, ErrHardware)

	err = m.Clear()
	require.ErrorIs(t, err, ErrHardware)
}

func TestShowClipsOversizedFrame(t *testing.T) {
	panel := matrix.NewFake(2, 2)
	m := NewManager(panel)

	require.NoError(t, m.Show(testBitmap(8, 8, 5)))
	assert.Equal(t, uint16(5), panel.Buffer[3])
}
