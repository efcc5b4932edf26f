package matrix

// FakeMatrix is an in-memory panel used for tests and headless operation
type FakeMatrix struct {
	W, H    int
	Buffer  []uint16
	Draws   int
	Clears  int
	Halted  bool
	FailAll bool // every operation returns ErrFake
}

// ErrFake is returned by a FakeMatrix configured to fail
var ErrFake = errFake{}

type errFake struct{}

func (errFake) Error() string { return "matrix: fake failure" }

// NewFake returns a blank in-memory panel
func NewFake(w, h int) *FakeMatrix {
	return &FakeMatrix{W: w, H: h, Buffer: make([]uint16, w*h)}
}

func (f *FakeMatrix) Size() (int, int) { return f.W, f.H }

func (f *FakeMatrix) Draw(pixels []uint16, w, h int) error {
	if f.FailAll {
		return ErrFake
	}
	f.Draws++
	blit(f.Buffer, f.W, f.H, pixels, w, h)
	return nil
}

func (f *FakeMatrix) Clear() error {
	if f.FailAll {
		return ErrFake
	}
	f.Clears++
	for i := range f.Buffer {
		f.Buffer[i] = 0
	}
	return nil
}

func (f *FakeMatrix) Halt() error {
	if f.FailAll {
		return ErrFake
	}
	f.Halted = true
	return nil
}
