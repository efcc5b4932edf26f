package matrix

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// Panel controller commands
const (
	cmdSWReset    = 0x01
	cmdSleepOut   = 0x11
	cmdColMod     = 0x3A
	cmdDisplayOn  = 0x29
	cmdDisplayOff = 0x28
	cmdColAddr    = 0x2A
	cmdRowAddr    = 0x2B
	cmdRAMWrite   = 0x2C
)

// maxTxSize keeps single SPI transfers under the kernel's default buffer
const maxTxSize = 4096

// Dev is an RGB565 matrix panel connected via SPI
type Dev struct {
	c      spi.Conn
	port   spi.PortCloser
	dc     gpio.PinOut
	rst    gpio.PinIO
	w, h   int
	buffer []uint16
	tx     []byte
	halted bool
}

// Opts configures the SPI panel
type Opts struct {
	W, H   int
	SPI    string // port name, e.g. "SPI0.0"
	DCPin  string
	RSTPin string // optional
}

// NewSPI opens the SPI port and GPIO pins named in opts and initializes the
// panel. periph's host driver must already be initialized.
func NewSPI(opts Opts) (*Dev, error) {
	if opts.W <= 0 || opts.H <= 0 {
		return nil, errors.New("matrix: panel dimensions must be positive")
	}

	port, err := spireg.Open(opts.SPI)
	if err != nil {
		return nil, fmt.Errorf("matrix: failed to open SPI port %q: %w", opts.SPI, err)
	}

	c, err := port.Connect(16*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("matrix: SPI connect failed: %w", err)
	}

	dc := gpioreg.ByName(opts.DCPin)
	if dc == nil {
		port.Close()
		return nil, fmt.Errorf("matrix: no such GPIO pin %q", opts.DCPin)
	}

	d := &Dev{
		c:      c,
		port:   port,
		dc:     dc,
		w:      opts.W,
		h:      opts.H,
		buffer: make([]uint16, opts.W*opts.H),
		tx:     make([]byte, opts.W*opts.H*2),
	}

	if opts.RSTPin != "" {
		d.rst = gpioreg.ByName(opts.RSTPin)
		if d.rst == nil {
			port.Close()
			return nil, fmt.Errorf("matrix: no such GPIO pin %q", opts.RSTPin)
		}
	}

	if err := d.init(); err != nil {
		port.Close()
		return nil, err
	}

	return d, nil
}

func (d *Dev) init() error {
	if d.rst != nil {
		if err := d.rst.Out(gpio.Low); err != nil {
			return fmt.Errorf("matrix: failed to pull RST low: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
		if err := d.rst.Out(gpio.High); err != nil {
			return fmt.Errorf("matrix: failed to pull RST high: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := d.command(cmdSWReset); err != nil {
		return err
	}
	time.Sleep(150 * time.Millisecond)

	if err := d.command(cmdSleepOut); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)

	// 16 bits per pixel
	if err := d.command(cmdColMod, 0x55); err != nil {
		return err
	}

	if err := d.Clear(); err != nil {
		return err
	}

	return d.command(cmdDisplayOn)
}

func (d *Dev) command(cmd byte, args ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("matrix: DC pin write failed: %w", err)
	}
	if err := d.c.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("matrix: command 0x%02X failed: %w", cmd, err)
	}
	if len(args) == 0 {
		return nil
	}
	return d.data(args)
}

func (d *Dev) data(b []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("matrix: DC pin write failed: %w", err)
	}
	for len(b) > 0 {
		n := len(b)
		if n > maxTxSize {
			n = maxTxSize
		}
		if err := d.c.Tx(b[:n], nil); err != nil {
			return fmt.Errorf("matrix: data write failed: %w", err)
		}
		b = b[n:]
	}
	return nil
}

func (d *Dev) setFullWindow() error {
	if err := d.command(cmdColAddr,
		0, 0, byte((d.w-1)>>8), byte(d.w-1)); err != nil {
		return err
	}
	return d.command(cmdRowAddr,
		0, 0, byte((d.h-1)>>8), byte(d.h-1))
}

func (d *Dev) flush() error {
	for i, p := range d.buffer {
		d.tx[i*2] = byte(p >> 8)
		d.tx[i*2+1] = byte(p)
	}

	if err := d.setFullWindow(); err != nil {
		return err
	}
	if err := d.command(cmdRAMWrite); err != nil {
		return err
	}
	return d.data(d.tx)
}

// Size returns the panel dimensions
func (d *Dev) Size() (int, int) {
	return d.w, d.h
}

// Draw blits a decoded pixel grid onto the panel
func (d *Dev) Draw(pixels []uint16, w, h int) error {
	if d.halted {
		return errors.New("matrix: device is halted")
	}
	blit(d.buffer, d.w, d.h, pixels, w, h)
	return d.flush()
}

// Clear blanks the panel
func (d *Dev) Clear() error {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	return d.flush()
}

// Halt blanks and powers down the panel and releases the SPI port
func (d *Dev) Halt() error {
	if d.halted {
		return nil
	}
	d.halted = true

	if err := d.Clear(); err != nil {
		return err
	}
	if err := d.command(cmdDisplayOff); err != nil {
		return err
	}
	return d.port.Close()
}
