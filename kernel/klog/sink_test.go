package klog

import (
	"testing"

	"github.com/tascaenzo/zone-os/kernel/driver/console"
	"github.com/tascaenzo/zone-os/kernel/driver/tty"
)

func TestAttachTTYFlushesRingBufferAndActivates(t *testing.T) {
	defer func() { outputSink = nil; earlyPrintBuffer = ringBuffer{} }()

	earlyPrintBuffer = ringBuffer{}
	Printf("boot")

	cons := newFakeConsole(80, 25)
	var vt tty.Vt
	vt.AttachTo(cons)

	AttachTTY(&vt)

	if vt.State() != tty.StateActive {
		t.Error("expected AttachTTY to activate the terminal")
	}
	if cons.at(1, 1) != 'b' {
		t.Errorf("expected ring buffer contents to flush through to the console, got %q", cons.at(1, 1))
	}

	Printf("!")
	if cons.at(5, 1) != '!' {
		t.Errorf("expected subsequent Printf calls to reach the attached tty, got %q", cons.at(5, 1))
	}
}

// fakeConsole is a minimal in-memory console.Device, mirroring the test
// double the tty package itself uses to drive Vt without real hardware.
type fakeConsole struct {
	w, h  uint32
	cells []byte
}

func newFakeConsole(w, h uint32) *fakeConsole {
	return &fakeConsole{w: w, h: h, cells: make([]byte, w*h)}
}

func (c *fakeConsole) Dimensions(console.Dimension) (uint32, uint32) { return c.w, c.h }
func (c *fakeConsole) DefaultColors() (uint8, uint8)                 { return 7, 0 }

func (c *fakeConsole) Fill(x, y, width, height uint32, fg, bg uint8) {
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			c.cells[(row-1)*c.w+(col-1)] = ' '
		}
	}
}

func (c *fakeConsole) Scroll(dir console.ScrollDir, lines uint32) {
	copy(c.cells, c.cells[c.w*lines:])
}

func (c *fakeConsole) Write(ch byte, fg, bg uint8, x, y uint32) {
	c.cells[(y-1)*c.w+(x-1)] = ch
}

func (c *fakeConsole) at(x, y uint32) byte {
	return c.cells[(y-1)*c.w+(x-1)]
}
