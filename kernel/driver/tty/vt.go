package tty

import "github.com/tascaenzo/zone-os/kernel/driver/console"

// vtBufSize bounds how many bytes Vt buffers while inactive, before the
// attached console has been brought up far enough to render to.
const vtBufSize = 4096

// Vt is a simple terminal that understands \r, \n, \t and \b and renders
// through an attached console.Device. While StateInactive, writes are
// queued in an internal buffer instead of reaching the console; SetState
// flushes that buffer the moment the terminal becomes active.
type Vt struct {
	cons   console.Device
	width  uint32
	height uint32

	curX, curY uint16
	fg, bg     uint8

	state  State
	buf    [vtBufSize]byte
	bufLen int
}

var _ Device = (*Vt)(nil)

// AttachTo links the terminal with cons and adopts its dimensions and
// default colors. The cursor resets to the top-left cell (1, 1).
func (t *Vt) AttachTo(cons console.Device) {
	t.cons = cons
	t.width, t.height = cons.Dimensions(console.Characters)
	t.fg, t.bg = cons.DefaultColors()
	t.curX, t.curY = 1, 1
}

// State returns the terminal's current lifecycle state.
func (t *Vt) State() State {
	return t.state
}

// SetState updates the terminal's state. Transitioning into StateActive
// flushes any bytes queued while the terminal was inactive.
func (t *Vt) SetState(s State) {
	t.state = s
	if s != StateActive || t.cons == nil || t.bufLen == 0 {
		return
	}
	pending := t.buf[:t.bufLen]
	t.bufLen = 0
	for _, b := range pending {
		t.render(b)
	}
}

// CursorPosition returns the current 1-based cursor coordinates.
func (t *Vt) CursorPosition() (uint16, uint16) {
	return t.curX, t.curY
}

// SetCursorPosition moves the cursor to (x, y), clipped to the viewport.
func (t *Vt) SetCursorPosition(x, y uint16) {
	if x < 1 {
		x = 1
	} else if uint32(x) > t.width {
		x = uint16(t.width)
	}
	if y < 1 {
		y = 1
	} else if uint32(y) > t.height {
		y = uint16(t.height)
	}
	t.curX, t.curY = x, y
}

// Write implements io.Writer.
func (t *Vt) Write(p []byte) (int, error) {
	for _, b := range p {
		t.WriteByte(b)
	}
	return len(p), nil
}

// WriteByte implements io.ByteWriter. While the terminal is inactive or has
// no attached console, bytes accumulate in buf instead of being rendered.
func (t *Vt) WriteByte(b byte) error {
	if t.state != StateActive || t.cons == nil {
		if t.bufLen < len(t.buf) {
			t.buf[t.bufLen] = b
			t.bufLen++
		}
		return nil
	}
	t.render(b)
	return nil
}

func (t *Vt) render(b byte) {
	switch b {
	case '\r':
		t.curX = 1
	case '\n':
		t.curX = 1
		t.advanceLine()
	case '\b':
		if t.curX > 1 {
			t.curX--
			t.cons.Write(' ', t.fg, t.bg, uint32(t.curX), uint32(t.curY))
		}
	case '\t':
		for i := 0; i < DefaultTabWidth; i++ {
			t.cons.Write(' ', t.fg, t.bg, uint32(t.curX), uint32(t.curY))
			t.curX++
			if uint32(t.curX) > t.width {
				t.curX = 1
				t.advanceLine()
			}
		}
	default:
		t.cons.Write(b, t.fg, t.bg, uint32(t.curX), uint32(t.curY))
		t.curX++
		if uint32(t.curX) > t.width {
			t.curX = 1
			t.advanceLine()
		}
	}
}

// advanceLine moves the cursor to the next row, scrolling the console up
// one line and clearing the freed row once the last row is exceeded.
func (t *Vt) advanceLine() {
	if uint32(t.curY) < t.height {
		t.curY++
		return
	}
	t.cons.Scroll(console.ScrollDirUp, 1)
	t.cons.Fill(1, uint32(t.curY), t.width, 1, t.fg, t.bg)
}
