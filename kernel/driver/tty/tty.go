// Package tty declares the Device interface a terminal driver implements on
// top of a console.Device, plus Vt, a concrete terminal implementing it.
package tty

import (
	"io"

	"github.com/tascaenzo/zone-os/kernel/driver/console"
)

// DefaultScrollback is the terminal scrollback depth in lines.
const DefaultScrollback = 80

// DefaultTabWidth is the number of spaces a tab expands to.
const DefaultTabWidth = 4

// State is the set of lifecycle states of a TTY device.
type State uint8

const (
	// StateInactive marks the terminal as inactive; writes are buffered
	// but not synced to the attached console.
	StateInactive State = iota
	// StateActive marks the terminal as active; writes are synced to the
	// attached console as they are received.
	StateActive
)

// Device is implemented by objects usable as a terminal device.
type Device interface {
	io.Writer
	io.ByteWriter

	// AttachTo connects this TTY to a console instance.
	AttachTo(console.Device)

	// State returns the TTY's current state.
	State() State

	// SetState updates the TTY's state.
	SetState(State)

	// CursorPosition returns the current 1-based cursor coordinates.
	CursorPosition() (uint16, uint16)

	// SetCursorPosition moves the cursor to the given 1-based coordinates,
	// clipped to the viewport.
	SetCursorPosition(x, y uint16)
}
