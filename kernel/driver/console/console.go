// Package console declares the Device interface a framebuffer or text-mode
// console driver implements. This repository's scope is the memory
// management core; hal.Framebuffers exposes the bootloader handoff this
// interface's eventual implementations would consume, but no concrete
// console driver is built here.
package console

// ScrollDir defines a scroll direction.
type ScrollDir uint8

// The supported scroll directions for Device.Scroll.
const (
	ScrollDirUp ScrollDir = iota
	ScrollDirDown
)

// Dimension selects which unit Device.Dimensions reports in.
type Dimension uint8

const (
	// Characters reports dimensions in the console's active font cells.
	Characters Dimension = iota
	// Pixels reports dimensions in raw framebuffer pixels.
	Pixels
)

// Device is implemented by objects that can function as a system console.
type Device interface {
	// Dimensions returns the width and height of the console in the
	// requested unit.
	Dimensions(Dimension) (uint32, uint32)

	// DefaultColors returns the default foreground and background colors
	// used by this console.
	DefaultColors() (fg, bg uint8)

	// Fill sets the contents of the specified rectangular region to the
	// requested color. Coordinates are 1-based.
	Fill(x, y, width, height uint32, fg, bg uint8)

	// Scroll the console contents in the given direction. The caller is
	// responsible for clearing or replacing the scrolled region.
	Scroll(dir ScrollDir, lines uint32)

	// Write draws a single character at the given 1-based location.
	Write(ch byte, fg, bg uint8, x, y uint32)
}
