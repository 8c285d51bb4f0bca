// Package pmm implements the physical memory manager: a single bitmap-based
// page frame allocator over the entire addressable physical range reported
// by the arch memory HAL.
package pmm

import "github.com/tascaenzo/zone-os/kernel/mem"

// Frame identifies a physical page by index: frame f covers physical
// addresses [f*PageSize, (f+1)*PageSize).
type Frame uint64

// InvalidFrame is returned by allocation failures.
const InvalidFrame = ^Frame(0)

// Valid reports whether f is a real frame, as opposed to InvalidFrame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the start of this frame.
func (f Frame) Address() mem.PhysAddr {
	return mem.PhysAddr(f) << mem.PageShift
}

// FrameFromAddress returns the frame containing physical address p.
func FrameFromAddress(p mem.PhysAddr) Frame {
	return Frame(p >> mem.PageShift)
}
