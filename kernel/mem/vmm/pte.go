package vmm

import (
	"github.com/tascaenzo/zone-os/kernel/mem"
	"github.com/tascaenzo/zone-os/kernel/mem/pmm"
)

// pageTableEntry is a single 64-bit page table slot: a physical frame
// address (bits 12..51) plus flag bits. The format is architecture-defined;
// see constants_amd64.go for the amd64 bit layout.
type pageTableEntry uintptr

// HasFlags reports whether every bit in flags is set on this entry.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return uintptr(pte)&uintptr(flags) == uintptr(flags)
}

// HasAnyFlag reports whether at least one bit in flags is set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return uintptr(pte)&uintptr(flags) != 0
}

// SetFlags ORs flags into the entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) | uintptr(flags))
}

// ClearFlags clears flags from the entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) &^ uintptr(flags))
}

// Frame returns the physical frame this entry points to.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame((uintptr(pte) & ptePhysPageMask) >> mem.PageShift)
}

// SetFrame updates the entry to point at frame, preserving its flag bits.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = pageTableEntry((uintptr(*pte) &^ ptePhysPageMask) | uintptr(frame.Address()))
}

// Present is shorthand for HasFlags(FlagPresent); an entry with Present=0 is
// treated as absent regardless of any other bit (spec.md §3).
func (pte pageTableEntry) Present() bool {
	return pte.HasFlags(FlagPresent)
}
