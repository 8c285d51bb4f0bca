package vmm

import (
	"unsafe"

	"github.com/tascaenzo/zone-os/kernel/mem"
)

// pageTableWalker is invoked once per paging level with the entry covering
// the walked virtual address at that level. Returning false aborts the
// walk (entries below the aborting level are never visited).
type pageTableWalker func(level uint8, pte *pageTableEntry) bool

// entryPtr returns a pointer to the page table entry at the given index
// inside the table whose physical base is tableBase, accessed through the
// HHDM — the canonical way this VMM reaches the physical memory its own
// tables live in (spec.md §4.2).
func entryPtr(tableBase mem.PhysAddr, index uintptr) *pageTableEntry {
	addr := PhysToVirt(tableBase) + index*unsafe.Sizeof(pageTableEntry(0))
	return (*pageTableEntry)(unsafe.Pointer(addr))
}

// walk descends the page tables rooted at space for virtAddr, calling
// walkFn once per level (PML4, PDPT, PD, PT in that order). It never
// allocates; callers that need to create missing intermediate tables do so
// from inside walkFn.
func walk(space *AddressSpace, virtAddr mem.VirtAddr, walkFn pageTableWalker) {
	tableBase := space.root
	for level := uint8(0); level < pageLevels; level++ {
		index := (uintptr(virtAddr) >> pageLevelShifts[level]) & (entriesPerTable - 1)
		pte := entryPtr(tableBase, index)

		if !walkFn(level, pte) {
			return
		}

		if level+1 < pageLevels {
			tableBase = pte.Frame().Address()
		}
	}
}
