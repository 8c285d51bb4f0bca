package vmm

import "github.com/tascaenzo/zone-os/kernel/mem"

// hhdmOffset is the virtual offset at which the bootloader linearly mapped
// all physical memory, captured once by Init. The VMM's page tables and the
// buddy and slab allocators access the physical memory they own through
// it. The PMM does not: its bitmap lives in Go-managed memory.
var hhdmOffset uintptr

// PhysToVirt returns the HHDM virtual address aliasing physical address p.
func PhysToVirt(p mem.PhysAddr) uintptr {
	return uintptr(p) + hhdmOffset
}

// VirtToPhysHHDM is the exact inverse of PhysToVirt: it subtracts the HHDM
// offset rather than walking any address space's page tables. Callers that
// know an address was produced by PhysToVirt in the first place (the buddy
// and slab allocators, which alias the physical memory they own directly
// through the HHDM and never route it through Map) use this instead of the
// page-walking VirtToPhys.
func VirtToPhysHHDM(v uintptr) mem.PhysAddr {
	return mem.PhysAddr(v - hhdmOffset)
}

// SetHHDMOffsetForTesting overrides hhdmOffset for the duration of a test,
// returning a function that restores the previous value. It exists so
// callers outside this package (the buddy and slab allocators' own tests)
// can back a synthetic physical region with real Go memory the same way
// this package's own tests do.
func SetHHDMOffsetForTesting(offset uintptr) (restore func()) {
	prev := hhdmOffset
	hhdmOffset = offset
	return func() { hhdmOffset = prev }
}

// VirtToPhys walks the kernel address space and returns the physical
// address v resolves to there, or 0 if it is unmapped. It always walks the
// kernel address space, not whichever space SwitchSpace last loaded into
// CR3; use Resolve to translate through another AddressSpace.
func VirtToPhys(v uintptr) mem.PhysAddr {
	phys, err := Resolve(&kernelSpace, mem.VirtAddr(v))
	if err != nil {
		return 0
	}
	return phys
}
