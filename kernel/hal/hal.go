// Package hal is the arch memory HAL: it turns the Limine boot protocol
// handoff into the architecture-neutral kernel/mem.Regions and HHDM offset
// the PMM and VMM are built against. Everything below the memory map and
// HHDM offset (framebuffer console, TTY, GDT/IDT bootstrap, exception
// dispatcher) is an external collaborator described only at its interface
// in kernel/driver and kernel/irq.
package hal

import (
	"sort"

	"github.com/tascaenzo/zone-os/kernel/hal/limine"
	"github.com/tascaenzo/zone-os/kernel/mem"
)

var (
	memmapRequest      = limine.NewMemmapRequest()
	hhdmRequest        = limine.NewHHDMRequest()
	framebufferRequest = limine.NewFramebufferRequest()

	regions     mem.Regions
	hhdmOffset  uintptr
	initialized bool
)

// limineKindToRegionKind maps a Limine memmap entry type onto the
// architecture-neutral mem.RegionKind enum 1:1, per spec.md §6.
func limineKindToRegionKind(k limine.MemmapEntryType) mem.RegionKind {
	switch k {
	case limine.MemmapUsable:
		return mem.RegionUsable
	case limine.MemmapReserved:
		return mem.RegionReserved
	case limine.MemmapAcpiReclaimable:
		return mem.RegionAcpiReclaim
	case limine.MemmapAcpiNvs:
		return mem.RegionAcpiNvs
	case limine.MemmapBadMemory:
		return mem.RegionBad
	case limine.MemmapBootloaderReclaimable:
		return mem.RegionBootloaderReclaim
	case limine.MemmapKernelAndModules:
		return mem.RegionKernelAndModules
	case limine.MemmapFramebuffer:
		return mem.RegionFramebuffer
	default:
		return mem.RegionReserved
	}
}

// Init reads the Limine memmap and HHDM responses and normalizes them into
// kernel/mem.Regions sorted by base address. It must be called exactly once,
// before pmm.Init or vmm.Init.
func Init() error {
	if memmapRequest.Response == nil || hhdmRequest.Response == nil {
		return errNoBootHandoff
	}

	entries := memmapRequest.Response.Entries()
	regions = make(mem.Regions, 0, len(entries))
	for _, e := range entries {
		regions = append(regions, mem.Region{
			Base:   mem.PhysAddr(e.Base),
			Length: e.Length,
			Kind:   limineKindToRegionKind(e.Type),
		})
	}
	sort.Sort(regions)

	hhdmOffset = uintptr(hhdmRequest.Response.Offset)
	initialized = true
	return nil
}

// errNoBootHandoff is returned when the bootloader did not populate the
// requests this HAL depends on (e.g. a base revision mismatch).
var errNoBootHandoff = &HALError{"bootloader did not populate required requests"}

// HALError is a trivial error type usable before kernel.Error's owning
// package is safe to import from here (hal sits below kernel/mem/pmm in the
// dependency order of spec.md §2, so it keeps its own minimal error type
// rather than introducing a back-reference).
type HALError struct{ msg string }

func (e *HALError) Error() string { return e.msg }

// Regions returns the normalized, sorted physical memory regions reported
// by the bootloader. Callers must not mutate the returned slice.
func Regions() mem.Regions {
	return regions
}

// HHDMOffset returns the virtual offset at which the bootloader linearly
// mapped all physical memory.
func HHDMOffset() uintptr {
	return hhdmOffset
}

// PageSize returns the architecture's page size in bytes (4096 on amd64).
func PageSize() mem.Size {
	return mem.PageSize
}

// Framebuffers returns the framebuffer surfaces reported by the bootloader,
// for the console driver (an external collaborator) to consume.
func Framebuffers() []*limine.Framebuffer {
	if framebufferRequest.Response == nil {
		return nil
	}
	return framebufferRequest.Response.Framebuffers()
}

// Initialized reports whether Init has completed successfully.
func Initialized() bool {
	return initialized
}
