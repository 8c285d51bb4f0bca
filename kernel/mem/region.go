package mem

// RegionKind classifies a physical memory region as reported by the
// bootloader's memory map. Values map 1:1 to the Limine memmap entry types
// (see kernel/hal/limine).
type RegionKind uint32

const (
	// RegionUsable is free RAM the PMM may hand out.
	RegionUsable RegionKind = iota
	// RegionReserved is never usable by the kernel.
	RegionReserved
	// RegionAcpiReclaim holds ACPI tables; reclaimable after the kernel
	// has parsed them.
	RegionAcpiReclaim
	// RegionAcpiNvs must not be reclaimed; used by firmware across
	// sleep states.
	RegionAcpiNvs
	// RegionBad is a region the firmware flagged as faulty.
	RegionBad
	// RegionBootloaderReclaim holds bootloader structures the kernel can
	// reclaim once it no longer needs them.
	RegionBootloaderReclaim
	// RegionKernelAndModules holds the kernel image and any boot modules.
	RegionKernelAndModules
	// RegionFramebuffer backs the framebuffer surface.
	RegionFramebuffer
	// RegionMmio is memory-mapped I/O space, never usable as RAM.
	RegionMmio
)

// String implements fmt.Stringer for diagnostic output.
func (k RegionKind) String() string {
	switch k {
	case RegionUsable:
		return "usable"
	case RegionReserved:
		return "reserved"
	case RegionAcpiReclaim:
		return "acpi-reclaimable"
	case RegionAcpiNvs:
		return "acpi-nvs"
	case RegionBad:
		return "bad"
	case RegionBootloaderReclaim:
		return "bootloader-reclaimable"
	case RegionKernelAndModules:
		return "kernel-and-modules"
	case RegionFramebuffer:
		return "framebuffer"
	case RegionMmio:
		return "mmio"
	default:
		return "unknown"
	}
}

// Reclaimable reports whether the PMM may repurpose this region's frames
// once kernel init completes (Usable, BootloaderReclaim and AcpiReclaim
// regions per spec.md §4.1 step 5).
func (k RegionKind) Reclaimable() bool {
	return k == RegionUsable || k == RegionBootloaderReclaim || k == RegionAcpiReclaim
}

// Region describes a single physical memory region reported by the
// bootloader. Base and Length are kept as reported and need not be
// page-aligned; the PMM uses AlignedStart/AlignedEnd to round inward.
type Region struct {
	Base   PhysAddr
	Length uint64
	Kind   RegionKind
}

// End returns the exclusive end address of the region (Base + Length).
func (r Region) End() PhysAddr {
	return r.Base + PhysAddr(r.Length)
}

// AlignedStart returns the region's start address rounded up to the nearest
// page boundary — the "interior" start used when clearing bitmap bits for a
// reclaimable region, so a partially-owned leading frame never leaks as free.
func (r Region) AlignedStart() PhysAddr {
	return r.Base.AlignUp()
}

// AlignedEnd returns the region's end address rounded down to the nearest
// page boundary, for the same reason as AlignedStart.
func (r Region) AlignedEnd() PhysAddr {
	return r.End().AlignDown()
}

// Regions is a list of memory regions. The arch memory HAL sorts it by base
// address; it does not merge regions or check them for overlaps.
type Regions []Region

// Len implements sort.Interface.
func (rs Regions) Len() int { return len(rs) }

// Less implements sort.Interface, ordering regions by base address.
func (rs Regions) Less(i, j int) bool { return rs[i].Base < rs[j].Base }

// Swap implements sort.Interface.
func (rs Regions) Swap(i, j int) { rs[i], rs[j] = rs[j], rs[i] }

// TotalUsable returns the sum of the lengths of all Usable regions.
func (rs Regions) TotalUsable() uint64 {
	var total uint64
	for _, r := range rs {
		if r.Kind == RegionUsable {
			total += r.Length
		}
	}
	return total
}

// HighestAddress returns the exclusive end address of the highest region in
// the list, i.e. the size of the addressable physical range [0, highest).
func (rs Regions) HighestAddress() PhysAddr {
	var highest PhysAddr
	for _, r := range rs {
		if end := r.End(); end > highest {
			highest = end
		}
	}
	return highest
}
