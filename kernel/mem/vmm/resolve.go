package vmm

import (
	"github.com/tascaenzo/zone-os/kernel"
	"github.com/tascaenzo/zone-os/kernel/mem"
)

// pageOffsetMask returns the intra-page offset bits of virt for a leaf at
// the given paging level (4 KiB at PT, 2 MiB at PD, 1 GiB at PDPT).
func pageOffsetMask(level uint8) uintptr {
	return (uintptr(1) << pageLevelShifts[level]) - 1
}

// Resolve walks s and returns the physical address virt currently maps to,
// or errNoMap if no mapping covers it.
func Resolve(s *AddressSpace, virt mem.VirtAddr) (mem.PhysAddr, *kernel.Error) {
	if !virt.Canonical() {
		return 0, errInvalid
	}

	s.lock.Acquire()
	defer s.lock.Release()

	var (
		result    mem.PhysAddr
		resultErr = errNoMap
	)

	walk(s, virt, func(level uint8, pte *pageTableEntry) bool {
		if !pte.Present() {
			resultErr = errNoMap
			return false
		}

		if pte.HasFlags(FlagPageSize) {
			if level != 1 && level != 2 {
				resultErr = errInvalid
				return false
			}
			// Large-page leaf frame bits are hardware-guaranteed to be
			// zero below the large page's natural alignment (2 MiB at
			// PD, 1 GiB at PDPT), so the base extracted by Frame() can
			// be OR-ed directly with the intra-page offset.
			base := uintptr(pte.Frame().Address())
			offset := uintptr(virt) & pageOffsetMask(level)
			result = mem.PhysAddr(base | offset)
			resultErr = nil
			return false
		}

		if level == pageLevels-1 {
			offset := uintptr(virt) & pageOffsetMask(level)
			result = pte.Frame().Address() + mem.PhysAddr(offset)
			resultErr = nil
			return false
		}

		return true
	})

	return result, resultErr
}
