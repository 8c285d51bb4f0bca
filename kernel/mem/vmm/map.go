package vmm

import (
	"github.com/tascaenzo/zone-os/kernel"
	"github.com/tascaenzo/zone-os/kernel/cpu"
	"github.com/tascaenzo/zone-os/kernel/mem"
	"github.com/tascaenzo/zone-os/kernel/mem/pmm"
)

var (
	invlpgFn = cpu.Invlpg

	errInvalid  = &kernel.Error{Module: "vmm", Message: "address is misaligned or non-canonical"}
	errMapOOM   = &kernel.Error{Module: "vmm", Message: "out of memory allocating intermediate page table"}
	errNoMap    = &kernel.Error{Module: "vmm", Message: "virtual address is not mapped"}
	errBusy     = &kernel.Error{Module: "vmm", Message: "virtual address is already mapped"}
	errHugePage = &kernel.Error{Module: "vmm", Message: "refusing to shatter an existing large page mapping"}
)

// Map establishes a single 4 KiB mapping virt -> phys in s with the given
// generic permission flags. Intermediate PDPT/PD tables are allocated
// on-demand from the PMM and zeroed. Mapping over an already-present leaf
// entry fails with Busy rather than silently overwriting it.
func Map(s *AddressSpace, virt mem.VirtAddr, phys mem.PhysAddr, flags Flags) *kernel.Error {
	if !virt.Aligned() || !phys.Aligned() || !virt.Canonical() {
		return errInvalid
	}

	archFlags, err := translateFlags(flags)
	if err != nil {
		return err
	}

	s.lock.Acquire()
	defer s.lock.Release()

	var mapErr *kernel.Error
	walk(s, virt, func(level uint8, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			if pte.Present() {
				mapErr = errBusy
				return false
			}
			*pte = 0
			pte.SetFrame(pmm.FrameFromAddress(phys))
			pte.SetFlags(archFlags)
			invlpgFn(uintptr(virt))
			return true
		}

		if pte.HasFlags(FlagPageSize) {
			mapErr = errHugePage
			return false
		}

		if !pte.Present() {
			newFrame, allocErr := frameAllocFn()
			if allocErr != nil {
				mapErr = errMapOOM
				return false
			}
			kernel.Memset(PhysToVirt(newFrame.Address()), 0, uintptr(mem.PageSize))

			intermediate := FlagPresent | FlagRW
			if archFlags&FlagUser != 0 {
				intermediate |= FlagUser
			}
			*pte = 0
			pte.SetFrame(newFrame)
			pte.SetFlags(intermediate)
		}
		return true
	})

	return mapErr
}

// MapRange applies Map page-by-page over count consecutive pages starting
// at virt/phys. On failure at page i, pages [0, i) are rolled back via
// Unmap so the whole call is all-or-nothing.
func MapRange(s *AddressSpace, virt mem.VirtAddr, phys mem.PhysAddr, count uint64, flags Flags) *kernel.Error {
	for i := uint64(0); i < count; i++ {
		v := virt + mem.VirtAddr(i*uint64(mem.PageSize))
		p := phys + mem.PhysAddr(i*uint64(mem.PageSize))
		if err := Map(s, v, p, flags); err != nil {
			for j := uint64(0); j < i; j++ {
				Unmap(s, virt+mem.VirtAddr(j*uint64(mem.PageSize)))
			}
			return err
		}
	}
	return nil
}

// Unmap removes a mapping previously installed by Map. Intermediate tables
// are left in place; they are only reclaimed by DestroySpace.
func Unmap(s *AddressSpace, virt mem.VirtAddr) *kernel.Error {
	if !virt.Aligned() {
		return errInvalid
	}

	s.lock.Acquire()
	defer s.lock.Release()

	var unmapErr *kernel.Error
	walk(s, virt, func(level uint8, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			if !pte.Present() {
				unmapErr = errNoMap
				return false
			}
			*pte = 0
			invlpgFn(uintptr(virt))
			return true
		}

		if !pte.Present() {
			unmapErr = errNoMap
			return false
		}
		if pte.HasFlags(FlagPageSize) {
			unmapErr = errHugePage
			return false
		}
		return true
	})

	return unmapErr
}

// UnmapRange calls Unmap for count consecutive pages starting at virt,
// stopping at (and returning) the first error encountered.
func UnmapRange(s *AddressSpace, virt mem.VirtAddr, count uint64) *kernel.Error {
	for i := uint64(0); i < count; i++ {
		v := virt + mem.VirtAddr(i*uint64(mem.PageSize))
		if err := Unmap(s, v); err != nil {
			return err
		}
	}
	return nil
}
