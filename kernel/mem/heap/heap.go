// Package heap is the kernel allocation facade: it routes requests of 2048
// bytes or less to a size-classed slab cache and everything larger to the
// buddy allocator, exposing kalloc/kcalloc/krealloc/kfree the way a real
// kernel's public allocation surface sits in front of its slab and buddy
// layers.
package heap

import (
	"unsafe"

	"github.com/tascaenzo/zone-os/kernel"
	"github.com/tascaenzo/zone-os/kernel/klog"
	"github.com/tascaenzo/zone-os/kernel/mem"
	"github.com/tascaenzo/zone-os/kernel/mem/buddy"
	"github.com/tascaenzo/zone-os/kernel/mem/pmm"
	"github.com/tascaenzo/zone-os/kernel/mem/slab"
	"github.com/tascaenzo/zone-os/kernel/mem/vmm"
)

// slabThreshold is the largest request size routed to a slab cache; larger
// requests go to the buddy allocator (spec.md §4.5 "size ≤ 2048 ⇒ slab").
const slabThreshold = 2048

// sizeClasses are the object sizes the core pre-creates a cache for.
var sizeClasses = [...]uint32{16, 32, 64, 128, 256, 512, 1024, 2048}

// Flags modify kalloc_flags' behavior.
type Flags uint32

const (
	// FlagZero zeroes the returned memory.
	FlagZero Flags = 1 << iota
	// FlagAtomic marks the caller as unable to sleep. Advisory only: no
	// allocation path in this core ever sleeps.
	FlagAtomic
	// FlagDMA prefers a physically contiguous, not-cache-adjusted block;
	// satisfied automatically since every buddy block is contiguous and
	// this core performs no cache-attribute remapping of heap memory.
	FlagDMA
	// FlagAlign makes KallocFlags check the returned pointer against the
	// align parameter and log a warning when it is misaligned; the
	// allocation itself is not adjusted to meet align.
	FlagAlign
)

var buddyAlloc *buddy.Allocator

// Init wires the slab allocator's page source to the PMM and constructs the
// buddy allocator over a region carved out of the PMM, then pre-creates the
// standard size-class caches. regionPages is how many pages the buddy
// allocator should claim from the PMM at start-up.
func Init(regionPages uint64) *kernel.Error {
	slab.SetPageAllocator(pmmAllocPage, pmmFreePage)

	base, err := pmm.AllocPages(regionPages)
	if err != nil {
		return err
	}
	buddyAlloc = buddy.New(base.Address(), regionPages*uint64(mem.PageSize))

	for _, size := range sizeClasses {
		if _, err := slab.Create(className(size), size, 8, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func className(size uint32) string {
	switch size {
	case 16:
		return "kmalloc-16"
	case 32:
		return "kmalloc-32"
	case 64:
		return "kmalloc-64"
	case 128:
		return "kmalloc-128"
	case 256:
		return "kmalloc-256"
	case 512:
		return "kmalloc-512"
	case 1024:
		return "kmalloc-1024"
	default:
		return "kmalloc-2048"
	}
}

func pmmAllocPage() (mem.PhysAddr, *kernel.Error) {
	f, err := pmm.AllocPage()
	if err != nil {
		return 0, err
	}
	return f.Address(), nil
}

func pmmFreePage(addr mem.PhysAddr) {
	if err := pmm.FreePage(pmm.FrameFromAddress(addr)); err != nil {
		klog.Warn("heap", "freeing slab page: %v", err)
	}
}

// Kalloc allocates n bytes, routing to a slab cache when n fits under
// slabThreshold and to the buddy allocator otherwise.
func Kalloc(n uint64) unsafe.Pointer {
	return KallocFlags(n, 0, 0)
}

// KallocFlags allocates n bytes honoring flags; align is only consulted
// when FlagAlign is set, must be a power of two, and is then used only to
// warn when the returned pointer is not a multiple of it.
func KallocFlags(n uint64, flags Flags, align uint64) unsafe.Pointer {
	var ptr unsafe.Pointer

	if n <= slabThreshold {
		c := slab.CacheForSize(uint32(n))
		if c == nil {
			return nil
		}
		ptr = c.Alloc()
	} else {
		if buddyAlloc == nil {
			return nil
		}
		phys, err := buddyAlloc.Alloc(n)
		if err != nil {
			return nil
		}
		ptr = unsafe.Pointer(vmm.PhysToVirt(phys))
	}

	if ptr == nil {
		return nil
	}

	if flags&FlagAlign != 0 && align > 1 {
		if uintptr(ptr)&(uintptr(align)-1) != 0 {
			klog.Warn("heap", "kalloc_flags: returned pointer does not satisfy requested alignment %d", align)
		}
	}

	if flags&FlagZero != 0 {
		kernel.Memset(uintptr(ptr), 0, uintptr(n))
	}
	return ptr
}

// Kcalloc allocates n*size bytes, zeroed.
func Kcalloc(n, size uint64) unsafe.Pointer {
	return KallocFlags(n*size, FlagZero, 0)
}

// allocatedSize recovers how many bytes a live pointer's allocation holds,
// for use by Krealloc when copying the overlap.
func allocatedSize(ptr unsafe.Pointer) (uint64, bool) {
	if size, ok := slab.ObjectSizeForPointer(ptr); ok {
		return uint64(size), true
	}
	if buddyAlloc == nil {
		return 0, false
	}
	phys := vmm.VirtToPhysHHDM(uintptr(ptr))
	return buddyAlloc.SizeOf(phys)
}

// Krealloc resizes the allocation at ptr to newSize, preserving the
// overlapping prefix. krealloc(nil, n) == kalloc(n); krealloc(p, 0) frees p
// and returns nil.
func Krealloc(ptr unsafe.Pointer, newSize uint64) unsafe.Pointer {
	if ptr == nil {
		return Kalloc(newSize)
	}
	if newSize == 0 {
		Kfree(ptr)
		return nil
	}

	oldSize, ok := allocatedSize(ptr)
	if !ok {
		klog.Warn("heap", "krealloc: unrecognized pointer")
		return nil
	}

	newPtr := Kalloc(newSize)
	if newPtr == nil {
		return nil
	}

	copySize := oldSize
	if newSize < copySize {
		copySize = newSize
	}
	kernel.Memcopy(uintptr(ptr), uintptr(newPtr), uintptr(copySize))

	Kfree(ptr)
	return newPtr
}

// Kfree releases a pointer previously returned by Kalloc/Kcalloc/Krealloc.
// It routes by recovering the owning slab (via the slab header's magic) or,
// failing that, the buddy header (self-describing via its own magic).
func Kfree(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	if size, ok := slab.ObjectSizeForPointer(ptr); ok {
		c := slab.CacheByObjectSize(size)
		if c != nil {
			c.Free(ptr)
			return
		}
	}

	if buddyAlloc == nil {
		klog.Warn("heap", "kfree: no buddy allocator to route to")
		return
	}
	phys := vmm.VirtToPhysHHDM(uintptr(ptr))
	buddyAlloc.Free(phys)
}
