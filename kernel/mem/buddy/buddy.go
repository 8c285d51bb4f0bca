// Package buddy implements a power-of-two buddy allocator over a single
// contiguous physical region handed to it by the PMM. Block headers are
// intrusive: they live at the start of the memory they describe, accessed
// through the HHDM. (The PMM's own bitmap is not accessed this way; it
// lives in Go-managed memory.)
package buddy

import (
	"unsafe"

	"github.com/tascaenzo/zone-os/kernel"
	"github.com/tascaenzo/zone-os/kernel/klog"
	"github.com/tascaenzo/zone-os/kernel/mem"
	"github.com/tascaenzo/zone-os/kernel/mem/vmm"
	"github.com/tascaenzo/zone-os/kernel/sync"
)

const (
	// MinOrder is the smallest block order (4 KiB).
	MinOrder = 12
	// MaxOrder is the largest block order this allocator splits down from
	// (1 MiB); spec.md §4.3 allows extending orders 12..16 up to 1 MiB.
	MaxOrder = 20

	magicFree  uint32 = 0xF2EEF2EE
	magicAlloc uint32 = 0xA110CA7E
)

// noBlock marks an empty free-list slot or a header with no neighbor.
const noBlock = mem.PhysAddr(^uint64(0))

// blockHeader sits at the start of every block, free or allocated.
type blockHeader struct {
	magic uint32
	order uint32
	prev  mem.PhysAddr
	next  mem.PhysAddr
}

var headerSize = mem.Size(unsafe.Sizeof(blockHeader{}))

// Allocator manages a single contiguous physical region as a set of
// power-of-two blocks with per-order free lists and a parallel 4 KiB
// granularity allocation bitmap used for coalescing sanity checks.
type Allocator struct {
	lock sync.Spinlock

	base mem.PhysAddr
	size uint64

	freeListHead [MaxOrder - MinOrder + 1]mem.PhysAddr
	bitmap       []byte
}

// New initializes a buddy allocator over [base, base+size), both aligned to
// the page size (size is aligned down). It greedily emits the largest
// order block that fits the remaining span and is aligned at the current
// cursor, producing a minimal decomposition of the region into buddies.
func New(base mem.PhysAddr, size uint64) *Allocator {
	base = base.AlignUp()
	size &^= uint64(mem.PageSize) - 1

	a := &Allocator{base: base, size: size}
	for i := range a.freeListHead {
		a.freeListHead[i] = noBlock
	}
	bitmapBits := size >> mem.PageShift
	a.bitmap = make([]byte, (bitmapBits+7)/8)

	cursor := base
	remaining := size
	for remaining > 0 {
		order := a.largestFittingOrder(cursor, remaining)
		a.pushFree(order, cursor)
		blockSize := uint64(1) << order
		cursor += mem.PhysAddr(blockSize)
		remaining -= blockSize
	}
	return a
}

func (a *Allocator) largestFittingOrder(cursor mem.PhysAddr, remaining uint64) uint32 {
	order := uint32(MaxOrder)
	for order > MinOrder {
		blockSize := uint64(1) << order
		// Alignment must be checked in region-relative offset space, not
		// against the absolute physical address: the buddy XOR coalescing
		// math and the allocation bitmap both index from a.base, and base
		// itself is only page-aligned, not aligned to 1<<MaxOrder.
		if blockSize <= remaining && uint64(cursor-a.base)%blockSize == 0 {
			break
		}
		order--
	}
	return order
}

func header(addr mem.PhysAddr) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(vmm.PhysToVirt(addr)))
}

func (a *Allocator) pushFree(order uint32, addr mem.PhysAddr) {
	h := header(addr)
	h.magic = magicFree
	h.order = order
	h.prev = noBlock

	idx := order - MinOrder
	h.next = a.freeListHead[idx]
	if h.next != noBlock {
		header(h.next).prev = addr
	}
	a.freeListHead[idx] = addr
}

func (a *Allocator) removeFree(order uint32, addr mem.PhysAddr) {
	h := header(addr)
	idx := order - MinOrder
	if h.prev != noBlock {
		header(h.prev).next = h.next
	} else {
		a.freeListHead[idx] = h.next
	}
	if h.next != noBlock {
		header(h.next).prev = h.prev
	}
}

func (a *Allocator) popFree(order uint32) (mem.PhysAddr, bool) {
	idx := order - MinOrder
	addr := a.freeListHead[idx]
	if addr == noBlock {
		return 0, false
	}
	a.removeFree(order, addr)
	return addr, true
}

func (a *Allocator) setUsed(addr mem.PhysAddr, order uint32) {
	a.setBitmapRange(addr, order, true)
}

func (a *Allocator) setFreeBits(addr mem.PhysAddr, order uint32) {
	a.setBitmapRange(addr, order, false)
}

func (a *Allocator) setBitmapRange(addr mem.PhysAddr, order uint32, used bool) {
	startPage := uint64(addr-a.base) >> mem.PageShift
	pages := uint64(1) << (order - mem.PageShift)
	for p := startPage; p < startPage+pages; p++ {
		if used {
			a.bitmap[p/8] |= 1 << (p % 8)
		} else {
			a.bitmap[p/8] &^= 1 << (p % 8)
		}
	}
}

func (a *Allocator) bitsClear(addr mem.PhysAddr, order uint32) bool {
	startPage := uint64(addr-a.base) >> mem.PageShift
	pages := uint64(1) << (order - mem.PageShift)
	for p := startPage; p < startPage+pages; p++ {
		if a.bitmap[p/8]&(1<<(p%8)) != 0 {
			return false
		}
	}
	return true
}

var errOutOfMemory = &kernel.Error{Module: "buddy", Message: "out of memory"}

// orderFor returns the smallest order whose block size is >= n, never less
// than MinOrder. The result may exceed MaxOrder; Alloc reports that as
// errOutOfMemory.
func orderFor(n uint64) uint32 {
	order := uint32(MinOrder)
	for (uint64(1) << order) < n {
		order++
	}
	return order
}

// Alloc reserves a block able to hold n bytes plus the block header,
// returning the physical address immediately past the header. It returns
// errOutOfMemory if no sufficiently large block is available.
func (a *Allocator) Alloc(n uint64) (mem.PhysAddr, *kernel.Error) {
	required := n + uint64(headerSize)
	order := orderFor(required)
	if order > MaxOrder {
		return 0, errOutOfMemory
	}

	a.lock.Acquire()
	defer a.lock.Release()

	found := order
	for found <= MaxOrder {
		if a.freeListHead[found-MinOrder] != noBlock {
			break
		}
		found++
	}
	if found > MaxOrder {
		return 0, errOutOfMemory
	}

	addr, _ := a.popFree(found)

	// Recursively split the block down to the target order, reinserting
	// the upper half at each step.
	for found > order {
		found--
		buddyAddr := addr + mem.PhysAddr(uint64(1)<<found)
		a.pushFree(found, buddyAddr)
	}

	h := header(addr)
	h.magic = magicAlloc
	h.order = order
	a.setUsed(addr, order)

	return addr + mem.PhysAddr(headerSize), nil
}

// Free releases a block previously returned by Alloc. A magic mismatch,
// double free, or corrupted bitmap state logs a warning and leaves the
// allocator state unchanged rather than panicking (spec.md §4.3: fail-safe
// rather than fail-fast).
func (a *Allocator) Free(ptr mem.PhysAddr) {
	addr := ptr - mem.PhysAddr(headerSize)

	a.lock.Acquire()
	defer a.lock.Release()

	h := header(addr)
	if h.magic != magicAlloc {
		klog.Warn("buddy", "free: bad magic at 0x%16x", addr)
		return
	}
	order := h.order
	if !a.allBitsSet(addr, order) {
		klog.Warn("buddy", "free: bitmap/allocation mismatch at 0x%16x", addr)
		return
	}

	a.setFreeBits(addr, order)

	for order < MaxOrder {
		buddyAddr := a.base + mem.PhysAddr(uint64(addr-a.base)^(uint64(1)<<order))
		if buddyAddr < a.base || uint64(buddyAddr-a.base) >= a.size {
			break
		}
		if !a.bitsClear(buddyAddr, order) {
			break
		}
		bh := header(buddyAddr)
		if bh.magic != magicFree || bh.order != order {
			break
		}

		a.removeFree(order, buddyAddr)
		if buddyAddr < addr {
			addr = buddyAddr
		}
		order++
	}

	h = header(addr)
	h.magic = magicFree
	h.order = order
	a.pushFree(order, addr)
}

func (a *Allocator) allBitsSet(addr mem.PhysAddr, order uint32) bool {
	startPage := uint64(addr-a.base) >> mem.PageShift
	pages := uint64(1) << (order - mem.PageShift)
	for p := startPage; p < startPage+pages; p++ {
		if a.bitmap[p/8]&(1<<(p%8)) == 0 {
			return false
		}
	}
	return true
}

// SizeOf returns the usable size (excluding the header) of a live block
// previously returned by Alloc, recovered from the block's own header.
// ok is false if ptr does not carry a valid ALLOC header, meaning it was
// not allocated by this allocator.
func (a *Allocator) SizeOf(ptr mem.PhysAddr) (size uint64, ok bool) {
	addr := ptr - mem.PhysAddr(headerSize)

	a.lock.Acquire()
	defer a.lock.Release()

	h := header(addr)
	if h.magic != magicAlloc {
		return 0, false
	}
	return (uint64(1) << h.order) - uint64(headerSize), true
}

// LargestFreeOrder returns the order of the largest free block currently
// available, or 0 if the allocator has no free blocks at all.
func (a *Allocator) LargestFreeOrder() uint32 {
	a.lock.Acquire()
	defer a.lock.Release()

	for order := uint32(MaxOrder); order >= MinOrder; order-- {
		if a.freeListHead[order-MinOrder] != noBlock {
			return order
		}
	}
	return 0
}
