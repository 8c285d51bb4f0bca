// Package slab implements a slab allocator over pages drawn from the page
// source set by SetPageAllocator (the PMM, as wired by heap.Init): each
// cache serves one fixed object size, carving a 4 KiB page
// into an intrusive free list the same way the VMM's page tables and the
// buddy allocator's block headers alias caller-owned memory through the
// HHDM rather than a Go-managed heap.
package slab

import (
	"unsafe"

	"github.com/tascaenzo/zone-os/kernel"
	"github.com/tascaenzo/zone-os/kernel/klog"
	"github.com/tascaenzo/zone-os/kernel/mem"
	"github.com/tascaenzo/zone-os/kernel/mem/vmm"
	"github.com/tascaenzo/zone-os/kernel/sync"
)

const slabMagic uint32 = 0x51AB0000

// pageAllocFn/pageFreeFn source and release the 4 KiB pages a cache formats
// into slabs; tests substitute a fake page source, production wires
// pmm.AllocPage/pmm.FreePage through heap.Init.
var (
	pageAllocFn func() (mem.PhysAddr, *kernel.Error)
	pageFreeFn  func(mem.PhysAddr)
)

// SetPageAllocator wires the page source every cache draws from. It must be
// called once during heap initialization before any cache is created.
func SetPageAllocator(alloc func() (mem.PhysAddr, *kernel.Error), free func(mem.PhysAddr)) {
	pageAllocFn = alloc
	pageFreeFn = free
}

// maxCaches bounds the global cache registry (spec.md §4.4: "registered in
// a bounded global table (≤ 32 caches)").
const maxCaches = 32

var (
	registryLock sync.Spinlock
	registry     [maxCaches]*Cache
	registrySize int

	errRegistryFull = &kernel.Error{Module: "slab", Message: "cache registry full"}
	errNoPages      = &kernel.Error{Module: "slab", Message: "no pages available for slab"}
)

// slabHeader sits at the start of every page a cache formats into a slab.
type slabHeader struct {
	magic        uint32
	freeObjects  uint32
	totalObjects uint32
	objectSize   uint32
	freeHead     uint32 // offset from slab base of first free object, or noFreeObject
	prev         mem.PhysAddr
	next         mem.PhysAddr
}

const noFreeObject = ^uint32(0)

var headerSize = uint32(unsafe.Sizeof(slabHeader{}))

// Cache serves fixed-size objects out of a set of 4 KiB slabs, keeping
// separate full/partial/empty intrusive lists per spec.md §4.4.
type Cache struct {
	lock sync.Spinlock

	name       string
	objectSize uint32
	align      uint32
	ctor       func(unsafe.Pointer)
	dtor       func(unsafe.Pointer)

	full    mem.PhysAddr
	partial mem.PhysAddr
	empty   mem.PhysAddr

	totalSlabs      uint32
	allocatedObjects uint32
}

func slabAt(addr mem.PhysAddr) *slabHeader {
	return (*slabHeader)(unsafe.Pointer(vmm.PhysToVirt(addr)))
}

func roundUp(n, align uint32) uint32 {
	if align == 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// Create registers a new cache for fixed-size objects, normalizing
// objectSize to at least the width of a free-list link and rounding it up
// to align. ctor/dtor may be nil.
func Create(name string, objectSize, align uint32, ctor, dtor func(unsafe.Pointer)) (*Cache, *kernel.Error) {
	if objectSize < 4 {
		objectSize = 4
	}
	objectSize = roundUp(objectSize, align)

	c := &Cache{
		name:       name,
		objectSize: objectSize,
		align:      align,
		ctor:       ctor,
		dtor:       dtor,
		full:       noBlock,
		partial:    noBlock,
		empty:      noBlock,
	}

	registryLock.Acquire()
	defer registryLock.Release()
	if registrySize >= maxCaches {
		return nil, errRegistryFull
	}
	registry[registrySize] = c
	registrySize++

	return c, nil
}

const noBlock = mem.PhysAddr(^uint64(0))

// newSlab formats a freshly allocated page into a slab: a header followed
// by N objects, all linked into the slab's free list.
func (c *Cache) newSlab() (mem.PhysAddr, *kernel.Error) {
	page, err := pageAllocFn()
	if err != nil {
		return 0, errNoPages
	}

	n := (uint32(mem.PageSize) - headerSize) / c.objectSize

	h := slabAt(page)
	h.magic = slabMagic
	h.objectSize = c.objectSize
	h.totalObjects = n
	h.freeObjects = n
	h.prev = noBlock
	h.next = noBlock

	base := vmm.PhysToVirt(page) + uintptr(headerSize)
	for i := uint32(0); i < n; i++ {
		obj := (*uint32)(unsafe.Pointer(base + uintptr(i*c.objectSize)))
		if i+1 < n {
			*obj = (i + 1) * c.objectSize
		} else {
			*obj = noFreeObject
		}
	}
	h.freeHead = 0

	c.totalSlabs++
	return page, nil
}

func listPush(head *mem.PhysAddr, slab mem.PhysAddr) {
	h := slabAt(slab)
	h.prev = noBlock
	h.next = *head
	if h.next != noBlock {
		slabAt(h.next).prev = slab
	}
	*head = slab
}

func listRemove(head *mem.PhysAddr, slab mem.PhysAddr) {
	h := slabAt(slab)
	if h.prev != noBlock {
		slabAt(h.prev).next = h.next
	} else {
		*head = h.next
	}
	if h.next != noBlock {
		slabAt(h.next).prev = h.prev
	}
}

// Alloc returns an object from the cache, preferring a partial slab, then
// an empty one, then allocating a fresh page. The returned memory is not
// zeroed; callers that need a zeroed object (heap.KallocFlags with
// FlagZero) zero it themselves. Returns nil if the system has no more
// pages to give.
func (c *Cache) Alloc() unsafe.Pointer {
	c.lock.Acquire()

	var slab mem.PhysAddr
	switch {
	case c.partial != noBlock:
		slab = c.partial
	case c.empty != noBlock:
		slab = c.empty
		listRemove(&c.empty, slab)
		listPush(&c.partial, slab)
	default:
		var err *kernel.Error
		slab, err = c.newSlab()
		if err != nil {
			c.lock.Release()
			return nil
		}
		listPush(&c.partial, slab)
	}

	h := slabAt(slab)
	objOffset := h.freeHead
	objVirt := vmm.PhysToVirt(slab) + uintptr(headerSize) + uintptr(objOffset)
	h.freeHead = *(*uint32)(unsafe.Pointer(objVirt))
	h.freeObjects--
	c.allocatedObjects++

	if h.freeObjects == 0 {
		listRemove(&c.partial, slab)
		listPush(&c.full, slab)
	}

	c.lock.Release()

	if c.ctor != nil {
		c.ctor(unsafe.Pointer(objVirt))
	}
	return unsafe.Pointer(objVirt)
}

// slabPageBase recovers the physical page a live object pointer belongs to
// by aligning its virtual address down to the page boundary, then
// inverting the HHDM alias: slab pages are obtained straight from the PMM
// and accessed via PhysToVirt, never routed through vmm.Map.
func slabPageBase(obj unsafe.Pointer) mem.PhysAddr {
	v := uintptr(obj) &^ (uintptr(mem.PageSize) - 1)
	return vmm.VirtToPhysHHDM(v)
}

// Free returns obj to its owning slab. A magic mismatch (unknown pointer,
// already-freed page) is logged and ignored rather than panicking.
func (c *Cache) Free(obj unsafe.Pointer) {
	slab := slabPageBase(obj)

	c.lock.Acquire()

	h := slabAt(slab)
	if h.magic != slabMagic {
		c.lock.Release()
		klog.Warn("slab", "free: bad magic for cache %s", c.name)
		return
	}

	wasFull := h.freeObjects == 0

	objOffset := uint32(uintptr(obj) - (vmm.PhysToVirt(slab) + uintptr(headerSize)))
	*(*uint32)(obj) = h.freeHead
	h.freeHead = objOffset
	h.freeObjects++
	c.allocatedObjects--

	if wasFull {
		listRemove(&c.full, slab)
		listPush(&c.partial, slab)
	} else if h.freeObjects == h.totalObjects {
		listRemove(&c.partial, slab)
		listPush(&c.empty, slab)
	}

	c.lock.Release()

	if c.dtor != nil {
		c.dtor(obj)
	}
}

// Shrink releases every slab on the empty list back to the page source,
// per spec.md §4.4's shrink_cache.
func (c *Cache) Shrink() {
	c.lock.Acquire()
	defer c.lock.Release()

	for c.empty != noBlock {
		slab := c.empty
		listRemove(&c.empty, slab)
		c.totalSlabs--
		if pageFreeFn != nil {
			pageFreeFn(slab)
		}
	}
}

// TotalSlabs reports how many slabs (of any list) currently belong to the
// cache.
func (c *Cache) TotalSlabs() uint32 {
	c.lock.Acquire()
	defer c.lock.Release()
	return c.totalSlabs
}

// AllocatedObjects reports the cache's live object count.
func (c *Cache) AllocatedObjects() uint32 {
	c.lock.Acquire()
	defer c.lock.Release()
	return c.allocatedObjects
}

// ObjectSize returns the cache's normalized per-object size.
func (c *Cache) ObjectSize() uint32 {
	return c.objectSize
}
