package pmm

import (
	"github.com/tascaenzo/zone-os/kernel"
	"github.com/tascaenzo/zone-os/kernel/mem"
	"github.com/tascaenzo/zone-os/kernel/sync"
)

var (
	errOutOfMemory    = &kernel.Error{Module: "pmm", Message: "out of memory"}
	errInvalidAddress = &kernel.Error{Module: "pmm", Message: "invalid physical address"}
	errAlreadyFree    = &kernel.Error{Module: "pmm", Message: "page already free"}
	errNotInitialized = &kernel.Error{Module: "pmm", Message: "pmm not initialized"}
)

// bitmapAllocator is the PMM's single global instance: one bitmap over the
// entire addressable physical range [0, highestAddr), one bit per page.
//
// The bit data itself is kept in a normal Go-managed []byte rather than
// written through the HHDM into the physical region the placement algorithm
// selects: this port runs ahead of any real HHDM mapping being testable
// without hardware, so bitmapPhysStart/bitmapPages remain purely the
// bookkeeping the placement algorithm (spec.md §4.1 step 3) produces, used
// to self-reserve the owning region's bits, while the bits themselves live
// in ordinary heap memory.
type bitmapAllocator struct {
	lock sync.Spinlock

	bitmap []byte

	totalPages    uint64
	freePages     uint64
	usedPages     uint64
	reservedPages uint64
	allocCount    uint64
	freeCount     uint64
	bitmapPages   uint64

	bitmapPhysStart mem.PhysAddr
	nextFreeHint    uint64
	initialized     bool
}

var global bitmapAllocator

// Init initializes the PMM bitmap allocator from the regions reported by the
// arch memory HAL. It must be called exactly once; callers are responsible
// for serializing calls (spec.md §4.1: "callers MUST serialize init").
func Init(regions mem.Regions) *kernel.Error {
	return global.init(regions)
}

func (a *bitmapAllocator) init(regions mem.Regions) *kernel.Error {
	highest := regions.HighestAddress()
	a.totalPages = (uint64(highest) + uint64(mem.PageSize) - 1) >> mem.PageShift
	bitmapBytes := (a.totalPages + 7) / 8

	// Step 3: find the first Usable region with aligned-base slack big
	// enough to hold the bitmap.
	var placed bool
	for _, r := range regions {
		if r.Kind != mem.RegionUsable {
			continue
		}
		start := r.AlignedStart()
		end := r.AlignedEnd()
		if end <= start {
			continue
		}
		if uint64(end-start) >= bitmapBytes {
			a.bitmapPhysStart = start
			placed = true
			break
		}
	}
	if !placed {
		return errOutOfMemory
	}

	a.bitmapPages = (bitmapBytes + uint64(mem.PageSize) - 1) >> mem.PageShift
	a.bitmap = make([]byte, bitmapBytes)

	// Step 4: fill the whole bitmap with 0xFF (conservative: everything
	// used).
	for i := range a.bitmap {
		a.bitmap[i] = 0xFF
	}

	// Step 5: clear the page-aligned interior of every Usable,
	// BootloaderReclaim or AcpiReclaim region.
	for _, r := range regions {
		if !r.Kind.Reclaimable() {
			continue
		}
		start := r.AlignedStart()
		end := r.AlignedEnd()
		if end <= start {
			continue
		}
		startFrame := uint64(start) >> mem.PageShift
		endFrame := uint64(end) >> mem.PageShift
		for f := startFrame; f < endFrame; f++ {
			a.clearBit(f)
		}
	}

	// Step 6: re-mark the bitmap's own pages as used; mark physical page 0
	// as used (null-pointer trap).
	bitmapStartFrame := uint64(a.bitmapPhysStart) >> mem.PageShift
	for f := bitmapStartFrame; f < bitmapStartFrame+a.bitmapPages; f++ {
		a.setBit(f)
	}
	a.setBit(0)

	// Step 7: recompute aggregate counters by a full scan. Every page used
	// at this point is used because init reserved it (bitmap pages, page
	// 0, non-reclaimable regions) rather than through an alloc call.
	a.recomputeCounters()
	a.reservedPages = a.usedPages
	a.nextFreeHint = 0
	a.initialized = true
	return nil
}

func (a *bitmapAllocator) recomputeCounters() {
	var used uint64
	for f := uint64(0); f < a.totalPages; f++ {
		if a.testBit(f) {
			used++
		}
	}
	a.usedPages = used
	a.freePages = a.totalPages - used
}

func (a *bitmapAllocator) testBit(frame uint64) bool {
	return a.bitmap[frame/8]&(1<<(frame%8)) != 0
}

func (a *bitmapAllocator) setBit(frame uint64) {
	a.bitmap[frame/8] |= 1 << (frame % 8)
}

func (a *bitmapAllocator) clearBit(frame uint64) {
	a.bitmap[frame/8] &^= 1 << (frame % 8)
}

// AllocPage reserves a single physical frame.
func AllocPage() (Frame, *kernel.Error) {
	return global.allocPages(1, 0, ^uint64(0), 1)
}

// AllocPages reserves n physically contiguous frames, all-or-nothing.
func AllocPages(n uint64) (Frame, *kernel.Error) {
	return global.allocPages(n, 0, ^uint64(0), 1)
}

// AllocPagesInRange reserves n physically contiguous frames within
// [lo, hi).
func AllocPagesInRange(n uint64, lo, hi Frame) (Frame, *kernel.Error) {
	return global.allocPages(n, uint64(lo), uint64(hi), 1)
}

// AllocAligned reserves n physically contiguous frames whose start address
// is aligned to alignment, a power of two no smaller than the page size.
func AllocAligned(n uint64, alignment mem.Size) (Frame, *kernel.Error) {
	alignFrames := uint64(alignment) >> mem.PageShift
	if alignFrames == 0 {
		alignFrames = 1
	}
	return global.allocPages(n, 0, ^uint64(0), alignFrames)
}

func (a *bitmapAllocator) allocPages(n, lo, hi, alignFrames uint64) (Frame, *kernel.Error) {
	if n == 0 {
		return InvalidFrame, errInvalidAddress
	}

	a.lock.Acquire()
	defer a.lock.Release()

	if !a.initialized {
		return InvalidFrame, errNotInitialized
	}

	if hi > a.totalPages {
		hi = a.totalPages
	}
	if lo >= hi {
		return InvalidFrame, errOutOfMemory
	}

	start, ok := a.findRun(a.nextFreeHint, lo, hi, n, alignFrames)
	if !ok {
		start, ok = a.findRun(lo, lo, hi, n, alignFrames)
		if !ok {
			return InvalidFrame, errOutOfMemory
		}
	}

	for f := start; f < start+n; f++ {
		a.setBit(f)
	}
	a.nextFreeHint = start + n
	a.allocCount++
	a.freePages -= n
	a.usedPages += n
	return Frame(start), nil
}

// findRun scans [lo, hi) for n consecutive clear bits starting the search at
// hint (clamped into [lo, hi)), applying the sliding-window optimization:
// when a used page is found at offset i inside the candidate window, the
// next candidate start becomes start+i+1 instead of start+1.
func (a *bitmapAllocator) findRun(hint, lo, hi, n, alignFrames uint64) (uint64, bool) {
	start := hint
	if start < lo || start >= hi {
		start = lo
	}
	if alignFrames > 1 {
		if rem := start % alignFrames; rem != 0 {
			start += alignFrames - rem
		}
	}

	for start+n <= hi {
		var i uint64
		for i = 0; i < n; i++ {
			if a.testBit(start + i) {
				break
			}
		}
		if i == n {
			return start, true
		}
		start = start + i + 1
		if alignFrames > 1 {
			if rem := start % alignFrames; rem != 0 {
				start += alignFrames - rem
			}
		}
	}
	return 0, false
}

// FreePage releases a single previously-allocated frame.
func FreePage(f Frame) *kernel.Error {
	return global.freeRange(uint64(f), 1)
}

// FreePages releases n physically contiguous frames previously returned
// together by AllocPages/AllocPagesInRange/AllocAligned.
func FreePages(f Frame, n uint64) *kernel.Error {
	return global.freeRange(uint64(f), n)
}

func (a *bitmapAllocator) freeRange(start, n uint64) *kernel.Error {
	if n == 0 {
		return errInvalidAddress
	}

	a.lock.Acquire()
	defer a.lock.Release()

	if !a.initialized {
		return errNotInitialized
	}
	if start+n > a.totalPages {
		return errInvalidAddress
	}

	// Validate the full range is currently allocated before touching any
	// bit, so a partially invalid free never corrupts state.
	for f := start; f < start+n; f++ {
		if !a.testBit(f) {
			return errAlreadyFree
		}
	}

	for f := start; f < start+n; f++ {
		a.clearBit(f)
	}
	if start < a.nextFreeHint {
		a.nextFreeHint = start
	}
	a.freeCount++
	a.freePages += n
	a.usedPages -= n
	return nil
}

// IsPageFree reports whether the frame is currently free.
func IsPageFree(f Frame) bool {
	global.lock.Acquire()
	defer global.lock.Release()
	if !global.initialized || uint64(f) >= global.totalPages {
		return false
	}
	return !global.testBit(uint64(f))
}

// GetPageInfo returns the frame's bitmap index and whether it is free.
func GetPageInfo(f Frame) (index uint64, free bool) {
	global.lock.Acquire()
	defer global.lock.Release()
	index = uint64(f)
	if !global.initialized || index >= global.totalPages {
		return index, false
	}
	return index, !global.testBit(index)
}

// GetStats returns a snapshot of the allocator's aggregate counters.
func GetStats() Stats {
	global.lock.Acquire()
	defer global.lock.Release()
	return Stats{
		TotalPages:    global.totalPages,
		FreePages:     global.freePages,
		UsedPages:     global.usedPages,
		ReservedPages: global.reservedPages,
		AllocCount:    global.allocCount,
		FreeCount:     global.freeCount,
		BitmapPages:   global.bitmapPages,
	}
}

// CheckIntegrity recomputes the free-page count from a full bitmap scan and
// compares it against the cached counter. A mismatch is diagnostic only —
// the PMM never self-panics on a failed integrity check.
func CheckIntegrity() bool {
	global.lock.Acquire()
	defer global.lock.Release()
	if !global.initialized {
		return false
	}
	var used uint64
	for f := uint64(0); f < global.totalPages; f++ {
		if global.testBit(f) {
			used++
		}
	}
	return used == global.usedPages && global.freePages+global.usedPages == global.totalPages
}

// FindLargestFreeRun returns the start frame and length (in pages) of the
// longest run of consecutive free pages.
func FindLargestFreeRun() (Frame, uint64) {
	global.lock.Acquire()
	defer global.lock.Release()

	var (
		bestStart, bestLen uint64
		curStart, curLen   uint64
		inRun              bool
	)
	for f := uint64(0); f < global.totalPages; f++ {
		if !global.testBit(f) {
			if !inRun {
				curStart = f
				inRun = true
			}
			curLen++
			if curLen > bestLen {
				bestStart, bestLen = curStart, curLen
			}
		} else {
			inRun = false
			curLen = 0
		}
	}
	return Frame(bestStart), bestLen
}

// ResetForTesting discards the global allocator's state, letting a test
// call Init again over a new fake region. It exists for packages that
// layer on top of the PMM (buddy, slab, heap) and need to re-initialize it
// between test cases the same way pmm's own tests reset the unexported
// global directly.
func ResetForTesting() {
	global = bitmapAllocator{}
}
