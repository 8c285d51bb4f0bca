package pmm

import (
	"testing"

	"github.com/tascaenzo/zone-os/kernel/mem"
)

func resetGlobal() {
	global = bitmapAllocator{}
}

func TestInitProtectsOwnBitmapAndPageZero(t *testing.T) {
	defer resetGlobal()
	resetGlobal()

	regions := mem.Regions{
		{Base: 0x100000, Length: 256 * uint64(mem.Mb), Kind: mem.RegionUsable},
	}
	if err := Init(regions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if IsPageFree(0) {
		t.Error("expected physical page 0 to be reported used")
	}

	bitmapStartFrame := uint64(global.bitmapPhysStart) >> mem.PageShift
	for f := bitmapStartFrame; f < bitmapStartFrame+global.bitmapPages; f++ {
		if IsPageFree(Frame(f)) {
			t.Errorf("expected frame %d (bitmap's own page) to be used", f)
		}
	}
}

func TestLowestFreeReuse(t *testing.T) {
	defer resetGlobal()
	resetGlobal()

	regions := mem.Regions{
		{Base: 0x100000, Length: 16 * uint64(mem.Mb), Kind: mem.RegionUsable},
	}
	if err := Init(regions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, err := AllocPage()
	if err != nil {
		t.Fatalf("alloc a: %v", err)
	}
	_, err = AllocPage()
	if err != nil {
		t.Fatalf("alloc b: %v", err)
	}
	if err := FreePage(a); err != nil {
		t.Fatalf("free a: %v", err)
	}
	c, err := AllocPage()
	if err != nil {
		t.Fatalf("alloc c: %v", err)
	}
	if c != a {
		t.Errorf("expected c == a (%d), got %d", a, c)
	}
}

func TestAllocPagesContiguousAndFree(t *testing.T) {
	defer resetGlobal()
	resetGlobal()

	regions := mem.Regions{
		{Base: 0x100000, Length: 16 * uint64(mem.Mb), Kind: mem.RegionUsable},
	}
	if err := Init(regions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start, err := AllocPages(8)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	for f := uint64(start); f < uint64(start)+8; f++ {
		if IsPageFree(Frame(f)) {
			t.Errorf("frame %d should be allocated", f)
		}
	}
	if err := FreePages(start, 8); err != nil {
		t.Fatalf("free: %v", err)
	}
	for f := uint64(start); f < uint64(start)+8; f++ {
		if !IsPageFree(Frame(f)) {
			t.Errorf("frame %d should be free after FreePages", f)
		}
	}
}

func TestFreeUnallocatedReturnsAlreadyFree(t *testing.T) {
	defer resetGlobal()
	resetGlobal()

	regions := mem.Regions{
		{Base: 0x100000, Length: 4 * uint64(mem.Mb), Kind: mem.RegionUsable},
	}
	if err := Init(regions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	free, _ := FindLargestFreeRun()
	if err := FreePage(free); err != errAlreadyFree {
		t.Errorf("expected errAlreadyFree, got %v", err)
	}
}

func TestAllocExhaustion(t *testing.T) {
	defer resetGlobal()
	resetGlobal()

	regions := mem.Regions{
		{Base: 0x100000, Length: uint64(4 * mem.PageSize), Kind: mem.RegionUsable},
	}
	if err := Init(regions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// One of the region's four pages holds the bitmap itself and is reserved
	// by Init, leaving three allocatable pages.
	for i := 0; i < 3; i++ {
		if _, err := AllocPage(); err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
	}
	if _, err := AllocPage(); err != errOutOfMemory {
		t.Errorf("expected errOutOfMemory once exhausted, got %v", err)
	}
}

func TestCheckIntegrity(t *testing.T) {
	defer resetGlobal()
	resetGlobal()

	regions := mem.Regions{
		{Base: 0x100000, Length: 8 * uint64(mem.Mb), Kind: mem.RegionUsable},
	}
	if err := Init(regions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := AllocPages(4)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if !CheckIntegrity() {
		t.Error("expected integrity check to pass after a clean alloc")
	}
	if err := FreePages(p, 4); err != nil {
		t.Fatalf("free: %v", err)
	}
	if !CheckIntegrity() {
		t.Error("expected integrity check to pass after a clean free")
	}
}

func TestAllocAligned(t *testing.T) {
	defer resetGlobal()
	resetGlobal()

	regions := mem.Regions{
		{Base: 0x100000, Length: 16 * uint64(mem.Mb), Kind: mem.RegionUsable},
	}
	if err := Init(regions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alignment := 4 * mem.PageSize
	f, err := AllocAligned(2, alignment)
	if err != nil {
		t.Fatalf("alloc aligned: %v", err)
	}
	alignFrames := uint64(alignment) >> mem.PageShift
	if uint64(f)%alignFrames != 0 {
		t.Errorf("frame %d not aligned to %d frames", f, alignFrames)
	}
}

func TestAllocBeforeInitReturnsNotInitialized(t *testing.T) {
	defer resetGlobal()
	resetGlobal()

	if _, err := AllocPage(); err != errNotInitialized {
		t.Errorf("expected errNotInitialized, got %v", err)
	}
}
