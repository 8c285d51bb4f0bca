package slab

import (
	"testing"
	"unsafe"

	"github.com/tascaenzo/zone-os/kernel"
	"github.com/tascaenzo/zone-os/kernel/mem"
	"github.com/tascaenzo/zone-os/kernel/mem/vmm"
)

// fakePageSource backs pageAllocFn/pageFreeFn with real Go memory so a
// cache's slabs can be formatted and walked without the real PMM,
// mirroring the harness the vmm and buddy packages use for their own tests.
type fakePageSource struct {
	buf      []byte
	physBase mem.PhysAddr
	next     uint64
	freed    map[mem.PhysAddr]bool
}

func newFakePageSource(pages int) *fakePageSource {
	return &fakePageSource{
		buf:      make([]byte, pages*int(mem.PageSize)),
		physBase: 0x400000,
		freed:    make(map[mem.PhysAddr]bool),
	}
}

func (f *fakePageSource) hhdmOffset() uintptr {
	return uintptr(unsafe.Pointer(&f.buf[0])) - uintptr(f.physBase)
}

func (f *fakePageSource) alloc() (mem.PhysAddr, *kernel.Error) {
	if uint64(f.next+1)*uint64(mem.PageSize) > uint64(len(f.buf)) {
		return 0, &kernel.Error{Module: "slab", Message: "fake out of pages"}
	}
	addr := f.physBase + mem.PhysAddr(f.next*uint64(mem.PageSize))
	f.next++
	return addr, nil
}

func (f *fakePageSource) free(addr mem.PhysAddr) {
	f.freed[addr] = true
}

func setup(t *testing.T, pages int) (*fakePageSource, func()) {
	t.Helper()

	fps := newFakePageSource(pages)
	restoreHHDM := vmm.SetHHDMOffsetForTesting(fps.hhdmOffset())

	origAlloc, origFree := pageAllocFn, pageFreeFn
	pageAllocFn = fps.alloc
	pageFreeFn = fps.free

	origRegistrySize := registrySize
	registrySize = 0

	return fps, func() {
		restoreHHDM()
		pageAllocFn = origAlloc
		pageFreeFn = origFree
		registrySize = origRegistrySize
	}
}

func TestAllocFreeSingleObject(t *testing.T) {
	_, restore := setup(t, 4)
	defer restore()

	c, err := Create("test64", 64, 8, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	obj := c.Alloc()
	if obj == nil {
		t.Fatal("alloc returned nil")
	}
	if got := c.AllocatedObjects(); got != 1 {
		t.Errorf("expected 1 allocated object, got %d", got)
	}

	c.Free(obj)
	if got := c.AllocatedObjects(); got != 0 {
		t.Errorf("expected 0 allocated objects after free, got %d", got)
	}
}

// TestCacheChurn mirrors spec.md §8 scenario 6: in an initially-empty
// 64-byte cache, allocate every object one slab holds (63, since the slab
// header shares the page), all from one slab, which ends up on full;
// freeing one moves it to partial, freeing all of them moves it to empty;
// Shrink then returns the page and decrements TotalSlabs.
func TestCacheChurn(t *testing.T) {
	_, restore := setup(t, 4)
	defer restore()

	c, err := Create("churn64", 64, 8, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n := (uint32(mem.PageSize) - headerSize) / c.objectSize
	objs := make([]unsafe.Pointer, 0, n)
	for i := uint32(0); i < n; i++ {
		o := c.Alloc()
		if o == nil {
			t.Fatalf("alloc %d returned nil", i)
		}
		objs = append(objs, o)
	}

	if c.full == noBlock {
		t.Fatal("slab should be on the full list once exhausted")
	}
	if got := c.TotalSlabs(); got != 1 {
		t.Errorf("expected 1 slab, got %d", got)
	}

	c.Free(objs[0])
	if c.partial == noBlock {
		t.Error("slab should have moved to partial after first free")
	}

	for _, o := range objs[1:] {
		c.Free(o)
	}
	if c.empty == noBlock {
		t.Error("slab should have moved to empty once fully freed")
	}
	if got := c.AllocatedObjects(); got != 0 {
		t.Errorf("expected 0 allocated objects, got %d", got)
	}

	c.Shrink()
	if got := c.TotalSlabs(); got != 0 {
		t.Errorf("expected TotalSlabs to drop to 0 after shrink, got %d", got)
	}
}

func TestCreateRegistryBounded(t *testing.T) {
	_, restore := setup(t, 1)
	defer restore()

	for i := 0; i < maxCaches; i++ {
		if _, err := Create("c", 16, 8, nil, nil); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := Create("overflow", 16, 8, nil, nil); err != errRegistryFull {
		t.Errorf("expected errRegistryFull, got %v", err)
	}
}

func TestFreeBadMagicIsIgnored(t *testing.T) {
	_, restore := setup(t, 2)
	defer restore()

	c, _ := Create("bad", 32, 8, nil, nil)
	obj := c.Alloc()

	slab := slabPageBase(obj)
	slabAt(slab).magic = 0

	// Must not panic and must leave the accounting untouched.
	c.Free(obj)
	if got := c.AllocatedObjects(); got != 1 {
		t.Errorf("expected allocated count unchanged at 1 after a bad-magic free, got %d", got)
	}
}

func TestCacheForSizePicksSmallestFit(t *testing.T) {
	_, restore := setup(t, 1)
	defer restore()

	small, _ := Create("s16", 16, 8, nil, nil)
	_, _ = Create("s64", 64, 8, nil, nil)

	got := CacheForSize(10)
	if got != small {
		t.Errorf("expected the 16-byte cache for a 10-byte request")
	}
}

func TestObjectSizeForPointer(t *testing.T) {
	_, restore := setup(t, 2)
	defer restore()

	c, _ := Create("sz", 128, 8, nil, nil)
	obj := c.Alloc()

	size, ok := ObjectSizeForPointer(obj)
	if !ok {
		t.Fatal("expected ok=true for a live slab object")
	}
	if size != 128 {
		t.Errorf("expected object size 128, got %d", size)
	}
}
