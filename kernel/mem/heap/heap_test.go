package heap

import (
	"testing"
	"unsafe"

	"github.com/tascaenzo/zone-os/kernel/mem"
	"github.com/tascaenzo/zone-os/kernel/mem/pmm"
	"github.com/tascaenzo/zone-os/kernel/mem/slab"
	"github.com/tascaenzo/zone-os/kernel/mem/vmm"
)

// setup backs a synthetic physical region with real Go memory, points the
// VMM's HHDM offset at it, initializes the PMM over that region, and then
// initializes the heap facade over a sub-region of it. This mirrors the
// fake-physical-memory harness the vmm and buddy packages use for their
// own tests.
func setup(t *testing.T, totalPages int, buddyRegionPages uint64) func() {
	t.Helper()

	const physBase = mem.PhysAddr(0x100000)
	buf := make([]byte, totalPages*int(mem.PageSize))
	offset := uintptr(unsafe.Pointer(&buf[0])) - uintptr(physBase)
	restoreHHDM := vmm.SetHHDMOffsetForTesting(offset)

	regions := mem.Regions{
		{Base: physBase, Length: uint64(totalPages) * uint64(mem.PageSize), Kind: mem.RegionUsable},
	}
	if err := pmm.Init(regions); err != nil {
		t.Fatalf("pmm init: %v", err)
	}

	if err := Init(buddyRegionPages); err != nil {
		t.Fatalf("heap init: %v", err)
	}

	return func() {
		restoreHHDM()
		resetPMM()
		resetHeap()
	}
}

func TestSmallAllocationRoutesToSlab(t *testing.T) {
	defer setup(t, 512, 64)()

	p := Kalloc(48)
	if p == nil {
		t.Fatal("kalloc returned nil")
	}
	if _, ok := slab.ObjectSizeForPointer(p); !ok {
		t.Error("expected a <=2048-byte allocation to live in a slab page")
	}
	Kfree(p)
}

func TestLargeAllocationRoutesToBuddy(t *testing.T) {
	defer setup(t, 512, 64)()

	p := Kalloc(8192)
	if p == nil {
		t.Fatal("kalloc returned nil")
	}
	if _, ok := slab.ObjectSizeForPointer(p); ok {
		t.Error("expected a >2048-byte allocation to NOT live in a slab page")
	}
	phys := vmm.VirtToPhysHHDM(uintptr(p))
	if _, ok := buddyAlloc.SizeOf(phys); !ok {
		t.Error("expected the large allocation to carry a valid buddy header")
	}
	Kfree(p)
}

func TestKallocFlagsZero(t *testing.T) {
	defer setup(t, 512, 64)()

	p := KallocFlags(64, FlagZero, 0)
	if p == nil {
		t.Fatal("kalloc returned nil")
	}
	b := (*[64]byte)(p)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %x", i, v)
		}
	}
}

func TestKreallocNilIsKalloc(t *testing.T) {
	defer setup(t, 512, 64)()

	p := Krealloc(nil, 32)
	if p == nil {
		t.Fatal("krealloc(nil, n) should behave like kalloc(n)")
	}
}

func TestKreallocZeroFreesAndReturnsNil(t *testing.T) {
	defer setup(t, 512, 64)()

	p := Kalloc(32)
	if p == nil {
		t.Fatal("kalloc failed")
	}
	if got := Krealloc(p, 0); got != nil {
		t.Errorf("expected krealloc(p, 0) to return nil, got %v", got)
	}
}

func TestKreallocPreservesOverlap(t *testing.T) {
	defer setup(t, 512, 64)()

	p := Kalloc(16)
	b := (*[16]byte)(p)
	for i := range b {
		b[i] = byte(i + 1)
	}

	grown := Krealloc(p, 8192)
	if grown == nil {
		t.Fatal("krealloc failed")
	}
	gb := (*[16]byte)(grown)
	for i := range gb {
		if gb[i] != byte(i+1) {
			t.Errorf("byte %d not preserved across realloc: got %x want %x", i, gb[i], i+1)
		}
	}
}

func resetPMM() {
	pmm.ResetForTesting()
}

func resetHeap() {
	buddyAlloc = nil
	slab.ResetRegistryForTesting()
}
