package hal

import (
	"testing"

	"github.com/tascaenzo/zone-os/kernel/hal/limine"
	"github.com/tascaenzo/zone-os/kernel/mem"
)

func resetState() {
	regions = nil
	hhdmOffset = 0
	initialized = false
	memmapRequest.Response = nil
	hhdmRequest.Response = nil
}

func TestInitNoHandoff(t *testing.T) {
	defer resetState()
	resetState()

	if err := Init(); err == nil {
		t.Fatal("expected Init to fail when the bootloader did not populate its requests")
	}
	if Initialized() {
		t.Fatal("expected Initialized to be false after a failed Init")
	}
}

func TestInitNormalizesRegions(t *testing.T) {
	defer resetState()
	resetState()

	entries := []*limine.MemmapEntry{
		{Base: 0x200000, Length: 0x100000, Type: limine.MemmapUsable},
		{Base: 0x0, Length: 0x1000, Type: limine.MemmapReserved},
		{Base: 0x100000, Length: 0x100000, Type: limine.MemmapKernelAndModules},
	}
	memmapRequest.Response = limine.NewMemmapResponse(entries)
	hhdmRequest.Response = &limine.HHDMResponse{Offset: 0xffff800000000000}

	if err := Init(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Initialized() {
		t.Fatal("expected Initialized to be true")
	}

	got := Regions()
	if len(got) != 3 {
		t.Fatalf("expected 3 regions; got %d", len(got))
	}
	// sorted by base address
	if got[0].Base != 0 || got[1].Base != mem.PhysAddr(0x100000) || got[2].Base != mem.PhysAddr(0x200000) {
		t.Fatalf("regions not sorted by base: %+v", got)
	}
	if got[1].Kind != mem.RegionKernelAndModules {
		t.Errorf("expected kernel-and-modules kind, got %v", got[1].Kind)
	}

	if HHDMOffset() != 0xffff800000000000 {
		t.Errorf("unexpected HHDM offset: %x", HHDMOffset())
	}
}

func TestLimineKindToRegionKind(t *testing.T) {
	specs := []struct {
		in  limine.MemmapEntryType
		out mem.RegionKind
	}{
		{limine.MemmapUsable, mem.RegionUsable},
		{limine.MemmapReserved, mem.RegionReserved},
		{limine.MemmapAcpiReclaimable, mem.RegionAcpiReclaim},
		{limine.MemmapAcpiNvs, mem.RegionAcpiNvs},
		{limine.MemmapBadMemory, mem.RegionBad},
		{limine.MemmapBootloaderReclaimable, mem.RegionBootloaderReclaim},
		{limine.MemmapKernelAndModules, mem.RegionKernelAndModules},
		{limine.MemmapFramebuffer, mem.RegionFramebuffer},
		{MemmapEntryType(99), mem.RegionReserved},
	}

	for _, spec := range specs {
		if got := limineKindToRegionKind(spec.in); got != spec.out {
			t.Errorf("limineKindToRegionKind(%v) = %v; want %v", spec.in, got, spec.out)
		}
	}
}

// MemmapEntryType is re-exported locally only to exercise the default case
// in the switch without importing an invalid value from the limine package
// directly.
type MemmapEntryType = limine.MemmapEntryType
