package vmm

import (
	"testing"

	"github.com/tascaenzo/zone-os/kernel/mem"
)

func TestMapResolveUnmapRoundTrip(t *testing.T) {
	_, restore := setup(t, 16)
	defer restore()

	virt := mem.VirtAddr(0x0000_0000_4000_0000)
	phys := mem.PhysAddr(0x0000_0000_0200_0000)

	if err := Map(&kernelSpace, virt, phys, FlagReadGeneric|FlagWriteGeneric); err != nil {
		t.Fatalf("map: %v", err)
	}

	got, err := Resolve(&kernelSpace, virt+0x123)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != phys+0x123 {
		t.Errorf("resolve: expected %x, got %x", phys+0x123, got)
	}

	if err := Unmap(&kernelSpace, virt); err != nil {
		t.Fatalf("unmap: %v", err)
	}

	if _, err := Resolve(&kernelSpace, virt); err != errNoMap {
		t.Errorf("expected errNoMap after unmap, got %v", err)
	}
}

func TestDoubleMapRejected(t *testing.T) {
	_, restore := setup(t, 16)
	defer restore()

	virt := mem.VirtAddr(0x0000_0000_4000_0000)
	phys := mem.PhysAddr(0x0000_0000_0200_0000)

	if err := Map(&kernelSpace, virt, phys, FlagReadGeneric|FlagWriteGeneric); err != nil {
		t.Fatalf("first map: %v", err)
	}

	if err := Map(&kernelSpace, virt, phys+mem.PhysAddr(mem.PageSize), FlagReadGeneric); err != errBusy {
		t.Fatalf("expected errBusy on double map, got %v", err)
	}

	got, err := Resolve(&kernelSpace, virt)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != phys {
		t.Errorf("double-map attempt corrupted original mapping: got %x want %x", got, phys)
	}
}

func TestMapRejectsMisalignedAddresses(t *testing.T) {
	_, restore := setup(t, 16)
	defer restore()

	if err := Map(&kernelSpace, mem.VirtAddr(0x1001), mem.PhysAddr(0x2000), FlagReadGeneric); err != errInvalid {
		t.Errorf("expected errInvalid for misaligned virt, got %v", err)
	}
	if err := Map(&kernelSpace, mem.VirtAddr(0x1000), mem.PhysAddr(0x2001), FlagReadGeneric); err != errInvalid {
		t.Errorf("expected errInvalid for misaligned phys, got %v", err)
	}
}

func TestMapRangeRollsBackOnFailure(t *testing.T) {
	_, restore := setup(t, 16)
	defer restore()

	virt := mem.VirtAddr(0x0000_0000_5000_0000)
	phys := mem.PhysAddr(0x0000_0000_0300_0000)

	// Pre-map the third page so MapRange fails partway through.
	third := virt + mem.VirtAddr(2*uint64(mem.PageSize))
	if err := Map(&kernelSpace, third, phys+mem.PhysAddr(2*uint64(mem.PageSize))+mem.PhysAddr(mem.PageSize), FlagReadGeneric); err != nil {
		t.Fatalf("pre-map: %v", err)
	}

	if err := MapRange(&kernelSpace, virt, phys, 4, FlagReadGeneric|FlagWriteGeneric); err != errBusy {
		t.Fatalf("expected errBusy from MapRange, got %v", err)
	}

	// Pages 0 and 1 must have been rolled back.
	if _, err := Resolve(&kernelSpace, virt); err != errNoMap {
		t.Errorf("expected page 0 rolled back, resolve err = %v", err)
	}
	if _, err := Resolve(&kernelSpace, virt+mem.VirtAddr(uint64(mem.PageSize))); err != errNoMap {
		t.Errorf("expected page 1 rolled back, resolve err = %v", err)
	}
}

func TestUnmapAbsentMappingReturnsNoMap(t *testing.T) {
	_, restore := setup(t, 16)
	defer restore()

	if err := Unmap(&kernelSpace, mem.VirtAddr(0x0000_0000_6000_0000)); err != errNoMap {
		t.Errorf("expected errNoMap, got %v", err)
	}
}
