package vmm

import (
	"testing"
	"unsafe"

	"github.com/tascaenzo/zone-os/kernel"
	"github.com/tascaenzo/zone-os/kernel/mem"
	"github.com/tascaenzo/zone-os/kernel/mem/pmm"
)

// fakePhysMem backs a synthetic physical address range with ordinary Go
// memory so tests can exercise the HHDM-based table walker without real
// hardware. Frame i corresponds to physAddr (physBase + i*PageSize); the
// HHDM offset is chosen so PhysToVirt resolves exactly into buf.
type fakePhysMem struct {
	buf      []byte
	physBase mem.PhysAddr
	next     uint64
	freed    []pmm.Frame
}

func newFakePhysMem(pages int) *fakePhysMem {
	f := &fakePhysMem{
		buf:      make([]byte, pages*int(mem.PageSize)),
		physBase: 0x100000,
	}
	return f
}

func (f *fakePhysMem) hhdmOffset() uintptr {
	return uintptr(unsafe.Pointer(&f.buf[0])) - uintptr(f.physBase)
}

func (f *fakePhysMem) alloc() (pmm.Frame, *kernel.Error) {
	if n := len(f.freed); n > 0 {
		frame := f.freed[n-1]
		f.freed = f.freed[:n-1]
		return frame, nil
	}
	if uint64(f.next+1)*uint64(mem.PageSize) > uint64(len(f.buf)) {
		return pmm.InvalidFrame, &kernel.Error{Module: "pmm", Message: "fake out of memory"}
	}
	frame := pmm.FrameFromAddress(f.physBase) + pmm.Frame(f.next)
	f.next++
	return frame, nil
}

func (f *fakePhysMem) free(frame pmm.Frame) *kernel.Error {
	f.freed = append(f.freed, frame)
	return nil
}

// setup installs a fake physical memory backing and a fresh kernel
// AddressSpace rooted at a freshly allocated PML4 frame, returning a
// restore function tests defer.
func setup(t *testing.T, pages int) (*fakePhysMem, func()) {
	t.Helper()

	origHHDM := hhdmOffset
	origAllocFn := frameAllocFn
	origFreeFn := frameFreeFn
	origInvlpg := invlpgFn
	origKernelSpace := kernelSpace

	fpm := newFakePhysMem(pages)
	hhdmOffset = fpm.hhdmOffset()
	frameAllocFn = fpm.alloc
	frameFreeFn = fpm.free
	invlpgFn = func(uintptr) {}

	rootFrame, err := fpm.alloc()
	if err != nil {
		panic(err)
	}
	kernel.Memset(PhysToVirt(rootFrame.Address()), 0, uintptr(mem.PageSize))
	kernelSpace = AddressSpace{root: rootFrame.Address()}

	return fpm, func() {
		hhdmOffset = origHHDM
		frameAllocFn = origAllocFn
		frameFreeFn = origFreeFn
		invlpgFn = origInvlpg
		kernelSpace = origKernelSpace
	}
}
