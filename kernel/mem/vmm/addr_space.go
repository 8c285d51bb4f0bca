package vmm

import (
	"unsafe"

	"github.com/tascaenzo/zone-os/kernel"
	"github.com/tascaenzo/zone-os/kernel/cpu"
	"github.com/tascaenzo/zone-os/kernel/mem"
	"github.com/tascaenzo/zone-os/kernel/mem/pmm"
	"github.com/tascaenzo/zone-os/kernel/sync"
)

const (
	// eferMSR is the Extended Feature Enable Register.
	eferMSR = 0xC0000080
	// eferNXEBit enables the NoExecute page protection feature once set.
	eferNXEBit = 1 << 11
)

var (
	// the following are package-level hooks so they can be substituted;
	// this package's tests replace frameAllocFn and frameFreeFn.
	frameAllocFn = pmm.AllocPage
	frameFreeFn  = pmm.FreePage
	readCR3Fn    = cpu.ReadCR3
	writeCR3Fn   = cpu.WriteCR3
	rdmsrFn      = cpu.RDMSR
	wrmsrFn      = cpu.WRMSR
	supportsNXFn = cpu.SupportsNX

	globalLock sync.Spinlock

	// kernelSpace is the one singleton address space every user address
	// space's higher half mirrors.
	kernelSpace AddressSpace

	initialized bool

	errDestroyKernelSpace = &kernel.Error{Module: "vmm", Message: "cannot destroy the kernel address space"}
	errNotInitialized     = &kernel.Error{Module: "vmm", Message: "vmm not initialized"}
)

// AddressSpace is an opaque handle to a top-level page table (PML4). There
// is one kernel AddressSpace, shared globally, and zero or more user
// address spaces whose higher half mirrors the kernel's.
type AddressSpace struct {
	root mem.PhysAddr
	lock sync.Spinlock
}

// Init adopts the currently active CR3 as the kernel address space's root
// and captures the HHDM offset the bootloader established. It enables
// EFER.NXE if the CPU supports NX and the firmware left it disabled.
func Init(hhdmOff uintptr) *kernel.Error {
	globalLock.Acquire()
	defer globalLock.Release()

	hhdmOffset = hhdmOff
	kernelSpace.root = mem.PhysAddr(readCR3Fn())

	if supportsNXFn() {
		efer := rdmsrFn(eferMSR)
		if efer&eferNXEBit == 0 {
			wrmsrFn(eferMSR, efer|eferNXEBit)
		}
	}

	irqInit()
	initialized = true
	return nil
}

// KernelSpace returns the singleton kernel address space.
func KernelSpace() *AddressSpace {
	return &kernelSpace
}

// Initialized reports whether Init has run.
func Initialized() bool {
	return initialized
}

// CreateSpace allocates a new zero-initialized PML4 frame and copies the
// kernel higher-half entries ([256:512)) from the kernel address space so
// kernel mappings stay globally visible.
func CreateSpace() (*AddressSpace, *kernel.Error) {
	frame, err := frameAllocFn()
	if err != nil {
		return nil, err
	}

	tableVirt := PhysToVirt(frame.Address())
	kernel.Memset(tableVirt, 0, uintptr(mem.PageSize))

	kernelTableVirt := PhysToVirt(kernelSpace.root)
	entrySize := unsafe.Sizeof(pageTableEntry(0))
	for i := uintptr(256); i < entriesPerTable; i++ {
		src := (*pageTableEntry)(unsafe.Pointer(kernelTableVirt + i*entrySize))
		dst := (*pageTableEntry)(unsafe.Pointer(tableVirt + i*entrySize))
		*dst = *src
	}

	return &AddressSpace{root: frame.Address()}, nil
}

// DestroySpace recursively frees every present PDPT/PD/PT frame reachable
// from the lower (user) half of s, then frees the PML4 frame itself. Data
// frames referenced by leaf PTEs are NOT freed — ownership of mapped data
// stays with the caller, per spec.md §3's AddressSpace lifecycle contract.
func DestroySpace(s *AddressSpace) *kernel.Error {
	if s == &kernelSpace {
		return errDestroyKernelSpace
	}

	s.lock.Acquire()
	defer s.lock.Release()

	tableVirt := PhysToVirt(s.root)
	entrySize := unsafe.Sizeof(pageTableEntry(0))
	for i := uintptr(0); i < 256; i++ {
		pte := (*pageTableEntry)(unsafe.Pointer(tableVirt + i*entrySize))
		if !pte.Present() {
			continue
		}
		childFrame := pte.Frame()
		destroySubtree(childFrame.Address(), 1)
		frameFreeFn(childFrame)
	}

	return frameFreeFn(pmm.FrameFromAddress(s.root))
}

// destroySubtree frees every present child table frame of the table rooted
// at tableBase (which is at the given paging level), recursing down to but
// not past the PT level: PT entries point at caller-owned data frames which
// this function never touches.
func destroySubtree(tableBase mem.PhysAddr, level uint8) {
	if level == pageLevels-1 {
		return
	}

	tableVirt := PhysToVirt(tableBase)
	entrySize := unsafe.Sizeof(pageTableEntry(0))
	for i := uintptr(0); i < entriesPerTable; i++ {
		pte := (*pageTableEntry)(unsafe.Pointer(tableVirt + i*entrySize))
		if !pte.Present() {
			continue
		}
		childFrame := pte.Frame()
		destroySubtree(childFrame.Address(), level+1)
		frameFreeFn(childFrame)
	}
}

// SwitchSpace loads s.root into CR3, making it the active address space on
// the local CPU. This triggers a full TLB flush of non-global entries.
func SwitchSpace(s *AddressSpace) *kernel.Error {
	writeCR3Fn(uintptr(s.root))
	return nil
}
