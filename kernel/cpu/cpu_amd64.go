// Package cpu provides thin wrappers around the x86_64 instructions the
// memory management core needs: cpuid, rdmsr/wrmsr, invlpg, mov cr3/cr2 and
// the interrupt/halt control instructions. Each bodiless function below is
// implemented in the companion assembly file built alongside this package;
// only the Go-visible signatures live here so the rest of the core can be
// unit tested by substituting these hooks.
package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling on the local CPU (sti).
func EnableInterrupts()

// DisableInterrupts disables interrupt handling on the local CPU (cli).
func DisableInterrupts()

// Halt stops instruction execution on the local CPU (hlt) until the next
// interrupt.
func Halt()

// Pause emits a pause instruction, a hint for busy-wait loops that reduces
// power draw and memory-order contention.
func Pause()

// Invlpg invalidates the TLB entry for the given virtual address on the
// local CPU.
func Invlpg(virtAddr uintptr)

// WriteCR3 loads a new value into CR3, switching the active page table root
// and triggering a full TLB flush of non-global entries on the local CPU.
func WriteCR3(physAddr uintptr)

// ReadCR3 returns the physical address of the currently active top-level
// page table.
func ReadCR3() uintptr

// ReadCR2 returns the faulting linear address recorded by the last page
// fault on the local CPU.
func ReadCR2() uint64

// RDMSR reads the model-specific register identified by addr.
func RDMSR(addr uint32) uint64

// WRMSR writes value to the model-specific register identified by addr.
func WRMSR(addr uint32, value uint64)

// ID returns information about the CPU and its features. It is implemented
// as a CPUID instruction with EAX=leaf, ECX=subleaf and returns the values
// in EAX, EBX, ECX and EDX.
func ID(leaf, subleaf uint32) (uint32, uint32, uint32, uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0, 0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// SupportsNX reports whether the CPU advertises the no-execute page
// protection feature (CPUID.80000001H:EDX.NX [bit 20]).
func SupportsNX() bool {
	_, _, _, edx := cpuidFn(0x80000001, 0)
	return edx&(1<<20) != 0
}
