package vmm

import (
	"github.com/tascaenzo/zone-os/kernel"
	"github.com/tascaenzo/zone-os/kernel/cpu"
	"github.com/tascaenzo/zone-os/kernel/irq"
	"github.com/tascaenzo/zone-os/kernel/klog"
)

var (
	readCR2Fn = cpu.ReadCR2

	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "unrecoverable page fault"}
)

// irqInit wires the VMM's exception handlers into the exception dispatcher.
// Lazy page-fault resolution is an explicit non-goal of this core: unlike a
// copy-on-write capable VMM, HandlePageFault only reports the fault and
// escalates to klog.Panic — it never repairs the mapping and retries.
func irqInit() {
	irq.HandleExceptionWithCode(irq.PageFaultException, HandlePageFault)
	irq.HandleExceptionWithCode(irq.GPFException, handleGeneralProtectionFault)
}

// HandlePageFault is the page-fault exception handler. It logs the faulting
// address and reason, then escalates to klog.Panic: this core does not
// perform lazy page-fault resolution (spec.md §1 non-goals).
func HandlePageFault(errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	faultAddress := uintptr(readCR2Fn())

	klog.Error("vmm", "page fault at 0x%16x: %s", faultAddress, pageFaultReason(errorCode))
	regs.Print()
	frame.Print()

	klog.Panic(errUnrecoverableFault)
}

func pageFaultReason(errorCode uint64) string {
	switch errorCode {
	case 0:
		return "read from non-present page"
	case 1:
		return "page protection violation (read)"
	case 2:
		return "write to non-present page"
	case 3:
		return "page protection violation (write)"
	case 4:
		return "page-fault in user-mode"
	case 8:
		return "page table has reserved bit set"
	case 16:
		return "instruction fetch"
	default:
		return "unknown"
	}
}

func handleGeneralProtectionFault(_ uint64, frame *irq.Frame, regs *irq.Regs) {
	klog.Error("vmm", "general protection fault at 0x%16x", uintptr(readCR2Fn()))
	regs.Print()
	frame.Print()
	klog.Panic(errUnrecoverableFault)
}
