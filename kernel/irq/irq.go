// Package irq declares the exception dispatch surface the VMM's page fault
// handler registers against. The actual IDT/interrupt gate plumbing is an
// external collaborator (arch bootstrap code outside this repository's
// scope); this package only defines the Regs/Frame snapshot types and the
// registration functions vmm.Init calls.
package irq

import "github.com/tascaenzo/zone-os/kernel/klog"

// ExceptionNum identifies a CPU exception vector.
type ExceptionNum uint8

const (
	// DoubleFault fires when an exception occurs while the CPU is already
	// trying to invoke an exception handler.
	DoubleFault = ExceptionNum(8)

	// GPFException fires on a general protection fault.
	GPFException = ExceptionNum(13)

	// PageFaultException fires when a page table entry is not present or
	// a privilege/RW protection check fails.
	PageFaultException = ExceptionNum(14)
)

// Regs is a snapshot of the general purpose registers at the time an
// exception occurred.
type Regs struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
}

// Print dumps the register values via klog.
func (r *Regs) Print() {
	klog.Info("irq", "RAX = %16x RBX = %16x", r.RAX, r.RBX)
	klog.Info("irq", "RCX = %16x RDX = %16x", r.RCX, r.RDX)
	klog.Info("irq", "RSI = %16x RDI = %16x", r.RSI, r.RDI)
	klog.Info("irq", "RBP = %16x", r.RBP)
	klog.Info("irq", "R8  = %16x R9  = %16x", r.R8, r.R9)
	klog.Info("irq", "R10 = %16x R11 = %16x", r.R10, r.R11)
	klog.Info("irq", "R12 = %16x R13 = %16x", r.R12, r.R13)
	klog.Info("irq", "R14 = %16x R15 = %16x", r.R14, r.R15)
}

// Frame is the exception frame the CPU pushes to the stack before entering
// an exception handler.
type Frame struct {
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// Print dumps the exception frame via klog.
func (f *Frame) Print() {
	klog.Info("irq", "RIP = %16x CS  = %16x", f.RIP, f.CS)
	klog.Info("irq", "RSP = %16x SS  = %16x", f.RSP, f.SS)
	klog.Info("irq", "RFL = %16x", f.RFlags)
}

// ExceptionHandler handles an exception that does not push an error code.
type ExceptionHandler func(*Frame, *Regs)

// ExceptionHandlerWithCode handles an exception that pushes an error code.
type ExceptionHandlerWithCode func(uint64, *Frame, *Regs)

var (
	withoutCodeHandlers = make(map[ExceptionNum]ExceptionHandler)
	withCodeHandlers    = make(map[ExceptionNum]ExceptionHandlerWithCode)
)

// HandleException registers an exception handler for the given vector.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	withoutCodeHandlers[exceptionNum] = handler
}

// HandleExceptionWithCode registers an exception handler for the given
// vector, for exceptions that push an error code (e.g. page faults).
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) {
	withCodeHandlers[exceptionNum] = handler
}

// Dispatch is invoked by the (external) low-level exception stub once it has
// captured Frame and Regs; it is exported so that stub can live outside this
// repository's scope while still reaching the handlers registered above.
func Dispatch(exceptionNum ExceptionNum, errorCode uint64, frame *Frame, regs *Regs) {
	if h, ok := withCodeHandlers[exceptionNum]; ok {
		h(errorCode, frame, regs)
		return
	}
	if h, ok := withoutCodeHandlers[exceptionNum]; ok {
		h(frame, regs)
	}
}
