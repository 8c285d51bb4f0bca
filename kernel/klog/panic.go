package klog

import (
	"github.com/tascaenzo/zone-os/kernel"
	"github.com/tascaenzo/zone-os/kernel/cpu"
)

var (
	// cpuHaltFn is the halt primitive Panic ends with, held in a variable
	// so it can be replaced where no real CPU halt is wanted.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the console and halts the
// CPU. Calls to Panic never return. It is the divergent sink the memory
// management core escalates to for the two conditions spec'd as
// unrecoverable: PMM init failure (no memory map, or no room for the
// bitmap) and failure to acquire the kernel PML4 during VMM init.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	for {
		cpuHaltFn()
	}
}

// panicString serves as a redirect target for runtime.throw.
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}
