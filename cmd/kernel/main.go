// Command kernel is the rt0 trampoline: the only Go symbol visible to the
// assembly entry stub after it sets up a minimal stack and jumps into Go
// code. It brings up the memory management core in dependency order (HAL →
// PMM → VMM → buddy → slab/heap) and never returns.
package main

import (
	"github.com/tascaenzo/zone-os/kernel"
	"github.com/tascaenzo/zone-os/kernel/hal"
	"github.com/tascaenzo/zone-os/kernel/klog"
	"github.com/tascaenzo/zone-os/kernel/mem/heap"
	"github.com/tascaenzo/zone-os/kernel/mem/pmm"
	"github.com/tascaenzo/zone-os/kernel/mem/vmm"
)

// heapRegionPages is how many pages the buddy allocator claims from the PMM
// at boot. 4096 pages is 16 MiB, enough headroom for early slab/buddy churn
// before any higher-level subsystem introduces its own backing stores.
const heapRegionPages = 4096

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "kmain returned"}

//go:noinline
func main() {
	if err := hal.Init(); err != nil {
		klog.Panic(&kernel.Error{Module: "kmain", Message: "hal init: " + err.Error()})
	}

	if err := pmm.Init(hal.Regions()); err != nil {
		klog.Panic(&kernel.Error{Module: "kmain", Message: "pmm init: " + err.Error()})
	}

	if err := vmm.Init(hal.HHDMOffset()); err != nil {
		klog.Panic(&kernel.Error{Module: "kmain", Message: "vmm init: " + err.Error()})
	}

	if err := heap.Init(heapRegionPages); err != nil {
		klog.Panic(&kernel.Error{Module: "kmain", Message: "heap init: " + err.Error()})
	}

	klog.Info("kmain", "memory management core initialized")

	klog.Panic(errKmainReturned)
}
