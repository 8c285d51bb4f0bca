// Package driver declares the minimal contract every device driver in this
// kernel implements. The memory management core does not ship any concrete
// drivers; console and tty define the interfaces the HAL's framebuffer
// handoff is expected to feed once those drivers exist.
package driver

import "github.com/tascaenzo/zone-os/kernel"

// Driver is implemented by every device driver.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver.
	DriverInit() *kernel.Error
}
