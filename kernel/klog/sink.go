package klog

import "github.com/tascaenzo/zone-os/kernel/driver/tty"

// AttachTTY makes t the active output sink: any Printf output buffered in
// the early ring buffer is replayed into it, and every call after this one
// goes straight to t. t is marked active so it renders immediately instead
// of queuing further writes.
func AttachTTY(t tty.Device) {
	t.SetState(tty.StateActive)
	SetOutputSink(t)
}
