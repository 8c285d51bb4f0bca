// Package limine declares the Limine boot protocol request/response
// structures consumed by the memory management core: the memory map, the
// higher-half direct map offset and the framebuffer handoff. Unlike
// multiboot2's tag stream, each Limine request is a fixed-layout struct
// placed in a `.requests` linker section and filled in by the bootloader
// before the kernel entry point runs; the kernel only ever reads the
// `Response` pointer back out of the request it declared.
package limine

import "unsafe"

// baseRevisionSupported is the Limine base revision this kernel declares
// support for. The bootloader overwrites the third marker word with 0 if it
// accepted the revision.
const baseRevisionSupported = 3

// BaseRevision is placed in the `.requests` section and tells the bootloader
// which protocol revision this kernel expects. Limine clears the revision
// word (sets it to 0) once it has processed the marker.
var BaseRevision = [3]uint64{0xf9562b2d5c95a6c8, 0x6a7b384944536bdc, baseRevisionSupported}

// BaseRevisionSupported reports whether the bootloader accepted the
// declared base revision.
func BaseRevisionSupported() bool {
	return BaseRevision[2] == 0
}

// requestsStartMarker / requestsEndMarker bound the `.requests` section so
// the bootloader can locate every request the kernel declared regardless of
// link order.
var (
	requestsStartMarker = [4]uint64{0xf6b8f4b39de7d1ae, 0xfab91a6940fcb9cf, 0x785c6ed015d3e316, 0x181e920a7852b9d9}
	requestsEndMarker   = [2]uint64{0xadc0e0531bb10d03, 0x9572709f31764c62}
)

// MemmapEntryType classifies a single Limine memory map entry. Values map
// 1:1 onto mem.RegionKind.
type MemmapEntryType uint64

// Limine memmap entry types, per the protocol specification.
const (
	MemmapUsable MemmapEntryType = iota
	MemmapReserved
	MemmapAcpiReclaimable
	MemmapAcpiNvs
	MemmapBadMemory
	MemmapBootloaderReclaimable
	MemmapKernelAndModules
	MemmapFramebuffer
)

// MemmapEntry describes a single physical memory region as reported by the
// bootloader.
type MemmapEntry struct {
	Base   uint64
	Length uint64
	Type   MemmapEntryType
}

// MemmapResponse is the structure the bootloader fills in and points
// MemmapRequest.Response at.
type MemmapResponse struct {
	Revision    uint64
	EntryCount  uint64
	entriesAddr uintptr // *[EntryCount]*MemmapEntry
}

// Entries returns the memory map entries reported by the bootloader.
func (r *MemmapResponse) Entries() []*MemmapEntry {
	if r == nil || r.EntryCount == 0 {
		return nil
	}
	return unsafe.Slice((**MemmapEntry)(unsafe.Pointer(r.entriesAddr)), r.EntryCount)
}

// NewMemmapResponse builds a MemmapResponse around an existing entry slice.
// Production code never calls this — the bootloader fills in Response
// directly — but it gives tests and simulators a way to fabricate a memory
// map without depending on unexported fields.
func NewMemmapResponse(entries []*MemmapEntry) *MemmapResponse {
	r := &MemmapResponse{EntryCount: uint64(len(entries))}
	if len(entries) > 0 {
		r.entriesAddr = uintptr(unsafe.Pointer(&entries[0]))
	}
	return r
}

// MemmapRequest is the struct read by the bootloader to produce a
// MemmapResponse. ID and Revision are fixed by the protocol; Response is
// populated by the bootloader before the kernel entry point runs.
type MemmapRequest struct {
	ID       [4]uint64
	Revision uint64
	Response *MemmapResponse
}

// NewMemmapRequest returns a zero-valued MemmapRequest with the protocol ID
// pre-filled, ready to be placed in the `.requests` section.
func NewMemmapRequest() MemmapRequest {
	return MemmapRequest{ID: memmapRequestID}
}

var memmapRequestID = [4]uint64{0xc7b1dd30df4c8b88, 0x0a82e883a194f07b, 0x9d5827dcd881dd75, 0xa3142e649ec97362}

// HHDMResponse carries the virtual offset at which the bootloader linearly
// mapped all physical memory.
type HHDMResponse struct {
	Revision uint64
	Offset   uint64
}

// HHDMRequest is the struct read by the bootloader to produce an
// HHDMResponse.
type HHDMRequest struct {
	ID       [4]uint64
	Revision uint64
	Response *HHDMResponse
}

// NewHHDMRequest returns a zero-valued HHDMRequest with the protocol ID
// pre-filled.
func NewHHDMRequest() HHDMRequest {
	return HHDMRequest{ID: hhdmRequestID}
}

var hhdmRequestID = [4]uint64{0x48dcf1cb8ad2b852, 0x63984e959a98244b, 0x0ed5d73fa7e4e0c0, 0x614e2c92bf27c0b5}

// FramebufferMemoryModel describes the pixel layout of a Limine framebuffer.
type FramebufferMemoryModel uint8

// FramebufferMemoryModelRGB is the only memory model Limine currently
// reports.
const FramebufferMemoryModelRGB FramebufferMemoryModel = 1

// Framebuffer describes a single framebuffer surface handed off by the
// bootloader. The console/framebuffer driver (an external collaborator, not
// implemented by this repository) consumes this struct; the memory core
// does not read it, and learns of framebuffer memory only through
// RegionFramebuffer entries in the memory map.
type Framebuffer struct {
	Address       uintptr
	Width         uint64
	Height        uint64
	Pitch         uint64
	Bpp           uint16
	MemoryModel   FramebufferMemoryModel
	RedMaskSize   uint8
	RedMaskShift  uint8
	GreenMaskSize uint8
	GreenMaskSz   uint8
	BlueMaskSize  uint8
	BlueMaskShift uint8
}

// FramebufferResponse carries every framebuffer surface the bootloader set
// up on behalf of the kernel.
type FramebufferResponse struct {
	Revision        uint64
	FramebufferCnt  uint64
	framebuffersPtr uintptr // *[FramebufferCnt]*Framebuffer
}

// Framebuffers returns every framebuffer surface reported by the
// bootloader.
func (r *FramebufferResponse) Framebuffers() []*Framebuffer {
	if r == nil || r.FramebufferCnt == 0 {
		return nil
	}
	return unsafe.Slice((**Framebuffer)(unsafe.Pointer(r.framebuffersPtr)), r.FramebufferCnt)
}

// NewFramebufferResponse builds a FramebufferResponse around an existing
// framebuffer slice, for the same fabrication purpose as NewMemmapResponse.
func NewFramebufferResponse(fbs []*Framebuffer) *FramebufferResponse {
	r := &FramebufferResponse{FramebufferCnt: uint64(len(fbs))}
	if len(fbs) > 0 {
		r.framebuffersPtr = uintptr(unsafe.Pointer(&fbs[0]))
	}
	return r
}

// FramebufferRequest is the struct read by the bootloader to produce a
// FramebufferResponse.
type FramebufferRequest struct {
	ID       [4]uint64
	Revision uint64
	Response *FramebufferResponse
}

// NewFramebufferRequest returns a zero-valued FramebufferRequest with the
// protocol ID pre-filled.
func NewFramebufferRequest() FramebufferRequest {
	return FramebufferRequest{ID: framebufferRequestID}
}

var framebufferRequestID = [4]uint64{0x9d5827dcd881dd75, 0xa3142e649ec97362, 0x2bb67b4c3a8d9b7b, 0x5eba5c7c9c7a5e6d}
