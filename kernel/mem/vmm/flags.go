package vmm

import "github.com/tascaenzo/zone-os/kernel"

// Flags is the generic, architecture-neutral permission set accepted at the
// VMM's public mapping boundary (spec.md §4.2).
type Flags uint32

const (
	// FlagReadGeneric is implicit whenever a page is present; it carries no bit
	// of its own but is kept for readability at call sites.
	FlagReadGeneric Flags = 1 << iota
	FlagWriteGeneric
	FlagExecGeneric
	FlagUserGeneric
	FlagGlobalGeneric
	FlagNoCacheGeneric
	FlagWriteCombiningGeneric
)

var errUnsupported = &kernel.Error{Module: "vmm", Message: "requested flag combination is unsupported on this backend"}

// translateFlags converts the generic Flags bitset into the arch
// PageTableEntryFlag bits a leaf PTE is written with. WriteCombining is
// rejected: it would require PAT support this backend does not implement.
func translateFlags(f Flags) (PageTableEntryFlag, *kernel.Error) {
	if f&FlagWriteCombiningGeneric != 0 {
		return 0, errUnsupported
	}

	arch := FlagPresent
	if f&FlagWriteGeneric != 0 {
		arch |= FlagRW
	}
	if f&FlagUserGeneric != 0 {
		arch |= FlagUser
	}
	if f&FlagGlobalGeneric != 0 {
		arch |= FlagGlobal
	}
	if f&FlagNoCacheGeneric != 0 {
		arch |= FlagWriteThrough | FlagCacheDisable
	}
	if f&FlagExecGeneric == 0 {
		arch |= FlagNoExecute
	}
	return arch, nil
}
