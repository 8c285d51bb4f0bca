package pmm

// Stats is a snapshot of the bitmap allocator's aggregate counters, as
// returned by GetStats.
type Stats struct {
	TotalPages    uint64
	FreePages     uint64
	UsedPages     uint64
	ReservedPages uint64
	AllocCount    uint64
	FreeCount     uint64
	BitmapPages   uint64
}
