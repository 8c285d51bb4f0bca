package slab

import "unsafe"

// CacheForSize returns the smallest registered cache whose object size can
// hold n bytes, or nil if none fits (the heap facade then returns nil).
func CacheForSize(n uint32) *Cache {
	registryLock.Acquire()
	defer registryLock.Release()

	var best *Cache
	for i := 0; i < registrySize; i++ {
		c := registry[i]
		if c.objectSize < n {
			continue
		}
		if best == nil || c.objectSize < best.objectSize {
			best = c
		}
	}
	return best
}

// CacheByObjectSize returns the registered cache whose normalized object
// size is exactly size, or nil. Used by the heap facade at kfree/krealloc
// time once it has recovered the owning slab's object size.
func CacheByObjectSize(size uint32) *Cache {
	registryLock.Acquire()
	defer registryLock.Release()

	for i := 0; i < registrySize; i++ {
		if registry[i].objectSize == size {
			return registry[i]
		}
	}
	return nil
}

// ResetRegistryForTesting clears the global cache registry, letting a test
// call Create again from a clean slate the way each of this package's own
// tests does via its setup helper.
func ResetRegistryForTesting() {
	registryLock.Acquire()
	defer registryLock.Release()
	registrySize = 0
}

// ObjectSizeForPointer reads the object size recorded in the slab header
// that owns obj, returning ok=false if the owning page carries no valid
// slab magic (obj was not allocated by this package).
func ObjectSizeForPointer(obj unsafe.Pointer) (size uint32, ok bool) {
	slab := slabPageBase(obj)
	h := slabAt(slab)
	if h.magic != slabMagic {
		return 0, false
	}
	return h.objectSize, true
}
