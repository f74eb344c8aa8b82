// Package pts implements per-thread storage: an array indexed by
// worker id, plus a cached slot pointer for the owning worker's own
// fast path. Foreign workers only ever read another worker's slot
// through the indexed array; the owner uses its cached pointer and
// never contends with anyone else's access to its own slot.
//
// This is the executor's building block for state that must live
// "near" a worker (conflict contexts, per-iteration allocators, loop
// statistics) without a lock protecting every access. The page
// allocator and object allocator this package sits below are
// specified only at their interface (see pagepool), not implemented
// here.
package pts

// Storage holds one T per worker, addressable either by the owning
// worker through its cached Slot, or by any worker (including a
// remote one performing work-stealing or termination detection) via
// Get/Set with an explicit worker id.
type Storage[T any] struct {
	slots []T
}

// New returns a Storage sized for n workers. Every slot is the zero
// value of T until explicitly set.
func New[T any](n int) *Storage[T] {
	return &Storage[T]{slots: make([]T, n)}
}

// Len returns the number of worker slots.
func (s *Storage[T]) Len() int {
	return len(s.slots)
}

// Get returns the value in worker id's slot. Safe to call from any
// worker; the caller is responsible for whatever synchronization T's
// own semantics require if a remote peek races with concurrent
// mutation by the owner. Most uses treat a remote Get as a snapshot
// read for diagnostics, not a synchronization point.
func (s *Storage[T]) Get(id int) T {
	return s.slots[id]
}

// Set overwrites worker id's slot.
func (s *Storage[T]) Set(id int, v T) {
	s.slots[id] = v
}

// Slot returns a pointer to worker id's slot for repeated low-overhead
// access by id's own goroutine. Calling code caches the returned
// pointer once per worker lifetime, exactly as the owning OS thread
// would cache a thread-local pointer.
func (s *Storage[T]) Slot(id int) *T {
	return &s.slots[id]
}

// Each calls f for every worker's current slot value, in worker-id
// order. Each does not synchronize with concurrent Set calls from
// other workers; it is intended for end-of-run stats collection after
// all workers have quiesced.
func (s *Storage[T]) Each(f func(id int, v T)) {
	for id, v := range s.slots {
		f(id, v)
	}
}
