// Package worklist implements the worklist family the for_each
// executor dispatches through: ordered or unordered bags of work
// items with Push/Pop/Empty, composable and safe for concurrent use.
//
// Every concrete type in this package satisfies the same contract:
// Push, PushMany (bulk push), Pop (best-effort, returns ok=false when
// no item is currently visible to the caller — this is advisory, not
// a proof of global emptiness, see Empty), Empty (a best-effort probe
// that may return a false positive under concurrent pushes; the
// executor compensates with termination detection), and PushInitial
// for sequential seeding before any worker starts popping. Aborted
// defaults to Push; the executor itself never calls it, but
// user-defined worklists may use it to distinguish a retried item
// from a freshly-pushed one.
//
// No operation in this package ever returns an error: worklist
// operations never fail visibly.
package worklist

import "github.com/spaolacci/murmur3"

// Worklist is the contract the for_each executor requires from its
// work container. T must be safe to copy between goroutines.
type Worklist[T any] interface {
	// Push enqueues a single item.
	Push(v T)
	// PushMany bulk-enqueues a slice of items. Implementations should
	// avoid taking their lock once per item when a cheaper bulk path
	// exists.
	PushMany(vs []T)
	// Pop removes and returns an item, or ok=false if none was
	// visible to the caller at the time of the call.
	Pop() (v T, ok bool)
	// Empty is a best-effort emptiness probe. It may return a false
	// positive (report empty while a concurrent push is still landing,
	// or while items sit only in another worker's private part) but
	// must never report not-empty once every worker agrees the
	// structure is truly drained — that invariant
	// is what lets the termination detector treat Empty() as a
	// sufficient exit condition.
	Empty() bool
	// PushInitial seeds the worklist sequentially, before any worker
	// has begun popping. Implementations may use this to partition
	// work across per-worker sub-structures more cheaply than a
	// sequence of concurrent Push calls would allow.
	PushInitial(vs []T)
	// Aborted is called by worklists themselves (never by the
	// executor, which instead routes aborted items through
	// abort.Handler) when a caller wants push-like re-enqueue
	// semantics for conflicted items. The default is Push.
	Aborted(v T)
}

// Indexer maps a work item to a non-negative bucket index, used by
// the OBIM family to approximate priority ordering without a global
// lock.
type Indexer[T any] func(v T) uint

// Less reports whether a has higher priority than b, used by the
// Priority worklist's heap ordering.
type Less[T any] func(a, b T) bool

// HashIndexer builds an Indexer for the OBIM family out of an
// arbitrary byte-key extractor, for work items whose priority isn't
// already a small integer (e.g. a graph node's opaque name rather
// than its numeric id). Buckets are murmur3(key(v)) mod size, giving
// a distribution roughly as even as the key extractor's output, at
// the cost of losing any true numeric ordering between items — this
// is a bucket-affinity hash, not a priority comparator.
func HashIndexer[T any](size int, key func(v T) []byte) Indexer[T] {
	if size < 1 {
		size = 1
	}
	return func(v T) uint {
		return uint(murmur3.Sum32(key(v))) % uint(size)
	}
}

// Factory builds the n per-worker Worklist[T] views a worker pool of
// size n dispatches through. Worker-affine variants (chunked FIFO,
// OBIM and its relatives, local queues, stealing) hold shared backing
// state behind the views New returns; globally-locked variants (LIFO,
// FIFO, Priority) are not Factories themselves, and Shared wraps one
// so that all n views are the same single structure.
// runconfig.Options holds a Factory rather than a bare Worklist so the
// executor can size the worklist to the worker count it was actually
// given.
type Factory[T any] interface {
	New(n int) []Worklist[T]
}

// Shared adapts a single Worklist[T] — typically a LIFO, FIFO, or
// Priority instance, all of which are already safe for concurrent use
// by every worker — into a Factory[T] that hands every worker the
// same instance.
type Shared[T any] struct {
	W Worklist[T]
}

func (s Shared[T]) New(n int) []Worklist[T] {
	out := make([]Worklist[T], n)
	for i := range out {
		out[i] = s.W
	}
	return out
}
