package worklist

import (
	"sync"

	"github.com/willf/bitset"
)

// obimCore is the shared backing state for every ordered-by-integer-
// metric worklist variant: an array of "size" sub-worklists, a
// route function mapping an item to one of them, and an occupancy
// bitset consulted by Pop to skip buckets that have never been
// pushed to, so a mostly-empty bucket array doesn't cost an O(size)
// scan on every failed cursor probe.
//
// occupancy bits are only ever set, never cleared: clearing a bit
// when a bucket transiently empties would risk a false negative (a
// worker skipping a bucket another worker is about to push into),
// which Pop's advisory contract cannot tolerate turning into a lost
// item. The cost is that occupancy accuracy degrades over a long
// run with heavy bucket churn — a documented tradeoff, not a
// correctness gap, since every bucket lookup Pop performs is
// double-checked against the real sub-worklist before being trusted.
type obimCore[T any] struct {
	size    int
	buckets []*FIFO[T]

	occMu     sync.Mutex
	occupancy *bitset.BitSet
}

func newOBIMCore[T any](size int) *obimCore[T] {
	buckets := make([]*FIFO[T], size)
	for i := range buckets {
		buckets[i] = NewFIFO[T]()
	}
	return &obimCore[T]{size: size, buckets: buckets, occupancy: bitset.New(uint(size))}
}

func (c *obimCore[T]) mark(idx int) {
	c.occMu.Lock()
	c.occupancy.Set(uint(idx))
	c.occMu.Unlock()
}

// OBIM is the array-of-buckets, per-worker-cursor worklist of spec
// §4.1: push routes to bucket min(index, size-1) and lowers the
// pushing worker's own cursor if the target bucket is lower; pop
// tries the cursor bucket, then scans buckets in ascending order,
// updating the cursor to the first hit.
type OBIM[T any] struct {
	core    *obimCore[T]
	indexer Indexer[T]
}

// NewOBIM returns an OBIM worklist with the given number of priority
// buckets and indexing function.
func NewOBIM[T any](size int, indexer Indexer[T]) *OBIM[T] {
	if size < 1 {
		size = 1
	}
	return &OBIM[T]{core: newOBIMCore[T](size), indexer: indexer}
}

func (o *OBIM[T]) bucketFor(v T) int {
	idx := int(o.indexer(v))
	if idx >= o.core.size {
		idx = o.core.size - 1
	}
	return idx
}

// New returns n per-worker Worklist[T] views, each with its own
// cursor, sharing the OBIM's bucket array.
func (o *OBIM[T]) New(n int) []Worklist[T] {
	out := make([]Worklist[T], n)
	for i := range out {
		out[i] = &obimWorker[T]{obim: o}
	}
	return out
}

type obimWorker[T any] struct {
	obim   *OBIM[T]
	cursor int
}

func (w *obimWorker[T]) Push(v T) {
	idx := w.obim.bucketFor(v)
	w.obim.core.buckets[idx].Push(v)
	w.obim.core.mark(idx)
	if idx < w.cursor {
		w.cursor = idx
	}
}

func (w *obimWorker[T]) PushMany(vs []T) {
	for _, v := range vs {
		w.Push(v)
	}
}

func (w *obimWorker[T]) PushInitial(vs []T) { w.PushMany(vs) }
func (w *obimWorker[T]) Aborted(v T)        { w.Push(v) }

func (w *obimWorker[T]) Pop() (v T, ok bool) {
	core := w.obim.core
	if v, ok := core.buckets[w.cursor].Pop(); ok {
		return v, true
	}
	i, found := core.occupancy.NextSet(0)
	for found {
		if v, ok := core.buckets[i].Pop(); ok {
			w.cursor = int(i)
			return v, true
		}
		i, found = core.occupancy.NextSet(i + 1)
	}
	// Full scan found nothing: leave the cursor where it is rather
	// than resetting to 0, since nothing was observed non-empty to
	// move it to and a reset-to-0 would oscillate under dense
	// re-insertion at higher indices.
	return v, false
}

func (w *obimWorker[T]) Empty() bool {
	core := w.obim.core
	if !core.buckets[w.cursor].Empty() {
		return false
	}
	i, found := core.occupancy.NextSet(0)
	for found {
		if !core.buckets[i].Empty() {
			return false
		}
		i, found = core.occupancy.NextSet(i + 1)
	}
	return true
}

// approxOBIMBuckets is the fixed bucket count of ApproxOBIM: no
// ordering guarantee is promised in exchange for a pop that probes
// the shared occupancy bitset's next set bit instead of scanning
// every bucket.
const approxOBIMBuckets = 2048

// ApproxOBIM routes by index modulo a fixed 2048 buckets and probes
// the shared occupancy bitset for the next non-empty bucket after the
// worker's cursor, wrapping back to 0 when the cursor is past the
// last set bit, trading the OBIM's approximate priority ordering for
// an occupancy-driven pop that skips known-empty buckets instead of
// scanning them one at a time.
type ApproxOBIM[T any] struct {
	core    *obimCore[T]
	indexer Indexer[T]
}

// NewApproxOBIM returns an ApproxOBIM worklist.
func NewApproxOBIM[T any](indexer Indexer[T]) *ApproxOBIM[T] {
	return &ApproxOBIM[T]{core: newOBIMCore[T](approxOBIMBuckets), indexer: indexer}
}

func (o *ApproxOBIM[T]) bucketFor(v T) int {
	return int(o.indexer(v) % approxOBIMBuckets)
}

func (o *ApproxOBIM[T]) New(n int) []Worklist[T] {
	out := make([]Worklist[T], n)
	for i := range out {
		out[i] = &approxOBIMWorker[T]{obim: o}
	}
	return out
}

type approxOBIMWorker[T any] struct {
	obim   *ApproxOBIM[T]
	cursor int
}

func (w *approxOBIMWorker[T]) Push(v T) {
	idx := w.obim.bucketFor(v)
	w.obim.core.buckets[idx].Push(v)
	w.obim.core.mark(idx)
}

func (w *approxOBIMWorker[T]) PushMany(vs []T) {
	for _, v := range vs {
		w.Push(v)
	}
}

func (w *approxOBIMWorker[T]) PushInitial(vs []T) { w.PushMany(vs) }
func (w *approxOBIMWorker[T]) Aborted(v T)        { w.Push(v) }

func (w *approxOBIMWorker[T]) Pop() (v T, ok bool) {
	core := w.obim.core
	buckets := core.buckets
	if v, ok := buckets[w.cursor].Pop(); ok {
		return v, true
	}
	i, found := core.occupancy.NextSet(uint(w.cursor + 1))
	if !found {
		i, found = core.occupancy.NextSet(0)
	}
	if !found {
		return v, false
	}
	first := i
	for {
		if v, ok := buckets[i].Pop(); ok {
			w.cursor = int(i)
			return v, true
		}
		next, found := core.occupancy.NextSet(i + 1)
		if !found {
			next, found = core.occupancy.NextSet(0)
		}
		if !found || next == first {
			return v, false
		}
		i = next
	}
}

func (w *approxOBIMWorker[T]) Empty() bool {
	buckets := w.obim.core.buckets
	for i := 0; i < approxOBIMBuckets; i++ {
		if !buckets[i].Empty() {
			return false
		}
	}
	return true
}
