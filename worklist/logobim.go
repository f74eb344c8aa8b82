package worklist

import "math/bits"

// logOBIMBuckets is 1 plus the number of bits in a machine word: an
// item with index 0 goes to bucket 0, and any other index i goes to
// bucket bits.Len(i), giving exponentially spaced priority classes.
const logOBIMBuckets = 1 + bits.UintSize

// LogOBIM buckets items by the position of their index's
// most-significant bit rather than the index itself, trading exact
// ordering for a fixed, small bucket count regardless of the index's
// magnitude.
type LogOBIM[T any] struct {
	core    *obimCore[T]
	indexer Indexer[T]
}

// NewLogOBIM returns a LogOBIM worklist.
func NewLogOBIM[T any](indexer Indexer[T]) *LogOBIM[T] {
	return &LogOBIM[T]{core: newOBIMCore[T](logOBIMBuckets), indexer: indexer}
}

func (o *LogOBIM[T]) bucketFor(v T) int {
	return bits.Len(uint(o.indexer(v)))
}

func (o *LogOBIM[T]) New(n int) []Worklist[T] {
	out := make([]Worklist[T], n)
	for i := range out {
		out[i] = &obimWorker[T]{obim: &OBIM[T]{core: o.core, indexer: func(v T) uint { return uint(o.bucketFor(v)) }}}
	}
	return out
}
