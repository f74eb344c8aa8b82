package worklist

import "sync"

// defaultChunkCapacity is the number of items a single chunk holds
// before a producer chunk is published to the shared list.
const defaultChunkCapacity = 64

type chunk[T any] struct {
	items [defaultChunkCapacity]T
	n     int // items[0:n] are valid
	i     int // consumer read cursor into items
	next  *chunk[T]
}

func (c *chunk[T]) full() bool  { return c.n == defaultChunkCapacity }
func (c *chunk[T]) drained() bool { return c.i >= c.n }

// chunkList is a shared singly-linked list of full producer chunks,
// consumed FIFO by whichever worker asks first. A CAS-based lock-free
// list is the classic implementation of this structure; the portable
// equivalent used here is a plain mutex guarding head/tail, which
// keeps the same linearizability contract.
type chunkList[T any] struct {
	mu         sync.Mutex
	head, tail *chunk[T]
}

func (l *chunkList[T]) push(c *chunk[T]) {
	c.next = nil
	l.mu.Lock()
	if l.tail == nil {
		l.head, l.tail = c, c
	} else {
		l.tail.next = c
		l.tail = c
	}
	l.mu.Unlock()
}

func (l *chunkList[T]) pop() *chunk[T] {
	l.mu.Lock()
	c := l.head
	if c != nil {
		l.head = c.next
		if l.head == nil {
			l.tail = nil
		}
		c.next = nil
	}
	l.mu.Unlock()
	return c
}

func (l *chunkList[T]) empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head == nil
}

// chunkPool recycles drained chunks so a push-heavy -> pop-heavy ->
// push-heavy stress cycle doesn't leak allocations.
type chunkPool[T any] struct {
	pool sync.Pool
}

func newChunkPool[T any]() *chunkPool[T] {
	return &chunkPool[T]{pool: sync.Pool{New: func() any { return new(chunk[T]) }}}
}

func (p *chunkPool[T]) get() *chunk[T] {
	c := p.pool.Get().(*chunk[T])
	c.n, c.i, c.next = 0, 0, nil
	return c
}

func (p *chunkPool[T]) put(c *chunk[T]) {
	for i := range c.items[:c.n] {
		c.items[i] = *new(T)
	}
	p.pool.Put(c)
}

// ChunkedFIFO is shared backing state for a chunked FIFO worklist:
// each worker gets its own producer chunk and consumer chunk; full
// producer chunks are appended to the shared list, and a consumer
// that drains its own chunk pops a chunk from the shared list before
// falling back to adopting its own (possibly partial) producer chunk.
// This amortizes locking across chunk-sized batches instead of
// per-item.
type ChunkedFIFO[T any] struct {
	shared chunkList[T]
	pool   *chunkPool[T]
}

// NewChunkedFIFO returns shared backing state for a chunked FIFO
// worklist. Call New to obtain the per-worker views the executor
// actually pushes/pops through.
func NewChunkedFIFO[T any]() *ChunkedFIFO[T] {
	return &ChunkedFIFO[T]{pool: newChunkPool[T]()}
}

// New returns n per-worker Worklist[T] views sharing this backing
// state, one per worker id in [0, n).
func (w *ChunkedFIFO[T]) New(n int) []Worklist[T] {
	out := make([]Worklist[T], n)
	for i := range out {
		out[i] = &chunkedWorker[T]{owner: w}
	}
	return out
}

// chunkedWorker is the per-worker view into a ChunkedFIFO.
type chunkedWorker[T any] struct {
	owner   *ChunkedFIFO[T]
	produce *chunk[T]
	consume *chunk[T]
}

func (w *chunkedWorker[T]) Push(v T) {
	if w.produce == nil {
		w.produce = w.owner.pool.get()
	}
	w.produce.items[w.produce.n] = v
	w.produce.n++
	if w.produce.full() {
		w.owner.shared.push(w.produce)
		w.produce = nil
	}
}

func (w *chunkedWorker[T]) PushMany(vs []T) {
	for _, v := range vs {
		w.Push(v)
	}
}

func (w *chunkedWorker[T]) PushInitial(vs []T) {
	w.PushMany(vs)
}

func (w *chunkedWorker[T]) Pop() (v T, ok bool) {
	for {
		if w.consume != nil && !w.consume.drained() {
			v = w.consume.items[w.consume.i]
			w.consume.i++
			return v, true
		}
		if w.consume != nil {
			w.owner.pool.put(w.consume)
			w.consume = nil
		}
		if c := w.owner.shared.pop(); c != nil {
			w.consume = c
			continue
		}
		if w.produce != nil && w.produce.n > 0 {
			w.consume, w.produce = w.produce, nil
			continue
		}
		return v, false
	}
}

func (w *chunkedWorker[T]) Empty() bool {
	if w.consume != nil && !w.consume.drained() {
		return false
	}
	if w.produce != nil && w.produce.n > 0 {
		return false
	}
	return w.owner.shared.empty()
}

func (w *chunkedWorker[T]) Aborted(v T) {
	w.Push(v)
}
