// Package pagepool specifies the interface the executor's chunked
// worklists consume for page-granularity memory: a page allocator
// providing huge-page-preferring, private-anonymous-mapped pages with
// per-thread free lists, tracking each page's owner so pages freed by
// one worker return to the original owner's free list and reduce NUMA
// drift. The concrete huge-page/mmap machinery a production allocator
// would sit on is out of scope here: this package specifies the
// interface consumed and ships one reference, in-process
// implementation suitable for tests and for single-process runs that
// don't need real huge pages.
package pagepool

import (
	"sync"
	"unsafe"

	lru "github.com/hashicorp/golang-lru"
)

// PageSize is the allocation granularity used by the reference
// allocator and assumed by callers sizing worklist chunks.
const PageSize = 4 << 10 // 4 KiB; huge-page tiers are an Allocator's own concern.

// Allocator is the interface the executor's chunked worklists and
// fixed-size object allocator consume. Implementations are free to
// back it with huge pages, mmap, or (as here) the Go heap; the
// contract is only the operations below.
type Allocator interface {
	// PageAlloc returns a new page-sized block, preferring one
	// returned to the calling worker's own free list over a block
	// from the shared pool, which reduces NUMA drift.
	PageAlloc(workerID int) []byte
	// PageFree returns p to its originally-owning worker's free
	// list, regardless of which worker calls PageFree.
	PageFree(p []byte)
	// PagePrealloc warms n pages into the shared pool ahead of
	// expected demand (e.g. before a worklist's initial seeding).
	PagePrealloc(n int)
	// LargeAlloc allocates a block of the given size, optionally
	// prefaulting it (touching every page so the first real write
	// doesn't pay a page-fault latency spike).
	LargeAlloc(bytes int, prefault bool) []byte
	// LargeFree releases a block returned by LargeAlloc.
	LargeFree(p []byte, bytes int)
}

// page tracks which worker a page was handed out to, so PageFree can
// return it to the right free list irrespective of who calls PageFree.
type page struct {
	buf   []byte
	owner int
}

// Pool is a reference Allocator. Free lists are kept per worker id,
// since nearly all traffic is a worker freeing or reusing its own
// pages; the page-to-owner map is a single map behind one mutex, not
// sharded. Each worker's free list is bounded with an LRU
// (github.com/hashicorp/golang-lru) so a worker that frees far more
// than it reuses in a bursty pass doesn't pin unbounded memory.
// PagePrealloc places its pages on worker 0's free list.
type Pool struct {
	maxFreePerWorker int

	mu    sync.Mutex
	owner map[uintptr]int // page base address -> owning worker, keyed by &buf[0]

	free []*lru.Cache // per worker, keyed by address, value *page
}

// NewPool returns a Pool where each worker's free list holds at most
// maxFreePerWorker pages before the oldest is evicted back to the
// general heap.
func NewPool(nWorkers, maxFreePerWorker int) *Pool {
	p := &Pool{
		maxFreePerWorker: maxFreePerWorker,
		owner:            make(map[uintptr]int),
		free:             make([]*lru.Cache, nWorkers),
	}
	for i := range p.free {
		c, err := lru.New(maxFreePerWorker)
		if err != nil {
			// maxFreePerWorker <= 0 is a caller bug, not a runtime
			// condition; fail loudly rather than silently disabling
			// pooling.
			panic(err)
		}
		p.free[i] = c
	}
	return p
}

// addrOf returns the base address of buf's backing array, used as the
// ownership map's key.
func addrOf(buf []byte) uintptr {
	if cap(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[:1][0]))
}

func (p *Pool) PageAlloc(workerID int) []byte {
	if c := p.free[workerID]; c != nil {
		if keys := c.Keys(); len(keys) > 0 {
			if v, ok := c.Get(keys[len(keys)-1]); ok {
				c.Remove(keys[len(keys)-1])
				return v.(*page).buf
			}
		}
	}
	buf := make([]byte, PageSize)
	p.mu.Lock()
	p.owner[addrOf(buf)] = workerID
	p.mu.Unlock()
	return buf
}

func (p *Pool) PageFree(buf []byte) {
	key := addrOf(buf)
	p.mu.Lock()
	owner, ok := p.owner[key]
	p.mu.Unlock()
	if !ok {
		owner = 0
	}
	p.free[owner].Add(key, &page{buf: buf, owner: owner})
}

func (p *Pool) PagePrealloc(n int) {
	bufs := make([][]byte, n)
	for i := range bufs {
		bufs[i] = make([]byte, PageSize)
	}
	p.mu.Lock()
	for _, b := range bufs {
		p.owner[addrOf(b)] = 0
	}
	p.mu.Unlock()
	for _, b := range bufs {
		p.free[0].Add(addrOf(b), &page{buf: b, owner: 0})
	}
}

func (p *Pool) LargeAlloc(bytes int, prefault bool) []byte {
	buf := make([]byte, bytes)
	if prefault {
		for i := 0; i < len(buf); i += PageSize {
			buf[i] = 0
		}
	}
	return buf
}

func (p *Pool) LargeFree(_ []byte, _ int) {
	// The Go garbage collector reclaims the backing array; there is
	// nothing for a heap-backed reference allocator to do here. A
	// huge-page-backed Allocator would munmap at this point.
}
