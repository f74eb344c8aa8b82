// Package runtime supplies the thread-pool, barrier, and per-worker
// identity primitives the for_each executor assumes as external
// collaborators: a thread pool that runs N workers with optional
// initialization and finalization callbacks; a barrier sized to N;
// per-worker identifiers (TID, socket, leader-for-socket). Pool and
// barrier outlive the executor.
package runtime

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/grailbio/galoisrun/wg"
)

// WorkerID identifies one worker within a Pool: its thread index, the
// socket it is assigned to, and whether it is that socket's leader,
// used by abort.Handler's socket-tree escalation and foreach's
// leader-only 64-item batch cap.
type WorkerID struct {
	TID     int
	Socket  int
	Leader  bool
	Sockets int
}

// Pool runs N workers pinned 1:1 to goroutines, mirroring an
// OS-thread pool's fixed pinning as closely as a goroutine scheduler
// allows. MaxWorkers, when positive
// and less than N, bounds how many workers may be concurrently
// live via a weighted semaphore — the same bounded-fan-out shape the
// teacher's scheduler uses an errgroup for, generalized here with a
// semaphore since the pool's fan-out width is fixed up front rather
// than driven by a dynamic task queue.
type Pool struct {
	N          int
	NumSockets int
	MaxWorkers int
}

// NewPool returns a Pool of n workers arranged across numSockets
// sockets (numSockets < 1 is treated as a single socket, the same
// clamp abort.New applies). maxWorkers <= 0 or >= n
// disables the concurrency bound.
func NewPool(n, numSockets, maxWorkers int) *Pool {
	if numSockets < 1 {
		numSockets = 1
	}
	return &Pool{N: n, NumSockets: numSockets, MaxWorkers: maxWorkers}
}

// workerID computes the WorkerID for thread index tid under this
// pool's socket topology: workers are assigned to sockets in
// contiguous blocks, and the first worker in a socket's block is that
// socket's leader.
func (p *Pool) workerID(tid int) WorkerID {
	perSocket := (p.N + p.NumSockets - 1) / p.NumSockets
	if perSocket < 1 {
		perSocket = 1
	}
	socket := tid / perSocket
	if socket >= p.NumSockets {
		socket = p.NumSockets - 1
	}
	leader := tid == socket*perSocket
	return WorkerID{TID: tid, Socket: socket, Leader: leader, Sockets: p.NumSockets}
}

// Run starts p.N workers, each identified by its WorkerID. initFn (if
// non-nil) runs once per worker before workerFn; finishFn (if
// non-nil) runs once per worker after workerFn returns, regardless of
// error. The first non-nil error from any initFn/workerFn cancels ctx
// for the remaining workers and is returned once every worker has
// finished, the standard errgroup.WithContext fan-out-and-collect
// idiom.
func (p *Pool) Run(ctx context.Context, initFn, workerFn, finishFn func(context.Context, WorkerID) error) error {
	g, gctx := errgroup.WithContext(ctx)
	var sem *semaphore.Weighted
	if p.MaxWorkers > 0 && p.MaxWorkers < p.N {
		sem = semaphore.NewWeighted(int64(p.MaxWorkers))
	}
	for tid := 0; tid < p.N; tid++ {
		id := p.workerID(tid)
		g.Go(func() error {
			if sem != nil {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
			}
			if finishFn != nil {
				defer func() { _ = finishFn(gctx, id) }()
			}
			if initFn != nil {
				if err := initFn(gctx, id); err != nil {
					return err
				}
			}
			return workerFn(gctx, id)
		})
	}
	return g.Wait()
}

// Barrier is a cyclic barrier sized to N parties, built directly on
// two wg.WaitGroups: an "arrive" group every party counts down before
// waiting on, and a "depart" group every party counts down after the
// arrive release, before the barrier resets for the next phase. The
// depart phase exists because a bare, single WaitGroup can't safely be
// reused across phases — a fast party could loop back into the next
// phase and call Add again while a slow party is still reading the
// previous phase's C() channel. Waiting for every party to also
// depart before resetting rules out that race.
type Barrier struct {
	n int

	mu     sync.Mutex
	arrive *wg.WaitGroup
	depart *wg.WaitGroup
}

// NewBarrier returns a cyclic barrier for n parties.
func NewBarrier(n int) *Barrier {
	b := &Barrier{n: n}
	b.reset()
	return b
}

func (b *Barrier) reset() {
	b.arrive = new(wg.WaitGroup)
	b.arrive.Add(b.n)
	b.depart = new(wg.WaitGroup)
	b.depart.Add(b.n)
}

// Wait blocks until n calls to Wait have been made since the barrier
// was created or last released, then returns at every caller
// simultaneously.
func (b *Barrier) Wait() {
	b.mu.Lock()
	arrive, depart := b.arrive, b.depart
	b.mu.Unlock()

	arrive.Done()
	<-arrive.C()

	depart.Done()
	<-depart.C()

	b.mu.Lock()
	if b.arrive == arrive {
		b.reset()
	}
	b.mu.Unlock()
}

// N returns the number of parties this barrier waits for.
func (b *Barrier) N() int {
	return b.n
}
