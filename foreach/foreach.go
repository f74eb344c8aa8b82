// Package foreach implements the main executor: pop an item, run the
// user operator, commit on success or roll back and hand the item to
// the abort handler on conflict, drain the abort queue, and detect
// termination across every worker. This is the component that ties
// together worklist, abort, conflict, term, and runtime.
package foreach

import (
	"context"
	stdruntime "runtime"
	"sync/atomic"

	"github.com/grailbio/galoisrun/abort"
	"github.com/grailbio/galoisrun/conflict"
	"github.com/grailbio/galoisrun/errors"
	"github.com/grailbio/galoisrun/log"
	"github.com/grailbio/galoisrun/pagepool"
	"github.com/grailbio/galoisrun/runconfig"
	galrun "github.com/grailbio/galoisrun/runtime"
	"github.com/grailbio/galoisrun/stats"
	"github.com/grailbio/galoisrun/term"
	"github.com/grailbio/galoisrun/worklist"
)

// limit is the leader/break-capable batch cap: at most this many
// iterations run from the main worklist before the abort queue is
// drained, so a leader worker occasionally checking in with
// termination detection can't be starved by an ever-refilling
// worklist.
const limit = 64

// Operator is the user's per-item computation. A Conflict-kind error
// (see errors.Conflict) signals a speculative conflict and is caught
// entirely inside ForEach — it is the portable stand-in for the
// original's non-local control transfer out of arbitrarily deep user
// code (unwinding or a non-local jump in the source runtime). Any
// other error escapes ForEach and cancels every worker. On the
// abort-free path (NoConflicts set, or a single worker) there is no
// abort handler, and a Conflict-kind error escapes like any other.
type Operator[T any] func(v T, uctx *UserContext[T]) error

// UserContext is handed to the operator during one iteration. It
// exposes the operator's only sanctioned side channels: pushing new
// work, requesting per-iteration scratch space, and setting the break
// flag.
type UserContext[T any] struct {
	canPush  bool
	direct   worklist.Worklist[T] // set when conflicts are impossible: pushes skip the buffer entirely
	buffered []T

	needsPia bool
	alloc    pagepool.Allocator
	tid      int
	arena    []byte
	arenaOff int

	brk       bool
	firstPass bool
}

// Push enqueues v. If conflicts are disabled for this loop, v is
// pushed straight into the worklist; otherwise it is buffered and
// only becomes visible on CommitIteration, so an aborted iteration
// never leaks a partial push. Push does nothing when the loop was not
// configured with CanPush.
func (u *UserContext[T]) Push(v T) {
	if !u.canPush {
		return
	}
	if u.direct != nil {
		u.direct.Push(v)
		return
	}
	u.buffered = append(u.buffered, v)
}

// BreakLoop sets the break flag: the executor exits after the current
// iteration commits, without failing the run.
func (u *UserContext[T]) BreakLoop() {
	u.brk = true
}

// IsFirstPass reports whether this is the worker's first trip through
// the main worklist in this ForEach call, before any barrier
// re-initialization — an optional hint some operators use to skip
// idempotent setup work on subsequent passes.
func (u *UserContext[T]) IsFirstPass() bool {
	return u.firstPass
}

// PerIterAlloc returns an n-byte slice from the per-iteration bump
// arena, valid until the current iteration commits or aborts. It
// panics if the loop was not configured with NeedsPerIterAlloc.
func (u *UserContext[T]) PerIterAlloc(n int) []byte {
	if !u.needsPia {
		panic("foreach: PerIterAlloc called but NeedsPerIterAlloc was not set")
	}
	if u.arenaOff+n > len(u.arena) {
		size := n
		if size < pagepool.PageSize {
			size = pagepool.PageSize
		}
		u.arena = u.alloc.LargeAlloc(size, false)
		u.arenaOff = 0
	}
	b := u.arena[u.arenaOff : u.arenaOff+n]
	u.arenaOff += n
	return b
}

func (u *UserContext[T]) resetForIteration() {
	u.buffered = u.buffered[:0]
	u.arenaOff = 0
	u.brk = false
}

// worker holds one goroutine's private state across the whole
// ForEach call.
type worker[T any] struct {
	tid    int
	wl     worklist.Worklist[T]
	cctx   *conflict.Context
	uctx   *UserContext[T]
	abortH *abort.Handler[T]
	st     *stats.Stats
	op     Operator[T]
	log    *log.Logger
}

// runIteration runs op once on v, bracketed by the conflict context
// when one is present. It reports whether the iteration committed; a
// false return with a nil error means the iteration conflicted and v
// should be handed to the abort handler. A non-nil error is a real
// (OOM/usage/other) failure that must escape ForEach.
func (w *worker[T]) runIteration(v T) (committed, brk bool, err error) {
	if w.cctx != nil {
		w.cctx.StartIteration()
	}
	w.uctx.resetForIteration()
	opErr := w.op(v, w.uctx)
	if opErr != nil {
		if errors.Is(errors.Conflict, opErr) {
			if w.cctx != nil {
				w.cctx.CancelIteration()
			}
			w.st.ConflictIteration(w.tid)
			w.log.Debug("conflict")
			return false, false, nil
		}
		if w.cctx != nil {
			w.cctx.CancelIteration()
		}
		w.log.Error("iteration failed: ", opErr)
		return false, false, opErr
	}
	if w.cctx != nil {
		w.cctx.CommitIteration()
	}
	if n := len(w.uctx.buffered); n > 0 {
		w.wl.PushMany(w.uctx.buffered)
		w.st.Pushed(w.tid, int64(n))
	}
	w.st.CommitIteration(w.tid)
	w.log.Debug("committed")
	return true, w.uctx.brk, nil
}

// runSimple is the abort-free fast path: pop until empty, run,
// commit. There is no conflict context, no abort handler, and Push
// flows directly into the worklist.
func (w *worker[T]) runSimple() (didWork, brk bool, err error) {
	for {
		v, ok := w.wl.Pop()
		if !ok {
			return didWork, brk, nil
		}
		didWork = true
		w.uctx.resetForIteration()
		if opErr := w.op(v, w.uctx); opErr != nil {
			w.log.Error("iteration failed: ", opErr)
			return didWork, brk, opErr
		}
		w.st.CommitIteration(w.tid)
		w.log.Debug("committed")
		if w.uctx.brk {
			return didWork, true, nil
		}
	}
}

// runGeneric runs at most `cap` iterations from the main worklist
// (unbounded when cap < 0), then fully drains the abort handler's
// local queue the same way.
func (w *worker[T]) runGeneric(cap int) (didWork, brk bool, err error) {
	count := 0
	for cap < 0 || count < cap {
		v, ok := w.wl.Pop()
		if !ok {
			break
		}
		count++
		didWork = true
		committed, itBrk, itErr := w.runIteration(v)
		if itErr != nil {
			return didWork, brk, itErr
		}
		if !committed {
			w.abortH.Push(w.tid, v)
		}
		if itBrk {
			return didWork, true, nil
		}
	}
	local := w.abortH.Local(w.tid)
	for {
		rec, ok := local.Pop()
		if !ok {
			break
		}
		didWork = true
		committed, itBrk, itErr := w.runIteration(rec.Item)
		if itErr != nil {
			return didWork, brk, itErr
		}
		if !committed {
			w.abortH.PushRecord(w.tid, rec)
		}
		if itBrk {
			return didWork, true, nil
		}
	}
	return didWork, brk, nil
}

// ForEach seeds items across NumWorkers workers and runs op to
// commit on every one exactly once, tolerating speculative conflicts
// when opts.NoConflicts is false. It returns once every worker has
// observed global quiescence (or the break flag) and the worklist is
// empty, along with the run's aggregated statistics.
func ForEach[T any](ctx context.Context, items []T, op Operator[T], opts runconfig.Options[T]) (stats.Data, error) {
	opts = runconfig.Resolve(opts)
	n := opts.NumWorkers

	views := opts.Worklist.New(n)
	pool := galrun.NewPool(n, opts.NumSockets, opts.MaxWorkers)
	barrier := galrun.NewBarrier(n)
	detector := term.New(n)
	st := stats.New(opts.LoopName, n)

	couldAbort := !opts.NoConflicts && n > 1
	var abortH *abort.Handler[T]
	if couldAbort {
		abortH = abort.New[T](n, opts.NumSockets, -1, func() worklist.Worklist[abort.Record[T]] {
			return worklist.NewFIFO[abort.Record[T]]()
		})
	}

	var sharedBrk int32

	workerFn := func(gctx context.Context, wid galrun.WorkerID) error {
		tid := wid.TID
		wl := views[tid]
		lo, hi := partition(len(items), n, tid)
		wl.PushInitial(items[lo:hi])
		detector.InitializeThread(tid)

		var cctx *conflict.Context
		if couldAbort {
			cctx = conflict.NewContext()
		}
		uctx := &UserContext[T]{
			canPush:   opts.CanPush,
			needsPia:  opts.NeedsPerIterAlloc,
			alloc:     opts.Allocator,
			tid:       tid,
			firstPass: true,
		}
		if !couldAbort {
			uctx.direct = wl
		}

		w := &worker[T]{
			tid:    tid,
			wl:     wl,
			cctx:   cctx,
			uctx:   uctx,
			abortH: abortH,
			st:     st,
			op:     op,
			log:    opts.Log.Named(opts.LoopName, tid),
		}

		var runBatch func() (bool, bool, error)
		if !couldAbort {
			runBatch = w.runSimple
		} else {
			cap := -1
			if wid.Leader || opts.CanBreak {
				cap = limit
			}
			runBatch = func() (bool, bool, error) { return w.runGeneric(cap) }
		}

		for {
			didWork, brk, err := runBatch()
			if err != nil {
				return err
			}
			if brk {
				atomic.StoreInt32(&sharedBrk, 1)
			}
			localBrk := atomic.LoadInt32(&sharedBrk) != 0
			detector.SignalWorked(tid, didWork)
			stdruntime.Gosched()

			uctx.firstPass = false

			if detector.Working() && !localBrk {
				continue
			}
			if wl.Empty() || localBrk {
				return nil
			}
			detector.InitializeThread(tid)
			barrier.Wait()
		}
	}

	err := pool.Run(ctx, nil, workerFn, nil)

	data := st.Copy()
	if opts.Registry != nil {
		opts.Registry.Accumulate(data)
	}
	st.Publish()
	return data, err
}

// partition splits [0,total) into n contiguous, near-equal slices and
// returns worker tid's [lo, hi) bounds.
func partition(total, n, tid int) (lo, hi int) {
	if n <= 0 {
		return 0, total
	}
	base := total / n
	rem := total % n
	lo = tid*base + min(tid, rem)
	hi = lo + base
	if tid < rem {
		hi++
	}
	return lo, hi
}
