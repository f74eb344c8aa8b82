package worklist

// LocalFilter is the two-tier local/global worklist: each worker owns
// a private FIFO plus a remembered priority level, and only pushes
// whose index is at or below that level (same or higher OBIM
// priority) are retained locally — anything with a higher index is
// routed to a shared OBIM, the same structure a bare OBIM uses, so a
// worker mining a run of same-or-higher-priority work never touches
// shared state at all. A pop drains the local queue first and only
// reaches into the shared OBIM once it is empty, at which point the
// worker's level is set to the index of the item it just received
// from there.
type LocalFilter[T any] struct {
	global  *OBIM[T]
	indexer Indexer[T]
}

// NewLocalFilter returns a LocalFilter worklist with the given number
// of priority buckets and indexing function backing its shared tier.
func NewLocalFilter[T any](size int, indexer Indexer[T]) *LocalFilter[T] {
	return &LocalFilter[T]{global: NewOBIM[T](size, indexer), indexer: indexer}
}

// New returns n per-worker Worklist[T] views: each gets its own local
// FIFO and current-level counter, but all share the same global OBIM.
func (o *LocalFilter[T]) New(n int) []Worklist[T] {
	globalViews := o.global.New(n)
	out := make([]Worklist[T], n)
	for i := range out {
		out[i] = &localFilterWorker[T]{
			lf:     o,
			global: globalViews[i],
			local:  NewFIFO[T](),
		}
	}
	return out
}

// localFilterWorker holds one worker's private queue and its current
// priority level: current starts at the indexer's zero value, so the
// very first push (index 0, the highest OBIM priority) is retained
// locally, and every push thereafter is judged against whatever level
// the worker's most recent global pop left it at.
type localFilterWorker[T any] struct {
	lf      *LocalFilter[T]
	global  Worklist[T]
	local   *FIFO[T]
	current uint
}

func (w *localFilterWorker[T]) Push(v T) {
	if w.lf.indexer(v) <= w.current {
		w.local.Push(v)
		return
	}
	w.global.Push(v)
}

func (w *localFilterWorker[T]) PushMany(vs []T) {
	for _, v := range vs {
		w.Push(v)
	}
}

// PushInitial seeds the shared global tier directly, bypassing the
// local-vs-global routing decision: before any worker has popped,
// every worker's current level is still its zero value, so routing
// through Push would forward everything except index-0 items to the
// global tier anyway, at the cost of a per-item indexer call.
func (w *localFilterWorker[T]) PushInitial(vs []T) {
	w.global.PushInitial(vs)
}

func (w *localFilterWorker[T]) Aborted(v T) { w.Push(v) }

func (w *localFilterWorker[T]) Pop() (v T, ok bool) {
	if v, ok := w.local.Pop(); ok {
		return v, true
	}
	v, ok = w.global.Pop()
	if ok {
		w.current = w.lf.indexer(v)
	}
	return v, ok
}

func (w *localFilterWorker[T]) Empty() bool {
	return w.local.Empty() && w.global.Empty()
}
