package worklist

// Stealing gives every worker a private inner worklist; a worker whose
// own worklist is empty falls back to popping from the rotating
// "next" worker's queue rather than a shared global structure (spec
// §4.1's "Stealing local"), matching the runner package's work-
// stealing pattern this module's teacher uses for cluster-level
// stealing, adapted here to worklist-level stealing between workers
// in the same process.
type Stealing[T any] struct {
	newLocl func() Worklist[T]
}

// NewStealing returns a Stealing worklist whose per-worker inner
// worklists are constructed by newLocal.
func NewStealing[T any](newLocal func() Worklist[T]) *Stealing[T] {
	return &Stealing[T]{newLocl: newLocal}
}

func (s *Stealing[T]) New(n int) []Worklist[T] {
	workers := make([]*stealingWorker[T], n)
	all := make([]Worklist[T], n)
	for i := range workers {
		workers[i] = &stealingWorker[T]{id: i, inner: s.newLocl()}
		all[i] = workers[i]
	}
	for _, w := range workers {
		w.peers = all
	}
	out := make([]Worklist[T], n)
	for i, w := range workers {
		out[i] = w
	}
	return out
}

type stealingWorker[T any] struct {
	id    int
	inner Worklist[T]
	peers []Worklist[T]
	next  int
}

func (w *stealingWorker[T]) Push(v T)           { w.inner.Push(v) }
func (w *stealingWorker[T]) PushMany(vs []T)    { w.inner.PushMany(vs) }
func (w *stealingWorker[T]) PushInitial(vs []T) { w.inner.PushInitial(vs) }
func (w *stealingWorker[T]) Aborted(v T)        { w.inner.Push(v) }

func (w *stealingWorker[T]) Pop() (v T, ok bool) {
	if v, ok := w.inner.Pop(); ok {
		return v, true
	}
	n := len(w.peers)
	if n <= 1 {
		return v, false
	}
	for i := 0; i < n-1; i++ {
		w.next = (w.next + 1) % n
		if w.next == w.id {
			w.next = (w.next + 1) % n
		}
		if v, ok := w.peers[w.next].(*stealingWorker[T]).inner.Pop(); ok {
			return v, true
		}
	}
	return v, false
}

// Empty only reports on this worker's own inner worklist: a global
// "is every peer empty" check is the termination detector's job, not
// a single worker's advisory Empty probe.
func (w *stealingWorker[T]) Empty() bool {
	return w.inner.Empty()
}
