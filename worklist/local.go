package worklist

// Local wraps a shared global worklist with a per-worker inner
// worklist: Push enqueues locally, Aborted routes to the global
// worklist, and Pop drains local first, then global.
type Local[T any] struct {
	global  Worklist[T]
	newLocl func() Worklist[T]
}

// NewLocal returns a Local worklist backed by global for cross-worker
// visibility and newLocal for each worker's private inner worklist
// (typically worklist.NewFIFO[T] or worklist.NewLIFO[T]).
func NewLocal[T any](global Worklist[T], newLocal func() Worklist[T]) *Local[T] {
	return &Local[T]{global: global, newLocl: newLocal}
}

func (l *Local[T]) New(n int) []Worklist[T] {
	out := make([]Worklist[T], n)
	for i := range out {
		out[i] = &localWorker[T]{inner: l.newLocl(), global: l.global}
	}
	return out
}

type localWorker[T any] struct {
	inner  Worklist[T]
	global Worklist[T]
}

func (w *localWorker[T]) Push(v T)          { w.inner.Push(v) }
func (w *localWorker[T]) PushMany(vs []T)   { w.inner.PushMany(vs) }
func (w *localWorker[T]) PushInitial(vs []T) { w.inner.PushInitial(vs) }
func (w *localWorker[T]) Aborted(v T)        { w.global.Push(v) }

func (w *localWorker[T]) Pop() (v T, ok bool) {
	if v, ok := w.inner.Pop(); ok {
		return v, true
	}
	return w.global.Pop()
}

func (w *localWorker[T]) Empty() bool {
	return w.inner.Empty() && w.global.Empty()
}
