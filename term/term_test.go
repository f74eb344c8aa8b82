package term

import "testing"

func initAll(d *Detector, n int) {
	for i := 0; i < n; i++ {
		d.InitializeThread(i)
	}
}

// drainToQuiescence drives SignalWorked(tid, false) for
// every worker, round-robin, until Working reports false or a
// generous step budget is exhausted (the token needs at most n
// SignalWorked calls per lap, two laps to confirm quiescence).
func drainToQuiescence(t *testing.T, d *Detector, n int) {
	t.Helper()
	for step := 0; step < 4*n+4; step++ {
		if !d.Working() {
			return
		}
		d.SignalWorked(step%n, false)
	}
	t.Fatalf("detector did not converge to quiescent after draining %d workers", n)
}

func TestSingleWorkerQuiescesImmediately(t *testing.T) {
	d := New(1)
	initAll(d, 1)
	if !d.Working() {
		t.Fatal("Working() = false before any signal")
	}
	d.SignalWorked(0, false)
	if d.Working() {
		t.Fatal("Working() = true after sole worker signaled idle")
	}
}

func TestMultiWorkerConvergesWhenAllIdle(t *testing.T) {
	const n = 5
	d := New(n)
	initAll(d, n)
	drainToQuiescence(t, d, n)
}

func TestWorkResetsQuiescence(t *testing.T) {
	const n = 3
	d := New(n)
	initAll(d, n)
	drainToQuiescence(t, d, n)
	d.SignalWorked(1, true)
	if !d.Working() {
		t.Fatal("Working() = false immediately after a worker reported work")
	}
}

func TestReinitializeClearsStaleQuiescence(t *testing.T) {
	const n = 4
	d := New(n)
	initAll(d, n)
	drainToQuiescence(t, d, n)
	initAll(d, n)
	if !d.Working() {
		t.Fatal("Working() = false immediately after re-initialization")
	}
	drainToQuiescence(t, d, n)
}

func TestBusyWorkerBlocksTokenAdvancement(t *testing.T) {
	const n = 3
	d := New(n)
	initAll(d, n)
	// worker 0 signals idle, but worker 1 stays busy: the token can't
	// pass worker 1, so the system must not be declared quiescent.
	d.SignalWorked(0, false)
	d.SignalWorked(2, false)
	if !d.Working() {
		t.Fatal("Working() = false while worker 1 has never signaled idle")
	}
}
