package worklist

import "testing"

// TestOBIMSingleWorkerOrdering checks that seeding indices
// [5,3,8,1,4] into a single-worker OBIM pops them back in ascending
// order, since a lone worker's cursor always finds the lowest
// occupied bucket first.
func TestOBIMSingleWorkerOrdering(t *testing.T) {
	obim := NewOBIM[int](16, func(v int) uint { return uint(v) })
	workers := obim.New(1)
	w := workers[0]
	w.PushInitial([]int{5, 3, 8, 1, 4})
	for _, want := range []int{1, 3, 4, 5, 8} {
		got, ok := w.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = %v, %v; want %v, true", got, ok, want)
		}
	}
	if _, ok := w.Pop(); ok {
		t.Fatal("Pop() on drained OBIM returned ok=true")
	}
}

func TestOBIMClampsOutOfRangeIndex(t *testing.T) {
	obim := NewOBIM[int](4, func(v int) uint { return uint(v) })
	workers := obim.New(1)
	w := workers[0]
	w.Push(100)
	v, ok := w.Pop()
	if !ok || v != 100 {
		t.Fatalf("Pop() = %v, %v; want 100, true", v, ok)
	}
}

func TestOBIMCursorHoldsOnFullMiss(t *testing.T) {
	obim := NewOBIM[int](8, func(v int) uint { return uint(v) })
	workers := obim.New(1)
	w := workers[0].(*obimWorker[int])
	w.cursor = 3
	if _, ok := w.Pop(); ok {
		t.Fatal("expected empty OBIM to miss")
	}
	if w.cursor != 3 {
		t.Fatalf("cursor = %d after full miss; want unchanged 3", w.cursor)
	}
}

func TestOBIMEmptyAcrossWorkers(t *testing.T) {
	obim := NewOBIM[int](8, func(v int) uint { return uint(v) })
	workers := obim.New(2)
	if !workers[0].Empty() || !workers[1].Empty() {
		t.Fatal("fresh OBIM reports non-empty")
	}
	workers[0].Push(5)
	if workers[1].Empty() {
		t.Fatal("worker 1 did not see worker 0's push via shared buckets")
	}
}

func TestApproxOBIMRoutesByModulo(t *testing.T) {
	obim := NewApproxOBIM[int](func(v int) uint { return uint(v) })
	workers := obim.New(1)
	w := workers[0]
	w.Push(0)
	w.Push(approxOBIMBuckets)
	seen := 0
	for {
		if _, ok := w.Pop(); !ok {
			break
		}
		seen++
	}
	if seen != 2 {
		t.Fatalf("popped %d items, want 2", seen)
	}
}

func TestApproxOBIMNoOrderingGuaranteeButNoLoss(t *testing.T) {
	obim := NewApproxOBIM[int](func(v int) uint { return uint(v) })
	workers := obim.New(1)
	w := workers[0]
	items := []int{5, 3, 8, 1, 4}
	w.PushInitial(items)
	popped := map[int]bool{}
	for i := 0; i < len(items); i++ {
		v, ok := w.Pop()
		if !ok {
			t.Fatalf("Pop() failed on iteration %d", i)
		}
		popped[v] = true
	}
	for _, v := range items {
		if !popped[v] {
			t.Fatalf("item %d never popped", v)
		}
	}
}

func TestLogOBIMBucketsByBitLength(t *testing.T) {
	obim := NewLogOBIM[int](func(v int) uint { return uint(v) })
	workers := obim.New(1)
	w := workers[0]
	w.PushInitial([]int{1, 2, 3, 100, 1000})
	seen := map[int]bool{}
	for i := 0; i < 5; i++ {
		v, ok := w.Pop()
		if !ok {
			t.Fatalf("Pop() failed on iteration %d", i)
		}
		seen[v] = true
	}
	for _, v := range []int{1, 2, 3, 100, 1000} {
		if !seen[v] {
			t.Fatalf("item %d never popped", v)
		}
	}
}

// TestLocalFilterRoutesByCurrentLevel exercises the local/global
// routing decision itself: a push at or below the worker's current
// level must stay off the shared OBIM entirely, while a push above it
// must land there, and a local hit must never disturb the level a
// later global pop would otherwise pick up.
func TestLocalFilterRoutesByCurrentLevel(t *testing.T) {
	lf := NewLocalFilter[int](8, func(v int) uint { return uint(v) })
	workers := lf.New(2)
	w := workers[0].(*localFilterWorker[int])
	other := workers[1]

	// current starts at 0, so a push of index 0 is retained locally.
	w.Push(0)
	if !w.global.Empty() {
		t.Fatal("index-0 push with current=0 reached the shared OBIM")
	}
	if !other.Empty() {
		t.Fatal("worker 1 sees worker 0's local-tier state through the shared OBIM")
	}

	// a higher-index push with current still 0 must go global, visible
	// to every worker sharing the OBIM.
	w.Push(5)
	if other.Empty() {
		t.Fatal("index-5 push with current=0 never reached the shared OBIM")
	}

	if v, ok := w.Pop(); !ok || v != 0 {
		t.Fatalf("Pop() = %v, %v; want 0, true (local tier drains first)", v, ok)
	}

	if v, ok := w.Pop(); !ok || v != 5 {
		t.Fatalf("Pop() = %v, %v; want 5, true (falls through to shared OBIM)", v, ok)
	}
	if w.current != 5 {
		t.Fatalf("current = %d after global pop of index 5, want 5", w.current)
	}

	// current is now 5, so a push of index 3 stays local again.
	w.Push(3)
	if !w.global.Empty() {
		t.Fatal("index-3 push with current=5 reached the shared OBIM")
	}
	if v, ok := w.Pop(); !ok || v != 3 {
		t.Fatalf("Pop() = %v, %v; want 3, true", v, ok)
	}

	if _, ok := w.Pop(); ok {
		t.Fatal("Pop() on drained LocalFilter returned ok=true")
	}
}
