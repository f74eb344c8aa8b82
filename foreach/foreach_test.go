package foreach_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/grailbio/galoisrun/errors"
	"github.com/grailbio/galoisrun/foreach"
	"github.com/grailbio/galoisrun/runconfig"
	"github.com/grailbio/galoisrun/worklist"
)

func fifoOpts[T any](name string, n int) runconfig.Options[T] {
	o := runconfig.Default[T](name, n)
	o.Worklist = worklist.Shared[T]{W: worklist.NewFIFO[T]()}
	return o
}

func TestCountingSumsAcrossWorkers(t *testing.T) {
	items := make([]int, 10000)
	for i := range items {
		items[i] = i + 1
	}
	opts := runconfig.Default[int]("counting", 4)
	opts.NoConflicts = true
	opts.CanPush = false
	opts.CanBreak = false

	data, err := foreach.ForEach(context.Background(), items, func(v int, uctx *foreach.UserContext[int]) error {
		return nil
	}, opts)
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if data.Overall.Committed != 10000 {
		t.Fatalf("Overall.Committed = %d, want 10000", data.Overall.Committed)
	}
	var sum int64
	for _, w := range data.Workers {
		sum += w.Committed
	}
	if sum != 10000 {
		t.Fatalf("sum of per-worker Committed = %d, want 10000", sum)
	}
}

// TestFanOutMatchesFibonacciCounts seeds a single item and has every
// value below K push its two successors, so the number of times value
// v is processed follows the Fibonacci recurrence count[v] =
// count[v-1] + count[v-2] with count[0] = 1, for every v up to K;
// K itself pushes nothing, so count[K+1] = count[K-1]. Summed over
// every value the run ever touches, this gives an exact expected
// commit total.
func TestFanOutMatchesFibonacciCounts(t *testing.T) {
	const k = 20
	opts := runconfig.Default[int]("fanout", 4)
	opts.NoConflicts = true

	data, err := foreach.ForEach(context.Background(), []int{0}, func(v int, uctx *foreach.UserContext[int]) error {
		if v < k {
			uctx.Push(v + 1)
			uctx.Push(v + 2)
		}
		return nil
	}, opts)
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	const want = 35421
	if data.Overall.Committed != want {
		t.Fatalf("Overall.Committed = %d, want %d", data.Overall.Committed, want)
	}
}

// TestSyntheticConflictFirstWinsSecondRetries forces a deterministic
// conflict: worker 0 claims a shared resource and holds it until
// worker 1 has observed the conflict at least once, then releases it
// so worker 1's retry succeeds.
func TestSyntheticConflictFirstWinsSecondRetries(t *testing.T) {
	var claimed int32
	var bAttempts int32
	started := make(chan struct{})
	conflictSeen := make(chan struct{})
	proceed := make(chan struct{})
	aReleased := make(chan struct{})

	go func() {
		<-conflictSeen
		close(proceed)
	}()

	opts := runconfig.Default[int]("conflict", 2)

	op := func(v int, uctx *foreach.UserContext[int]) error {
		switch v {
		case 0:
			if !atomic.CompareAndSwapInt32(&claimed, 0, 1) {
				t.Errorf("worker for item 0 could not claim an unheld resource")
			}
			close(started)
			<-proceed
			atomic.StoreInt32(&claimed, 0)
			close(aReleased)
			return nil
		case 1:
			<-started
			attempt := atomic.AddInt32(&bAttempts, 1)
			if attempt == 1 {
				if atomic.CompareAndSwapInt32(&claimed, 0, 1) {
					t.Errorf("first attempt on item 1 unexpectedly claimed a held resource")
					atomic.StoreInt32(&claimed, 0)
					return nil
				}
				close(conflictSeen)
				return errors.E(errors.Conflict)
			}
			<-aReleased
			if !atomic.CompareAndSwapInt32(&claimed, 0, 1) {
				t.Errorf("retry on item 1 could not claim a released resource")
			}
			atomic.StoreInt32(&claimed, 0)
			return nil
		default:
			t.Fatalf("unexpected item %d", v)
			return nil
		}
	}

	data, err := foreach.ForEach(context.Background(), []int{0, 1}, op, opts)
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if data.Overall.Committed != 2 {
		t.Fatalf("Overall.Committed = %d, want 2", data.Overall.Committed)
	}
	if data.Overall.Conflicts != 1 {
		t.Fatalf("Overall.Conflicts = %d, want 1", data.Overall.Conflicts)
	}
}

func TestBreakStopsBeforeLaterItems(t *testing.T) {
	items := make([]int, 1000)
	for i := range items {
		items[i] = i + 1
	}
	opts := fifoOpts[int]("break", 1)

	var mu sync.Mutex
	var seen []int
	_, err := foreach.ForEach(context.Background(), items, func(v int, uctx *foreach.UserContext[int]) error {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
		if v == 42 {
			uctx.BreakLoop()
		}
		return nil
	}, opts)
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(seen) != 42 {
		t.Fatalf("processed %d items, want exactly 42 (break at 42, FIFO order)", len(seen))
	}
	if seen[len(seen)-1] != 42 {
		t.Fatalf("last item processed = %d, want 42", seen[len(seen)-1])
	}
}

func TestEmptyInputCommitsNothing(t *testing.T) {
	opts := runconfig.Default[int]("empty", 4)
	data, err := foreach.ForEach(context.Background(), nil, func(v int, uctx *foreach.UserContext[int]) error {
		t.Fatal("operator ran on an empty input")
		return nil
	}, opts)
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if data.Overall.Committed != 0 {
		t.Fatalf("Overall.Committed = %d, want 0", data.Overall.Committed)
	}
}

func TestSingleWorkerActsLikeSequentialLoop(t *testing.T) {
	items := []int{10, 20, 30, 40}
	opts := fifoOpts[int]("sequential", 1)
	opts.NoConflicts = true

	var got []int
	_, err := foreach.ForEach(context.Background(), items, func(v int, uctx *foreach.UserContext[int]) error {
		got = append(got, v)
		return nil
	}, opts)
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(got) != len(items) {
		t.Fatalf("processed %d items, want %d", len(got), len(items))
	}
	for i, v := range items {
		if got[i] != v {
			t.Fatalf("got[%d] = %d, want %d (single-worker FIFO run must be in seed order)", i, got[i], v)
		}
	}
}

func TestBreakOnFirstIteration(t *testing.T) {
	opts := fifoOpts[int]("break-first", 1)
	var count int32
	data, err := foreach.ForEach(context.Background(), []int{5, 6, 7}, func(v int, uctx *foreach.UserContext[int]) error {
		atomic.AddInt32(&count, 1)
		uctx.BreakLoop()
		return nil
	}, opts)
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if count != 1 {
		t.Fatalf("operator ran %d times, want 1", count)
	}
	if data.Overall.Committed != 1 {
		t.Fatalf("Overall.Committed = %d, want 1", data.Overall.Committed)
	}
}
