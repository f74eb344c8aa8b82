package worklist

import "testing"

func TestPriorityOrder(t *testing.T) {
	w := NewPriority[int](func(a, b int) bool { return a < b })
	w.PushInitial([]int{5, 3, 8, 1, 4})
	for _, want := range []int{1, 3, 4, 5, 8} {
		got, ok := w.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = %v, %v; want %v, true", got, ok, want)
		}
	}
	if _, ok := w.Pop(); ok {
		t.Fatal("Pop() on drained Priority returned ok=true")
	}
}

func TestPriorityPushAfterPop(t *testing.T) {
	w := NewPriority[int](func(a, b int) bool { return a < b })
	w.Push(10)
	w.Push(2)
	if v, _ := w.Pop(); v != 2 {
		t.Fatalf("Pop() = %v, want 2", v)
	}
	w.Push(1)
	if v, _ := w.Pop(); v != 1 {
		t.Fatalf("Pop() = %v, want 1", v)
	}
	if v, _ := w.Pop(); v != 10 {
		t.Fatalf("Pop() = %v, want 10", v)
	}
}

func TestPriorityAborted(t *testing.T) {
	w := NewPriority[int](func(a, b int) bool { return a < b })
	w.Aborted(7)
	if w.Empty() {
		t.Fatal("Aborted did not enqueue")
	}
	v, ok := w.Pop()
	if !ok || v != 7 {
		t.Fatalf("Pop() = %v, %v; want 7, true", v, ok)
	}
}
