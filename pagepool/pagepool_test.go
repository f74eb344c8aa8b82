package pagepool

import "testing"

func TestAllocFreeReuse(t *testing.T) {
	p := NewPool(2, 4)
	buf := p.PageAlloc(0)
	if len(buf) != PageSize {
		t.Fatalf("got %d bytes, want %d", len(buf), PageSize)
	}
	p.PageFree(buf)
	buf2 := p.PageAlloc(0)
	if &buf2[0] != &buf[0] {
		t.Errorf("PageAlloc after PageFree should reuse the freed page")
	}
}

func TestFreeReturnsToOriginalOwner(t *testing.T) {
	p := NewPool(2, 4)
	buf := p.PageAlloc(0)
	// A different worker frees the page it didn't allocate.
	p.PageFree(buf)
	// Worker 1's free list should remain empty; the page went back to
	// worker 0 regardless of who called PageFree.
	if got := p.PageAlloc(1); &got[0] == &buf[0] {
		t.Errorf("worker 1 should not have received worker 0's freed page")
	}
}

func TestLargeAllocPrefault(t *testing.T) {
	p := NewPool(1, 4)
	buf := p.LargeAlloc(3*PageSize, true)
	if len(buf) != 3*PageSize {
		t.Fatalf("got %d bytes, want %d", len(buf), 3*PageSize)
	}
	p.LargeFree(buf, len(buf))
}

func TestPagePrealloc(t *testing.T) {
	p := NewPool(2, 8)
	p.PagePrealloc(4)
	seen := make(map[*byte]bool)
	for i := 0; i < 4; i++ {
		buf := p.PageAlloc(0)
		seen[&buf[0]] = true
	}
	if len(seen) != 4 {
		t.Errorf("expected 4 distinct preallocated pages to be handed out, got %d", len(seen))
	}
}
