package worklist

import "testing"

func TestHashIndexerStaysInRange(t *testing.T) {
	idx := HashIndexer[string](8, func(v string) []byte { return []byte(v) })
	for _, v := range []string{"a", "node-1", "node-2", "", "the quick brown fox"} {
		b := idx(v)
		if b >= 8 {
			t.Fatalf("HashIndexer(%q) = %d, want < 8", v, b)
		}
	}
}

func TestHashIndexerIsDeterministic(t *testing.T) {
	idx := HashIndexer[string](16, func(v string) []byte { return []byte(v) })
	a := idx("same-key")
	b := idx("same-key")
	if a != b {
		t.Fatalf("HashIndexer not deterministic: %d != %d", a, b)
	}
}

func TestHashIndexerDrivesOBIM(t *testing.T) {
	type item struct {
		key string
		n   int
	}
	idx := HashIndexer[item](32, func(v item) []byte { return []byte(v.key) })
	obim := NewOBIM[item](32, idx)
	workers := obim.New(1)
	w := workers[0]
	items := []item{{"a", 1}, {"b", 2}, {"c", 3}}
	w.PushInitial(items)
	seen := make(map[int]bool)
	for i := 0; i < len(items); i++ {
		v, ok := w.Pop()
		if !ok {
			t.Fatalf("Pop() returned ok=false after only %d of %d items", i, len(items))
		}
		seen[v.n] = true
	}
	for _, it := range items {
		if !seen[it.n] {
			t.Fatalf("item %+v never popped", it)
		}
	}
}
