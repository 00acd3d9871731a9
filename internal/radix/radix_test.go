package radix

import (
	"sort"
	"testing"
)

func TestSetGetHas(t *testing.T) {
	tr := New[int]()
	words := map[string]int{"": 0, "a": 1, "ab": 2, "abc": 3, "abd": 4, "b": 5}
	for w, v := range words {
		tr.Set(w, v)
	}
	for w, want := range words {
		got, ok := tr.Get(w)
		if !ok || got != want {
			t.Errorf("Get(%q) = %v, %v; want %v, true", w, got, ok, want)
		}
	}
	if tr.Has("xyz") {
		t.Error("Has(xyz) = true, want false")
	}
	if _, ok := tr.Get("ac"); ok {
		t.Error("Get(ac) found a value that was never set")
	}
}

func TestSetOverwrite(t *testing.T) {
	tr := New[int]()
	tr.Set("term", 1)
	tr.Set("term", 2)
	got, ok := tr.Get("term")
	if !ok || got != 2 {
		t.Fatalf("Get(term) = %v, %v; want 2, true", got, ok)
	}
}

func TestFetch(t *testing.T) {
	tr := New[[]int]()
	calls := 0
	factory := func() []int {
		calls++
		return []int{}
	}
	v1 := tr.Fetch("k", factory)
	v1 = append(v1, 1)
	tr.Set("k", v1)
	v2 := tr.Fetch("k", factory)
	if len(v2) != 1 || v2[0] != 1 {
		t.Fatalf("Fetch did not return installed value: %v", v2)
	}
	if calls != 1 {
		t.Fatalf("factory called %d times, want 1", calls)
	}
}

func TestDeleteMergesSplitterNodes(t *testing.T) {
	tr := New[int]()
	tr.Set("motor", 1)
	tr.Set("motorcycle", 2)
	tr.Set("motoring", 3)

	if _, ok := tr.Delete("motorcycle"); !ok {
		t.Fatal("Delete(motorcycle) returned false")
	}
	if tr.Has("motorcycle") {
		t.Fatal("motorcycle still present after delete")
	}
	if !tr.Has("motor") || !tr.Has("motoring") {
		t.Fatal("sibling keys lost after delete")
	}
	// No non-value node should be left with exactly one child.
	assertNoDanglingSplitters(t, tr.root, "")
}

func TestDeleteAbsentKey(t *testing.T) {
	tr := New[int]()
	tr.Set("a", 1)
	if _, ok := tr.Delete("zzz"); ok {
		t.Fatal("Delete of absent key reported success")
	}
	if _, ok := tr.Delete("ab"); ok {
		t.Fatal("Delete of a key that is a prefix-extension reported success")
	}
}

func TestWalkOrder(t *testing.T) {
	tr := New[int]()
	keys := []string{"banana", "band", "bandana", "can", "cannot", "a"}
	for i, k := range keys {
		tr.Set(k, i)
	}
	var got []string
	tr.Walk(func(k string, _ int) bool {
		got = append(got, k)
		return true
	})
	want := append([]string{}, keys...)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("Walk yielded %d keys, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Walk order mismatch at %d: got %q want %q (%v)", i, got[i], want[i], got)
		}
	}
}

func TestAtPrefix(t *testing.T) {
	tr := New[int]()
	for i, k := range []string{"moby", "moby-dick", "motor", "motorcycle", "motoring", "zebra"} {
		tr.Set(k, i)
	}
	got := keysOf(tr.AtPrefix("moto"))
	want := []string{"motor", "motorcycle", "motoring"}
	if !equalSets(got, want) {
		t.Fatalf("AtPrefix(moto) = %v, want %v", got, want)
	}
	if len(tr.AtPrefix("qq")) != 0 {
		t.Fatal("AtPrefix on unmatched prefix returned results")
	}
	all := keysOf(tr.AtPrefix(""))
	if len(all) != 6 {
		t.Fatalf("AtPrefix(\"\") returned %d keys, want 6", len(all))
	}
}

func TestAtPrefixExactKeyIncluded(t *testing.T) {
	tr := New[int]()
	tr.Set("cat", 1)
	tr.Set("catalog", 2)
	got := keysOf(tr.AtPrefix("cat"))
	if !equalSets(got, []string{"cat", "catalog"}) {
		t.Fatalf("AtPrefix(cat) = %v, want [cat catalog]", got)
	}
}

func keysOf[V any](kvs []KV[V]) []string {
	out := make([]string, len(kvs))
	for i, kv := range kvs {
		out[i] = kv.Key
	}
	return out
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func assertNoDanglingSplitters[V any](t *testing.T, n *node[V], path string) {
	t.Helper()
	if n != nil && !n.hasValue && len(n.edges) == 1 && path != "" {
		t.Errorf("node at %q has exactly one child and no value", path)
	}
	for _, e := range n.edges {
		assertNoDanglingSplitters(t, e.node, path+e.label)
	}
}
