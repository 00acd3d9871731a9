package store

import "testing"

func newTestStore() *Store {
	return New([]string{"title", "body"})
}

func TestAllocateShortIDAndDuplicate(t *testing.T) {
	s := newTestStore()
	id, err := s.AllocateShortID("doc1")
	if err != nil {
		t.Fatalf("AllocateShortID: %v", err)
	}
	if id != 0 {
		t.Fatalf("first id = %d, want 0", id)
	}
	if _, err := s.AllocateShortID("doc1"); err != ErrDuplicateID {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if s.DocumentCount() != 1 {
		t.Fatalf("DocumentCount = %d, want 1", s.DocumentCount())
	}
}

func TestSetFieldLengthUpdatesAverage(t *testing.T) {
	s := newTestStore()
	titleField, _ := s.FieldID("title")

	id1, _ := s.AllocateShortID("a")
	s.SetFieldLength(id1, titleField, 10)
	id2, _ := s.AllocateShortID("b")
	s.SetFieldLength(id2, titleField, 20)

	avg := s.AvgFieldLength()
	if got := avg[titleField]; got != 15 {
		t.Fatalf("avg title length = %v, want 15", got)
	}
}

func TestAddAndRemovePosting(t *testing.T) {
	s := newTestStore()
	titleField, _ := s.FieldID("title")
	id, _ := s.AllocateShortID("a")

	s.AddPosting(id, titleField, "whale")
	s.AddPosting(id, titleField, "whale")

	snap, ok := s.LookupExact("whale")
	if !ok {
		t.Fatal("expected posting for whale")
	}
	if snap.Fields[titleField][id] != 2 {
		t.Fatalf("freq = %d, want 2", snap.Fields[titleField][id])
	}

	if !s.RemovePosting(id, titleField, "whale") {
		t.Fatal("RemovePosting reported missing")
	}
	snap, ok = s.LookupExact("whale")
	if !ok || snap.Fields[titleField][id] != 1 {
		t.Fatalf("expected freq 1 after one removal, got %+v ok=%v", snap, ok)
	}

	s.RemovePosting(id, titleField, "whale")
	if _, ok := s.LookupExact("whale"); ok {
		t.Fatal("expected term to be pruned once all postings are gone")
	}
}

func TestTombstoneLeavesPostingsForVacuum(t *testing.T) {
	s := newTestStore()
	titleField, _ := s.FieldID("title")
	id, _ := s.AllocateShortID("a")
	s.AddPosting(id, titleField, "whale")

	tombstoned, ok := s.Tombstone("a")
	if !ok || tombstoned != id {
		t.Fatalf("Tombstone = %d, %v; want %d, true", tombstoned, ok, id)
	}
	if s.IsLive(id) {
		t.Fatal("id should not be live after tombstone")
	}
	if s.DocumentCount() != 0 {
		t.Fatalf("DocumentCount = %d, want 0", s.DocumentCount())
	}
	if s.DirtCount() != 1 {
		t.Fatalf("DirtCount = %d, want 1", s.DirtCount())
	}
	if _, ok := s.LookupExact("whale"); !ok {
		t.Fatal("posting should survive tombstone until vacuum sweeps it")
	}
}

func TestVacuumBatchSweepsDeadPostings(t *testing.T) {
	s := newTestStore()
	titleField, _ := s.FieldID("title")
	id, _ := s.AllocateShortID("a")
	s.AddPosting(id, titleField, "whale")
	s.Tombstone("a")

	last, visited := s.VacuumBatch("", 1000, s.IsLive)
	if visited != 1 {
		t.Fatalf("visited = %d, want 1", visited)
	}
	if last != "whale" {
		t.Fatalf("last = %q, want whale", last)
	}
	if _, ok := s.LookupExact("whale"); ok {
		t.Fatal("expected whale posting to be swept")
	}
}

func TestAdjustFieldLengthOnRemovalInverse(t *testing.T) {
	s := newTestStore()
	titleField, _ := s.FieldID("title")

	id1, _ := s.AllocateShortID("a")
	s.SetFieldLength(id1, titleField, 10)
	id2, _ := s.AllocateShortID("b")
	s.SetFieldLength(id2, titleField, 20)

	s.AdjustFieldLengthOnRemoval(titleField, 10)
	s.ReleaseDocument(id1)

	avg := s.AvgFieldLength()
	if got := avg[titleField]; got != 20 {
		t.Fatalf("avg title length after removal = %v, want 20", got)
	}
}

func TestLookupPrefixAndFuzzy(t *testing.T) {
	s := newTestStore()
	titleField, _ := s.FieldID("title")
	id, _ := s.AllocateShortID("a")
	s.AddPosting(id, titleField, "motor")
	s.AddPosting(id, titleField, "motoring")

	prefixMatches := s.LookupPrefix("moto")
	if len(prefixMatches) != 2 {
		t.Fatalf("LookupPrefix(moto) returned %d matches, want 2", len(prefixMatches))
	}

	fuzzyMatches := s.LookupFuzzy("motro", 2)
	found := false
	for _, m := range fuzzyMatches {
		if m.Term == "motor" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected motor within distance 2 of motro, got %+v", fuzzyMatches)
	}
}

func TestDirtFactor(t *testing.T) {
	s := newTestStore()
	s.AllocateShortID("a")
	s.AllocateShortID("b")
	s.Tombstone("a")

	// dirtCount=1, documentCount=1 -> 1/(1+1+1) = 1/3
	got := s.DirtFactor()
	want := 1.0 / 3.0
	if got != want {
		t.Fatalf("DirtFactor = %v, want %v", got, want)
	}
}
