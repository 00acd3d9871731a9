package slimsearch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testDocs() []Document {
	return []Document{
		{"id": 1, "title": "Moby Dick", "text": "Call me Ishmael"},
		{"id": 2, "title": "Zen and the Art of Motorcycle", "text": "I can see"},
		{"id": 3, "title": "Neuromancer", "text": "The sky above the port"},
		{"id": 4, "title": "Zen and the Art of Archery", "text": "At first sight"},
	}
}

func testIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := New(Options{
		Fields:      []string{"title", "text"},
		StoreFields: []string{"title"},
		Vacuum:      VacuumOptions{BatchWait: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ix.AddAll(testDocs()); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	return ix
}

func resultIDs(results []SearchResult) []any {
	ids := make([]any, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func TestSearchRanking(t *testing.T) {
	ix := testIndex(t)

	results, err := ix.Search(StringQuery("zen art motorcycle"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %v", len(results), resultIDs(results))
	}
	if results[0].ID != 2 || results[1].ID != 4 {
		t.Errorf("got ids %v, want [2 4]", resultIDs(results))
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("score of id 2 (%v) not greater than id 4 (%v)", results[0].Score, results[1].Score)
	}
	for _, r := range results {
		if r.Score < 0 {
			t.Errorf("negative score %v for id %v", r.Score, r.ID)
		}
	}
	if results[0].Fields["title"] != "Zen and the Art of Motorcycle" {
		t.Errorf("stored fields not returned: %v", results[0].Fields)
	}
}

func TestSearchTop(t *testing.T) {
	ix := testIndex(t)

	results, total, err := ix.SearchTop(StringQuery("zen art motorcycle"), 1)
	if err != nil {
		t.Fatalf("SearchTop: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(results) != 1 || results[0].ID != 2 {
		t.Errorf("got ids %v, want [2]", resultIDs(results))
	}

	results, total, err = ix.SearchTop(Wildcard, 0)
	if err != nil {
		t.Fatalf("SearchTop wildcard: %v", err)
	}
	if total != 4 || len(results) != 4 {
		t.Errorf("unbounded wildcard got %d results (total %d), want 4/4", len(results), total)
	}
}

func TestSearchPrefix(t *testing.T) {
	ix := testIndex(t)
	results, err := ix.Search(StringQuery("moto"), SearchOptions{
		Prefix: func(string, int, []string) bool { return true },
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 2 {
		t.Fatalf("got ids %v, want [2]", resultIDs(results))
	}
}

func TestSearchFuzzy(t *testing.T) {
	ix := testIndex(t)
	results, err := ix.Search(StringQuery("ismael"), SearchOptions{
		Fuzzy: func(string, int, []string) float64 { return 0.2 },
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 1 {
		t.Fatalf("got ids %v, want [1]", resultIDs(results))
	}
}

func TestSearchCombineAnd(t *testing.T) {
	ix := testIndex(t)
	results, err := ix.Search(StringQuery("zen archery"), SearchOptions{CombineWith: AND})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 4 {
		t.Fatalf("got ids %v, want [4]", resultIDs(results))
	}
}

func TestSearchComposition(t *testing.T) {
	ix := testIndex(t)

	t.Run("and_not", func(t *testing.T) {
		results, err := ix.Search(&Composition{
			CombineWith: ANDNOT,
			Queries:     []Query{StringQuery("zen"), StringQuery("motorcycle")},
		})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 || results[0].ID != 4 {
			t.Fatalf("got ids %v, want [4]", resultIDs(results))
		}
	})

	t.Run("nested_or", func(t *testing.T) {
		results, err := ix.Search(&Composition{
			CombineWith: OR,
			Queries: []Query{
				StringQuery("ishmael"),
				&Composition{CombineWith: AND, Queries: []Query{StringQuery("zen"), StringQuery("archery")}},
			},
		})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("got ids %v, want two of [1 4]", resultIDs(results))
		}
	})
}

func TestSearchWildcard(t *testing.T) {
	ix := testIndex(t)
	results, err := ix.Search(Wildcard)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for _, r := range results {
		if r.Score != 1 {
			t.Errorf("wildcard score for id %v = %v, want 1", r.ID, r.Score)
		}
	}

	boosted, err := ix.Search(Wildcard, SearchOptions{
		BoostDocument: func(id any, _ string, _ map[string]any) float64 {
			if id == 3 {
				return 0
			}
			return 2
		},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(boosted) != 3 {
		t.Fatalf("got %d boosted results, want 3", len(boosted))
	}
	for _, r := range boosted {
		if r.Score != 2 {
			t.Errorf("boosted wildcard score for id %v = %v, want 2", r.ID, r.Score)
		}
	}
}

func TestSearchEmptyAndStopwordQueries(t *testing.T) {
	ix := testIndex(t)
	for _, q := range []string{"", "the", "a of"} {
		results, err := ix.Search(StringQuery(q))
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if len(results) != 0 {
			t.Errorf("Search(%q) = %v, want empty", q, resultIDs(results))
		}
	}
}

func TestSearchFieldBoost(t *testing.T) {
	ix := testIndex(t)
	plain, err := ix.Search(StringQuery("zen"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	boosted, err := ix.Search(StringQuery("zen"), SearchOptions{Boost: map[string]float64{"title": 3}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(plain) != len(boosted) || len(plain) == 0 {
		t.Fatalf("result sets differ: %v vs %v", resultIDs(plain), resultIDs(boosted))
	}
	if boosted[0].Score <= plain[0].Score {
		t.Errorf("boost did not raise score: %v <= %v", boosted[0].Score, plain[0].Score)
	}
}

func TestSearchUnknownField(t *testing.T) {
	ix := testIndex(t)
	if _, err := ix.Search(StringQuery("zen"), SearchOptions{Fields: []string{"body"}}); !errors.Is(err, ErrMissingField) {
		t.Errorf("got %v, want ErrMissingField", err)
	}
	if _, err := ix.Search(StringQuery("zen"), SearchOptions{Boost: map[string]float64{"body": 2}}); !errors.Is(err, ErrMissingField) {
		t.Errorf("got %v, want ErrMissingField", err)
	}
}

func TestDiscardAndVacuum(t *testing.T) {
	ix := testIndex(t)

	if err := ix.Discard(2); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	results, err := ix.Search(StringQuery("motorcycle"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("discarded document still matches: %v", resultIDs(results))
	}
	if got := ix.Stats().DirtCount; got != 1 {
		t.Fatalf("DirtCount = %d, want 1", got)
	}
	if ix.Has(2) {
		t.Error("Has(2) = true after discard")
	}
	if ix.DocumentCount() != 3 {
		t.Errorf("DocumentCount = %d, want 3", ix.DocumentCount())
	}

	termsBefore := ix.TermCount()
	if err := ix.Vacuum(context.Background()); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
	if got := ix.Stats().DirtCount; got != 0 {
		t.Errorf("DirtCount after vacuum = %d, want 0", got)
	}
	if got := ix.TermCount(); got >= termsBefore {
		t.Errorf("TermCount did not shrink: before %d, after %d", termsBefore, got)
	}
	// terms shared with live documents survive the sweep
	still, err := ix.Search(StringQuery("zen"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(still) != 1 || still[0].ID != 4 {
		t.Errorf("shared term lost by vacuum: %v", resultIDs(still))
	}
}

func TestReplace(t *testing.T) {
	ix := testIndex(t)
	if err := ix.Replace(Document{"id": 1, "title": "Moby-Dick", "text": "Whale"}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	whale, err := ix.Search(StringQuery("whale"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(whale) != 1 || whale[0].ID != 1 {
		t.Fatalf("got ids %v, want [1]", resultIDs(whale))
	}
	old, err := ix.Search(StringQuery("ishmael"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("old version still matches: %v", resultIDs(old))
	}
}

func TestRemove(t *testing.T) {
	ix := testIndex(t)
	if err := ix.Remove(testDocs()[0]); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	results, err := ix.Search(StringQuery("ishmael"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("removed document still matches: %v", resultIDs(results))
	}
	if ix.Stats().DirtCount != 0 {
		t.Errorf("Remove must not create dirt, got %d", ix.Stats().DirtCount)
	}
	if ix.DocumentCount() != 3 {
		t.Errorf("DocumentCount = %d, want 3", ix.DocumentCount())
	}
	// terms shared with other documents survive
	shared, err := ix.Search(StringQuery("zen"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(shared) != 2 {
		t.Errorf("shared terms lost: %v", resultIDs(shared))
	}
}

func TestRemoveChangedDocumentWarns(t *testing.T) {
	var warnings []string
	var codes []string
	ix, err := New(Options{
		Fields: []string{"title", "text"},
		Logger: func(level LogLevel, message string, code string) {
			if level == LogWarn {
				warnings = append(warnings, message)
				codes = append(codes, code)
			}
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ix.Add(Document{"id": 1, "title": "Moby Dick", "text": "Call me Ishmael"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// remove a mutated version: its terms no longer match the postings
	if err := ix.Remove(Document{"id": 1, "title": "Moby Dick", "text": "Call me Queequeg"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a DocumentChanged warning")
	}
	for _, c := range codes {
		if c != "version_conflict" {
			t.Errorf("warning code = %q, want version_conflict", c)
		}
	}
	if ix.Has(1) {
		t.Error("document still present after Remove")
	}
}

func TestRemoveAllReset(t *testing.T) {
	ix := testIndex(t)
	if err := ix.RemoveAll(nil); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if ix.DocumentCount() != 0 || ix.TermCount() != 0 {
		t.Errorf("index not empty after RemoveAll(nil): %d docs, %d terms", ix.DocumentCount(), ix.TermCount())
	}
	if err := ix.Add(testDocs()[0]); err != nil {
		t.Fatalf("Add after reset: %v", err)
	}
}

func TestAddErrors(t *testing.T) {
	ix := testIndex(t)
	if err := ix.Add(Document{"title": "No ID"}); !errors.Is(err, ErrMissingID) {
		t.Errorf("got %v, want ErrMissingID", err)
	}
	if err := ix.Add(Document{"id": 1, "title": "Duplicate"}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("got %v, want ErrDuplicateID", err)
	}
	if ix.DocumentCount() != 4 {
		t.Errorf("failed Add mutated the index: %d docs", ix.DocumentCount())
	}
	if err := ix.Remove(Document{"id": 99}); !errors.Is(err, ErrUnknownID) {
		t.Errorf("got %v, want ErrUnknownID", err)
	}
	if err := ix.Discard(99); !errors.Is(err, ErrUnknownID) {
		t.Errorf("got %v, want ErrUnknownID", err)
	}
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{"no_fields", Options{}},
		{"duplicate_field", Options{Fields: []string{"a", "a"}}},
		{"negative_bm25", Options{Fields: []string{"a"}, SearchOptions: SearchOptions{BM25: &BM25Params{K: -1, B: 0.75, D: 0.5}}}},
		{"negative_weights", Options{Fields: []string{"a"}, SearchOptions: SearchOptions{Weights: &Weights{Prefix: -0.5, Fuzzy: 0.45}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.opts); !errors.Is(err, ErrInvalidOption) {
				t.Errorf("got %v, want ErrInvalidOption", err)
			}
		})
	}
}

func TestAddAllAsync(t *testing.T) {
	ix, err := New(Options{Fields: []string{"title", "text"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ix.AddAllAsync(context.Background(), testDocs()); err != nil {
		t.Fatalf("AddAllAsync: %v", err)
	}
	if ix.DocumentCount() != 4 {
		t.Fatalf("DocumentCount = %d, want 4", ix.DocumentCount())
	}
	// commit order is preserved, so ranking ties still break by
	// insertion order
	results, err := ix.Search(StringQuery("zen art"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].ID != 2 || results[1].ID != 4 {
		t.Errorf("got ids %v, want [2 4]", resultIDs(results))
	}
}

func TestAutoSuggest(t *testing.T) {
	ix := testIndex(t)
	suggestions, err := ix.AutoSuggest("zen ar")
	if err != nil {
		t.Fatalf("AutoSuggest: %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatal("no suggestions")
	}
	if suggestions[0].Phrase != "zen archery" {
		t.Errorf("top suggestion = %q, want \"zen archery\"", suggestions[0].Phrase)
	}
	for i := 1; i < len(suggestions); i++ {
		if suggestions[i].Score > suggestions[i-1].Score {
			t.Errorf("suggestions not sorted by descending score at %d", i)
		}
	}
}

func TestGetStoredFields(t *testing.T) {
	ix := testIndex(t)
	fields, ok := ix.GetStoredFields(3)
	if !ok {
		t.Fatal("GetStoredFields(3) not found")
	}
	if fields["title"] != "Neuromancer" {
		t.Errorf("stored title = %v", fields["title"])
	}
	if _, ok := ix.GetStoredFields(99); ok {
		t.Error("GetStoredFields(99) should not be found")
	}
}

func TestScoreOrderingInvariant(t *testing.T) {
	ix := testIndex(t)
	results, err := ix.Search(StringQuery("zen art motorcycle archery sky"), SearchOptions{
		Prefix: func(string, int, []string) bool { return true },
		Fuzzy:  func(string, int, []string) float64 { return 0.2 },
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted by descending score at %d", i)
		}
	}
}

func TestNumericFieldCoercion(t *testing.T) {
	ix, err := New(Options{Fields: []string{"title", "year"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ix.Add(Document{"id": 1, "title": "Neuromancer", "year": 1984}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := ix.Search(StringQuery("1984"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 1 {
		t.Errorf("numeric field not searchable: %v", resultIDs(results))
	}
}

func TestDottedFieldExtraction(t *testing.T) {
	ix, err := New(Options{Fields: []string{"title", "author.name"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doc := Document{"id": 1, "title": "Neuromancer", "author": map[string]any{"name": "Gibson"}}
	if err := ix.Add(doc); err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := ix.Search(StringQuery("gibson"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("nested field not searchable: %v", resultIDs(results))
	}
}
