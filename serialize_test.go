package slimsearch

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

// stringIDDocs use string IDs so external IDs survive a JSON
// round-trip unchanged (JSON numbers decode as float64).
func stringIDDocs() []Document {
	return []Document{
		{"id": "d1", "title": "Moby Dick", "text": "Call me Ishmael"},
		{"id": "d2", "title": "Zen and the Art of Motorcycle", "text": "I can see"},
		{"id": "d3", "title": "Neuromancer", "text": "The sky above the port"},
		{"id": "d4", "title": "Zen and the Art of Archery", "text": "At first sight"},
	}
}

func stringIDOptions() Options {
	return Options{Fields: []string{"title", "text"}, StoreFields: []string{"title"}}
}

func TestJSONRoundTrip(t *testing.T) {
	ix, err := New(stringIDOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ix.AddAll(stringIDDocs()); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	if err := ix.Discard("d3"); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	dump, err := ix.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	loaded, err := LoadJSON(dump, stringIDOptions())
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}

	if loaded.DocumentCount() != ix.DocumentCount() {
		t.Errorf("DocumentCount %d != %d", loaded.DocumentCount(), ix.DocumentCount())
	}
	if loaded.Stats().DirtCount != ix.Stats().DirtCount {
		t.Errorf("DirtCount %d != %d", loaded.Stats().DirtCount, ix.Stats().DirtCount)
	}

	queries := []Query{
		StringQuery("zen art motorcycle"),
		StringQuery("ishmael"),
		StringQuery("sky"),
		&Composition{CombineWith: AND, Queries: []Query{StringQuery("zen"), StringQuery("archery")}},
	}
	for _, q := range queries {
		want, err := ix.Search(q)
		if err != nil {
			t.Fatalf("Search original: %v", err)
		}
		got, err := loaded.Search(q)
		if err != nil {
			t.Fatalf("Search loaded: %v", err)
		}
		if !reflect.DeepEqual(resultIDs(want), resultIDs(got)) {
			t.Errorf("query %v: ids %v != %v", q, resultIDs(got), resultIDs(want))
		}
		for i := range want {
			if want[i].Score != got[i].Score {
				t.Errorf("query %v: score[%d] %v != %v", q, i, got[i].Score, want[i].Score)
			}
		}
	}

	// a second dump of the loaded index is byte-identical
	dump2, err := loaded.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	if string(dump) != string(dump2) {
		t.Error("re-serialized dump differs from the original")
	}
}

func TestLoadJSONIncompatibleVersion(t *testing.T) {
	payload := []byte(`{"version": 3, "fieldIds": {"title": 0, "text": 1}, "index": []}`)
	if _, err := LoadJSON(payload, stringIDOptions()); !errors.Is(err, ErrIncompatibleVersion) {
		t.Errorf("got %v, want ErrIncompatibleVersion", err)
	}
}

func TestLoadJSONFieldMismatch(t *testing.T) {
	ix, err := New(stringIDOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dump, err := ix.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	if _, err := LoadJSON(dump, Options{Fields: []string{"headline", "body"}}); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("got %v, want ErrInvalidOption", err)
	}
}

func TestLoadJSONVersion1(t *testing.T) {
	// version 1 wrapped each field's postings in a {df, ds} envelope
	// and predates dirt accounting
	v1 := map[string]any{
		"documentCount": 1,
		"nextId":        1,
		"documentIds":   map[string]any{"0": "d1"},
		"fieldIds":      map[string]int{"title": 0, "text": 1},
		"fieldLength":   map[string][]int{"0": {2, 3}},
		"averageFieldLength": []float64{2, 3},
		"storedFields":  map[string]any{"0": map[string]any{"title": "Moby Dick"}},
		"version":       1,
		"index": []any{
			[]any{"moby", map[string]any{"0": map[string]any{"df": 1, "ds": map[string]int{"0": 1}}}},
			[]any{"dick", map[string]any{"0": map[string]any{"df": 1, "ds": map[string]int{"0": 1}}}},
			[]any{"ishmael", map[string]any{"1": map[string]any{"df": 1, "ds": map[string]int{"0": 1}}}},
		},
	}
	payload, err := json.Marshal(v1)
	if err != nil {
		t.Fatalf("marshal v1 payload: %v", err)
	}

	ix, err := LoadJSON(payload, stringIDOptions())
	if err != nil {
		t.Fatalf("LoadJSON v1: %v", err)
	}
	if ix.Stats().DirtCount != 0 {
		t.Errorf("v1 dirt count = %d, want 0", ix.Stats().DirtCount)
	}
	results, err := ix.Search(StringQuery("ishmael"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "d1" {
		t.Errorf("got ids %v, want [d1]", resultIDs(results))
	}
}

func TestLoadJSONAsync(t *testing.T) {
	ix, err := New(stringIDOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ix.AddAll(stringIDDocs()); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	dump, err := ix.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	loaded, err := LoadJSONAsync(context.Background(), dump, stringIDOptions())
	if err != nil {
		t.Fatalf("LoadJSONAsync: %v", err)
	}
	if loaded.DocumentCount() != 4 {
		t.Errorf("DocumentCount = %d, want 4", loaded.DocumentCount())
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := LoadJSONAsync(cancelled, dump, stringIDOptions()); err == nil {
		t.Error("expected error for cancelled context")
	}
}
