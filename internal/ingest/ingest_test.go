package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nullstream/slimsearch"
	"github.com/nullstream/slimsearch/pkg/proto"
)

func testWorker(t *testing.T) (*Worker, *slimsearch.Index) {
	t.Helper()
	ix, err := slimsearch.New(slimsearch.Options{
		Fields:      []string{"title", "text"},
		StoreFields: []string{"title"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return NewWorker(ix, "id", nil), ix
}

func docEvent(action, id, title, text string) Event {
	return Event{
		Action: action,
		Document: proto.Document{
			ID:     id,
			Fields: map[string]any{"title": title, "text": text},
		},
	}
}

func TestWorkerIndexAndSearch(t *testing.T) {
	w, ix := testWorker(t)
	ctx := context.Background()

	if err := w.Process(ctx, docEvent(ActionIndex, "d1", "Moby Dick", "Call me Ishmael")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := w.Process(ctx, docEvent(ActionIndex, "d2", "Neuromancer", "The sky above the port")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	results, err := ix.Search(slimsearch.StringQuery("ishmael"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "d1" {
		t.Errorf("got %v", results)
	}
}

func TestWorkerReplace(t *testing.T) {
	w, ix := testWorker(t)
	ctx := context.Background()

	if err := w.Process(ctx, docEvent(ActionIndex, "d1", "Moby Dick", "Call me Ishmael")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := w.Process(ctx, docEvent(ActionReplace, "d1", "Moby Dick II", "The whale returns")); err != nil {
		t.Fatalf("Process replace: %v", err)
	}

	results, err := ix.Search(slimsearch.StringQuery("whale"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "d1" {
		t.Errorf("got %v", results)
	}
	if ix.DocumentCount() != 1 {
		t.Errorf("DocumentCount = %d, want 1", ix.DocumentCount())
	}
}

func TestWorkerDiscard(t *testing.T) {
	w, ix := testWorker(t)
	ctx := context.Background()

	if err := w.Process(ctx, docEvent(ActionIndex, "d1", "Moby Dick", "Call me Ishmael")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := w.Process(ctx, Event{Action: ActionDiscard, DocumentID: "d1"}); err != nil {
		t.Fatalf("Process discard: %v", err)
	}
	if ix.DocumentCount() != 0 {
		t.Errorf("DocumentCount = %d, want 0", ix.DocumentCount())
	}
}

// Permanently rejected events are acknowledged so the consumer does
// not redeliver them forever.
func TestWorkerPermanentErrorsAcknowledged(t *testing.T) {
	w, _ := testWorker(t)
	ctx := context.Background()

	if err := w.Process(ctx, docEvent(ActionIndex, "d1", "Moby Dick", "x")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := w.Process(ctx, docEvent(ActionIndex, "d1", "Duplicate", "y")); err != nil {
		t.Errorf("duplicate add should be acknowledged, got %v", err)
	}
	if err := w.Process(ctx, Event{Action: ActionDiscard, DocumentID: "missing"}); err != nil {
		t.Errorf("unknown id should be acknowledged, got %v", err)
	}
	if err := w.Process(ctx, Event{Action: "explode"}); err != nil {
		t.Errorf("unknown action should be acknowledged, got %v", err)
	}
	if err := w.Process(ctx, Event{Action: ActionIndex, Document: proto.Document{Fields: map[string]any{"title": "no id"}}}); err != nil {
		t.Errorf("missing id should be acknowledged, got %v", err)
	}
}

func TestWorkerHandlerDecodesJSON(t *testing.T) {
	w, ix := testWorker(t)
	handler := w.Handler()

	payload, err := json.Marshal(docEvent(ActionIndex, "d1", "Moby Dick", "Call me Ishmael"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := handler(context.Background(), []byte("d1"), payload); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if ix.DocumentCount() != 1 {
		t.Errorf("DocumentCount = %d, want 1", ix.DocumentCount())
	}

	// malformed payloads are logged and acknowledged
	if err := handler(context.Background(), []byte("bad"), []byte("{not json")); err != nil {
		t.Errorf("malformed payload should be acknowledged, got %v", err)
	}
}
