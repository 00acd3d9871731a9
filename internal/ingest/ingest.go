// Package ingest consumes document events from Kafka and applies them
// to an in-process index, publishing completion events for downstream
// consumers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nullstream/slimsearch"
	"github.com/nullstream/slimsearch/pkg/kafka"
	"github.com/nullstream/slimsearch/pkg/proto"
	"github.com/nullstream/slimsearch/pkg/resilience"
)

// Actions accepted on the document-ingest topic.
const (
	ActionIndex   = "index"
	ActionReplace = "replace"
	ActionDiscard = "discard"
)

// Event is one message on the document-ingest topic.
type Event struct {
	Action     string         `json:"action"`
	Document   proto.Document `json:"document,omitempty"`
	DocumentID string         `json:"document_id,omitempty"`
}

// CompletionEvent is published to the index-complete topic after each
// processed message.
type CompletionEvent struct {
	DocumentID string    `json:"document_id"`
	Action     string    `json:"action"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Worker applies ingest events to the index. Mutations run through a
// circuit breaker and transient failures are retried with backoff;
// events the index permanently rejects are acknowledged and reported
// on the completion topic instead of being redelivered forever.
type Worker struct {
	index    *slimsearch.Index
	idField  string
	breaker  *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
	producer *kafka.Producer
	logger   *slog.Logger
}

// NewWorker creates a Worker. producer may be nil to skip completion
// events.
func NewWorker(ix *slimsearch.Index, idField string, producer *kafka.Producer) *Worker {
	if idField == "" {
		idField = "id"
	}
	return &Worker{
		index:   ix,
		idField: idField,
		breaker: resilience.NewCircuitBreaker("index-mutation", resilience.CircuitBreakerConfig{}),
		retryCfg: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
		},
		producer: producer,
		logger:   slog.Default().With("component", "ingest-worker"),
	}
}

// Handler returns the kafka.MessageHandler that drives this worker.
func (w *Worker) Handler() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			w.logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			return nil
		}
		return w.Process(ctx, event)
	}
}

// Process applies one event and publishes its completion.
func (w *Worker) Process(ctx context.Context, event Event) error {
	docID := event.DocumentID
	if docID == "" {
		docID = event.Document.ID
	}
	w.logger.Debug("processing ingest event", "action", event.Action, "doc_id", docID)

	err := w.breaker.Execute(func() error { return w.apply(event) })
	if err != nil && !isPermanent(err) {
		err = resilience.Retry(ctx, "apply-ingest-event", w.retryCfg, func() error {
			return w.breaker.Execute(func() error { return w.apply(event) })
		})
	}

	if err != nil {
		w.logger.Warn("ingest event rejected", "action", event.Action, "doc_id", docID, "error", err)
		w.publishCompletion(ctx, docID, event.Action, err)
		if isPermanent(err) {
			return nil
		}
		return err
	}

	w.logger.Info("ingest event applied", "action", event.Action, "doc_id", docID)
	w.publishCompletion(ctx, docID, event.Action, nil)
	return nil
}

// apply performs the index mutation for one event.
func (w *Worker) apply(event Event) error {
	switch event.Action {
	case ActionIndex, ActionReplace:
		doc := make(slimsearch.Document, len(event.Document.Fields)+1)
		for k, v := range event.Document.Fields {
			doc[k] = v
		}
		if event.Document.ID != "" {
			doc[w.idField] = event.Document.ID
		}
		if event.Action == ActionReplace {
			return w.index.Replace(doc)
		}
		return w.index.Add(doc)
	case ActionDiscard:
		return w.index.Discard(event.DocumentID)
	default:
		return fmt.Errorf("%w: unknown action %q", errUnknownAction, event.Action)
	}
}

var errUnknownAction = errors.New("ingest: unknown action")

// isPermanent reports whether the index rejected the event for a
// reason no retry can fix.
func isPermanent(err error) bool {
	return errors.Is(err, slimsearch.ErrMissingID) ||
		errors.Is(err, slimsearch.ErrDuplicateID) ||
		errors.Is(err, slimsearch.ErrUnknownID) ||
		errors.Is(err, errUnknownAction)
}

func (w *Worker) publishCompletion(ctx context.Context, docID, action string, applyErr error) {
	if w.producer == nil {
		return
	}
	event := CompletionEvent{
		DocumentID: docID,
		Action:     action,
		Success:    applyErr == nil,
		Timestamp:  time.Now().UTC(),
	}
	if applyErr != nil {
		event.Error = applyErr.Error()
	}
	if err := w.producer.Publish(ctx, kafka.Event{Key: docID, Value: event}); err != nil {
		w.logger.Error("failed to publish completion event", "doc_id", docID, "error", err)
	}
}
