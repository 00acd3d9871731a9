// Package slimsearch is an embeddable in-memory full-text search
// engine with BM25+ ranking. It supports exact, prefix, and fuzzy
// term matching over a radix-tree dictionary, boolean composition of
// sub-queries (AND, OR, AND_NOT), auto-suggestion, soft deletion with
// background vacuum compaction, and JSON serialization of the whole
// index state.
//
// An Index is built over a fixed set of document fields declared at
// construction. Documents are plain maps; the host supplies (or
// inherits defaults for) field extraction, tokenization, and term
// processing, so language-specific stemming and stop-word handling
// stay under the caller's control.
package slimsearch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/nullstream/slimsearch/internal/analyze"
	"github.com/nullstream/slimsearch/internal/query"
	"github.com/nullstream/slimsearch/internal/store"
	"github.com/nullstream/slimsearch/internal/vacuum"
)

// Index is a full-text search index over documents sharing a declared
// field set. All mutating methods assume a single logical writer, per
// the engine's concurrency model; searches and the background vacuum
// may run concurrently with that writer.
type Index struct {
	opts   Options
	store  *store.Store
	engine *query.Engine
	vac    *vacuum.Scheduler
}

// SearchResult is one ranked hit, including the stored-field
// projection selected at construction.
type SearchResult struct {
	ID     any
	Score  float64
	Terms  []string
	Match  MatchInfo
	Fields map[string]any
}

// Stats is a point-in-time snapshot of index size and dirt state.
type Stats struct {
	DocumentCount  int
	TermCount      int
	DirtCount      int
	DirtFactor     float64
	AvgFieldLength map[string]float64
}

// New creates an empty Index. At least one field must be declared in
// opts.Fields.
func New(opts Options) (*Index, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	o := opts.withDefaults()
	ix := &Index{opts: o}
	ix.reset()
	return ix, nil
}

// CreateIndex is an alias for New, matching the engine's historical
// public name for index construction.
func CreateIndex(opts Options) (*Index, error) { return New(opts) }

// reset installs a fresh store, engine, and vacuum scheduler for the
// declared fields, dropping any existing content.
func (ix *Index) reset() {
	st := store.New(ix.opts.Fields)
	tokenizer := func(text, fieldName string) []analyze.Token {
		words := ix.opts.Tokenize(text, fieldName)
		tokens := make([]analyze.Token, len(words))
		for i, w := range words {
			tokens[i] = analyze.Token{Term: w, Position: i}
		}
		return tokens
	}
	eng := query.New(st, tokenizer, ix.opts.ProcessTerm)
	eng.Defaults = query.Merge(eng.Defaults, ix.opts.SearchOptions)
	ix.store = st
	ix.engine = eng
	ix.vac = vacuum.New(st, ix.opts.Vacuum.BatchSize, ix.opts.Vacuum.BatchWait, ix.vacuumLogger())
}

func (ix *Index) vacuumLogger() *slog.Logger {
	return slog.New(&loggerFuncHandler{fn: ix.opts.Logger})
}

// preparedField is the analysis result for one declared field of one
// document: the raw token count (the field-length denominator) and
// the processed terms to post.
type preparedField struct {
	tokenCount int
	terms      []string
}

// preparedDoc is a fully analyzed document, ready to commit. Analysis
// is a pure function of the document and the pipeline hooks, so it
// can run concurrently; commit must not.
type preparedDoc struct {
	externalID any
	fields     []preparedField
	stored     map[string]any
}

// prepare runs extraction, tokenization, and term processing over doc
// without touching the index.
func (ix *Index) prepare(doc Document) (*preparedDoc, error) {
	rawID := ix.opts.ExtractField(doc, ix.opts.IDField)
	if rawID == nil {
		return nil, fmt.Errorf("%w %q", ErrMissingID, ix.opts.IDField)
	}

	p := &preparedDoc{
		externalID: rawID,
		fields:     make([]preparedField, len(ix.opts.Fields)),
	}
	for i, fieldName := range ix.opts.Fields {
		raw := ix.opts.ExtractField(doc, fieldName)
		if raw == nil {
			continue
		}
		text, ok := raw.(string)
		if !ok {
			text = fmt.Sprint(raw)
		}
		tokens := ix.opts.Tokenize(text, fieldName)
		pf := preparedField{tokenCount: len(tokens)}
		for _, tok := range tokens {
			pf.terms = append(pf.terms, ix.opts.ProcessTerm(tok, fieldName)...)
		}
		p.fields[i] = pf
	}

	if len(ix.opts.StoreFields) > 0 {
		p.stored = make(map[string]any, len(ix.opts.StoreFields))
		for _, fieldName := range ix.opts.StoreFields {
			if v := ix.opts.ExtractField(doc, fieldName); v != nil {
				p.stored[fieldName] = v
			}
		}
	}
	return p, nil
}

// commit applies a prepared document to the index under a fresh
// short-id.
func (ix *Index) commit(p *preparedDoc) error {
	id, err := ix.store.AllocateShortID(p.externalID)
	if err != nil {
		return fmt.Errorf("%w %v", ErrDuplicateID, p.externalID)
	}
	for i, pf := range p.fields {
		fieldID := store.FieldID(i)
		ix.store.SetFieldLength(id, fieldID, pf.tokenCount)
		for _, term := range pf.terms {
			ix.store.AddPosting(id, fieldID, term)
		}
	}
	if p.stored != nil {
		ix.store.SetStoredFields(id, p.stored)
	}
	return nil
}

// Add indexes one document. It fails with ErrMissingID if the
// document has no ID, or ErrDuplicateID if the ID is already indexed;
// in both cases the index is unchanged.
func (ix *Index) Add(doc Document) error {
	p, err := ix.prepare(doc)
	if err != nil {
		return err
	}
	return ix.commit(p)
}

// AddAll indexes documents in order, stopping at the first failure.
// Documents committed before the failure remain indexed.
func (ix *Index) AddAll(docs []Document) error {
	for _, doc := range docs {
		if err := ix.Add(doc); err != nil {
			return err
		}
	}
	return nil
}

// AddAllAsync analyzes documents concurrently, then commits them in
// order on the calling goroutine. Analysis is pure per-document work
// (extraction, tokenization, term processing), so it parallelizes
// safely; the index mutation itself stays single-writer.
func (ix *Index) AddAllAsync(ctx context.Context, docs []Document) error {
	prepared := make([]*preparedDoc, len(docs))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, doc := range docs {
		g.Go(func() error {
			p, err := ix.prepare(doc)
			if err != nil {
				return err
			}
			prepared[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, p := range prepared {
		if err := ix.commit(p); err != nil {
			return err
		}
	}
	return nil
}

// Remove synchronously deletes a document and its postings. The full
// document must be provided: its terms are re-derived through the
// same pipeline used at Add time and subtracted from the index. If
// the document changed since it was added, postings that can no
// longer be found are reported through the logger with code
// "version_conflict" and skipped.
func (ix *Index) Remove(doc Document) error {
	p, err := ix.prepare(doc)
	if err != nil {
		return err
	}
	id, ok := ix.store.ShortIDOf(p.externalID)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownID, p.externalID)
	}
	for i, pf := range p.fields {
		fieldID := store.FieldID(i)
		ix.store.AdjustFieldLengthOnRemoval(fieldID, pf.tokenCount)
		for _, term := range pf.terms {
			if !ix.store.RemovePosting(id, fieldID, term) {
				ix.opts.Logger(LogWarn,
					fmt.Sprintf("slimsearch: document with ID %v has changed before removal: term %q was not present in field %q. Removing a document after it has changed can corrupt the index",
						p.externalID, term, ix.opts.Fields[i]),
					"version_conflict")
			}
		}
	}
	ix.store.ReleaseDocument(id)
	ix.store.DropStoredFields(id)
	return nil
}

// RemoveAll removes the given documents in order, stopping at the
// first failure. Calling it with a nil slice resets the index to
// empty, dropping every document and the whole term dictionary.
func (ix *Index) RemoveAll(docs []Document) error {
	if docs == nil {
		ix.reset()
		return nil
	}
	for _, doc := range docs {
		if err := ix.Remove(doc); err != nil {
			return err
		}
	}
	return nil
}

// Discard removes a document by ID without needing its body. The id
// maps and stored fields are cleared immediately, so the document
// stops matching searches at once; its postings stay behind as dirt
// until a vacuum pass sweeps them. If auto-vacuum is enabled and the
// dirt thresholds are crossed, a background vacuum is scheduled.
func (ix *Index) Discard(id any) error {
	sid, ok := ix.store.ShortIDOf(id)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownID, id)
	}
	if row, ok := ix.store.FieldLength(sid); ok {
		for f, length := range row {
			ix.store.AdjustFieldLengthOnRemoval(store.FieldID(f), length)
		}
	}
	ix.store.Tombstone(id)
	ix.store.DropStoredFields(sid)
	ix.maybeAutoVacuum()
	return nil
}

// DiscardAll discards the given IDs in order, stopping at the first
// unknown ID.
func (ix *Index) DiscardAll(ids []any) error {
	for _, id := range ids {
		if err := ix.Discard(id); err != nil {
			return err
		}
	}
	return nil
}

// Replace is Discard followed by Add for the same ID. The new version
// receives a fresh short-id; the old version's postings become dirt.
func (ix *Index) Replace(doc Document) error {
	rawID := ix.opts.ExtractField(doc, ix.opts.IDField)
	if rawID == nil {
		return fmt.Errorf("%w %q", ErrMissingID, ix.opts.IDField)
	}
	if err := ix.Discard(rawID); err != nil {
		return err
	}
	return ix.Add(doc)
}

func (ix *Index) maybeAutoVacuum() {
	if ix.opts.DisableAutoVacuum {
		return
	}
	minCount := ix.opts.Vacuum.MinDirtCount
	minFactor := ix.opts.Vacuum.MinDirtFactor
	if ix.store.DirtCount() < minCount || ix.store.DirtFactor() < minFactor {
		return
	}
	go ix.vac.Run(context.Background(), minCount, minFactor)
}

// Vacuum synchronously runs a compaction pass, sweeping tombstoned
// short-ids out of the inverted index regardless of the dirt
// thresholds. Concurrent callers coalesce onto at most one running
// pass plus one queued follow-up.
func (ix *Index) Vacuum(ctx context.Context) error {
	ix.vac.Run(ctx, 0, 0)
	return ctx.Err()
}

// validateSearchFields checks that every field named by the options
// was declared at construction.
func (ix *Index) validateSearchFields(opts SearchOptions) error {
	for _, f := range opts.Fields {
		if _, ok := ix.store.FieldID(f); !ok {
			return fmt.Errorf("%w %q", ErrMissingField, f)
		}
	}
	for f := range opts.Boost {
		if _, ok := ix.store.FieldID(f); !ok {
			return fmt.Errorf("%w %q", ErrMissingField, f)
		}
	}
	return nil
}

// validateQuery walks a composition tree, checking every node's field
// options.
func (ix *Index) validateQuery(q Query) error {
	comp, ok := q.(*Composition)
	if !ok {
		return nil
	}
	if err := ix.validateSearchFields(comp.Options); err != nil {
		return err
	}
	for _, child := range comp.Queries {
		if err := ix.validateQuery(child); err != nil {
			return err
		}
	}
	return nil
}

// Search evaluates q and returns hits ranked by descending BM25+
// score, ties broken by indexing order. Per-call opts override the
// index's search defaults field by field.
func (ix *Index) Search(q Query, opts ...SearchOptions) ([]SearchResult, error) {
	results, _, err := ix.SearchTop(q, 0, opts...)
	return results, err
}

// SearchTop is Search bounded to the limit best hits, selected with a
// heap instead of a full sort. It also returns the total hit count so
// serving layers can report it alongside a truncated page. A
// non-positive limit returns every hit.
func (ix *Index) SearchTop(q Query, limit int, opts ...SearchOptions) ([]SearchResult, int, error) {
	o := firstOrZero(opts)
	if err := ix.validateSearchFields(o); err != nil {
		return nil, 0, err
	}
	if err := ix.validateQuery(q); err != nil {
		return nil, 0, err
	}
	hits, total := ix.engine.SearchTop(q, o, limit)
	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		stored, _ := ix.store.StoredFields(h.ShortID)
		results[i] = SearchResult{
			ID:     h.ID,
			Score:  h.Score,
			Terms:  h.Terms,
			Match:  h.Match,
			Fields: stored,
		}
	}
	return results, total, nil
}

// AutoSuggest returns completion phrases for a partial query, ranked
// by descending aggregate score. Prefix and fuzzy expansion default
// to enabled; a Prefix or Fuzzy set in the index's AutoSuggestOptions
// or in opts replaces that default.
func (ix *Index) AutoSuggest(text string, opts ...SearchOptions) ([]Suggestion, error) {
	effective := query.Merge(ix.opts.AutoSuggestOptions, firstOrZero(opts))
	if err := ix.validateSearchFields(effective); err != nil {
		return nil, err
	}
	return ix.engine.AutoSuggest(text, effective), nil
}

func firstOrZero(opts []SearchOptions) SearchOptions {
	if len(opts) > 0 {
		return opts[0]
	}
	return SearchOptions{}
}

// Has reports whether a document with the given ID is currently
// indexed.
func (ix *Index) Has(id any) bool {
	_, ok := ix.store.ShortIDOf(id)
	return ok
}

// GetStoredFields returns the stored-field projection for id, or
// false if the ID is unknown.
func (ix *Index) GetStoredFields(id any) (map[string]any, bool) {
	sid, ok := ix.store.ShortIDOf(id)
	if !ok {
		return nil, false
	}
	return ix.store.StoredFields(sid)
}

// DocumentCount returns the number of live documents.
func (ix *Index) DocumentCount() int { return ix.store.DocumentCount() }

// TermCount returns the number of distinct terms in the dictionary.
func (ix *Index) TermCount() int { return ix.store.TermCount() }

// Stats returns a snapshot of index size and dirt state.
func (ix *Index) Stats() Stats {
	avg := ix.store.AvgFieldLength()
	byName := make(map[string]float64, len(avg))
	for i, v := range avg {
		byName[ix.store.FieldName(store.FieldID(i))] = v
	}
	return Stats{
		DocumentCount:  ix.store.DocumentCount(),
		TermCount:      ix.store.TermCount(),
		DirtCount:      ix.store.DirtCount(),
		DirtFactor:     ix.store.DirtFactor(),
		AvgFieldLength: byName,
	}
}
