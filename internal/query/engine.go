package query

import (
	"sort"

	"github.com/nullstream/slimsearch/internal/analyze"
	"github.com/nullstream/slimsearch/internal/store"
)

// Engine evaluates Query values against a Store, using a tokenizer
// and processor pipeline identical to the one used at ingest time
// (with fieldName given as the empty string, per the query-time
// convention).
type Engine struct {
	Store     *store.Store
	Tokenizer analyze.Tokenizer
	Processor analyze.Processor
	Defaults  SearchOptions
}

// New builds an Engine over st, defaulting to every declared field
// and OR combination.
func New(st *store.Store, tokenizer analyze.Tokenizer, processor analyze.Processor) *Engine {
	return &Engine{
		Store:     st,
		Tokenizer: tokenizer,
		Processor: processor,
		Defaults:  DefaultSearchOptions(st.FieldNames()),
	}
}

// effectiveTerms tokenizes and processes text the same way ingest
// does, with no field name, flattening processor expansions into a
// single ordered term list.
func (e *Engine) effectiveTerms(text string) []string {
	tokens := e.Tokenizer(text, "")
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		expanded := e.Processor(tok.Term, "")
		terms = append(terms, expanded...)
	}
	return terms
}

// eval recursively evaluates q under opts, returning a map from live
// short-id to accumulated score and match info.
func (e *Engine) eval(q Query, opts SearchOptions) map[ShortID]*docScore {
	switch v := q.(type) {
	case StringQuery:
		terms := e.effectiveTerms(string(v))
		if len(terms) == 0 {
			return map[ShortID]*docScore{}
		}
		termMaps := make([]map[ShortID]*docScore, len(terms))
		for i, t := range terms {
			termMaps[i], _ = expandTerm(e.Store, t, i, terms, opts)
		}
		merged := combine(termMaps, opts.CombineWith)
		out := make(map[ShortID]*docScore, len(merged))
		for docID, c := range merged {
			out[docID] = &docScore{Score: c.Score * float64(c.Sources), Match: c.Match}
		}
		return out

	case WildcardQuery:
		out := make(map[ShortID]*docScore)
		for _, id := range e.Store.AllShortIDs() {
			out[id] = &docScore{Score: 1, Match: MatchInfo{}}
		}
		return out

	case *Composition:
		effective := Merge(opts, v.Options)
		if v.CombineWith != "" {
			effective.CombineWith = v.CombineWith
		}
		childMaps := make([]map[ShortID]*docScore, len(v.Queries))
		for i, child := range v.Queries {
			childMaps[i] = e.eval(child, effective)
		}
		merged := combine(childMaps, effective.CombineWith)
		return asDocScoreMap(merged)

	default:
		return map[ShortID]*docScore{}
	}
}

// Search evaluates q, applies document boosting and filtering, and
// returns every hit sorted by descending score (ties broken by
// ascending short-id).
func (e *Engine) Search(q Query, opts SearchOptions) []Hit {
	hits, _ := e.SearchTop(q, opts, 0)
	return hits
}

// SearchTop evaluates q like Search but keeps only the limit best
// hits, selected with a bounded heap rather than a full sort. The
// second return is the total hit count before bounding, so callers
// can report it alongside a truncated page. A non-positive limit
// returns everything.
func (e *Engine) SearchTop(q Query, opts SearchOptions, limit int) ([]Hit, int) {
	effective := Merge(e.Defaults, opts)
	raw := e.eval(q, effective)

	hits := make([]Hit, 0, len(raw))
	for docID, e2 := range raw {
		if !e.Store.IsLive(docID) {
			continue
		}
		externalID, _ := e.Store.ExternalIDOf(docID)
		stored, _ := e.Store.StoredFields(docID)

		score := e2.Score
		if effective.BoostDocument != nil {
			factor := effective.BoostDocument(externalID, "", stored)
			if factor == 0 {
				continue
			}
			score *= factor
		}

		terms := make([]string, 0, len(e2.Match))
		for t := range e2.Match {
			terms = append(terms, t)
		}
		sort.Strings(terms)

		hits = append(hits, Hit{
			ID:      externalID,
			ShortID: docID,
			Score:   score,
			Terms:   terms,
			Match:   e2.Match,
		})
	}

	// Filter before bounding so rejected hits never occupy heap slots.
	if effective.Filter != nil {
		filtered := hits[:0]
		for _, h := range hits {
			if effective.Filter(h) {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}
	return TopK(hits, limit), len(hits)
}
