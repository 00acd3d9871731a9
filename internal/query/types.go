// Package query implements query parsing, per-term candidate
// expansion against the term dictionary, BM25+ scoring, and the
// AND/OR/AND_NOT combinators that fuse per-term results into a
// ranked hit list. It also implements auto-suggestion, which reuses
// the same candidate-expansion machinery.
package query

import "github.com/nullstream/slimsearch/internal/store"

// Combinator names how sibling result maps are merged, whether the
// siblings are the tokens of one string query or the children of a
// composition node.
type Combinator string

const (
	OR     Combinator = "OR"
	AND    Combinator = "AND"
	ANDNOT Combinator = "AND_NOT"
)

// Query is the sealed query grammar: a string, the wildcard sentinel,
// or a composition of sub-queries. Its only method is an unexported
// marker; callers use a type switch (see Engine.eval) rather than
// dynamic dispatch.
type Query interface {
	queryNode()
}

// StringQuery is a free-text query, tokenized and processed the same
// way as indexed text.
type StringQuery string

func (StringQuery) queryNode() {}

// WildcardQuery matches every live document. Use the Wildcard value.
type WildcardQuery struct{}

// Wildcard is the sentinel query that matches every live document.
var Wildcard Query = WildcardQuery{}

func (WildcardQuery) queryNode() {}

// Composition combines the results of its children under CombineWith,
// after resolving Options against the parent's effective options.
type Composition struct {
	CombineWith Combinator
	Queries     []Query
	Options     SearchOptions
}

func (*Composition) queryNode() {}

// PrefixFunc decides whether the query term at position i (of terms)
// should also be expanded by prefix match.
type PrefixFunc func(term string, index int, terms []string) bool

// FuzzyFunc returns the fuzziness factor for the query term at
// position i. Zero disables fuzzy expansion for that term; a value in
// (0,1) is a fraction of the term's length, 1 or above is an absolute
// edit-distance bound; either way the bound is capped by MaxFuzzy.
type FuzzyFunc func(term string, index int, terms []string) float64

// FilterFunc is applied once to the final, boosted hit list.
type FilterFunc func(hit Hit) bool

// BoostDocumentFunc multiplies a document's score, or drops it
// entirely on a zero result.
type BoostDocumentFunc func(externalID any, term string, storedFields map[string]any) float64

// BoostTermFunc multiplies the accumulated score for one query term,
// across all of its matched candidates and fields.
type BoostTermFunc func(term string, index int, terms []string) float64

// Weights are the per-strategy distance weights applied to prefix and
// fuzzy candidates (exact candidates always carry weight 1).
type Weights struct {
	Prefix float64
	Fuzzy  float64
}

// DefaultWeights are the engine's built-in prefix/fuzzy weights.
var DefaultWeights = Weights{Prefix: 0.375, Fuzzy: 0.45}

// BM25Params are the BM25+ tuning constants.
type BM25Params struct {
	K float64
	B float64
	D float64
}

// DefaultBM25Params are the engine's built-in BM25+ constants.
var DefaultBM25Params = BM25Params{K: 1.2, B: 0.75, D: 0.5}

// SearchOptions controls one evaluation of a Query, or one node of a
// Composition. A zero-valued field means "inherit from the parent";
// Merge resolves a child's options against its parent's effective
// options.
type SearchOptions struct {
	Fields        []string
	Prefix        PrefixFunc
	Fuzzy         FuzzyFunc
	MaxFuzzy      int
	CombineWith   Combinator
	Filter        FilterFunc
	Boost         map[string]float64
	BoostDocument BoostDocumentFunc
	BoostTerm     BoostTermFunc
	Weights       *Weights
	BM25          *BM25Params
}

// Merge resolves override against base, field by field; zero-valued
// fields in override fall back to base's value.
func Merge(base, override SearchOptions) SearchOptions {
	out := base
	if override.Fields != nil {
		out.Fields = override.Fields
	}
	if override.Prefix != nil {
		out.Prefix = override.Prefix
	}
	if override.Fuzzy != nil {
		out.Fuzzy = override.Fuzzy
	}
	if override.MaxFuzzy != 0 {
		out.MaxFuzzy = override.MaxFuzzy
	}
	if override.CombineWith != "" {
		out.CombineWith = override.CombineWith
	}
	if override.Filter != nil {
		out.Filter = override.Filter
	}
	if override.Boost != nil {
		out.Boost = override.Boost
	}
	if override.BoostDocument != nil {
		out.BoostDocument = override.BoostDocument
	}
	if override.BoostTerm != nil {
		out.BoostTerm = override.BoostTerm
	}
	if override.Weights != nil {
		out.Weights = override.Weights
	}
	if override.BM25 != nil {
		out.BM25 = override.BM25
	}
	return out
}

// DefaultSearchOptions is the engine's baseline: search every
// declared field, no prefix/fuzzy expansion, OR combination.
func DefaultSearchOptions(fields []string) SearchOptions {
	w := DefaultWeights
	b := DefaultBM25Params
	return SearchOptions{
		Fields:      fields,
		Prefix:      func(string, int, []string) bool { return false },
		Fuzzy:       func(string, int, []string) float64 { return 0 },
		MaxFuzzy:    4,
		CombineWith: OR,
		Weights:     &w,
		BM25:        &b,
	}
}

// AutoSuggestOptions returns SearchOptions inheriting from base but
// defaulting Prefix and Fuzzy to true/0.2, per the autosuggest spec.
func AutoSuggestOptions(base SearchOptions) SearchOptions {
	out := base
	out.Prefix = func(string, int, []string) bool { return true }
	out.Fuzzy = func(string, int, []string) float64 { return 0.2 }
	return out
}

// MatchInfo maps a matched dictionary term to the sorted set of field
// names it matched in.
type MatchInfo map[string][]string

// Hit is one scored document in a result set. ShortID is exposed so
// callers can break score ties deterministically; it has no meaning
// outside a single Store's lifetime.
type Hit struct {
	ID      any
	ShortID ShortID
	Score   float64
	Terms   []string
	Match   MatchInfo
}

// ShortID aliases the store's internal document id, re-exported so
// callers of this package never need to import internal/store
// directly for it.
type ShortID = store.ShortID
