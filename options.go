package slimsearch

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nullstream/slimsearch/internal/analyze"
	"github.com/nullstream/slimsearch/internal/query"
	"github.com/nullstream/slimsearch/internal/vacuum"
)

// Document is an arbitrary user-supplied record. Only the fields the
// caller declares in Options.Fields are indexed, and only those in
// Options.StoreFields are retained alongside the ID.
type Document = map[string]any

// Query grammar and search-option types, re-exported from the query
// engine so callers never import internal packages.
type (
	Query             = query.Query
	StringQuery       = query.StringQuery
	Composition       = query.Composition
	Combinator        = query.Combinator
	SearchOptions     = query.SearchOptions
	Weights           = query.Weights
	BM25Params        = query.BM25Params
	MatchInfo         = query.MatchInfo
	Hit               = query.Hit
	Suggestion        = query.Suggestion
	PrefixFunc        = query.PrefixFunc
	FuzzyFunc         = query.FuzzyFunc
	FilterFunc        = query.FilterFunc
	BoostDocumentFunc = query.BoostDocumentFunc
	BoostTermFunc     = query.BoostTermFunc
)

const (
	OR     = query.OR
	AND    = query.AND
	ANDNOT = query.ANDNOT
)

// Wildcard is the sentinel query matching every live document.
var Wildcard = query.Wildcard

// LogLevel is the severity a LoggerFunc receives.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LoggerFunc receives the engine's diagnostics. code is a stable
// machine-readable identifier ("version_conflict" for a document that
// changed between Add and Remove) and may be empty.
type LoggerFunc func(level LogLevel, message string, code string)

// VacuumOptions tune the background compaction pass. Zero values fall
// back to the defaults below.
type VacuumOptions struct {
	BatchSize     int
	BatchWait     time.Duration
	MinDirtCount  int
	MinDirtFactor float64
}

// Default auto-vacuum trigger thresholds: a vacuum is scheduled after
// a discard only once at least MinDirtCount documents are tombstoned
// and they make up at least MinDirtFactor of the index.
const (
	DefaultMinDirtCount  = 20
	DefaultMinDirtFactor = 0.1
)

// Options configure a new Index.
type Options struct {
	// Fields are the document fields to index, frozen at
	// construction. Required.
	Fields []string

	// StoreFields are returned verbatim with every search hit.
	StoreFields []string

	// IDField names the document field holding the external ID.
	// Defaults to "id".
	IDField string

	// ExtractField retrieves a field value from a document. The
	// default resolves dotted paths ("author.name") through nested
	// maps.
	ExtractField func(doc Document, fieldName string) any

	// Tokenize splits field text into tokens. fieldName is empty for
	// query tokenization. Defaults to lower-casing and splitting on
	// non-letter, non-digit runs.
	Tokenize func(text, fieldName string) []string

	// ProcessTerm maps one token to zero, one, or several index
	// terms; returning nil drops the token. Defaults to a stop-word
	// filter plus a conservative suffix-stripping English stemmer.
	ProcessTerm func(term, fieldName string) []string

	// Logger receives warnings and vacuum diagnostics. Defaults to
	// an adapter writing through log/slog.
	Logger LoggerFunc

	// SearchOptions are the per-index search defaults, merged under
	// any per-call options.
	SearchOptions SearchOptions

	// AutoSuggestOptions are the per-index auto-suggest defaults;
	// unlike search, prefix and fuzzy matching start enabled.
	AutoSuggestOptions SearchOptions

	// DisableAutoVacuum turns off the automatic vacuum scheduling
	// that normally follows Discard once the dirt thresholds are
	// crossed. Vacuum can still be run explicitly.
	DisableAutoVacuum bool

	// Vacuum tunes both auto and explicit vacuum passes.
	Vacuum VacuumOptions
}

func (o *Options) validate() error {
	if len(o.Fields) == 0 {
		return fmt.Errorf("%w: at least one field must be declared", ErrInvalidOption)
	}
	seen := make(map[string]struct{}, len(o.Fields))
	for _, f := range o.Fields {
		if f == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidOption)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("%w: field %q declared twice", ErrInvalidOption, f)
		}
		seen[f] = struct{}{}
	}
	if bm := o.SearchOptions.BM25; bm != nil {
		if bm.K < 0 || bm.B < 0 || bm.D < 0 {
			return fmt.Errorf("%w: BM25 parameters must be non-negative", ErrInvalidOption)
		}
	}
	if w := o.SearchOptions.Weights; w != nil {
		if w.Prefix < 0 || w.Fuzzy < 0 {
			return fmt.Errorf("%w: weights must be non-negative", ErrInvalidOption)
		}
	}
	if o.Vacuum.MinDirtFactor < 0 || o.Vacuum.MinDirtFactor >= 1 {
		if o.Vacuum.MinDirtFactor != 0 {
			return fmt.Errorf("%w: minDirtFactor must be in [0,1)", ErrInvalidOption)
		}
	}
	return nil
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.IDField == "" {
		out.IDField = "id"
	}
	if out.ExtractField == nil {
		out.ExtractField = defaultExtractField
	}
	if out.Tokenize == nil {
		out.Tokenize = defaultTokenize
	}
	if out.ProcessTerm == nil {
		out.ProcessTerm = analyze.DefaultProcessor
	}
	if out.Logger == nil {
		out.Logger = slogLogger
	}
	if out.Vacuum.BatchSize == 0 {
		out.Vacuum.BatchSize = vacuum.DefaultBatchSize
	}
	if out.Vacuum.BatchWait == 0 {
		out.Vacuum.BatchWait = vacuum.DefaultBatchWait
	}
	if out.Vacuum.MinDirtCount == 0 {
		out.Vacuum.MinDirtCount = DefaultMinDirtCount
	}
	if out.Vacuum.MinDirtFactor == 0 {
		out.Vacuum.MinDirtFactor = DefaultMinDirtFactor
	}
	return out
}

// defaultExtractField resolves fieldName through doc, following dots
// into nested maps.
func defaultExtractField(doc Document, fieldName string) any {
	if v, ok := doc[fieldName]; ok {
		return v
	}
	if !strings.Contains(fieldName, ".") {
		return nil
	}
	var cur any = doc
	for _, part := range strings.Split(fieldName, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func defaultTokenize(text, fieldName string) []string {
	tokens := analyze.DefaultTokenizer(text, fieldName)
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Term
	}
	return out
}

func slogLogger(level LogLevel, message string, code string) {
	logger := slog.Default().With("component", "slimsearch")
	attrs := []any{}
	if code != "" {
		attrs = append(attrs, "code", code)
	}
	switch level {
	case LogDebug:
		logger.Debug(message, attrs...)
	case LogWarn:
		logger.Warn(message, attrs...)
	case LogError:
		logger.Error(message, attrs...)
	default:
		logger.Info(message, attrs...)
	}
}
