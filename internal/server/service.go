// Package server adapts the slimsearch library to the network surface
// of the server binary: request/response translation, a Redis-backed
// query cache, HTTP handlers, and the internal RPC registration.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nullstream/slimsearch"
	"github.com/nullstream/slimsearch/pkg/metrics"
	"github.com/nullstream/slimsearch/pkg/proto"
)

// Service wraps an Index with the translation between the wire types
// in pkg/proto and the library's native query model. Import swaps the
// whole index, so access goes through a read-write lock.
type Service struct {
	mu      sync.RWMutex
	index   *slimsearch.Index
	opts    slimsearch.Options
	metrics *metrics.Metrics
}

// NewService creates a Service around a freshly built index.
func NewService(opts slimsearch.Options, m *metrics.Metrics) (*Service, error) {
	ix, err := slimsearch.New(opts)
	if err != nil {
		return nil, err
	}
	s := &Service{index: ix, opts: opts, metrics: m}
	s.syncGauges()
	return s, nil
}

func (s *Service) ix() *slimsearch.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Search executes a SearchRequest against the index and shapes the
// ranked hits into a SearchResponse.
func (s *Service) Search(ctx context.Context, req *proto.SearchRequest) (*proto.SearchResponse, error) {
	start := time.Now()

	var q slimsearch.Query
	if req.Query == "*" {
		q = slimsearch.Wildcard
	} else {
		q = slimsearch.StringQuery(req.Query)
	}

	results, total, err := s.ix().SearchTop(q, int(req.Limit), searchOptions(req))
	if err != nil {
		return nil, err
	}

	resp := &proto.SearchResponse{
		Query:     req.Query,
		TotalHits: int32(total),
		Results:   make([]proto.SearchResult, len(results)),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	for i, r := range results {
		resp.Results[i] = proto.SearchResult{
			DocID:  fmt.Sprint(r.ID),
			Score:  r.Score,
			Terms:  r.Terms,
			Match:  r.Match,
			Fields: r.Fields,
		}
	}
	return resp, nil
}

// searchOptions translates the wire-level knobs into SearchOptions.
// Absent fields stay zero so the index defaults apply.
func searchOptions(req *proto.SearchRequest) slimsearch.SearchOptions {
	var opts slimsearch.SearchOptions
	if len(req.Fields) > 0 {
		opts.Fields = req.Fields
	}
	if req.Prefix {
		opts.Prefix = func(string, int, []string) bool { return true }
	}
	if req.Fuzzy > 0 {
		fuzz := req.Fuzzy
		opts.Fuzzy = func(string, int, []string) float64 { return fuzz }
	}
	if req.CombineWith != "" {
		opts.CombineWith = slimsearch.Combinator(req.CombineWith)
	}
	if len(req.Boost) > 0 {
		opts.Boost = req.Boost
	}
	return opts
}

// Suggest returns auto-completed phrases for a prefix.
func (s *Service) Suggest(ctx context.Context, req *proto.SuggestRequest) (*proto.SuggestResponse, error) {
	suggestions, err := s.ix().AutoSuggest(req.Prefix)
	if err != nil {
		return nil, err
	}
	max := len(suggestions)
	if req.MaxItems > 0 && int(req.MaxItems) < max {
		max = int(req.MaxItems)
	}
	resp := &proto.SuggestResponse{Suggestions: make([]string, max)}
	for i := 0; i < max; i++ {
		resp.Suggestions[i] = suggestions[i].Phrase
	}
	return resp, nil
}

// Index adds or replaces one document.
func (s *Service) Index(ctx context.Context, req *proto.IndexRequest) (*proto.IndexResponse, error) {
	doc := make(slimsearch.Document, len(req.Document.Fields)+1)
	for k, v := range req.Document.Fields {
		doc[k] = v
	}
	idField := s.opts.IDField
	if idField == "" {
		idField = "id"
	}
	if req.Document.ID != "" {
		doc[idField] = req.Document.ID
	}

	ix := s.ix()
	var err error
	if req.Replace {
		err = ix.Replace(doc)
	} else {
		err = ix.Add(doc)
	}
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.DocsIndexedTotal.Inc()
	}
	s.syncGauges()
	return &proto.IndexResponse{Success: true, Message: "indexed"}, nil
}

// Discard soft-deletes a document by its external ID.
func (s *Service) Discard(ctx context.Context, req *proto.DiscardRequest) (*proto.DiscardResponse, error) {
	if err := s.ix().Discard(req.DocumentID); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.DocsDiscardedTotal.Inc()
	}
	s.syncGauges()
	return &proto.DiscardResponse{Success: true, Message: "discarded"}, nil
}

// Stats reports index-level statistics.
func (s *Service) Stats(ctx context.Context, _ *proto.StatsRequest) (*proto.StatsResponse, error) {
	st := s.ix().Stats()
	s.syncGauges()
	return &proto.StatsResponse{
		TotalDocs:      int64(st.DocumentCount),
		TotalTerms:     int64(st.TermCount),
		DirtCount:      int64(st.DirtCount),
		DirtFactor:     st.DirtFactor,
		AvgFieldLength: st.AvgFieldLength,
	}, nil
}

// Vacuum runs a blocking compaction pass.
func (s *Service) Vacuum(ctx context.Context, _ *proto.VacuumRequest) (*proto.VacuumResponse, error) {
	if err := s.ix().Vacuum(ctx); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.VacuumRunsTotal.WithLabelValues("manual").Inc()
	}
	s.syncGauges()
	return &proto.VacuumResponse{Success: true, Message: "vacuumed"}, nil
}

// Export serializes the index to its JSON dump format.
func (s *Service) Export(ctx context.Context) ([]byte, error) {
	return s.ix().ToJSON()
}

// Import replaces the live index with one deserialized from a JSON
// dump produced by Export (or a compatible older dump).
func (s *Service) Import(ctx context.Context, data []byte) error {
	loaded, err := slimsearch.LoadJSONAsync(ctx, data, s.opts)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.index = loaded
	s.mu.Unlock()
	s.syncGauges()
	return nil
}

// DirtFactor exposes the current dirt ratio for readiness checks.
func (s *Service) DirtFactor() float64 {
	return s.ix().Stats().DirtFactor
}

// DocumentCount exposes the live document count for health checks.
func (s *Service) DocumentCount() int {
	return s.ix().DocumentCount()
}

// syncGauges pushes the current index statistics into the Prometheus
// gauges.
func (s *Service) syncGauges() {
	if s.metrics == nil {
		return
	}
	st := s.ix().Stats()
	s.metrics.IndexDocCount.Set(float64(st.DocumentCount))
	s.metrics.IndexTermCount.Set(float64(st.TermCount))
	s.metrics.IndexDirtCount.Set(float64(st.DirtCount))
	s.metrics.IndexDirtFactor.Set(st.DirtFactor)
	for field, avg := range st.AvgFieldLength {
		s.metrics.AvgFieldLength.WithLabelValues(field).Set(avg)
	}
}
