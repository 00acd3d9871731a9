package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/nullstream/slimsearch/pkg/errors"
	"github.com/nullstream/slimsearch/pkg/logger"
	"github.com/nullstream/slimsearch/pkg/metrics"
	"github.com/nullstream/slimsearch/pkg/proto"
	"github.com/nullstream/slimsearch/pkg/tracing"
)

// maxImportBytes bounds the accepted size of a POST /import dump.
const maxImportBytes = 1 << 30

// Handler exposes the Service over HTTP.
type Handler struct {
	svc          *Service
	cache        *QueryCache
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// NewHandler creates the HTTP handler set. cache and m may be nil.
func NewHandler(svc *Service, cache *QueryCache, m *metrics.Metrics, defaultLimit, maxResults int) *Handler {
	return &Handler{
		svc:          svc,
		cache:        cache,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "http-handler"),
	}
}

// Register installs all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/suggest", h.Suggest)
	mux.HandleFunc("POST /api/v1/documents", h.IndexDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.DiscardDocument)
	mux.HandleFunc("POST /api/v1/vacuum", h.Vacuum)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/export", h.Export)
	mux.HandleFunc("POST /api/v1/import", h.Import)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, err := parseSearchRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = int32(h.defaultLimit)
	}
	if h.maxResults > 0 && int(req.Limit) > h.maxResults {
		req.Limit = int32(h.maxResults)
	}

	ctx, span := tracing.StartChildSpan(ctx, "search")
	span.SetAttr("query", req.Query)
	defer span.End()

	var resp *proto.SearchResponse
	cacheHit := false
	if h.cache != nil {
		resp, cacheHit, err = h.cache.GetOrCompute(ctx, req, func() (*proto.SearchResponse, error) {
			return h.svc.Search(ctx, req)
		})
	} else {
		resp, err = h.svc.Search(ctx, req)
	}
	if err != nil {
		log.Error("search failed", "query", req.Query, "error", err)
		h.recordSearch("error", cacheHit, 0, start)
		h.writeError(w, err)
		return
	}

	resultType := "hit"
	if resp.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.recordSearch(resultType, cacheHit, len(resp.Results), start)

	log.Info("search completed",
		"query", req.Query,
		"total_hits", resp.TotalHits,
		"returned", len(resp.Results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) recordSearch(resultType string, cacheHit bool, returned int, start time.Time) {
	if h.metrics == nil {
		return
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
		h.metrics.CacheHitsTotal.Inc()
	} else {
		h.metrics.CacheMissesTotal.Inc()
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	h.metrics.SearchResultsCount.WithLabelValues().Observe(float64(returned))
}

func parseSearchRequest(r *http.Request) (*proto.SearchRequest, error) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		return nil, pkgerrors.New(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required")
	}
	req := &proto.SearchRequest{Query: query}
	if fields := q.Get("fields"); fields != "" {
		req.Fields = splitCSV(fields)
	}
	if q.Get("prefix") == "true" {
		req.Prefix = true
	}
	if fuzzStr := q.Get("fuzzy"); fuzzStr != "" {
		fuzz, err := strconv.ParseFloat(fuzzStr, 64)
		if err != nil || fuzz < 0 {
			return nil, pkgerrors.New(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "fuzzy must be a non-negative number")
		}
		req.Fuzzy = fuzz
	}
	if combine := q.Get("combine_with"); combine != "" {
		switch combine {
		case "OR", "AND", "AND_NOT":
			req.CombineWith = combine
		default:
			return nil, pkgerrors.New(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "combine_with must be OR, AND, or AND_NOT")
		}
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return nil, pkgerrors.New(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
		}
		req.Limit = int32(limit)
	}
	return req, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("q")
	if prefix == "" {
		h.writeError(w, pkgerrors.New(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	req := &proto.SuggestRequest{Prefix: prefix}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			h.writeError(w, pkgerrors.New(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		req.MaxItems = int32(limit)
	}
	resp, err := h.svc.Suggest(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) IndexDocument(w http.ResponseWriter, r *http.Request) {
	var req proto.IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, pkgerrors.Newf(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "decoding request body: %v", err))
		return
	}
	resp, err := h.svc.Index(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.invalidateCache(r)
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) DiscardDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resp, err := h.svc.Discard(r.Context(), &proto.DiscardRequest{DocumentID: id})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.invalidateCache(r)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Vacuum(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Vacuum(r.Context(), &proto.VacuumRequest{})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Stats(r.Context(), &proto.StatsRequest{})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	dump, err := h.svc.Export(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(dump); err != nil {
		h.logger.Error("writing export", "error", err)
	}
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		h.writeError(w, pkgerrors.Newf(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "reading request body: %v", err))
		return
	}
	if err := h.svc.Import(r.Context(), data); err != nil {
		h.writeError(w, err)
		return
	}
	h.invalidateCache(r)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": strconv.FormatFloat(hitRate, 'f', 1, 64) + "%",
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, pkgerrors.New(pkgerrors.ErrInternal, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// invalidateCache drops cached search responses after a write. Errors
// are logged, not surfaced: the write itself already succeeded.
func (h *Handler) invalidateCache(r *http.Request) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation after write failed", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := pkgerrors.HTTPStatusCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); encodeErr != nil {
		h.logger.Error("encoding error response", "error", encodeErr)
	}
}
