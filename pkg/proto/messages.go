// Package proto defines the shared message types used for internal RPC
// communication between the slimsearch server and its service callers.
//
// The types are hand-written for zero-dependency usage and carry JSON
// struct tags for serialization over the lightweight JSON-over-TCP RPC
// layer (see pkg/grpc).
package proto

// ---------- Common ----------

// Document is a document as it travels between services: an external
// ID plus the caller's field values.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}

// ---------- Search ----------

// SearchRequest is the input to the Search RPC.
type SearchRequest struct {
	Query       string             `json:"query"`
	Fields      []string           `json:"fields,omitempty"`
	Prefix      bool               `json:"prefix,omitempty"`
	Fuzzy       float64            `json:"fuzzy,omitempty"`
	CombineWith string             `json:"combine_with,omitempty"` // OR, AND, AND_NOT
	Boost       map[string]float64 `json:"boost,omitempty"`
	Limit       int32              `json:"limit,omitempty"`
}

// SearchResponse is the output of the Search RPC.
type SearchResponse struct {
	Query     string         `json:"query"`
	TotalHits int32          `json:"total_hits"`
	Results   []SearchResult `json:"results"`
	LatencyMs int64          `json:"latency_ms"`
}

// SearchResult is a single scored document in the result set.
type SearchResult struct {
	DocID  string              `json:"doc_id"`
	Score  float64             `json:"score"`
	Terms  []string            `json:"terms,omitempty"`
	Match  map[string][]string `json:"match,omitempty"`
	Fields map[string]any      `json:"fields,omitempty"`
}

// SuggestRequest is the input to the Suggest RPC.
type SuggestRequest struct {
	Prefix   string `json:"prefix"`
	MaxItems int32  `json:"max_items"`
}

// SuggestResponse is the output of the Suggest RPC.
type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// ---------- Index ----------

// IndexRequest is the input to the IndexDocument RPC. Replace selects
// discard-then-add semantics for documents already present.
type IndexRequest struct {
	Document Document `json:"document"`
	Replace  bool     `json:"replace,omitempty"`
}

// IndexResponse is the output of the IndexDocument RPC.
type IndexResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DiscardRequest soft-deletes a document by ID; its postings remain
// until the next vacuum pass.
type DiscardRequest struct {
	DocumentID string `json:"document_id"`
}

// DiscardResponse confirms the discard.
type DiscardResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatsRequest asks for index-level statistics.
type StatsRequest struct{}

// StatsResponse contains index-level statistics.
type StatsResponse struct {
	TotalDocs      int64              `json:"total_docs"`
	TotalTerms     int64              `json:"total_terms"`
	DirtCount      int64              `json:"dirt_count"`
	DirtFactor     float64            `json:"dirt_factor"`
	AvgFieldLength map[string]float64 `json:"avg_field_length,omitempty"`
}

// VacuumRequest triggers a compaction pass over the inverted index.
type VacuumRequest struct{}

// VacuumResponse confirms the vacuum.
type VacuumResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
