package domain

// DegradationReason is a machine-readable code for why a response is partial.
type DegradationReason string

const (
	DegradationNoEmbeddings         DegradationReason = "no_embeddings_in_database"
	DegradationEmbeddingTimeout     DegradationReason = "embedding_timeout"
	DegradationEmbeddingUnavailable DegradationReason = "embedding_service_unavailable"
	DegradationVectorSearchFailed   DegradationReason = "vector_search_failed"
	DegradationLLMParseTimeout      DegradationReason = "llm_parse_timeout"
	DegradationLLMParseUnavailable  DegradationReason = "llm_parse_unavailable"
	DegradationLLMLocationFailed    DegradationReason = "llm_location_failed"
	DegradationLocationFilterFailed DegradationReason = "location_filter_failed"
	DegradationAvailabilityFailed   DegradationReason = "availability_filter_failed"
	DegradationBudgetSkipped        DegradationReason = "budget_skipped"
)

// ServiceCandidate is one retrievable offering with its relevance scores.
// At least one of VectorScore/TextScore is non-nil; HybridScore is derived
// from them by the fusion rules and always present.
type ServiceCandidate struct {
	ServiceID    int64      `json:"service_id"`
	CatalogID    int64      `json:"catalog_id"`
	InstructorID int64      `json:"instructor_id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	PricePerHour float64    `json:"price_per_hour"`
	LessonType   LessonType `json:"lesson_type,omitempty"`
	VectorScore  *float64   `json:"vector_score,omitempty"`
	TextScore    *float64   `json:"text_score,omitempty"`
	HybridScore  float64    `json:"hybrid_score"`
}

// RetrievalTimings carries per-phase retrieval latency in milliseconds.
type RetrievalTimings struct {
	EmbedMS  int64 `json:"embed_ms"`
	TextMS   int64 `json:"text_ms"`
	VectorMS int64 `json:"vector_ms"`
	DBMS     int64 `json:"db_ms"`
}

// RetrievalResult is the fused candidate set plus its degradation envelope.
type RetrievalResult struct {
	Candidates        []ServiceCandidate `json:"candidates"`
	VectorSearchUsed  bool               `json:"vector_search_used"`
	Degraded          bool               `json:"degraded"`
	DegradationReason DegradationReason  `json:"degradation_reason,omitempty"`
	Timings           RetrievalTimings   `json:"timings"`
}

// FilteredResult is the candidate set after constraint filtering.
type FilteredResult struct {
	Candidates     []ServiceCandidate `json:"candidates"`
	FiltersApplied []string           `json:"filters_applied"`
}
