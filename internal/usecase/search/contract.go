package search

import (
	"context"
	"time"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
	"github.com/kailas-cloud/lessonsearch/internal/usecase/retrieve"
)

// QueryParser is the deterministic pattern parser.
type QueryParser interface {
	Parse(rawQuery string) domain.ParsedQuery
}

// LLMParser is the fallback parser for queries the pattern rules could not
// handle with confidence.
type LLMParser interface {
	Parse(ctx context.Context, rawQuery string) (domain.ParsedQuery, error)
}

// LocationResolver resolves a location phrase against the region table.
type LocationResolver interface {
	ResolveDeterministic(ctx context.Context, phrase string, locType domain.LocationType) (domain.ResolvedLocation, error)
	ResolveLLM(ctx context.Context, phrase string) (domain.ResolvedLocation, error)
}

// Retriever runs the lexical and vector retrieval passes.
type Retriever interface {
	SearchLexical(ctx context.Context, pq *domain.ParsedQuery) (retrieve.LexicalResult, error)
	LexicalAloneSufficient(lex retrieve.LexicalResult) bool
	SearchVector(ctx context.Context, pq *domain.ParsedQuery, remainingBudget time.Duration) retrieve.VectorResult
	Fuse(lex retrieve.LexicalResult, vec retrieve.VectorResult, topK int) domain.RetrievalResult
	LexicalOnly(lex retrieve.LexicalResult, reason domain.DegradationReason, topK int) domain.RetrievalResult
}

// ConstraintFilter applies post-retrieval constraint filters.
type ConstraintFilter interface {
	Filter(ctx context.Context, cands []domain.ServiceCandidate, pq domain.ParsedQuery, loc domain.ResolvedLocation, coords *domain.Coordinates) (domain.FilteredResult, []domain.DegradationReason)
}

// ResponseCache is the best-effort response and parsed-query cache.
type ResponseCache interface {
	GetResponse(ctx context.Context, normalizedQuery, regionCode string) (*domain.SearchResponse, bool)
	SetResponse(ctx context.Context, normalizedQuery, regionCode string, resp *domain.SearchResponse)
	GetParsedQuery(ctx context.Context, normalizedQuery string) (*domain.ParsedQuery, bool)
	SetParsedQuery(ctx context.Context, normalizedQuery string, pq *domain.ParsedQuery)
}
