// Package retrieve implements hybrid candidate retrieval: a lexical
// trigram pass, an optional embedding + vector-similarity pass, and
// deterministic score fusion of the two.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
)

// Config holds retrieval tunables.
type Config struct {
	VectorWeight        float64
	TextWeight          float64
	SingleSourcePenalty float64

	VectorTopK    int
	TextTopK      int
	MaxCandidates int

	// Lexical shortcut: when the text pass alone is numerous and strong,
	// the vector pass is skipped entirely.
	TextSkipVectorScoreThreshold float64
	TextSkipVectorMinResults     int

	// Guardrail: for short, specific queries with a strong lexical match,
	// vector-only candidates are dropped during fusion.
	GuardrailMaxTokens int

	EmbeddingTimeout time.Duration
}

// Retriever runs the lexical and vector passes against the catalog.
type Retriever struct {
	catalog CatalogReader
	embed   Embedder
	cfg     Config
}

// New creates a retriever.
func New(catalog CatalogReader, embed Embedder, cfg Config) *Retriever {
	return &Retriever{catalog: catalog, embed: embed, cfg: cfg}
}

// fillerTokens are stripped from the lexical query. "piano lessons" and
// "piano" should hit the same rows.
var fillerTokens = map[string]bool{
	"lesson": true, "lessons": true, "class": true, "classes": true,
	"course": true, "courses": true, "tutoring": true, "tutor": true,
	"instructor": true, "teacher": true,
}

// NormalizeLexical strips filler tokens from the service phrase unless that
// would empty it.
func NormalizeLexical(serviceQuery string) string {
	words := strings.Fields(serviceQuery)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if !fillerTokens[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return serviceQuery
	}
	return strings.Join(kept, " ")
}

// LexicalResult carries the text pass output plus its latency.
type LexicalResult struct {
	Candidates []domain.ServiceCandidate
	Normalized string
	TextMS     int64
}

// SearchLexical runs the trigram pass. Always the first retrieval step.
func (r *Retriever) SearchLexical(ctx context.Context, pq *domain.ParsedQuery) (LexicalResult, error) {
	normalized := NormalizeLexical(pq.ServiceQuery)

	start := time.Now()
	cands, err := r.catalog.TextSearch(ctx, normalized, pq.ServiceQuery, r.cfg.TextTopK)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return LexicalResult{Normalized: normalized, TextMS: elapsed}, fmt.Errorf("lexical search: %w", err)
	}
	return LexicalResult{Candidates: cands, Normalized: normalized, TextMS: elapsed}, nil
}

// LexicalAloneSufficient reports whether the text pass is both numerous and
// strong enough to skip the vector pass. A latency shortcut, not a failure
// path.
func (r *Retriever) LexicalAloneSufficient(lex LexicalResult) bool {
	if len(lex.Candidates) < r.cfg.TextSkipVectorMinResults {
		return false
	}
	return bestTextScore(lex.Candidates) >= r.cfg.TextSkipVectorScoreThreshold
}

// VectorResult carries the vector pass output plus its degradation envelope.
type VectorResult struct {
	Candidates []domain.ServiceCandidate
	Reason     domain.DegradationReason // "" when the pass succeeded
	EmbedMS    int64
	VectorMS   int64
}

// SearchVector runs the embedding + vector-similarity pass. The embedding
// call is bounded by the smaller of the configured embedding timeout and
// the caller's remaining budget. Failures degrade, never propagate:
// the reason code distinguishes timeout from unavailability.
func (r *Retriever) SearchVector(
	ctx context.Context, pq *domain.ParsedQuery, remainingBudget time.Duration,
) VectorResult {
	hasEmb, err := r.catalog.HasEmbeddings(ctx)
	if err != nil || !hasEmb {
		return VectorResult{Reason: domain.DegradationNoEmbeddings}
	}

	timeout := r.cfg.EmbeddingTimeout
	if remainingBudget > 0 && remainingBudget < timeout {
		timeout = remainingBudget
	}
	embCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	embStart := time.Now()
	embedding, err := r.embed.Embed(embCtx, NormalizeLexical(pq.ServiceQuery))
	embMS := time.Since(embStart).Milliseconds()
	if err != nil {
		reason := domain.DegradationEmbeddingUnavailable
		if errors.Is(err, domain.ErrEmbeddingTimeout) || errors.Is(err, context.DeadlineExceeded) {
			reason = domain.DegradationEmbeddingTimeout
		}
		return VectorResult{Reason: reason, EmbedMS: embMS}
	}

	vecStart := time.Now()
	cands, err := r.catalog.VectorSearch(ctx, embedding, r.cfg.VectorTopK)
	vecMS := time.Since(vecStart).Milliseconds()
	if err != nil {
		return VectorResult{Reason: domain.DegradationVectorSearchFailed, EmbedMS: embMS, VectorMS: vecMS}
	}

	return VectorResult{Candidates: cands, EmbedMS: embMS, VectorMS: vecMS}
}

// Fuse combines the lexical and vector passes into one ranked candidate
// set capped at topK (MaxCandidates when topK <= 0).
func (r *Retriever) Fuse(lex LexicalResult, vec VectorResult, topK int) domain.RetrievalResult {
	if topK <= 0 || topK > r.cfg.MaxCandidates {
		topK = r.cfg.MaxCandidates
	}

	dropVectorOnly := r.guardrailActive(lex)
	fused := fuseScores(lex.Candidates, vec.Candidates, fusionWeights{
		vector:  r.cfg.VectorWeight,
		text:    r.cfg.TextWeight,
		penalty: r.cfg.SingleSourcePenalty,
	}, dropVectorOnly)

	if len(fused) > topK {
		fused = fused[:topK]
	}

	vectorUsed := vec.Reason == "" && len(vec.Candidates) > 0
	return domain.RetrievalResult{
		Candidates:        fused,
		VectorSearchUsed:  vectorUsed,
		Degraded:          vec.Reason != "",
		DegradationReason: vec.Reason,
		Timings: domain.RetrievalTimings{
			EmbedMS:  vec.EmbedMS,
			TextMS:   lex.TextMS,
			VectorMS: vec.VectorMS,
			DBMS:     lex.TextMS + vec.VectorMS,
		},
	}
}

// LexicalOnly builds a RetrievalResult from the text pass alone.
// reason is empty for the latency shortcut and set for degradations.
func (r *Retriever) LexicalOnly(lex LexicalResult, reason domain.DegradationReason, topK int) domain.RetrievalResult {
	return r.Fuse(lex, VectorResult{Reason: reason}, topK)
}

// Search runs the full retrieval sequence in one call. The orchestrator
// drives the passes separately to overlap them with other pipeline work;
// this entry point serves direct callers and tests.
func (r *Retriever) Search(ctx context.Context, pq *domain.ParsedQuery, topK int, remainingBudget time.Duration) (domain.RetrievalResult, error) {
	lex, err := r.SearchLexical(ctx, pq)
	if err != nil {
		return domain.RetrievalResult{}, err
	}

	if r.LexicalAloneSufficient(lex) {
		return r.LexicalOnly(lex, "", topK), nil
	}

	vec := r.SearchVector(ctx, pq, remainingBudget)
	return r.Fuse(lex, vec, topK), nil
}

// guardrailActive reports whether vector-only candidates should be dropped:
// short, specific queries where lexical already found a strong match tend to
// surface semantically-adjacent but wrong services from the vector pass.
func (r *Retriever) guardrailActive(lex LexicalResult) bool {
	if bestTextScore(lex.Candidates) < r.cfg.TextSkipVectorScoreThreshold {
		return false
	}
	return nonGenericTokens(lex.Normalized) <= r.cfg.GuardrailMaxTokens
}

func nonGenericTokens(normalized string) int {
	n := 0
	for _, w := range strings.Fields(normalized) {
		if !fillerTokens[w] {
			n++
		}
	}
	return n
}

func bestTextScore(cands []domain.ServiceCandidate) float64 {
	best := 0.0
	for _, c := range cands {
		if c.TextScore != nil && *c.TextScore > best {
			best = *c.TextScore
		}
	}
	return best
}
