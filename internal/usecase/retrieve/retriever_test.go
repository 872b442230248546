package retrieve

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
)

// --- Mocks ---

type mockCatalog struct {
	vectorResults []domain.ServiceCandidate
	vectorErr     error
	textResults   []domain.ServiceCandidate
	textErr       error
	hasEmbeddings bool
	hasEmbErr     error

	vectorCalled   bool
	lastNormalized string
}

func (m *mockCatalog) VectorSearch(_ context.Context, _ []float32, _ int) ([]domain.ServiceCandidate, error) {
	m.vectorCalled = true
	return m.vectorResults, m.vectorErr
}

func (m *mockCatalog) TextSearch(_ context.Context, normalized, _ string, _ int) ([]domain.ServiceCandidate, error) {
	m.lastNormalized = normalized
	return m.textResults, m.textErr
}

func (m *mockCatalog) HasEmbeddings(_ context.Context) (bool, error) {
	return m.hasEmbeddings, m.hasEmbErr
}

type mockEmbedder struct {
	vec    []float32
	err    error
	called bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.called = true
	return m.vec, m.err
}

// --- Helpers ---

func f(v float64) *float64 { return &v }

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func textCand(id int64, score float64) domain.ServiceCandidate {
	return domain.ServiceCandidate{ServiceID: id, InstructorID: id, TextScore: f(score)}
}

func vecCand(id int64, score float64) domain.ServiceCandidate {
	return domain.ServiceCandidate{ServiceID: id, InstructorID: id, VectorScore: f(score)}
}

func testConfig() Config {
	return Config{
		VectorWeight:                 0.6,
		TextWeight:                   0.4,
		SingleSourcePenalty:          0.8,
		VectorTopK:                   30,
		TextTopK:                     30,
		MaxCandidates:                60,
		TextSkipVectorScoreThreshold: 0.55,
		TextSkipVectorMinResults:     5,
		GuardrailMaxTokens:           2,
		EmbeddingTimeout:             800 * time.Millisecond,
	}
}

func testQuery(service string) *domain.ParsedQuery {
	return &domain.ParsedQuery{RawQuery: service, ServiceQuery: service}
}

// --- Fusion ---

func TestFuse_BothSourcesWeighted(t *testing.T) {
	r := New(&mockCatalog{}, &mockEmbedder{}, testConfig())

	lex := LexicalResult{Candidates: []domain.ServiceCandidate{textCand(1, 0.5)}, Normalized: "piano"}
	vec := VectorResult{Candidates: []domain.ServiceCandidate{vecCand(1, 0.9)}}

	res := r.Fuse(lex, vec, 0)
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates: got %d", len(res.Candidates))
	}
	want := 0.6*0.9 + 0.4*0.5
	if got := res.Candidates[0].HybridScore; !almostEqual(got, want) {
		t.Errorf("hybrid score: got %v, want %v", got, want)
	}
	if !res.VectorSearchUsed {
		t.Error("vector search used: got false")
	}
	if res.Degraded {
		t.Error("degraded: got true")
	}
}

func TestFuse_SingleSourcePenalty(t *testing.T) {
	r := New(&mockCatalog{}, &mockEmbedder{}, testConfig())

	lex := LexicalResult{Candidates: []domain.ServiceCandidate{textCand(1, 0.5)}, Normalized: "piano jazz theory"}
	vec := VectorResult{Candidates: []domain.ServiceCandidate{vecCand(2, 0.9)}}

	res := r.Fuse(lex, vec, 0)
	if len(res.Candidates) != 2 {
		t.Fatalf("candidates: got %d", len(res.Candidates))
	}
	// Vector-only 0.9*0.8 = 0.72 outranks text-only 0.5*0.8 = 0.4.
	if res.Candidates[0].ServiceID != 2 || !almostEqual(res.Candidates[0].HybridScore, 0.9*0.8) {
		t.Errorf("first: got id=%d score=%v", res.Candidates[0].ServiceID, res.Candidates[0].HybridScore)
	}
	if res.Candidates[1].ServiceID != 1 || !almostEqual(res.Candidates[1].HybridScore, 0.5*0.8) {
		t.Errorf("second: got id=%d score=%v", res.Candidates[1].ServiceID, res.Candidates[1].HybridScore)
	}
}

func TestFuse_TieBreaksByServiceID(t *testing.T) {
	r := New(&mockCatalog{}, &mockEmbedder{}, testConfig())

	lex := LexicalResult{
		Candidates: []domain.ServiceCandidate{textCand(9, 0.5), textCand(3, 0.5)},
		Normalized: "piano jazz theory",
	}

	res := r.Fuse(lex, VectorResult{}, 0)
	if res.Candidates[0].ServiceID != 3 || res.Candidates[1].ServiceID != 9 {
		t.Errorf("tie-break order: got %d, %d", res.Candidates[0].ServiceID, res.Candidates[1].ServiceID)
	}
}

func TestFuse_TopKCap(t *testing.T) {
	r := New(&mockCatalog{}, &mockEmbedder{}, testConfig())

	var cands []domain.ServiceCandidate
	for i := int64(1); i <= 10; i++ {
		cands = append(cands, textCand(i, float64(i)/100))
	}
	lex := LexicalResult{Candidates: cands, Normalized: "piano jazz theory"}

	res := r.Fuse(lex, VectorResult{}, 4)
	if len(res.Candidates) != 4 {
		t.Fatalf("candidates: got %d, want 4", len(res.Candidates))
	}
	// Highest scores survive the cap.
	if res.Candidates[0].ServiceID != 10 {
		t.Errorf("first: got id=%d", res.Candidates[0].ServiceID)
	}
}

func TestFuse_GuardrailDropsVectorOnly(t *testing.T) {
	r := New(&mockCatalog{}, &mockEmbedder{}, testConfig())

	// Short specific query with a strong lexical hit.
	lex := LexicalResult{Candidates: []domain.ServiceCandidate{textCand(1, 0.9)}, Normalized: "piano"}
	vec := VectorResult{Candidates: []domain.ServiceCandidate{vecCand(1, 0.8), vecCand(2, 0.95)}}

	res := r.Fuse(lex, vec, 0)
	if len(res.Candidates) != 1 {
		t.Fatalf("vector-only candidate should be dropped, got %d candidates", len(res.Candidates))
	}
	if res.Candidates[0].ServiceID != 1 {
		t.Errorf("kept: got id=%d", res.Candidates[0].ServiceID)
	}
	if res.Candidates[0].VectorScore == nil {
		t.Error("overlap candidate should keep its vector score")
	}
}

func TestFuse_DegradationReasonCarried(t *testing.T) {
	r := New(&mockCatalog{}, &mockEmbedder{}, testConfig())

	lex := LexicalResult{Candidates: []domain.ServiceCandidate{textCand(1, 0.5)}, Normalized: "piano jazz theory"}
	vec := VectorResult{Reason: domain.DegradationEmbeddingTimeout}

	res := r.Fuse(lex, vec, 0)
	if !res.Degraded || res.DegradationReason != domain.DegradationEmbeddingTimeout {
		t.Errorf("degradation: got %v/%q", res.Degraded, res.DegradationReason)
	}
	if res.VectorSearchUsed {
		t.Error("vector search used: got true")
	}
	if len(res.Candidates) != 1 {
		t.Errorf("lexical candidates must survive, got %d", len(res.Candidates))
	}
}

// --- Lexical pass ---

func TestSearchLexical_StripsFillerTokens(t *testing.T) {
	catalog := &mockCatalog{textResults: []domain.ServiceCandidate{textCand(1, 0.7)}}
	r := New(catalog, &mockEmbedder{}, testConfig())

	lex, err := r.SearchLexical(context.Background(), testQuery("piano lessons"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.lastNormalized != "piano" {
		t.Errorf("normalized: got %q", catalog.lastNormalized)
	}
	if len(lex.Candidates) != 1 {
		t.Errorf("candidates: got %d", len(lex.Candidates))
	}
}

func TestNormalizeLexical_KeepsAllFillerQuery(t *testing.T) {
	if got := NormalizeLexical("lessons"); got != "lessons" {
		t.Errorf("all-filler query must survive, got %q", got)
	}
	if got := NormalizeLexical("piano lessons"); got != "piano" {
		t.Errorf("got %q", got)
	}
}

func TestLexicalAloneSufficient(t *testing.T) {
	r := New(&mockCatalog{}, &mockEmbedder{}, testConfig())

	strong := LexicalResult{Candidates: []domain.ServiceCandidate{
		textCand(1, 0.8), textCand(2, 0.6), textCand(3, 0.6), textCand(4, 0.6), textCand(5, 0.6),
	}}
	if !r.LexicalAloneSufficient(strong) {
		t.Error("five strong results should shortcut the vector pass")
	}

	few := LexicalResult{Candidates: []domain.ServiceCandidate{textCand(1, 0.9)}}
	if r.LexicalAloneSufficient(few) {
		t.Error("too few results must not shortcut")
	}

	weak := LexicalResult{Candidates: []domain.ServiceCandidate{
		textCand(1, 0.3), textCand(2, 0.3), textCand(3, 0.3), textCand(4, 0.3), textCand(5, 0.3),
	}}
	if r.LexicalAloneSufficient(weak) {
		t.Error("weak best score must not shortcut")
	}
}

// --- Vector pass ---

func TestSearchVector_NoEmbeddings(t *testing.T) {
	catalog := &mockCatalog{hasEmbeddings: false}
	emb := &mockEmbedder{}
	r := New(catalog, emb, testConfig())

	vec := r.SearchVector(context.Background(), testQuery("piano"), time.Second)
	if vec.Reason != domain.DegradationNoEmbeddings {
		t.Errorf("reason: got %q", vec.Reason)
	}
	if emb.called {
		t.Error("embedder must not be called without stored embeddings")
	}
}

func TestSearchVector_EmbeddingTimeout(t *testing.T) {
	catalog := &mockCatalog{hasEmbeddings: true}
	emb := &mockEmbedder{err: domain.ErrEmbeddingTimeout}
	r := New(catalog, emb, testConfig())

	vec := r.SearchVector(context.Background(), testQuery("piano"), time.Second)
	if vec.Reason != domain.DegradationEmbeddingTimeout {
		t.Errorf("reason: got %q", vec.Reason)
	}
	if catalog.vectorCalled {
		t.Error("vector search must not run without an embedding")
	}
}

func TestSearchVector_EmbeddingUnavailable(t *testing.T) {
	catalog := &mockCatalog{hasEmbeddings: true}
	emb := &mockEmbedder{err: errors.New("boom")}
	r := New(catalog, emb, testConfig())

	vec := r.SearchVector(context.Background(), testQuery("piano"), time.Second)
	if vec.Reason != domain.DegradationEmbeddingUnavailable {
		t.Errorf("reason: got %q", vec.Reason)
	}
}

func TestSearchVector_VectorQueryFailure(t *testing.T) {
	catalog := &mockCatalog{hasEmbeddings: true, vectorErr: errors.New("db down")}
	emb := &mockEmbedder{vec: []float32{0.1, 0.2}}
	r := New(catalog, emb, testConfig())

	vec := r.SearchVector(context.Background(), testQuery("piano"), time.Second)
	if vec.Reason != domain.DegradationVectorSearchFailed {
		t.Errorf("reason: got %q", vec.Reason)
	}
}

func TestSearchVector_Success(t *testing.T) {
	catalog := &mockCatalog{hasEmbeddings: true, vectorResults: []domain.ServiceCandidate{vecCand(1, 0.9)}}
	emb := &mockEmbedder{vec: []float32{0.1, 0.2}}
	r := New(catalog, emb, testConfig())

	vec := r.SearchVector(context.Background(), testQuery("piano"), time.Second)
	if vec.Reason != "" {
		t.Errorf("reason: got %q", vec.Reason)
	}
	if len(vec.Candidates) != 1 {
		t.Errorf("candidates: got %d", len(vec.Candidates))
	}
}

// --- Combined entry point ---

func TestSearch_ShortcutSkipsVector(t *testing.T) {
	catalog := &mockCatalog{
		hasEmbeddings: true,
		textResults: []domain.ServiceCandidate{
			textCand(1, 0.8), textCand(2, 0.6), textCand(3, 0.6), textCand(4, 0.6), textCand(5, 0.6),
		},
	}
	emb := &mockEmbedder{vec: []float32{0.1}}
	r := New(catalog, emb, testConfig())

	res, err := r.Search(context.Background(), testQuery("piano lessons"), 0, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.called {
		t.Error("shortcut must skip the embedding call")
	}
	if res.Degraded {
		t.Error("shortcut is not a degradation")
	}
	if len(res.Candidates) != 5 {
		t.Errorf("candidates: got %d", len(res.Candidates))
	}
}

func TestSearch_LexicalErrorPropagates(t *testing.T) {
	catalog := &mockCatalog{textErr: errors.New("db down")}
	r := New(catalog, &mockEmbedder{}, testConfig())

	if _, err := r.Search(context.Background(), testQuery("piano"), 0, time.Second); err == nil {
		t.Fatal("expected error")
	}
}
