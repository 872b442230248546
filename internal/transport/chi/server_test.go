package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
	healthuc "github.com/kailas-cloud/lessonsearch/internal/usecase/health"
	"github.com/kailas-cloud/lessonsearch/internal/usecase/retrieve"
	searchuc "github.com/kailas-cloud/lessonsearch/internal/usecase/search"
)

// --- Stubs ---

type stubParser struct{}

func (stubParser) Parse(rawQuery string) domain.ParsedQuery {
	return domain.ParsedQuery{RawQuery: rawQuery, Mode: domain.ParsingModeRegex}
}

type stubLLMParser struct{}

func (stubLLMParser) Parse(context.Context, string) (domain.ParsedQuery, error) {
	return domain.ParsedQuery{}, errors.New("unavailable")
}

type stubResolver struct{}

func (stubResolver) ResolveDeterministic(context.Context, string, domain.LocationType) (domain.ResolvedLocation, error) {
	return domain.LocationNotFound(), nil
}

func (stubResolver) ResolveLLM(context.Context, string) (domain.ResolvedLocation, error) {
	return domain.LocationNotFound(), nil
}

type stubRetriever struct{}

func (stubRetriever) SearchLexical(context.Context, *domain.ParsedQuery) (retrieve.LexicalResult, error) {
	return retrieve.LexicalResult{}, nil
}

func (stubRetriever) LexicalAloneSufficient(retrieve.LexicalResult) bool { return true }

func (stubRetriever) SearchVector(context.Context, *domain.ParsedQuery, time.Duration) retrieve.VectorResult {
	return retrieve.VectorResult{}
}

func (stubRetriever) Fuse(lex retrieve.LexicalResult, _ retrieve.VectorResult, _ int) domain.RetrievalResult {
	return domain.RetrievalResult{Candidates: lex.Candidates}
}

func (stubRetriever) LexicalOnly(lex retrieve.LexicalResult, _ domain.DegradationReason, _ int) domain.RetrievalResult {
	return domain.RetrievalResult{Candidates: lex.Candidates}
}

type stubFilter struct{}

func (stubFilter) Filter(
	_ context.Context, cands []domain.ServiceCandidate, _ domain.ParsedQuery,
	_ domain.ResolvedLocation, _ *domain.Coordinates,
) (domain.FilteredResult, []domain.DegradationReason) {
	return domain.FilteredResult{Candidates: cands}, nil
}

type stubCache struct {
	resp *domain.SearchResponse
}

func (s *stubCache) GetResponse(context.Context, string, string) (*domain.SearchResponse, bool) {
	if s.resp == nil {
		return nil, false
	}
	r := *s.resp
	return &r, true
}

func (s *stubCache) SetResponse(context.Context, string, string, *domain.SearchResponse) {}

func (s *stubCache) GetParsedQuery(context.Context, string) (*domain.ParsedQuery, bool) {
	return nil, false
}

func (s *stubCache) SetParsedQuery(context.Context, string, *domain.ParsedQuery) {}

type stubPinger struct{ err error }

func (s stubPinger) PingContext(context.Context) error { return s.err }

// --- Helpers ---

func newTestServer(cache *stubCache, dbErr error) http.Handler {
	search := searchuc.NewService(
		stubParser{}, stubLLMParser{}, stubResolver{}, stubRetriever{}, stubFilter{}, cache,
		searchuc.Config{
			SearchBudget:        2 * time.Second,
			HighLoadBudget:      time.Second,
			HighLoadThreshold:   20,
			MaxCandidates:       60,
			UncachedConcurrency: 4,
		},
		zap.NewNop(),
	)
	health := healthuc.New(stubPinger{err: dbErr}, nil, nil)
	return NewServer(search, health, zap.NewNop()).Routes()
}

func postSearch(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// --- Tests ---

func TestSearchHandler_InvalidJSON(t *testing.T) {
	handler := newTestServer(&stubCache{}, nil)
	rr := postSearch(t, handler, "{not json")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeBadRequest {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeBadRequest)
	}
}

func TestSearchHandler_EmptyQuery(t *testing.T) {
	handler := newTestServer(&stubCache{}, nil)
	rr := postSearch(t, handler, `{"query": ""}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeValidationFailed {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeValidationFailed)
	}
}

func TestSearchHandler_QueryTooLong(t *testing.T) {
	handler := newTestServer(&stubCache{}, nil)
	rr := postSearch(t, handler, `{"query": "`+strings.Repeat("a", maxQueryLength+1)+`"}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSearchHandler_OK(t *testing.T) {
	handler := newTestServer(&stubCache{}, nil)
	rr := postSearch(t, handler, `{"query": "piano lessons in brooklyn"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp domain.SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Degraded {
		t.Errorf("degraded: got true, reasons %v", resp.DegradationReasons)
	}
}

func TestSearchHandler_CachedResponse(t *testing.T) {
	cache := &stubCache{resp: &domain.SearchResponse{Results: []domain.ServiceCandidate{{ServiceID: 3}}}}
	handler := newTestServer(cache, nil)
	rr := postSearch(t, handler, `{"query": "piano lessons"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp domain.SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Cached {
		t.Error("cached: got false")
	}
	if len(resp.Results) != 1 || resp.Results[0].ServiceID != 3 {
		t.Errorf("results: got %+v", resp.Results)
	}
}

func TestHandleDomainError_RateLimited(t *testing.T) {
	srv := NewServer(nil, nil, zap.NewNop())
	rr := httptest.NewRecorder()
	srv.handleDomainError(rr, domain.ErrRateLimited)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeRateLimited {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeRateLimited)
	}
}

func TestHandleDomainError_Unknown(t *testing.T) {
	srv := NewServer(nil, nil, zap.NewNop())
	rr := httptest.NewRecorder()
	srv.handleDomainError(rr, errors.New("boom"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestHealthHandler_Degraded503(t *testing.T) {
	handler := newTestServer(&stubCache{}, errors.New("connection refused"))

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestHealthHandler_OK(t *testing.T) {
	handler := newTestServer(&stubCache{}, nil)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}
