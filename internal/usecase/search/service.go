// Package search orchestrates the full query pipeline: cache check, parse,
// a first burst of cheap concurrent work, a budget-gated second burst of
// expensive work, score fusion, constraint filtering and finalization.
// Every run terminates in a response; failures degrade, they never abort.
package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
	"github.com/kailas-cloud/lessonsearch/internal/domain/budget"
	"github.com/kailas-cloud/lessonsearch/internal/domain/timing"
	"github.com/kailas-cloud/lessonsearch/internal/metrics"
	"github.com/kailas-cloud/lessonsearch/internal/usecase/parse"
	"github.com/kailas-cloud/lessonsearch/internal/usecase/retrieve"
)

// Config holds the orchestrator tunables.
type Config struct {
	SearchBudget      time.Duration
	HighLoadBudget    time.Duration
	HighLoadThreshold int64

	BudgetThresholds budget.Thresholds

	MaxCandidates int

	// UncachedConcurrency bounds concurrent uncached pipeline runs.
	// Cache hits bypass the gate.
	UncachedConcurrency int64
}

// Request is one search invocation.
type Request struct {
	Query      string
	RegionCode string
	// Coordinates back the near-me distance filter. Optional.
	Coordinates *domain.Coordinates
}

// Service is the pipeline orchestrator.
type Service struct {
	parser    QueryParser
	llmParser LLMParser
	locations LocationResolver
	retriever Retriever
	filters   ConstraintFilter
	cache     ResponseCache
	cfg       Config
	log       *zap.Logger

	sem      *semaphore.Weighted
	inFlight atomic.Int64
}

// NewService wires the pipeline.
func NewService(
	parser QueryParser,
	llmParser LLMParser,
	locations LocationResolver,
	retriever Retriever,
	filters ConstraintFilter,
	cache ResponseCache,
	cfg Config,
	log *zap.Logger,
) *Service {
	if cfg.UncachedConcurrency <= 0 {
		cfg.UncachedConcurrency = 1
	}
	return &Service{
		parser:    parser,
		llmParser: llmParser,
		locations: locations,
		retriever: retriever,
		filters:   filters,
		cache:     cache,
		cfg:       cfg,
		log:       log,
		sem:       semaphore.NewWeighted(cfg.UncachedConcurrency),
	}
}

// Search runs one query through the pipeline. The only error it returns is
// domain.ErrRateLimited; everything else degrades into the response.
func (s *Service) Search(ctx context.Context, req Request) (*domain.SearchResponse, error) {
	timer := timing.NewTimer()
	normalized := parse.Normalize(req.Query)

	stopCache := timer.Track("cache_check")
	cached, hit := s.cache.GetResponse(ctx, normalized, req.RegionCode)
	stopCache()
	if hit {
		cached.Cached = true
		cached.Stages = timer.Stages()
		cached.TotalMS = timer.TotalMS()
		metrics.SearchRequestsTotal.WithLabelValues("cached").Inc()
		return cached, nil
	}

	if !s.sem.TryAcquire(1) {
		metrics.SearchRequestsTotal.WithLabelValues("rate_limited").Inc()
		return nil, domain.ErrRateLimited
	}
	defer s.sem.Release(1)

	n := s.inFlight.Add(1)
	metrics.UncachedInFlight.Inc()
	defer func() {
		s.inFlight.Add(-1)
		metrics.UncachedInFlight.Dec()
	}()

	total := s.cfg.SearchBudget
	if n > s.cfg.HighLoadThreshold {
		total = s.cfg.HighLoadBudget
	}
	bud := budget.New(total, s.cfg.BudgetThresholds)
	meter := timing.NewMetrics()

	log := s.log.With(zap.String("query", normalized))

	pq := s.parseQuery(ctx, req.Query, normalized, timer)

	lex, loc := s.burstOne(ctx, &pq, timer, log)

	var vec *retrieve.VectorResult
	vec, loc, pq = s.burstTwo(ctx, bud, meter, timer, pq, lex, &loc)

	ret := s.assemble(lex, vec, meter)

	stopFilter := timer.Track("filter")
	filtered, filterReasons := s.filters.Filter(ctx, ret.Candidates, pq, loc, req.Coordinates)
	stopFilter()
	for _, r := range filterReasons {
		meter.AddReason(r)
	}

	return s.finalize(ctx, normalized, req.RegionCode, filtered, loc, bud, meter, timer), nil
}

// parseQuery returns the parsed form of the raw query, consulting the
// parsed-query cache first.
func (s *Service) parseQuery(ctx context.Context, rawQuery, normalized string, timer *timing.Timer) domain.ParsedQuery {
	stop := timer.Track("parse")
	defer stop()

	if cached, ok := s.cache.GetParsedQuery(ctx, normalized); ok {
		return *cached
	}
	pq := s.parser.Parse(rawQuery)
	s.cache.SetParsedQuery(ctx, normalized, &pq)
	return pq
}

// burstOne runs the cheap concurrent work: the lexical pass and the
// deterministic location tiers. A lexical failure leaves an empty result,
// the vector pass may still recover candidates.
func (s *Service) burstOne(ctx context.Context, pq *domain.ParsedQuery, timer *timing.Timer, log *zap.Logger) (retrieve.LexicalResult, domain.ResolvedLocation) {
	stop := timer.Track("burst1")
	defer stop()

	var (
		wg  sync.WaitGroup
		lex retrieve.LexicalResult
		loc domain.ResolvedLocation
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		res, err := s.retriever.SearchLexical(ctx, pq)
		if err != nil {
			log.Warn("Lexical pass failed", zap.Error(err))
		}
		lex = res
	}()
	go func() {
		defer wg.Done()
		res, err := s.locations.ResolveDeterministic(ctx, pq.LocationText, pq.LocationType)
		if err != nil {
			log.Warn("Deterministic location resolution failed", zap.Error(err))
		}
		loc = res
	}()
	wg.Wait()
	return lex, loc
}

// burstTwo runs whatever expensive work is still needed and still
// affordable: the embedding + vector pass, the LLM reparse and the
// LLM-assisted location tier. Tasks share a context bounded by the
// remaining budget, so a late task is cancelled rather than incorporated.
func (s *Service) burstTwo(
	ctx context.Context,
	bud *budget.Budget,
	meter *timing.Metrics,
	timer *timing.Timer,
	pq domain.ParsedQuery,
	lex retrieve.LexicalResult,
	loc *domain.ResolvedLocation,
) (*retrieve.VectorResult, domain.ResolvedLocation, domain.ParsedQuery) {
	needVector := !s.retriever.LexicalAloneSufficient(lex)
	needReparse := pq.NeedsLLM && pq.Mode == domain.ParsingModeRegex
	needLLMLoc := pq.LocationType == domain.LocationNeighborhood && pq.LocationText != "" && loc.NotFound()

	if needVector {
		switch {
		case !bud.CanAfford(budget.OpTier4Embedding):
			s.skip(bud, budget.OpTier4Embedding, "vector_search", timer)
			needVector = false
		case !bud.CanAfford(budget.OpVectorSearch):
			s.skip(bud, budget.OpVectorSearch, "vector_search", timer)
			needVector = false
		}
	}
	if (needReparse || needLLMLoc) && !bud.CanAfford(budget.OpTier5LLM) {
		if needReparse {
			timer.MarkSkipped("llm_parse")
		}
		if needLLMLoc {
			timer.MarkSkipped("llm_location")
		}
		s.skip(bud, budget.OpTier5LLM, "", timer)
		needReparse, needLLMLoc = false, false
	}
	if !needVector && !needReparse && !needLLMLoc {
		if s.retriever.LexicalAloneSufficient(lex) {
			timer.MarkSkipped("burst2")
		}
		return nil, *loc, pq
	}

	stop := timer.Track("burst2")
	defer stop()

	b2ctx, cancel := context.WithTimeout(ctx, bud.Remaining())
	defer cancel()

	var (
		wg            sync.WaitGroup
		vec           retrieve.VectorResult
		reparsed      *domain.ParsedQuery
		reparseReason domain.DegradationReason
		llmLoc        *domain.ResolvedLocation
		llmLocFailed  bool
	)
	if needVector {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec = s.retriever.SearchVector(b2ctx, &pq, bud.Remaining())
		}()
	}
	if needReparse {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.llmParser.Parse(b2ctx, pq.RawQuery)
			if err != nil {
				reparseReason = domain.DegradationLLMParseUnavailable
				if errors.Is(err, domain.ErrLLMTimeout) || errors.Is(err, context.DeadlineExceeded) {
					reparseReason = domain.DegradationLLMParseTimeout
				}
				return
			}
			reparsed = &p
		}()
	}
	if needLLMLoc {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := s.locations.ResolveLLM(b2ctx, pq.LocationText)
			if err != nil {
				llmLocFailed = true
				return
			}
			llmLoc = &l
		}()
	}
	wg.Wait()

	var vecOut *retrieve.VectorResult
	if needVector {
		vecOut = &vec
	}
	if reparseReason != "" {
		meter.AddReason(reparseReason)
	}
	if llmLocFailed {
		meter.AddReason(domain.DegradationLLMLocationFailed)
	}

	out := *loc
	if llmLoc != nil {
		out = *llmLoc
	}
	if reparsed != nil {
		pq = *reparsed
		// A refined location phrase gets one more deterministic pass;
		// tiers 1-3 are cheap lookups. A clarification outcome already
		// carries candidate regions and must not be overwritten.
		if out.NotFound() && pq.LocationText != "" {
			if l, err := s.locations.ResolveDeterministic(ctx, pq.LocationText, pq.LocationType); err == nil {
				out = l
			}
		}
	}
	return vecOut, out, pq
}

// assemble fuses whatever retrieval produced into one ranked set.
func (s *Service) assemble(lex retrieve.LexicalResult, vec *retrieve.VectorResult, meter *timing.Metrics) domain.RetrievalResult {
	if vec != nil {
		ret := s.retriever.Fuse(lex, *vec, s.cfg.MaxCandidates)
		meter.AddReason(ret.DegradationReason)
		return ret
	}
	return s.retriever.LexicalOnly(lex, "", s.cfg.MaxCandidates)
}

func (s *Service) skip(bud *budget.Budget, op budget.Operation, stage string, timer *timing.Timer) {
	bud.Skip(op)
	metrics.SkippedOperationsTotal.WithLabelValues(string(op)).Inc()
	if stage != "" {
		timer.MarkSkipped(stage)
	}
}

// finalize builds the response, records metrics and writes the response
// cache. Degraded responses are not cached: a retry deserves a full run.
func (s *Service) finalize(
	ctx context.Context,
	normalized, regionCode string,
	filtered domain.FilteredResult,
	loc domain.ResolvedLocation,
	bud *budget.Budget,
	meter *timing.Metrics,
	timer *timing.Timer,
) *domain.SearchResponse {
	if bud.IsDegraded() {
		meter.AddReason(domain.DegradationBudgetSkipped)
	}
	degraded := meter.Degraded()
	reasons := meter.Reasons()
	for _, r := range reasons {
		metrics.DegradationsTotal.WithLabelValues(r).Inc()
	}

	resp := &domain.SearchResponse{
		Results:            filtered.Candidates,
		Degraded:           degraded,
		DegradationReasons: reasons,
		FiltersApplied:     filtered.FiltersApplied,
		Stages:             timer.Stages(),
		TotalMS:            timer.TotalMS(),
	}
	if loc.Resolved || loc.RequiresClarification {
		l := loc
		resp.Location = &l
	}

	for _, st := range resp.Stages {
		if !st.Skipped {
			metrics.StageDuration.WithLabelValues(st.Stage).Observe(float64(st.Millis) / 1000.0)
		}
	}
	outcome := "full"
	if degraded {
		outcome = "degraded"
	}
	metrics.SearchRequestsTotal.WithLabelValues(outcome).Inc()

	if !degraded {
		s.cache.SetResponse(ctx, normalized, regionCode, resp)
	}
	return resp
}
