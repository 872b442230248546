package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lessonsearch/internal/config"
	dbPostgres "github.com/kailas-cloud/lessonsearch/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/lessonsearch/internal/db/redis"
	"github.com/kailas-cloud/lessonsearch/internal/domain/budget"
	logpkg "github.com/kailas-cloud/lessonsearch/internal/logger"
	"github.com/kailas-cloud/lessonsearch/internal/metrics"
	"github.com/kailas-cloud/lessonsearch/internal/repository/availability"
	cacherepo "github.com/kailas-cloud/lessonsearch/internal/repository/cache"
	"github.com/kailas-cloud/lessonsearch/internal/repository/catalog"
	"github.com/kailas-cloud/lessonsearch/internal/repository/embcache"
	"github.com/kailas-cloud/lessonsearch/internal/repository/region"
	"github.com/kailas-cloud/lessonsearch/internal/resilience"
	chiTransport "github.com/kailas-cloud/lessonsearch/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/lessonsearch/internal/transport/openai"
	filteruc "github.com/kailas-cloud/lessonsearch/internal/usecase/filter"
	healthuc "github.com/kailas-cloud/lessonsearch/internal/usecase/health"
	locationuc "github.com/kailas-cloud/lessonsearch/internal/usecase/location"
	parseuc "github.com/kailas-cloud/lessonsearch/internal/usecase/parse"
	retrieveuc "github.com/kailas-cloud/lessonsearch/internal/usecase/retrieve"
	searchuc "github.com/kailas-cloud/lessonsearch/internal/usecase/search"
	"github.com/kailas-cloud/lessonsearch/internal/version"
)

const redisReadinessTimeout = 30 * time.Second

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting lessonsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	ctx := context.Background()

	pg, err := dbPostgres.Open(ctx, dbPostgres.Config{
		DSN:          cfg.Postgres.DSN,
		MaxConns:     cfg.Postgres.MaxConns,
		ConnLifetime: time.Duration(cfg.Postgres.ConnLifetimeMin) * time.Minute,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer func() { _ = pg.Close() }()
	logger.Info("Connected to Postgres")

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create cache store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, redisReadinessTimeout); err != nil {
		logger.Fatal("Cache store not ready", zap.Error(err))
	}
	logger.Info("Connected to cache store")

	// Register metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()
	metrics.RegisterProviderMetrics()

	breaker := resilience.NewExecutor(resilience.Config{}, logger)

	// Embedder chain: OpenAI -> cached
	var embedder retrieveuc.Embedder
	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Breaker:    breaker,
		Logger:     logger,
	})
	embedder = embcache.New(baseEmbedder, store, cfg.Cache.KeyPrefix, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	llm := openaiTransport.NewLLM(&openaiTransport.LLMConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Breaker: breaker,
		Logger:  logger,
	})

	// Repositories
	catalogRepo := catalog.New(pg)
	regionRepo := region.New(pg)
	availabilityRepo := availability.New(pg)
	responseCache := cacherepo.New(store, cacherepo.Config{
		KeyPrefix:      cfg.Cache.KeyPrefix,
		ResponseTTL:    time.Duration(cfg.Cache.ResponseTTLSec) * time.Second,
		ParsedQueryTTL: time.Duration(cfg.Cache.ParsedQueryTTLSec) * time.Second,
	}, logger)

	// Use case services
	parser := parseuc.New()
	resolver := locationuc.New(regionRepo, llm, cfg.Search.FuzzySimilarityFloor)
	retriever := retrieveuc.New(catalogRepo, embedder, retrieveuc.Config{
		VectorWeight:                 cfg.Search.VectorWeight,
		TextWeight:                   cfg.Search.TextWeight,
		SingleSourcePenalty:          cfg.Search.SingleSourcePenalty,
		VectorTopK:                   cfg.Search.VectorTopK,
		TextTopK:                     cfg.Search.TextTopK,
		MaxCandidates:                cfg.Search.MaxCandidates,
		TextSkipVectorScoreThreshold: cfg.Search.TextSkipVectorScoreThreshold,
		TextSkipVectorMinResults:     cfg.Search.TextSkipVectorMinResults,
		GuardrailMaxTokens:           cfg.Search.GuardrailMaxTokens,
		EmbeddingTimeout:             time.Duration(cfg.Search.EmbeddingTimeoutMS) * time.Millisecond,
	})
	filters := filteruc.NewService(regionRepo, availabilityRepo, filteruc.Config{
		SoftDistanceKM: cfg.Search.SoftDistanceKM,
	}, logger)
	searchSvc := searchuc.NewService(parser, llm, resolver, retriever, filters, responseCache, searchuc.Config{
		SearchBudget:      time.Duration(cfg.Search.SearchBudgetMS) * time.Millisecond,
		HighLoadBudget:    time.Duration(cfg.Search.HighLoadBudgetMS) * time.Millisecond,
		HighLoadThreshold: int64(cfg.Search.HighLoadThreshold),
		BudgetThresholds: budget.Thresholds{
			VectorSearch: time.Duration(cfg.Search.MinVectorSearchMS) * time.Millisecond,
			Embedding:    time.Duration(cfg.Search.MinEmbeddingMS) * time.Millisecond,
			LLM:          time.Duration(cfg.Search.MinLLMMS) * time.Millisecond,
		},
		MaxCandidates:       cfg.Search.MaxCandidates,
		UncachedConcurrency: int64(cfg.Search.UncachedConcurrency),
	}, logger)
	healthSvc := healthuc.New(pg, store, baseEmbedder)

	// HTTP server
	server := chiTransport.NewServer(searchSvc, healthSvc, logger)
	handler := server.Routes(
		jsonRecoverer(logger),
		wideEventMiddleware(logger),
		chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys),
		metrics.Middleware(),
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Honor an inbound request id, mint one otherwise
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
