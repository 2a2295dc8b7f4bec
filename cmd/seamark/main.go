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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/cache"
	"github.com/seamark-nav/seamark/internal/config"
	"github.com/seamark-nav/seamark/internal/domain"
	logpkg "github.com/seamark-nav/seamark/internal/logger"
	"github.com/seamark-nav/seamark/internal/metrics"
	"github.com/seamark-nav/seamark/internal/repository/embcache"
	vectorrepo "github.com/seamark-nav/seamark/internal/repository/vector"
	websiterepo "github.com/seamark-nav/seamark/internal/repository/website"
	chiTransport "github.com/seamark-nav/seamark/internal/transport/chi"
	openaiClient "github.com/seamark-nav/seamark/internal/transport/openai"
	indexjobuc "github.com/seamark-nav/seamark/internal/usecase/indexjob"
	intentuc "github.com/seamark-nav/seamark/internal/usecase/intent"
	searchuc "github.com/seamark-nav/seamark/internal/usecase/search"
	vectorsearchuc "github.com/seamark-nav/seamark/internal/usecase/vectorsearch"
	"github.com/seamark-nav/seamark/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting seamark search server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_path", cfg.Store.Path),
		zap.Bool("ai_configured", cfg.AIConfigured()),
		zap.Bool("vector_configured", cfg.VectorConfigured()),
	)

	// Website store: the navigation app's sqlite database, read-only here.
	websites, err := websiterepo.Open(cfg.Store.Path)
	if err != nil {
		logger.Fatal("Failed to open website store", zap.Error(err))
	}
	defer func() { _ = websites.Close() }()

	ctx := context.Background()

	// Register metrics explicitly (no init())
	metrics.Register()

	resultCache := cache.New(time.Duration(cfg.Search.CacheTTLSec)*time.Second, cfg.Search.CacheSize)

	// Vector stage: Redis-backed similarity store plus the embedder chain.
	// Optional — missing config degrades search to keyword-only.
	var (
		vecStore *vectorrepo.Store
		vecSvc   *vectorsearchuc.Service
	)
	if cfg.VectorConfigured() {
		vecStore, err = vectorrepo.NewStore(vectorrepo.Config{
			Addrs:    cfg.Vector.Addrs,
			Password: cfg.Vector.Password,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create vector store", zap.Error(err))
		}
		defer vecStore.Close()

		if err := vecStore.WaitForReady(ctx, time.Duration(cfg.Vector.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Vector store not ready", zap.Error(err))
		}
		logger.Info("Connected to vector store", zap.Strings("addrs", cfg.Vector.Addrs))

		// Embedder chain: OpenAI-compatible provider -> cache decorator.
		base := openaiClient.NewEmbedder(&openaiClient.EmbedderConfig{
			APIKey:  cfg.AI.APIKey,
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.EmbeddingModel,
			Logger:  logger,
		})
		embedder := embcache.New(
			base,
			cache.New(time.Duration(cfg.Search.VectorCacheTTLSec)*time.Second, cfg.Search.CacheSize),
			time.Duration(cfg.Search.VectorCacheTTLSec)*time.Second,
			metrics.EmbeddingCacheTotal,
			logger,
		)

		vecSvc = vectorsearchuc.New(embedder, vecStore, cfg.Vector.MaxResults, cfg.Vector.Threshold, logger)
		logger.Info("Vector search enabled",
			zap.String("model", cfg.AI.EmbeddingModel),
			zap.Int("max_results", cfg.Vector.MaxResults),
			zap.Float64("threshold", cfg.Vector.Threshold),
		)
	}

	// Intent service: the two LLM calls. Optional as well.
	var intentSvc *intentuc.Service
	if cfg.AIConfigured() {
		completer := openaiClient.NewCompleter(&openaiClient.CompleterConfig{
			APIKey:      cfg.AI.APIKey,
			BaseURL:     cfg.AI.BaseURL,
			Model:       cfg.AI.ChatModel,
			Temperature: cfg.AI.Temperature,
		})
		intentSvc = intentuc.New(completer, logger)
		logger.Info("Intent analysis enabled", zap.String("model", cfg.AI.ChatModel))
	}

	// Pass nil interfaces (not typed nil pointers!) for unconfigured stages.
	// Go gotcha: (*vectorsearch.Service)(nil) wrapped in VectorSearcher != nil.
	var vectors searchuc.VectorSearcher
	if vecSvc != nil {
		vectors = vecSvc
	}
	var intents searchuc.IntentService
	if intentSvc != nil {
		intents = intentSvc
	}

	searchSvc := searchuc.New(websites, vectors, intents, resultCache, searchuc.Options{
		KeywordLimit:       cfg.Search.KeywordLimit,
		CandidateCap:       cfg.Search.CandidateCap,
		MaxRecommendations: cfg.Search.MaxRecommendations,
	}, logger)
	searchSvc.SetStreamPacing(cfg.Search.StreamBatchSize,
		time.Duration(cfg.Search.StreamBatchDelayMs)*time.Millisecond)

	// Background indexing only makes sense with a vector stage.
	var batch chiTransport.BatchAdmin = disabledBatch{}
	if vecSvc != nil {
		jobSvc := indexjobuc.New(websites, vecSvc, indexjobuc.Options{
			Workers:   cfg.Indexing.Workers,
			QueueSize: cfg.Indexing.QueueSize,
			ItemDelay: time.Duration(cfg.Indexing.ItemDelayMs) * time.Millisecond,
		}, logger)
		jobSvc.Start(ctx)
		defer jobSvc.Close()
		batch = jobSvc
	}

	server := chiTransport.NewServer(searchSvc, resultCache, batch, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
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

// disabledBatch answers the batch admin endpoints when no vector backend is
// configured.
type disabledBatch struct{}

func (disabledBatch) StartBatch(context.Context, bool) error {
	return fmt.Errorf("vector indexing: %w", domain.ErrConfigIncomplete)
}

func (disabledBatch) StopBatch() {}

func (disabledBatch) BatchStatus() indexjobuc.Status { return indexjobuc.Status{} }

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

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

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
