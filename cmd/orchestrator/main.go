// cmd/orchestrator/main.go
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bidforge/internal/backend"
	"bidforge/internal/cache"
	"bidforge/internal/common/aws"
	"bidforge/internal/common/config"
	apperrors "bidforge/internal/common/errors"
	"bidforge/internal/common/database"
	"bidforge/internal/common/logger"
	"bidforge/internal/embedding"
	"bidforge/internal/intelligence"
	"bidforge/internal/orchestrator"
	"bidforge/internal/retrieval"
	"bidforge/internal/search"
	"bidforge/internal/store"
	"bidforge/internal/usage"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting bid generation orchestrator...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis (optional, degrades to always-miss cache) ---
	var cacheFacade *cache.Facade
	if cfg.Cache.Enabled {
		var redisClient *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redisClient, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redisClient.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Warn("redis unavailable, running without cache", zap.Error(err))
			cacheFacade = cache.New(nil, log)
		} else {
			defer redisClient.Close()
			cacheFacade = cache.New(redisClient.Client, log)
			zapLog.Info("Redis connected successfully")
		}
	} else {
		cacheFacade = cache.New(nil, log)
		zapLog.Info("Cache disabled by configuration")
	}

	// --- Init SNS usage publisher (optional) ---
	var publisher usage.Publisher
	if cfg.Usage.SNSTopicARN != "" {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Usage.AWSRegion, cfg.Usage.SNSEndpoint)
		if err != nil {
			zapLog.Warn("sns unavailable, usage events disabled", zap.Error(err))
		} else {
			publisher = snsClient
			zapLog.Info("SNS usage publisher initialized", zap.String("topic", cfg.Usage.SNSTopicARN))
		}
	}

	// --- Backend registry ---
	registry, models := buildRegistry(ctx, cfg, log, zapLog)

	// --- Retrieval + persistence wiring ---
	artifacts := store.NewArtifactStore(pg.DB, log)
	searchClient := search.NewClient(esClient.Client, cfg.Database.Elasticsearch)
	embedder := embedding.NewClient(cfg.Backends.OpenAI.APIKey, cfg.Retrieval.EmbeddingModel)

	var intel retrieval.IntelligenceSearcher
	if cfg.Intelligence.Enabled && cfg.Intelligence.BaseURL != "" {
		intel = intelligence.NewClient(cfg.Intelligence, log)
		zapLog.Info("Document intelligence source enabled", zap.String("baseUrl", cfg.Intelligence.BaseURL))
	}

	fanout, err := retrieval.NewFanout(
		embedder,
		searchClient,
		searchClient,
		intel,
		artifacts,
		cacheFacade,
		retrieval.Config{
			HybridLimit:       cfg.Retrieval.HybridLimit,
			KnowledgeLimit:    cfg.Retrieval.KnowledgeLimit,
			Weights:           search.Weights{Vector: cfg.Retrieval.VectorWeight, Text: cfg.Retrieval.TextWeight},
			FallbackDocLimit:  cfg.Retrieval.FallbackDocLimit,
			MetadataCacheSize: cfg.Retrieval.MetadataCacheSize,
		},
		log,
	)
	if err != nil {
		zapLog.Fatal("retrieval fanout init failed", zap.Error(err))
	}

	persister := usage.NewPersister(artifacts, publisher, cfg.Usage.SNSTopicARN, log)

	service := orchestrator.NewService(
		artifacts, fanout, registry, persister, cacheFacade,
		orchestrator.Config{
			MaxRetries:     cfg.Generation.MaxRetries,
			MaxConcurrency: cfg.Generation.MaxConcurrency,
			CacheEnabled:   cfg.Cache.Enabled,
			Models:         models,
		},
		log,
	)

	// --- HTTP API ---
	timeout := time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
	mux := http.NewServeMux()
	mux.HandleFunc("/api/bids/generate", handleGenerate(service, timeout, zapLog))
	mux.HandleFunc("/api/bids/compare", handleCompare(service, timeout, zapLog))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := cfg.App.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		zapLog.Info("API server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Orchestrator stopped gracefully")
}

// buildRegistry registers every enabled backend and returns the
// backend-to-model mapping recorded on artifacts.
func buildRegistry(ctx context.Context, cfg *config.Config, log logger.Logger, zapLog *zap.Logger) (*backend.Registry, map[backend.Name]string) {
	defaultName, ok := backend.ParseName(cfg.Backends.Default)
	if !ok {
		defaultName = backend.OpenAI
	}

	registry := backend.NewRegistry(defaultName, log)
	models := make(map[backend.Name]string)

	if cfg.Backends.OpenAI.Enabled {
		registry.Register(backend.NewOpenAI(cfg.Backends.OpenAI))
		models[backend.OpenAI] = cfg.Backends.OpenAI.Model
	}
	if cfg.Backends.Anthropic.Enabled {
		registry.Register(backend.NewAnthropic(cfg.Backends.Anthropic))
		models[backend.Anthropic] = cfg.Backends.Anthropic.Model
	}
	if cfg.Backends.Gemini.Enabled {
		gemini, err := backend.NewGemini(ctx, cfg.Backends.Gemini)
		if err != nil {
			zapLog.Warn("gemini backend unavailable", zap.Error(err))
		} else {
			registry.Register(gemini)
			models[backend.Gemini] = cfg.Backends.Gemini.Model
		}
	}
	if cfg.Backends.DeepSeek.Enabled {
		registry.Register(backend.NewDeepSeek(cfg.Backends.DeepSeek))
		models[backend.DeepSeek] = cfg.Backends.DeepSeek.Model
	}
	if cfg.Backends.Qwen.Enabled {
		registry.Register(backend.NewQwen(cfg.Backends.Qwen))
		models[backend.Qwen] = cfg.Backends.Qwen.Model
	}

	zapLog.Info("Model backends registered",
		zap.Any("backends", registry.Names()),
		zap.String("default", string(defaultName)),
	)
	return registry, models
}

// generateRequest is the wire form of a generation call.
type generateRequest struct {
	ProjectID    string   `json:"projectId"`
	CompanyID    *string  `json:"companyId,omitempty"`
	UserID       *string  `json:"userId,omitempty"`
	Instructions string   `json:"instructions"`
	Tone         string   `json:"tone,omitempty"`
	Backend      string   `json:"backend,omitempty"`
	Backends     []string `json:"backends,omitempty"`
	DisableCache bool     `json:"disableCache,omitempty"`
}

func (r generateRequest) toDomain() orchestrator.GenerationRequest {
	req := orchestrator.GenerationRequest{
		ProjectID:    r.ProjectID,
		CompanyID:    r.CompanyID,
		UserID:       r.UserID,
		Instructions: r.Instructions,
		Tone:         r.Tone,
		Backend:      backend.Name(r.Backend),
	}
	for _, name := range r.Backends {
		req.Backends = append(req.Backends, backend.Name(name))
	}
	return req
}

func handleGenerate(service *orchestrator.Service, timeout time.Duration, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		result, err := service.GenerateBid(ctx, req.toDomain(), orchestrator.Options{
			DisableCache: req.DisableCache,
		})
		if err != nil {
			writeError(w, err, log)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleCompare(service *orchestrator.Service, timeout time.Duration, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		outcome, err := service.GenerateBidComparison(ctx, req.toDomain(), orchestrator.Options{
			DisableCache: req.DisableCache,
		})
		if err != nil {
			writeError(w, err, log)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error, log *zap.Logger) {
	log.Error("request failed", zap.Error(err))
	writeJSON(w, httpStatusFor(err), map[string]string{"error": err.Error()})
}

func httpStatusFor(err error) int {
	var stdErr *apperrors.StandardError
	if !stderrors.As(err, &stdErr) {
		return http.StatusInternalServerError
	}
	switch stdErr.Code {
	case apperrors.ErrCodeProjectNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeInvalidRequest, apperrors.ErrCodeComparisonTooSmall:
		return http.StatusBadRequest
	case apperrors.ErrCodeBackendExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
