// Package main provides the ResearchFlow server implementation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/researchflow/researchflow/api/handlers"
	"github.com/researchflow/researchflow/config"
	"github.com/researchflow/researchflow/internal/cache"
	"github.com/researchflow/researchflow/internal/llmclient"
	"github.com/researchflow/researchflow/internal/metrics"
	"github.com/researchflow/researchflow/internal/orchestrator"
	"github.com/researchflow/researchflow/internal/progress"
	"github.com/researchflow/researchflow/internal/providers"
	"github.com/researchflow/researchflow/internal/retrieval"
	serverpkg "github.com/researchflow/researchflow/internal/server"
	"github.com/researchflow/researchflow/internal/store"
	"github.com/researchflow/researchflow/internal/telemetry"
	"github.com/researchflow/researchflow/types"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server is the ResearchFlow main server: it wires the cache, progress bus,
// provider set, retrieval stage, persistence store, LLM client, and
// orchestrator together, then exposes them over an HTTP API plus a
// separate metrics port.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	redisForCache    *cache.Manager
	redisForProgress *redis.Client
	store            store.Store
	mongoStore       *store.MongoStore
	bus              *progress.Bus
	orch             *orchestrator.Orchestrator
	broker           *handlers.CheckpointBroker

	httpManager    *serverpkg.Manager
	metricsManager *serverpkg.Manager

	healthHandler   *handlers.HealthHandler
	researchHandler *handlers.ResearchHandler

	metricsCollector *metrics.Collector
	telemetry        *telemetry.Providers

	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	wg sync.WaitGroup
}

// NewServer creates a new server instance.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start wires every component and starts both HTTP servers (non-blocking).
func (s *Server) Start() error {
	tp, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	s.telemetry = tp

	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}

	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStore connects the persistence store (Mongo when configured, an
// in-process MemStore otherwise — useful for local development without a
// Mongo instance) and the Redis-backed cache and progress bus.
func (s *Server) initStore() error {
	s.redisForCache = cache.NewManager(cache.Config{
		Addr:         s.cfg.Redis.Addr,
		Password:     s.cfg.Redis.Password,
		DB:           s.cfg.Redis.DB,
		DefaultTTL:   s.cfg.Redis.CacheTTL,
		PoolSize:     s.cfg.Redis.PoolSize,
		MinIdleConns: s.cfg.Redis.MinIdleConns,
	}, s.logger)

	s.redisForProgress = redis.NewClient(&redis.Options{
		Addr:         s.cfg.Redis.Addr,
		Password:     s.cfg.Redis.Password,
		DB:           s.cfg.Redis.DB,
		PoolSize:     s.cfg.Redis.PoolSize,
		MinIdleConns: s.cfg.Redis.MinIdleConns,
	})
	s.bus = progress.NewBus(s.redisForProgress, s.logger)

	if s.cfg.Mongo.URI == "" {
		s.logger.Warn("mongo.uri not configured, falling back to in-process MemStore (state lost on restart)")
		s.store = store.NewMemStore()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	mongoStore, err := store.NewMongoStore(ctx, store.MongoConfig{
		URI:      s.cfg.Mongo.URI,
		Database: s.cfg.Mongo.Database,
	})
	if err != nil {
		s.logger.Warn("mongo unavailable, falling back to in-process MemStore", zap.Error(err))
		s.store = store.NewMemStore()
		return nil
	}

	s.mongoStore = mongoStore
	s.store = mongoStore
	return nil
}

// initPipeline builds the provider set, the LLM client, the Retrieve stage,
// and the orchestrator that drives the five-stage pipeline over them.
func (s *Server) initPipeline() error {
	providerCfg := providers.Config{CacheTTL: s.cfg.Redis.CacheTTL}
	providerCfg.Web.BaseURL = s.cfg.Providers.Web.BaseURL
	providerCfg.Web.APIKey = s.cfg.Providers.Web.APIKey
	providerCfg.News.BaseURL = s.cfg.Providers.News.BaseURL
	providerCfg.News.APIKey = s.cfg.Providers.News.APIKey
	providerCfg.AcademicA.BaseURL = s.cfg.Providers.AcademicA.BaseURL
	providerCfg.AcademicB.BaseURL = s.cfg.Providers.AcademicB.BaseURL
	providerCfg.Encyclopedia.BaseURL = s.cfg.Providers.Encyclopedia.BaseURL

	httpClient := &http.Client{Timeout: s.cfg.LLM.Timeout}
	allProviders := providers.All(providerCfg, httpClient, s.redisForCache)

	var llm llmclient.Client
	if s.cfg.LLM.APIKey != "" {
		llm = llmclient.NewOpenAIAdapter(llmclient.OpenAIConfig{
			APIKey:  s.cfg.LLM.APIKey,
			BaseURL: s.cfg.LLM.BaseURL,
			Model:   s.cfg.LLM.AnalyzeModel,
			Timeout: s.cfg.LLM.Timeout,
		}, s.logger)
	} else {
		s.logger.Warn("llm.api_key not configured; pipeline stages will run their no-LLM fallback paths")
	}

	retrievalStage := retrieval.NewStage(allProviders, llm, s.cfg.LLM.AnalyzeModel, retrieval.Config{
		MaxQueryVariants:       s.cfg.Retrieval.MaxQueryVariants,
		MaxQueryVariantsDeep:   s.cfg.Retrieval.MaxQueryVariantsDeep,
		MaxExtractionBatch:     s.cfg.Retrieval.MaxExtractionBatch,
		MaxExtractionBatchDeep: s.cfg.Retrieval.MaxExtractionBatchDeep,
		RelevanceBatchSize:     s.cfg.Retrieval.RelevanceBatchSize,
		ExtractionBatchSize:    s.cfg.Retrieval.ExtractionBatchSize,
	}, s.logger)

	s.broker = handlers.NewCheckpointBroker()

	s.orch = orchestrator.New(s.store, s.bus, retrievalStage, llm, s.broker, orchestrator.Config{
		StageTimeout: s.cfg.Orchestrator.StageTimeout,
		Models: orchestrator.ModelConfig{
			Clarify: s.cfg.LLM.ClarifyModel,
			Analyze: s.cfg.LLM.AnalyzeModel,
			Verify:  s.cfg.LLM.VerifyModel,
			Report:  s.cfg.LLM.ReportModel,
		},
	}, s.logger)

	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.mongoStore != nil {
		s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("mongo", func(ctx context.Context) error {
			return s.redisForProgress.Ping(ctx).Err()
		}))
	}
	s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", func(ctx context.Context) error {
		return s.redisForProgress.Ping(ctx).Err()
	}))

	defaults := types.SessionParams{
		MaxSources:    s.cfg.Orchestrator.DefaultMaxSources,
		Mode:          types.ResearchMode(s.cfg.Orchestrator.DefaultMode),
		ReportFormat:  "markdown",
		CitationStyle: "APA",
	}
	s.researchHandler = handlers.NewResearchHandler(s.store, s.bus, s.orch, s.broker, defaults, s.logger)

	s.logger.Info("Handlers initialized")
	return nil
}

// initHotReloadManager 初始化热更新管理器
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}

	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("Configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("Configuration reloaded")
		s.cfg = newConfig
	})

	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /v1/sessions", s.researchHandler.HandleCreate)
	mux.HandleFunc("GET /v1/sessions/{id}", s.researchHandler.HandleGet)
	mux.HandleFunc("GET /v1/sessions/{id}/progress", s.researchHandler.HandleProgress)
	mux.HandleFunc("GET /v1/sessions/{id}/report", s.researchHandler.HandleReport)
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", s.researchHandler.HandleCancel)
	mux.HandleFunc("POST /v1/sessions/{id}/checkpoints/{checkpoint}/decision", s.researchHandler.HandleDecision)

	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("Configuration API registered")
	}

	s.metricsCollector = metrics.NewCollector("researchflow", s.logger)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimitCtx := context.Background()
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimitCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger),
	)

	serverConfig := serverpkg.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = serverpkg.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := serverpkg.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = serverpkg.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown blocks until a shutdown signal arrives, then shuts down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown gracefully shuts down every component.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	if s.redisForCache != nil {
		if err := s.redisForCache.Close(); err != nil {
			s.logger.Error("Redis cache shutdown error", zap.Error(err))
		}
	}
	if s.redisForProgress != nil {
		if err := s.redisForProgress.Close(); err != nil {
			s.logger.Error("Redis progress bus shutdown error", zap.Error(err))
		}
	}
	if s.mongoStore != nil {
		if err := s.mongoStore.Close(ctx); err != nil {
			s.logger.Error("Mongo shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
