package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/api"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/auth"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/chread"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/config"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/engine"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/metrics"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/review"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/storage"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/store"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/tools"
)

const healthService = "securevector.v1.ThreatMonitor"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Logger
	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting securevector server",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.String("mode", string(cfg.Mode)),
		zap.String("auth", string(cfg.Auth)),
		zap.Duration("scan_timeout", cfg.ScanTimeout),
		zap.Int("block_threshold", cfg.Thresholds.Block),
		zap.Bool("review_enabled", cfg.Review.Enabled),
	)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Storage: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, m.EventDropped, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// ClickHouse reader (for the events endpoints)
	var reader api.EventReader
	if cfg.ClickHouseDSN != "" {
		chReader, err := chread.NewReader(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			reader = chReader
			logger.Info("clickhouse reader connected")
		}
	}

	// Postgres, or in-memory state for local-first use
	var repo store.Repository
	if cfg.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err := store.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			cancel()
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		pg := store.NewStore(db)
		if err := pg.Migrate(ctx); err != nil {
			cancel()
			logger.Fatal("failed to migrate postgres", zap.Error(err))
		}
		cancel()
		repo = pg
		logger.Info("postgres connected")
	} else {
		repo = store.NewMemoryStore()
		logger.Info("no POSTGRES_DSN set, tool and rule changes are kept in memory")
	}

	// Rules and analyzer
	base := rules.NewLoader(logger).LoadRules(cfg.RulesDir)
	ruleStore := rules.NewStore(base, repo, logger)
	analyzer := engine.NewAnalyzer(engine.AnalyzerConfig{
		CacheTTL:   cfg.CacheTTL,
		CacheSize:  cfg.CacheSize,
		Thresholds: cfg.Thresholds,
	}, logger, m)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		effective, err := ruleStore.Effective(ctx)
		cancel()
		if err != nil {
			logger.Fatal("failed to load rules", zap.Error(err))
		}
		analyzer.SetRules(effective)
	}

	var reviewer engine.Reviewer
	if cfg.Review.Enabled {
		reviewer = review.NewClient(cfg.Review, logger)
		logger.Info("llm review enabled", zap.String("endpoint", cfg.Review.Endpoint), zap.String("model", cfg.Review.Model))
	}
	scanner := engine.NewScanner(analyzer, reviewer, engine.DefaultMergePolicy(), cfg.ScanTimeout, logger, m)

	// Tool guard
	essential, err := tools.LoadEssential()
	if err != nil {
		logger.Fatal("failed to load essential tool registry", zap.Error(err))
	}
	guard := tools.NewGuard(tools.GuardConfig{
		Essential: essential,
		Store:     repo,
		Events:    writer,
		CacheTTL:  cfg.ToolCacheTTL,
		Source:    "api",
		Logger:    logger,
		Metrics:   m,
	})
	logger.Info("essential tool registry loaded",
		zap.String("version", essential.Version()),
		zap.Int("tools", essential.Len()),
	)

	// Auth
	var authenticator auth.Authenticator
	switch cfg.Auth {
	case config.AuthStatic:
		a, err := auth.NewStaticAuthenticator(cfg.APIKeyHash, cfg.AuthCacheTTL)
		if err != nil {
			logger.Fatal("invalid SV_API_KEY_HASH", zap.Error(err))
		}
		authenticator = a
	case config.AuthStore:
		authenticator = auth.NewStoreAuthenticator(auth.StoreAuthConfig{
			Store:    repo,
			CacheTTL: cfg.AuthCacheTTL,
			Logger:   logger,
		})
	default:
		logger.Warn("SV_AUTH=none, /v1 endpoints are unauthenticated")
	}

	// Tool-call log retention
	stopPrune := make(chan struct{})
	go pruneToolCalls(repo, cfg.ToolCallRetention, stopPrune, logger)
	defer close(stopPrune)

	// HTTP API server
	deps := &api.Dependencies{
		Scanner:    scanner,
		Rules:      ruleStore,
		Repo:       repo,
		Guard:      guard,
		Writer:     writer,
		Reader:     reader,
		Auth:       authenticator,
		FailClosed: cfg.FailClosed(),
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:     logger,

		AllowedOrigins: cfg.CORSOrigins,
	}
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// gRPC health server for orchestrator probes
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           5 * time.Second,
		}),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for debugging with grpcurl
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}
	go func() {
		logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("securevector server stopped")
}

// pruneToolCalls deletes tool-call log rows older than retention once an hour.
func pruneToolCalls(repo store.Repository, retention time.Duration, stop <-chan struct{}, logger *zap.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := repo.PruneToolCalls(ctx, time.Now().Add(-retention))
			cancel()
			if err != nil {
				logger.Warn("tool call pruning failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("pruned tool call log", zap.Int64("rows", n))
			}
		}
	}
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
