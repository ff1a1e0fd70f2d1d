package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/triage-ai/constitutional/internal/api"
	"github.com/triage-ai/constitutional/internal/audit"
	"github.com/triage-ai/constitutional/internal/config"
	"github.com/triage-ai/constitutional/internal/engine"
	"github.com/triage-ai/constitutional/internal/engine/detectors"
	"github.com/triage-ai/constitutional/internal/server"
	"github.com/triage-ai/constitutional/internal/storage"
	"github.com/triage-ai/constitutional/internal/store"
	"github.com/triage-ai/constitutional/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("constitutional server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting constitutional server",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("audit_store", cfg.Audit.Store),
		zap.String("config_file", cfg.File),
		zap.Bool("strict_mode", cfg.Engine.StrictMode),
	)

	// Audit storage, falling back to the log sink if the backend is unreachable
	sink, err := storage.Open(ctx, storage.Options{
		Kind:          storage.Kind(cfg.Audit.Store),
		SQLitePath:    cfg.Audit.SQLitePath,
		PostgresDSN:   cfg.Audit.PostgresDSN,
		ClickHouseDSN: cfg.Audit.ClickHouseDSN,
	}, logger)
	if err != nil {
		logger.Warn("audit store unavailable, falling back to log sink",
			zap.String("store", cfg.Audit.Store),
			zap.Error(err),
		)
		sink = storage.NewLogSink(logger)
	}

	// Postgres also persists API config changes
	var pgStore *store.Store
	if s, ok := sink.(*store.Store); ok {
		pgStore = s
	} else if cfg.Audit.PostgresDSN != "" {
		pgStore, err = store.Open(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			logger.Warn("postgres unavailable, config changes will not persist", zap.Error(err))
		} else {
			defer pgStore.Close()
		}
	}

	engineCfg := cfg.Engine
	if pgStore != nil {
		stored, err := pgStore.GetConfig(ctx, store.DefaultConfigName)
		switch {
		case err != nil:
			logger.Warn("failed to read persisted config", zap.Error(err))
		case stored != nil:
			engineCfg = stored.Config
			logger.Info("using persisted engine config", zap.Time("updated_at", stored.UpdatedAt))
		}
	}

	var key []byte
	if cfg.Audit.Encrypt && cfg.Audit.Key != "" {
		key, err = audit.DeriveKey(cfg.Audit.Key, nil)
		if err != nil {
			return fmt.Errorf("derive audit key: %w", err)
		}
	}
	trail, err := audit.NewLogger(sink, audit.Options{
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: time.Duration(cfg.Audit.FlushMs) * time.Millisecond,
		RetentionDays: engineCfg.AuditLogRetention,
		Key:           key,
		Encrypt:       cfg.Audit.Encrypt,
	}, logger)
	if err != nil {
		return fmt.Errorf("audit logger: %w", err)
	}

	set, err := detectors.NewSet(detectors.DefaultSetConfig())
	if err != nil {
		return fmt.Errorf("detectors: %w", err)
	}
	collector := telemetry.NewCollector(nil)
	orch, err := engine.NewOrchestrator(set, engineCfg, logger,
		engine.WithAuditTrail(trail),
		engine.WithObserver(collector),
	)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := orch.Close(closeCtx); err != nil {
			logger.Error("audit drain failed", zap.Error(err))
		}
	}()

	retention, err := audit.NewRetentionScheduler(trail, cfg.Audit.RetentionSchedule, logger)
	if err != nil {
		return err
	}
	retention.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.File != "" {
		watcher, err := config.NewWatcher(config.Source{File: cfg.File, DotEnv: ".env"}, orch.ReplaceConfig, logger)
		if err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			g.Go(func() error { return watcher.Run(ctx) })
		}
	}

	// HTTP API
	var cfgStore api.ConfigStore
	if pgStore != nil {
		cfgStore = pgStore
	}
	httpServer := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: api.NewRouter(&api.Dependencies{
			Engine:  orch,
			Audit:   trail,
			Store:   cfgStore,
			Metrics: collector,
			Logger:  logger,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// gRPC API
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(server.UnaryLoggingInterceptor(logger)))
	health := server.Register(grpcServer, server.NewConstitutionalServer(orch, logger))
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	g.Go(func() error {
		logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	// Graceful shutdown once a signal arrives or either server fails
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", zap.Error(err))
		}

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		retention.Stop()
		return nil
	})

	return g.Wait()
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
