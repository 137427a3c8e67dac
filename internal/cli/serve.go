package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"llm-playground/internal/config"
	"llm-playground/internal/credentials"
	"llm-playground/internal/handlers"
	"llm-playground/internal/httpserver"
	"llm-playground/internal/llm"
	"llm-playground/internal/metrics"
	"llm-playground/pkg/logging"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the playground HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root)
		},
	}
}

func runServe(ctx context.Context, root *rootOptions) error {
	// ----- Config -----
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}

	// ----- Logger -----
	level := cfg.Log.Level
	if root.verbose {
		level = "debug"
	}
	logger, err := logging.NewLogger(logging.Options{Env: cfg.Log.Env, Level: level})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Server.Port),
		zap.String("store_backend", cfg.Store.Backend),
		zap.Strings("cors_origins", cfg.Server.CORSOrigins),
		zap.Duration("upstream_timeout", cfg.Upstream.Timeout),
		zap.Duration("stream_timeout", cfg.Upstream.StreamTimeout),
		zap.String("version", appVersion),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Store.Backend == credentials.BackendRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("redis connection established", zap.String("addr", cfg.Redis.Addr))
	}

	// ----- Credential store -----
	backend, err := credentials.NewBackend(cfg.Credentials(), redisClient)
	if err != nil {
		return err
	}
	store := credentials.NewStore(backend, logger)
	defer store.Close()

	// ----- LLM client -----
	llmClient, err := llm.NewClient(cfg.LLM(), logger)
	if err != nil {
		return err
	}
	if closer, ok := llmClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, httpserver.Handlers{
		Playground: handlers.NewPlaygroundHandler(llmClient, store),
		Configs:    handlers.NewConfigsHandler(store),
	}, httpserver.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 15*time.Second, // SSE clears its own deadline
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting playground", zap.String("addr", srv.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ----- Graceful shutdown -----
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
