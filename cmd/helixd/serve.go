package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/helixauth/helix"
	"github.com/helixauth/helix/instrumentation"
	"github.com/helixauth/helix/provider"
	"github.com/helixauth/helix/security"
	"github.com/helixauth/helix/storage"
	"github.com/helixauth/helix/storage/memory"
	"github.com/helixauth/helix/storage/valkey"
)

// backend is the full storage surface the server needs from either backend.
type backend interface {
	storage.ClientStore
	storage.FlowStore
	storage.TokenStore
	storage.RevocationStore
	Close() error
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openBackend(cfg *Config, logger *slog.Logger) (backend, error) {
	switch cfg.Storage.Backend {
	case "valkey":
		return valkey.New(valkey.Config{
			Address:   cfg.Storage.Valkey.Address,
			Password:  cfg.Storage.Valkey.Password,
			DB:        cfg.Storage.Valkey.DB,
			KeyPrefix: cfg.Storage.Valkey.KeyPrefix,
			Logger:    logger,
		})
	default:
		store := memory.New()
		store.SetLogger(logger)
		return store, nil
	}
}

// seedClients registers the configured clients, hashing their secrets.
func seedClients(ctx context.Context, store storage.ClientStore, clients []SeedClient, logger *slog.Logger) error {
	for _, c := range clients {
		hash, err := security.HashClientSecret(c.Secret)
		if err != nil {
			return fmt.Errorf("hashing secret for client %s: %w", c.ID, err)
		}
		err = store.SaveClient(ctx, &storage.Client{
			ID:          c.ID,
			SecretHash:  hash,
			RedirectURI: c.RedirectURI,
			Scope:       c.Scope,
		})
		if err != nil {
			return fmt.Errorf("seeding client %s: %w", c.ID, err)
		}
		logger.Info("Registered client", "client_id", c.ID, "redirect_uri", c.RedirectURI)
	}
	return nil
}

func newInstrumentation(cfg *Config) (*instrumentation.Instrumentation, func(context.Context) error, error) {
	if !cfg.Telemetry.Enabled {
		inst, err := instrumentation.New(instrumentation.Config{Enabled: false})
		return inst, func(context.Context) error { return nil }, err
	}

	exporter, err := otelprom.New()
	if err != nil {
		return nil, nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    "helix",
		ServiceVersion: version,
		Enabled:        true,
		MeterProvider:  meterProvider,
	})
	if err != nil {
		return nil, nil, err
	}
	return inst, meterProvider.Shutdown, nil
}

func runServe(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	inst, shutdownMetrics, err := newInstrumentation(cfg)
	if err != nil {
		return err
	}

	store, err := openBackend(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedClients(ctx, store, cfg.Clients, logger); err != nil {
		return err
	}

	auditor := security.NewAuditor(logger, cfg.Audit.Enabled)

	auth, err := provider.New(provider.Config{
		Clients:        store,
		Flows:          store,
		Tokens:         store,
		Revocations:    store,
		Auditor:        auditor,
		Metrics:        inst.Metrics(),
		Logger:         logger,
		CodeTTL:        cfg.Tokens.CodeTTL,
		AccessTokenTTL: cfg.Tokens.AccessTTL,
	})
	if err != nil {
		return err
	}
	resource, err := provider.NewResourceProvider(provider.ResourceConfig{
		Tokens:  store,
		Metrics: inst.Metrics(),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	var limiter *security.RateLimiter
	if cfg.Rate.Enabled {
		limiter = security.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst, logger)
		defer limiter.Stop()
	}

	handler, err := helix.NewHandler(helix.HandlerConfig{
		Authorization: auth,
		Resource:      resource,
		RateLimiter:   limiter,
		Auditor:       auditor,
		Metrics:       inst.Metrics(),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(helix.RequestID)

	router.Get("/authorize", handler.ServeAuthorize)
	router.Post("/token", handler.ServeToken)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Telemetry.Enabled {
		router.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("helixd listening",
			"addr", cfg.Server.Addr,
			"storage", cfg.Storage.Backend,
			"telemetry", cfg.Telemetry.Enabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		logger.Warn("Metrics shutdown failed", "error", err)
	}
	return nil
}
