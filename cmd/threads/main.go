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

	"github.com/GetStream/threads/api"
	"github.com/GetStream/threads/api/validator"
	"github.com/GetStream/threads/config"
	"github.com/GetStream/threads/feed"
	"github.com/GetStream/threads/mongo"
	"github.com/GetStream/threads/postgres"
	"github.com/GetStream/threads/redis"
	"github.com/GetStream/threads/store"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.Kitchen,
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("Exiting", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()
	logger.Info("Storage ready", "backend", cfg.Backend)

	reg := prometheus.NewRegistry()
	if cfg.Metrics {
		reg.MustRegister(collectors.NewGoCollector())
		backend = store.Instrument(backend, reg)
	}

	f := feed.New(store.New(backend, logger), logger)
	f.Strict = cfg.Strict

	mux := http.NewServeMux()
	mux.Handle("/", &api.API{
		Logger: logger,
		Feed:   f,
		Prefs:  &store.Prefs{Backend: backend, Logger: logger},
		Val:    validator.New(),
	})
	if cfg.Metrics {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openBackend connects the configured storage backend. The returned func
// releases it.
func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.Backend {
	case config.BackendRedis:
		r, err := redis.Connect(connectCtx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	case config.BackendPostgres:
		pg, err := postgres.Connect(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(connectCtx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	case config.BackendMongo:
		m, err := mongo.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return m, func() { _ = m.Close(context.Background()) }, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}
