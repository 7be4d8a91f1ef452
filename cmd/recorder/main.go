// v0
// cmd/recorder/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"nrgchamp/greenhouse/internal/httpapi"
	"nrgchamp/greenhouse/internal/logging"
	"nrgchamp/greenhouse/internal/metrics"
	"nrgchamp/greenhouse/internal/recorder"
)

func main() {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := recorder.LoadConfig()
	if err != nil {
		bootstrap.Error("config_load_failed", slog.Any("err", err))
		os.Exit(2)
	}

	logger, closer, err := logging.Open(cfg.LogFilePath, logging.ParseLevel(cfg.LogLevel))
	if err != nil {
		logger.Warn("log_file_unavailable", slog.String("path", cfg.LogFilePath), slog.Any("err", err))
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service_terminated", slog.Any("err", err))
		stop()
		_ = closer.Close()
		os.Exit(1)
	}
	logger.Info("service_stopped")
}

func run(ctx context.Context, cfg recorder.Config, logger *slog.Logger) error {
	logger.Info("service_boot",
		slog.String("listen_address", cfg.ListenAddress),
		slog.String("broker", cfg.BrokerURL()),
		slog.String("topic", cfg.Topic),
		slog.String("db_host", cfg.DBHost),
		slog.String("db_name", cfg.DBName),
		slog.Bool("cache", cfg.RedisAddr != ""),
	)

	db, err := recorder.OpenPostgres(ctx, cfg.DSN(), cfg.DBAttempts, cfg.DBBackoff, logger)
	if err != nil {
		return err
	}
	store, err := recorder.NewGormStore(db)
	if err != nil {
		return err
	}
	defer store.Close()

	var cache recorder.Cache
	if cfg.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rc, err := recorder.NewRedisCache(pingCtx, cfg.RedisAddr)
		cancel()
		if err != nil {
			logger.Warn("cache_disabled", slog.Any("err", err))
		} else {
			defer rc.Close()
			cache = rc
		}
	}

	m := metrics.NewMetrics()
	rec := recorder.New(store, cache, cfg.CacheTTL, m, logger)
	listener := recorder.NewListener(recorder.ListenerConfig{
		BrokerURL: cfg.BrokerURL(),
		Topic:     cfg.Topic,
		ClientID:  cfg.ClientID + "-" + uuid.NewString()[:8],
	}, rec, logger)

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           httpapi.WithAccessLog(os.Stdout, recorder.NewRouter(rec, m, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listenCh := make(chan error, 1)
	go func() { listenCh <- listener.Run(ctx) }()
	httpCh := make(chan error, 1)
	go func() {
		logger.Info("http_server_listen", slog.String("address", cfg.ListenAddress))
		httpCh <- server.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-listenCh:
		listenCh = nil
		runErr = err
	case err := <-httpCh:
		httpCh = nil
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", slog.Any("err", err))
	}
	if httpCh != nil {
		<-httpCh
	}
	if listenCh != nil {
		if err := <-listenCh; err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}
