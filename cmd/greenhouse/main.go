// v0
// cmd/greenhouse/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"nrgchamp/greenhouse/internal/app"
	"nrgchamp/greenhouse/internal/config"
)

func main() {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		bootstrap.Error("config_load_failed", slog.Any("err", err))
		os.Exit(2)
	}

	application, err := app.New(cfg)
	if err != nil {
		bootstrap.Error("app_init_failed", slog.Any("err", err))
		os.Exit(1)
	}
	closeApp := func() {
		if cerr := application.Close(); cerr != nil {
			bootstrap.Error("app_close_failed", slog.Any("err", cerr))
		}
	}
	defer closeApp()

	logger := application.Logger()
	logger.Info("service_boot",
		slog.String("listen_address", cfg.ListenAddress),
		slog.String("log_path", cfg.LogFilePath),
		slog.String("properties_path", cfg.PropertiesPath),
		slog.String("bus", cfg.Bus.Kind),
		slog.String("broker", cfg.Bus.Broker),
		slog.Int("port", cfg.Bus.Port),
		slog.String("topic", cfg.Bus.Topic),
		slog.Duration("interval", cfg.Interval),
		slog.Int("num_sensors", cfg.NumSensors),
		slog.Float64("anomaly_rate", cfg.AnomalyRate),
	)
	if cfg.KeyboardEnabled {
		logger.Info("keyboard_controls", slog.String("keys", "t/T/r temp up/down/reset, h/H/u humidity, s/S/l soil, q quit; press enter to send"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		logger.Error("service_terminated", slog.Any("err", err))
		stop()
		closeApp()
		os.Exit(1)
	}
	logger.Info("service_stopped")
}
