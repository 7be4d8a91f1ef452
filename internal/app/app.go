// v0
// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"nrgchamp/greenhouse/internal/breaker"
	"nrgchamp/greenhouse/internal/bus"
	"nrgchamp/greenhouse/internal/config"
	"nrgchamp/greenhouse/internal/controller"
	"nrgchamp/greenhouse/internal/generator"
	"nrgchamp/greenhouse/internal/httpapi"
	"nrgchamp/greenhouse/internal/logging"
	"nrgchamp/greenhouse/internal/metrics"
	"nrgchamp/greenhouse/internal/override"
	"nrgchamp/greenhouse/internal/pipeline"
)

// Application wires configuration, logging, the publisher, the cycle
// pipeline and the HTTP API, and owns graceful shutdown.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	logCloser io.Closer
	metrics   *metrics.Metrics
	health    *httpapi.HealthState
	server    *http.Server
	overrides *override.Channel
	keys      *override.KeySource
	publisher *bus.Guarded
	pipeline  *pipeline.Pipeline
}

// Option customises New. Used mostly by tests.
type Option func(*options)

type options struct {
	publisher bus.Publisher
	input     io.Reader
	console   io.Writer
}

// WithPublisher replaces the broker client selected by the bus settings.
func WithPublisher(p bus.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithInput replaces stdin as the keyboard source.
func WithInput(r io.Reader) Option {
	return func(o *options) { o.input = r }
}

// WithAccessLog redirects the HTTP access log, stdout by default.
func WithAccessLog(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

func New(cfg config.Config, opts ...Option) (*Application, error) {
	o := options{input: os.Stdin, console: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closer, err := logging.Open(cfg.LogFilePath, logging.ParseLevel(cfg.LogLevel))
	if err != nil {
		logger.Warn("log_file_unavailable", slog.String("path", cfg.LogFilePath), slog.Any("err", err))
	}
	m := metrics.NewMetrics()

	inner := o.publisher
	if inner == nil {
		inner, err = bus.New(bus.Settings{
			Kind:           cfg.Bus.Kind,
			Broker:         cfg.Bus.Broker,
			Port:           cfg.Bus.Port,
			URL:            cfg.Bus.URL,
			ClientID:       cfg.Bus.ClientID,
			Exchange:       cfg.Bus.Exchange,
			ConnectTimeout: cfg.Bus.ConnectTimeout,
		}, logger)
		if err != nil {
			_ = closer.Close()
			return nil, fmt.Errorf("bus init: %w", err)
		}
	}

	target := cfg.Bus.Kind
	if target == "" {
		target = bus.KindMQTT
	}
	recheck := inner.Connect
	if h, ok := inner.(bus.HealthChecker); ok {
		recheck = h.HealthCheck
	}
	brk := breaker.New("publisher_"+target, breaker.Config{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerReset,
	}, recheck, logger)
	brk.OnStateChange(func(from, to breaker.State) {
		m.SetCircuitBreakerState(target, to)
	})
	m.SetCircuitBreakerState(target, brk.State())
	guarded := bus.NewGuarded(inner, brk, breaker.RetryPolicy{
		Attempts: cfg.RetryAttempts,
		Backoff:  cfg.RetryBackoff,
		Timeout:  cfg.PublishTimeout,
	}, logger).WithConnectTimeout(cfg.Bus.ConnectTimeout)

	reg := controller.NewRegulator(cfg.Baseline, cfg.Steps, cfg.MaxComp)
	ch := override.NewChannel(cfg.OverrideQueue, cfg.Increments)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := generator.New(rand.New(rand.NewSource(seed)), nil)

	p := pipeline.New(pipeline.Config{
		Topic:          cfg.Bus.Topic,
		Interval:       cfg.Interval,
		NumSensors:     cfg.NumSensors,
		AnomalyRate:    cfg.AnomalyRate,
		PublishTimeout: cfg.PublishTimeout,
	}, pipeline.Deps{
		Source:    gen,
		Regulator: reg,
		Overrides: ch,
		Publisher: guarded,
		Sink:      m,
		Logger:    logger,
	})

	health := httpapi.NewHealthState()
	router := httpapi.NewRouter(httpapi.Deps{
		Health:       health,
		Status:       p,
		Commands:     ch,
		Metrics:      m,
		BreakerState: func() string { return brk.State().String() },
		Logger:       logger,
	})
	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           httpapi.WithAccessLog(o.console, router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var keys *override.KeySource
	if cfg.KeyboardEnabled && o.input != nil {
		keys = override.NewKeySource(o.input, logger)
	}

	logger.Info("app_configured",
		slog.Int64("seed", seed),
		slog.String("bus", target),
		slog.Bool("keyboard", keys != nil),
		slog.Int("retry_attempts", cfg.RetryAttempts),
		slog.Int("breaker_max_failures", cfg.BreakerMaxFailures),
	)

	return &Application{
		cfg:       cfg,
		logger:    logger,
		logCloser: closer,
		metrics:   m,
		health:    health,
		server:    server,
		overrides: ch,
		keys:      keys,
		publisher: guarded,
		pipeline:  p,
	}, nil
}

func (a *Application) Logger() *slog.Logger { return a.logger }

// Pipeline exposes the cycle loop, mainly for status reporting in tests.
func (a *Application) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Run blocks until ctx is cancelled, the operator quits, or the HTTP server
// fails. The cycle in progress always completes before Run returns.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpCh := make(chan error, 1)
	go func() {
		a.logger.Info("http_server_listen", slog.String("address", a.cfg.ListenAddress))
		httpCh <- a.server.ListenAndServe()
	}()

	if a.keys != nil {
		// stdin reads cannot be interrupted; the goroutine ends with the process.
		go func() {
			if err := a.keys.Run(ctx, a.overrides); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("keyboard_stopped", slog.Any("err", err))
			}
		}()
	}

	pipeCh := make(chan error, 1)
	go func() {
		pipeCh <- a.pipeline.Run(ctx)
	}()
	a.health.SetReady(true)

	var httpErr, pipeErr error
	select {
	case err := <-httpCh:
		httpCh = nil
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http_server_error", slog.Any("err", err))
			httpErr = err
		}
		cancel()
		pipeErr = <-pipeCh
	case pipeErr = <-pipeCh:
		a.logger.Info("pipeline_completed")
	case <-ctx.Done():
		a.logger.Info("shutdown_signal")
		pipeErr = <-pipeCh
	}
	a.health.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server_shutdown_failed", slog.Any("err", err))
		if httpErr == nil {
			httpErr = fmt.Errorf("shutdown: %w", err)
		}
	}
	if httpCh != nil {
		if err := <-httpCh; err != nil && !errors.Is(err, http.ErrServerClosed) && httpErr == nil {
			httpErr = err
		}
	}

	if pipeErr != nil {
		return pipeErr
	}
	if httpErr != nil {
		return httpErr
	}
	a.logger.Info("shutdown_complete")
	return nil
}

// Close disconnects the publisher and releases the log file.
func (a *Application) Close() error {
	if a.publisher != nil {
		a.publisher.Disconnect()
		a.publisher = nil
	}
	if a.logCloser == nil {
		return nil
	}
	err := a.logCloser.Close()
	a.logCloser = nil
	return err
}
