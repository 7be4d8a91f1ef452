// v1
// internal/breaker/breaker.go
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var ErrOpen = errors.New("circuit breaker is open; fast-fail")

// Config holds the breaker tunables.
type Config struct {
	MaxFailures      int           // consecutive failures before opening
	ResetTimeout     time.Duration // how long to stay open before probing
	SuccessesToClose int           // successes required in HalfOpen before closing
}

// DefaultConfig matches the values used when nothing is configured.
var DefaultConfig = Config{MaxFailures: 5, ResetTimeout: 30 * time.Second, SuccessesToClose: 1}

// Breaker trips after MaxFailures consecutive failures and fast-fails until
// ResetTimeout elapses, then lets trial calls through in HalfOpen.
type Breaker struct {
	name   string
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	state       State
	recentFails int
	halfOpenOK  int
	openedAt    time.Time

	probe    func(ctx context.Context) error
	onChange func(from, to State)
}

// New builds a closed breaker. probe is optional and runs before the first
// trial call once the reset timeout has elapsed.
func New(name string, cfg Config, probe func(ctx context.Context) error, logger *slog.Logger) *Breaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = DefaultConfig.MaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig.ResetTimeout
	}
	if cfg.SuccessesToClose < 1 {
		cfg.SuccessesToClose = DefaultConfig.SuccessesToClose
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger.With("component", "breaker", "name", name),
		now:    time.Now,
		state:  Closed,
		probe:  probe,
	}
	b.logger.Info("breaker_created", "state", b.state.String(), "maxFailures", cfg.MaxFailures, "resetTimeout", cfg.ResetTimeout.String())
	return b
}

// OnStateChange registers a callback invoked after every transition.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Execute runs op unless the breaker is open. When a failure trips the
// breaker the caller receives ErrOpen.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	state := b.state
	openedAt := b.openedAt
	b.mu.Unlock()

	if state == Open {
		since := b.now().Sub(openedAt)
		if since < b.cfg.ResetTimeout {
			b.logger.Warn("breaker_fast_fail", "since_open", since.String())
			return ErrOpen
		}
		return b.trial(ctx, op)
	}
	if state == HalfOpen {
		return b.trial(ctx, op)
	}

	err := op(ctx)
	if err == nil {
		b.onSuccess()
		return nil
	}
	if b.onFailure(err) {
		return ErrOpen
	}
	return err
}

func (b *Breaker) trial(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	if b.state == Open {
		b.setState(HalfOpen)
		b.halfOpenOK = 0
		had := b.recentFails
		b.mu.Unlock()
		b.logger.Info("breaker_probe_start", "previous_failures", had)
		if b.probe != nil {
			if err := b.probe(ctx); err != nil {
				b.logger.Warn("breaker_probe_failed", "error", err.Error())
				b.reopen()
				return ErrOpen
			}
			b.logger.Info("breaker_probe_ok")
		}
	} else {
		b.mu.Unlock()
	}

	if err := op(ctx); err != nil {
		b.logger.Warn("breaker_halfopen_op_failed", "error", err.Error())
		b.reopen()
		return err
	}

	b.mu.Lock()
	b.halfOpenOK++
	closed := false
	if b.halfOpenOK >= b.cfg.SuccessesToClose {
		b.setState(Closed)
		b.recentFails = 0
		b.halfOpenOK = 0
		closed = true
	}
	b.mu.Unlock()
	if closed {
		b.logger.Info("breaker_closed_after_probe")
	}
	return nil
}

func (b *Breaker) reopen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recentFails++
	b.openedAt = b.now()
	b.setState(Open)
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recentFails = 0
}

// onFailure records err and reports whether the breaker is now open.
func (b *Breaker) onFailure(err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recentFails++
	b.logger.Warn("operation_failure", "failures", b.recentFails, "error", err.Error())
	if b.recentFails >= b.cfg.MaxFailures {
		b.openedAt = b.now()
		b.setState(Open)
		b.logger.Error("breaker_opened", "maxFailures", b.cfg.MaxFailures)
		return true
	}
	return false
}

// setState must be called with mu held.
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(from, to)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Name() string { return b.name }
