// v0
// internal/bus/guarded.go
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nrgchamp/greenhouse/internal/breaker"
)

// Guarded routes connect and publish calls of an inner publisher through a
// circuit breaker with a retry policy.
type Guarded struct {
	inner   Publisher
	brk     *breaker.Breaker
	retry   breaker.RetryPolicy
	connect breaker.RetryPolicy
	log     *slog.Logger
}

// NewGuarded applies retry to publishes. Connects share its attempts and
// backoff but carry no per-attempt deadline until WithConnectTimeout sets one.
func NewGuarded(inner Publisher, brk *breaker.Breaker, retry breaker.RetryPolicy, log *slog.Logger) *Guarded {
	if log == nil {
		log = slog.Default()
	}
	return &Guarded{
		inner:   inner,
		brk:     brk,
		retry:   retry,
		connect: breaker.RetryPolicy{Attempts: retry.Attempts, Backoff: retry.Backoff},
		log:     log.With(slog.String("component", "guarded-bus")),
	}
}

// WithConnectTimeout bounds each connect attempt by d. Zero leaves the limit
// to the inner client.
func (g *Guarded) WithConnectTimeout(d time.Duration) *Guarded {
	g.connect.Timeout = d
	return g
}

// Connect fails with ErrConnect, and additionally breaker.ErrOpen when the
// breaker refused the call.
func (g *Guarded) Connect(ctx context.Context) error {
	if err := g.brk.Do(ctx, g.connect, g.inner.Connect); err != nil {
		g.log.Warn("bus_connect_failed", "state", g.brk.State().String(), "err", err)
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return nil
}

func (g *Guarded) Publish(ctx context.Context, topic string, key, payload []byte) error {
	return g.brk.Do(ctx, g.retry, func(ctx context.Context) error {
		return g.inner.Publish(ctx, topic, key, payload)
	})
}

func (g *Guarded) Disconnect() { g.inner.Disconnect() }

// State reports the breaker state.
func (g *Guarded) State() breaker.State { return g.brk.State() }
