// v1
// internal/breaker/breaker_test.go
package breaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config, probe func(context.Context) error) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New("test", cfg, probe, slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.now = clk.Now
	return b, clk
}

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 2, ResetTimeout: time.Second}, nil)
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, Closed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), ErrOpen)
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "open breaker must fast-fail")
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 2, ResetTimeout: time.Second}, nil)
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, fail))
	require.NoError(t, b.Execute(ctx, ok))
	require.Error(t, b.Execute(ctx, fail))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenCloses(t *testing.T) {
	b, clk := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Second, SuccessesToClose: 2}, nil)
	ctx := context.Background()

	var transitions []State
	b.OnStateChange(func(_, to State) { transitions = append(transitions, to) })

	require.ErrorIs(t, b.Execute(ctx, fail), ErrOpen)
	clk.Advance(2 * time.Second)

	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, HalfOpen, b.State())
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, []State{Open, HalfOpen, Closed}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Second}, nil)
	ctx := context.Background()

	require.ErrorIs(t, b.Execute(ctx, fail), ErrOpen)
	clk.Advance(2 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Execute(ctx, ok), ErrOpen)
}

func TestBreakerProbeFailureKeepsOpen(t *testing.T) {
	probed := 0
	b, clk := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Second}, func(context.Context) error {
		probed++
		return errBoom
	})
	ctx := context.Background()

	require.ErrorIs(t, b.Execute(ctx, fail), ErrOpen)
	clk.Advance(2 * time.Second)

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.Equal(t, 1, probed)
	assert.Equal(t, Open, b.State())
}

func TestDoRetriesUpToAttempts(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 10, ResetTimeout: time.Second}, nil)
	calls := 0
	op := func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	}

	require.NoError(t, b.Do(context.Background(), RetryPolicy{Attempts: 2, Backoff: time.Millisecond}, op))
	assert.Equal(t, 3, calls)
}

func TestDoWithoutRetryCallsOnce(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 10, ResetTimeout: time.Second}, nil)
	calls := 0
	err := b.Do(context.Background(), RetryPolicy{}, func(context.Context) error { calls++; return errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestDoDoesNotRetryOpenBreaker(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Minute}, nil)
	calls := 0
	err := b.Do(context.Background(), RetryPolicy{Attempts: 5}, func(context.Context) error { calls++; return errBoom })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnCancel(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 10, ResetTimeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Do(ctx, RetryPolicy{Attempts: 3}, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
