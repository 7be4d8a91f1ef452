// v0
// internal/app/app_test.go
package app

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nrgchamp/greenhouse/internal/config"
	"nrgchamp/greenhouse/internal/pipeline"
)

type countingPublisher struct {
	mu          sync.Mutex
	published   int
	topics      map[string]int
	disconnects int
}

func (c *countingPublisher) Connect(context.Context) error { return nil }

func (c *countingPublisher) Publish(_ context.Context, topic string, _, _ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published++
	if c.topics == nil {
		c.topics = map[string]int{}
	}
	c.topics[topic]++
	return nil
}

func (c *countingPublisher) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *countingPublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.LogFilePath = filepath.Join(t.TempDir(), "greenhouse.log")
	cfg.Interval = 20 * time.Millisecond
	cfg.NumSensors = 4
	cfg.Seed = 7
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestRunStopsOnContextCancel(t *testing.T) {
	pub := &countingPublisher{}
	cfg := testConfig(t)
	cfg.KeyboardEnabled = false
	a, err := New(cfg, WithPublisher(pub), WithAccessLog(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() >= 8 }, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("application did not stop")
	}
	assert.Equal(t, pipeline.Stopped, a.Pipeline().State())
}

func TestRunStopsOnKeyboardQuit(t *testing.T) {
	pub := &countingPublisher{}
	a, err := New(testConfig(t), WithPublisher(pub), WithInput(strings.NewReader("q\n")), WithAccessLog(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("application did not stop after quit")
	}
	_, ok := a.Pipeline().LastSummary()
	assert.True(t, ok)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.NumSensors = 0
	_, err := New(cfg, WithPublisher(&countingPublisher{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_sensors")
}

func TestNewWritesLogFile(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, WithPublisher(&countingPublisher{}), WithAccessLog(io.Discard))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.FileExists(t, cfg.LogFilePath)
}

func TestCloseTwice(t *testing.T) {
	pub := &countingPublisher{}
	a, err := New(testConfig(t), WithPublisher(pub), WithAccessLog(io.Discard))
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, pub.disconnects)
}
