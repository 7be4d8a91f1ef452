// v0
// internal/bus/bus_test.go
package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nrgchamp/greenhouse/internal/breaker"
)

type fakePublisher struct {
	connectErr   error
	connectDelay time.Duration
	publishErrs []error
	connects    int
	published   []string
	disconnects int
}

func (f *fakePublisher) Connect(ctx context.Context) error {
	f.connects++
	if f.connectDelay > 0 {
		select {
		case <-time.After(f.connectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.connectErr
}

func (f *fakePublisher) Publish(_ context.Context, topic string, _ []byte, payload []byte) error {
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		if err != nil {
			return err
		}
	}
	f.published = append(f.published, topic+":"+string(payload))
	return nil
}

func (f *fakePublisher) Disconnect() { f.disconnects++ }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGuardedConnectWrapsFailure(t *testing.T) {
	inner := &fakePublisher{connectErr: errors.New("refused")}
	brk := breaker.New("bus", breaker.Config{MaxFailures: 3, ResetTimeout: time.Minute}, nil, quiet())
	g := NewGuarded(inner, brk, breaker.RetryPolicy{Attempts: 1}, quiet())

	err := g.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnect)
	assert.Equal(t, 2, inner.connects)
}

func TestGuardedConnectReportsOpenBreaker(t *testing.T) {
	inner := &fakePublisher{connectErr: errors.New("refused")}
	brk := breaker.New("bus", breaker.Config{MaxFailures: 1, ResetTimeout: time.Minute}, nil, quiet())
	g := NewGuarded(inner, brk, breaker.RetryPolicy{}, quiet())

	err := g.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnect)
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, breaker.Open, g.State())

	err = g.Connect(context.Background())
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, 1, inner.connects)
}

func TestGuardedPublishRetries(t *testing.T) {
	inner := &fakePublisher{publishErrs: []error{errors.New("timeout"), nil}}
	brk := breaker.New("bus", breaker.Config{MaxFailures: 5, ResetTimeout: time.Minute}, nil, quiet())
	g := NewGuarded(inner, brk, breaker.RetryPolicy{Attempts: 2}, quiet())

	require.NoError(t, g.Connect(context.Background()))
	require.NoError(t, g.Publish(context.Background(), "greenhouse/sensors", []byte("1"), []byte("{}")))
	assert.Equal(t, []string{"greenhouse/sensors:{}"}, inner.published)

	g.Disconnect()
	assert.Equal(t, 1, inner.disconnects)
}

func TestGuardedConnectIgnoresPublishTimeout(t *testing.T) {
	inner := &fakePublisher{connectDelay: 300 * time.Millisecond}
	brk := breaker.New("bus", breaker.Config{MaxFailures: 3, ResetTimeout: time.Minute}, nil, quiet())
	g := NewGuarded(inner, brk, breaker.RetryPolicy{Timeout: 100 * time.Millisecond}, quiet())

	require.NoError(t, g.Connect(context.Background()))
	assert.Equal(t, 1, inner.connects)
}

func TestGuardedConnectTimeout(t *testing.T) {
	inner := &fakePublisher{connectDelay: 300 * time.Millisecond}
	brk := breaker.New("bus", breaker.Config{MaxFailures: 3, ResetTimeout: time.Minute}, nil, quiet())
	g := NewGuarded(inner, brk, breaker.RetryPolicy{Timeout: time.Second}, quiet()).
		WithConnectTimeout(50 * time.Millisecond)

	err := g.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnect)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKafkaHealthCheckDialsWithWriter(t *testing.T) {
	k := NewKafka(KafkaConfig{Brokers: []string{"127.0.0.1:1"}, DialTimeout: 500 * time.Millisecond}, quiet())
	var _ HealthChecker = k
	k.writer = &kafka.Writer{Addr: kafka.TCP("127.0.0.1:1")}
	t.Cleanup(k.Disconnect)

	require.NoError(t, k.Connect(context.Background()), "connect reuses the writer")
	err := k.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka dial")
}

func TestKafkaNoBrokers(t *testing.T) {
	k := NewKafka(KafkaConfig{}, quiet())
	assert.Error(t, k.Connect(context.Background()))
	assert.Error(t, k.HealthCheck(context.Background()))
}

func TestTopicMapping(t *testing.T) {
	assert.Equal(t, "greenhouse.sensors", KafkaTopic("greenhouse/sensors"))
	assert.Equal(t, "greenhouse.sensors", RoutingKey("/greenhouse/sensors/"))
	assert.Equal(t, "plain", KafkaTopic("plain"))
}

func TestNewSelectsKind(t *testing.T) {
	p, err := New(Settings{Kind: "mqtt", Broker: "localhost", Port: 1883}, quiet())
	require.NoError(t, err)
	m, ok := p.(*MQTT)
	require.True(t, ok)
	assert.Equal(t, "tcp://localhost:1883", m.BrokerURL())

	p, err = New(Settings{Kind: "KAFKA", Broker: "kafka", Port: 9092}, quiet())
	require.NoError(t, err)
	assert.IsType(t, &Kafka{}, p)

	p, err = New(Settings{Kind: "amqp", Broker: "rabbit", Port: 5672}, quiet())
	require.NoError(t, err)
	assert.IsType(t, &AMQP{}, p)

	_, err = New(Settings{Kind: "carrier-pigeon"}, quiet())
	assert.Error(t, err)
}

func TestPublishBeforeConnect(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, NewMQTT(MQTTConfig{Broker: "localhost", Port: 1883}, quiet()).Publish(ctx, "t", nil, nil), ErrNotConnected)
	assert.ErrorIs(t, NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}}, quiet()).Publish(ctx, "t", nil, nil), ErrNotConnected)
	assert.ErrorIs(t, NewAMQP(AMQPConfig{URL: "amqp://localhost/"}, quiet()).Publish(ctx, "t", nil, nil), ErrNotConnected)
}
