// v0
// internal/bus/bus.go
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Publisher delivers encoded readings to a message broker. Connect is
// idempotent and may be called before every batch.
type Publisher interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, key, payload []byte) error
	Disconnect()
}

// HealthChecker is implemented by publishers whose Connect can succeed on
// cached state. HealthCheck always reaches the broker, so a half-open
// breaker uses it to decide whether to close.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

var (
	ErrConnect      = errors.New("bus connect failed")
	ErrNotConnected = errors.New("bus not connected")
)

const (
	KindMQTT  = "mqtt"
	KindKafka = "kafka"
	KindAMQP  = "amqp"
)

// Settings selects and configures a broker client.
type Settings struct {
	Kind           string
	Broker         string
	Port           int
	URL            string // amqp only; overrides Broker/Port
	ClientID       string
	Exchange       string
	ConnectTimeout time.Duration
}

// New builds the publisher named by s.Kind.
func New(s Settings, log *slog.Logger) (Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	switch strings.ToLower(s.Kind) {
	case "", KindMQTT:
		return NewMQTT(MQTTConfig{Broker: s.Broker, Port: s.Port, ClientID: s.ClientID, ConnectTimeout: s.ConnectTimeout}, log), nil
	case KindKafka:
		return NewKafka(KafkaConfig{Brokers: []string{fmt.Sprintf("%s:%d", s.Broker, s.Port)}, DialTimeout: s.ConnectTimeout}, log), nil
	case KindAMQP:
		url := s.URL
		if url == "" {
			url = fmt.Sprintf("amqp://guest:guest@%s:%d/", s.Broker, s.Port)
		}
		return NewAMQP(AMQPConfig{URL: url, Exchange: s.Exchange, DialTimeout: s.ConnectTimeout}, log), nil
	default:
		return nil, fmt.Errorf("unknown bus kind %q", s.Kind)
	}
}

// dottedTopic maps an MQTT style topic onto the dot separated names used by
// Kafka topics and AMQP routing keys.
func dottedTopic(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}
