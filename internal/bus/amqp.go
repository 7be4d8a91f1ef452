// v0
// internal/bus/amqp.go
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is declared when none is configured.
const DefaultExchange = "greenhouse"

type AMQPConfig struct {
	URL         string
	Exchange    string
	DialTimeout time.Duration
}

// AMQP publishes to a durable topic exchange. The routing key is the topic
// with '/' replaced by '.'.
type AMQP struct {
	cfg AMQPConfig
	log *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQP(cfg AMQPConfig, log *slog.Logger) *AMQP {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &AMQP{cfg: cfg, log: log.With(slog.String("component", "amqp-bus"))}
}

// RoutingKey returns the routing key used for topic.
func RoutingKey(topic string) string { return dottedTopic(topic) }

func (a *AMQP) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil && !a.conn.IsClosed() && a.channel != nil && !a.channel.IsClosed() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := amqp.DialConfig(a.cfg.URL, amqp.Config{Dial: amqp.DefaultDial(a.cfg.DialTimeout)})
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		a.cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("amqp exchange declare %s: %w", a.cfg.Exchange, err)
	}
	a.conn, a.channel = conn, ch
	a.log.Info("amqp_connected", "exchange", a.cfg.Exchange)
	return nil
}

func (a *AMQP) Publish(ctx context.Context, topic string, key, payload []byte) error {
	a.mu.Lock()
	ch := a.channel
	a.mu.Unlock()
	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}
	err := ch.PublishWithContext(ctx,
		a.cfg.Exchange,
		RoutingKey(topic),
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   string(key),
			Timestamp:   time.Now(),
			Body:        payload,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", topic, err)
	}
	return nil
}

func (a *AMQP) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.channel != nil {
		_ = a.channel.Close()
		a.channel = nil
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.log.Warn("amqp_close_failed", "err", err)
		}
		a.conn = nil
	}
}
