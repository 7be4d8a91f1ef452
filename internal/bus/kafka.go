// v0
// internal/bus/kafka.go
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers     []string
	DialTimeout time.Duration
}

// Kafka writes each reading to the topic derived from the MQTT style topic,
// keyed by sensor id so one sensor always lands on the same partition.
type Kafka struct {
	cfg KafkaConfig
	log *slog.Logger

	mu     sync.Mutex
	writer *kafka.Writer
}

func NewKafka(cfg KafkaConfig, log *slog.Logger) *Kafka {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Kafka{cfg: cfg, log: log.With(slog.String("component", "kafka-bus"))}
}

// KafkaTopic returns the Kafka topic name for an MQTT style topic.
func KafkaTopic(topic string) string { return dottedTopic(topic) }

// Connect checks that at least one broker answers and prepares the writer.
func (k *Kafka) Connect(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.writer != nil {
		return nil
	}
	if err := k.dial(ctx); err != nil {
		return err
	}
	k.writer = &kafka.Writer{
		Addr:                   kafka.TCP(k.cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	k.log.Info("kafka_connected", "brokers", k.cfg.Brokers)
	return nil
}

// HealthCheck dials the brokers even when a writer already exists.
func (k *Kafka) HealthCheck(ctx context.Context) error {
	return k.dial(ctx)
}

// dial succeeds once any broker accepts a connection.
func (k *Kafka) dial(ctx context.Context) error {
	if len(k.cfg.Brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	dialCtx, cancel := context.WithTimeout(ctx, k.cfg.DialTimeout)
	defer cancel()
	var lastErr error
	for _, b := range k.cfg.Brokers {
		conn, err := kafka.DialContext(dialCtx, "tcp", b)
		if err != nil {
			k.log.Warn("kafka_dial_failed", "broker", b, "err", err)
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("kafka dial: %w", lastErr)
}

func (k *Kafka) Publish(ctx context.Context, topic string, key, payload []byte) error {
	k.mu.Lock()
	w := k.writer
	k.mu.Unlock()
	if w == nil {
		return ErrNotConnected
	}
	msg := kafka.Message{Topic: KafkaTopic(topic), Key: key, Value: payload, Time: time.Now()}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", msg.Topic, err)
	}
	return nil
}

func (k *Kafka) Disconnect() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.writer == nil {
		return
	}
	if err := k.writer.Close(); err != nil {
		k.log.Error("kafka_writer_close_failed", "err", err)
	}
	k.writer = nil
}
