// v0
// internal/bus/mqtt.go
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

type MQTTConfig struct {
	Broker         string
	Port           int
	ClientID       string
	ConnectTimeout time.Duration
}

// MQTT publishes at QoS 0 without retained messages.
type MQTT struct {
	cfg MQTTConfig
	log *slog.Logger

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTT(cfg MQTTConfig, log *slog.Logger) *MQTT {
	if cfg.ClientID == "" {
		cfg.ClientID = "greenhouse-" + uuid.NewString()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &MQTT{cfg: cfg, log: log.With(slog.String("component", "mqtt-bus"))}
}

// BrokerURL returns the tcp:// address the client dials.
func (m *MQTT) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", m.cfg.Broker, m.cfg.Port)
}

func (m *MQTT) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		return nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(m.BrokerURL()).
		SetClientID(m.cfg.ClientID).
		SetConnectTimeout(m.cfg.ConnectTimeout).
		SetAutoReconnect(false)
	c := mqtt.NewClient(opts)
	if err := wait(ctx, c.Connect()); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", m.BrokerURL(), err)
	}
	m.client = c
	m.log.Info("mqtt_connected", "broker", m.BrokerURL(), "clientId", m.cfg.ClientID)
	return nil
}

func (m *MQTT) Publish(ctx context.Context, topic string, _ []byte, payload []byte) error {
	m.mu.Lock()
	c := m.client
	m.mu.Unlock()
	if c == nil || !c.IsConnected() {
		return ErrNotConnected
	}
	if err := wait(ctx, c.Publish(topic, 0, false, payload)); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return
	}
	m.client.Disconnect(250)
	m.client = nil
	m.log.Info("mqtt_disconnected", "broker", m.BrokerURL())
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
