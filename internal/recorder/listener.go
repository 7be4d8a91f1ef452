// v0
// internal/recorder/listener.go
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Ingester consumes raw bus messages.
type Ingester interface {
	Ingest(ctx context.Context, payload []byte) error
}

type ListenerConfig struct {
	BrokerURL string
	Topic     string
	ClientID  string
}

// Listener subscribes to the reading topic and hands every message to an
// Ingester. The paho client reconnects on its own with back-off capped at
// one minute and resubscribes on every connect.
type Listener struct {
	cfg ListenerConfig
	in  Ingester
	log *slog.Logger
}

func NewListener(cfg ListenerConfig, in Ingester, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{cfg: cfg, in: in, log: log.With(slog.String("component", "mqtt_listener"))}
}

// Run connects and blocks until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(l.cfg.BrokerURL).
		SetClientID(l.cfg.ClientID).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetMaxReconnectInterval(time.Minute).
		SetCleanSession(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		l.log.Info("mqtt_connected", slog.String("broker", l.cfg.BrokerURL))
		tok := c.Subscribe(l.cfg.Topic, 0, l.handle(ctx))
		tok.Wait()
		if err := tok.Error(); err != nil {
			l.log.Error("mqtt_subscribe_failed", slog.String("topic", l.cfg.Topic), slog.Any("err", err))
			return
		}
		l.log.Info("mqtt_subscribed", slog.String("topic", l.cfg.Topic))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		l.log.Warn("mqtt_connection_lost", slog.Any("err", err))
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		l.log.Info("mqtt_reconnecting")
	})

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt connect %s: %w", l.cfg.BrokerURL, err)
		}
	case <-ctx.Done():
	}

	<-ctx.Done()
	client.Disconnect(250)
	l.log.Info("mqtt_disconnected")
	return nil
}

func (l *Listener) handle(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := l.in.Ingest(ctx, msg.Payload()); err != nil {
			l.log.Error("message_rejected", slog.String("topic", msg.Topic()), slog.Any("err", err))
		}
	}
}
