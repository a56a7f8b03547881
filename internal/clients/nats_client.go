package clients

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"raffle-backend/internal/config"
	"raffle-backend/internal/metrics"

	"github.com/nats-io/nats.go"
)

// Publisher publishes raw payloads on a subject
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSClient NATS client
type NATSClient struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	streamName string
	subjects   []string
	subs       []*nats.Subscription
}

// NewNATSClient connects to NATS. When cfg.EnableJetStream is set the
// stream covering subjects is created if missing.
func NewNATSClient(cfg config.NATSConfig, streamName string, subjects []string) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
		log.Printf("🔌 Using configured NATS timeout: %v", connectTimeout)
	} else {
		log.Printf("🔌 Using default NATS timeout: %v", connectTimeout)
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	maxReconnects := -1
	if cfg.MaxReconnects > 0 {
		maxReconnects = cfg.MaxReconnects
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("raffle-backend"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ NATS reconnected: %s", nc.ConnectedUrl())
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	client := &NATSClient{
		conn:       conn,
		streamName: streamName,
		subjects:   subjects,
	}

	if cfg.EnableJetStream {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		client.js = js
		if err := client.ensureStream(); err != nil {
			conn.Close()
			return nil, err
		}
	} else {
		log.Printf("✅ Using core NATS subscriptions, JetStream disabled")
	}

	return client, nil
}

// ensureStream creates the JetStream stream when it does not exist
func (c *NATSClient) ensureStream() error {
	if _, err := c.js.StreamInfo(c.streamName); err == nil {
		log.Printf("📦 Stream %s already exists", c.streamName)
		return nil
	}

	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:      c.streamName,
		Subjects:  c.subjects,
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", c.streamName, err)
	}

	log.Printf("📦 Stream %s created for %v", c.streamName, c.subjects)
	return nil
}

// Subscribe subscribes with core NATS, falling back to JetStream
func (c *NATSClient) Subscribe(subject string, handler nats.MsgHandler) error {
	log.Printf("🔍 Subscribing to NATS subject: %s", subject)
	sub, err := c.conn.Subscribe(subject, handler)
	if err == nil {
		c.subs = append(c.subs, sub)
		metrics.NATSSubscriptionStatus.WithLabelValues(subject).Set(1)
		log.Printf("✅ NATS subscription active: %s", subject)
		return nil
	}

	if c.js == nil {
		metrics.NATSSubscriptionStatus.WithLabelValues(subject).Set(0)
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	log.Printf("⚠️ NATS subscription failed, trying JetStream: %v", err)

	sub, err = c.js.Subscribe(subject, handler)
	if err != nil {
		metrics.NATSSubscriptionStatus.WithLabelValues(subject).Set(0)
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	metrics.NATSSubscriptionStatus.WithLabelValues(subject).Set(1)
	log.Printf("✅ JetStream subscription active: %s", subject)
	return nil
}

// Publish publishes raw data, through JetStream when enabled
func (c *NATSClient) Publish(subject string, data []byte) error {
	if c.js != nil {
		if _, err := c.js.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
		return nil
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it
func (c *NATSClient) PublishJSON(subject string, v interface{}) error {
	return PublishJSON(c, subject, v)
}

// PublishJSON marshals v and publishes it through p
func PublishJSON(p Publisher, subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", subject, err)
	}
	return p.Publish(subject, data)
}

// IsConnected reports the connection state
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains subscriptions and closes the connection
func (c *NATSClient) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
	if c.conn != nil {
		c.conn.Close()
	}
	metrics.NATSConnectionStatus.Set(0)
}
