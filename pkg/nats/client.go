package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Client wraps a NATS JetStream connection used for best-effort
// broadcast of backtest run events to anything tailing the stream (a
// live dashboard). It is never required for a run to complete
// correctly; the NDJSON event log remains the durable record.
type Client struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Entry
	config *Config
}

// Config holds NATS connection and stream configuration.
type Config struct {
	URL      string
	ClientID string
	Streams  []StreamConfig
}

// StreamConfig defines a JetStream stream to provision on connect.
type StreamConfig struct {
	Name      string
	Subjects  []string
	Retention nats.RetentionPolicy
	MaxAge    time.Duration
	MaxMsgs   int64
}

// NewClient connects to NATS and provisions the configured streams.
func NewClient(config *Config) (*Client, error) {
	logger := logrus.WithField("component", "nats-client")

	opts := []nats.Option{
		nats.Name(config.ClientID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Errorf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Errorf("NATS error: %v", err)
		}),
	}

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &Client{
		conn:   conn,
		js:     js,
		logger: logger,
		config: config,
	}

	if err := client.initializeStreams(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize streams: %w", err)
	}

	return client, nil
}

func (c *Client) initializeStreams() error {
	for _, streamConfig := range c.config.Streams {
		config := &nats.StreamConfig{
			Name:      streamConfig.Name,
			Subjects:  streamConfig.Subjects,
			Retention: streamConfig.Retention,
			MaxAge:    streamConfig.MaxAge,
			MaxMsgs:   streamConfig.MaxMsgs,
			Storage:   nats.FileStorage,
			Replicas:  1,
		}

		if _, err := c.js.StreamInfo(streamConfig.Name); err == nil {
			if _, err := c.js.UpdateStream(config); err != nil {
				return fmt.Errorf("failed to update stream %s: %w", streamConfig.Name, err)
			}
			c.logger.Infof("updated stream: %s", streamConfig.Name)
		} else {
			if _, err := c.js.AddStream(config); err != nil {
				return fmt.Errorf("failed to create stream %s: %w", streamConfig.Name, err)
			}
			c.logger.Infof("created stream: %s", streamConfig.Name)
		}
	}
	return nil
}

// Close closes the NATS connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// PublishSystem publishes a best-effort system/observability message
// under subject "system.<component>.<event>".
func (c *Client) PublishSystem(component, event string, data interface{}) error {
	subject := fmt.Sprintf("system.%s.%s", component, event)
	return c.publish(subject, data)
}

// Publish publishes data to an arbitrary, caller-built subject, for
// callers whose subject shape doesn't fit PublishSystem's fixed
// "system.<component>.<event>" convention.
func (c *Client) Publish(subject string, data interface{}) error {
	return c.publish(subject, data)
}

func (c *Client) publish(subject string, data interface{}) error {
	msg, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if _, err := c.js.Publish(subject, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	c.logger.Debugf("published to %s", subject)
	return nil
}

// MessageHandler processes an incoming message on a subject.
type MessageHandler func(subject string, data []byte) error

// Subscription wraps a durable JetStream subscription.
type Subscription struct {
	sub    *nats.Subscription
	logger *logrus.Entry
}

// Unsubscribe removes the subscription.
func (s *Subscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	s.logger.Info("unsubscribed")
	return nil
}

// SubscribeSystem subscribes a dashboard-style consumer to all
// backtest system events for a durable consumer name.
func (c *Client) SubscribeSystem(durableName string, handler MessageHandler) (*Subscription, error) {
	sub, err := c.js.Subscribe("system.backtest.>", func(msg *nats.Msg) {
		if err := handler(msg.Subject, msg.Data); err != nil {
			c.logger.Errorf("handler error for %s: %v", msg.Subject, err)
		}
		msg.Ack()
	}, nats.Durable(durableName))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to system.backtest.>: %w", err)
	}
	return &Subscription{sub: sub, logger: c.logger}, nil
}
