// Package notify publishes queue events onto NATS subjects for fan-out to
// external subscribers, and relays inbound subject traffic back onto a
// mqueue queue so external events join the same single-goroutine dispatch
// as everything else.
package notify

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"go.relayqueue.dev/internal/common/metrics"
	"go.relayqueue.dev/internal/mqueue"
)

// Config configures a Publisher/Subscriber pair.
type Config struct {
	URL           string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url string) Config {
	return Config{URL: url, ReconnectWait: 2 * time.Second, MaxReconnects: -1}
}

// Client wraps a connected NATS conn shared between publish and subscribe
// sides.
type Client struct {
	conn *nats.Conn
}

// Connect dials cfg.URL, logging (not failing) on every disconnect/reconnect
// so transient broker restarts don't bring the queue runtime down with it.
func Connect(cfg Config) (*Client, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("notify: nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("notify: nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: connect %s: %w", cfg.URL, err)
	}
	return &Client{conn: conn}, nil
}

// Close drains and closes the underlying connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		log.Warn().Err(err).Msg("notify: drain failed")
	}
}

// Publish sends payload on subject, best-effort (NATS core delivery has no
// durable redelivery; callers that need that should post through the
// webhook or sqsbridge packages instead).
func (c *Client) Publish(subject string, payload []byte) error {
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("notify: publish %s: %w", subject, err)
	}
	metrics.NotifyMessagesPublished.WithLabelValues(subject).Inc()
	return nil
}

// Relay subscribes to subject and posts every received message onto handler
// as a Body.Body1 of type []byte, so subscription delivery is serialized
// through the same queue as the rest of a component's work. The returned
// unsubscribe func stops delivery; it does not close the underlying Client.
func (c *Client) Relay(subject string, handler mqueue.HandlerID) (func() error, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		body := make([]byte, len(msg.Data))
		copy(body, msg.Data)
		post := mqueue.PostMessage(handler, mqueue.Body{Body1: body}, mqueue.ImmediateTiming())
		if post.IsNull() {
			log.Warn().Str("subject", subject).Msg("notify: relay target queue gone, dropping message")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("notify: subscribe %s: %w", subject, err)
	}
	return sub.Unsubscribe, nil
}
