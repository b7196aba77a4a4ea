package natsadapter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/studyspot/internal/pkg/observe"
)

// Client is a NATS connection shared by the change feed and the location
// provider. Its connection state doubles as the agent's connectivity signal.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext

	mu     sync.Mutex
	online bool
	state  *observe.Broadcaster[bool]
	logger *slog.Logger
}

// Connect dials NATS, retrying in the background until the server is reachable.
func Connect(url, name string) (*Client, error) {
	c := &Client{
		state:  observe.New[bool](),
		logger: slog.Default().With("component", "nats"),
	}

	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ConnectHandler(func(*nats.Conn) { c.setOnline(true) }),
		nats.ReconnectHandler(func(*nats.Conn) { c.setOnline(true) }),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("nats disconnected", "error", err)
			}
			c.setOnline(false)
		}),
		nats.ClosedHandler(func(*nats.Conn) { c.setOnline(false) }),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	c.conn = conn
	c.js = js
	c.setOnline(conn.IsConnected())
	return c, nil
}

// Conn exposes the underlying connection.
func (c *Client) Conn() *nats.Conn { return c.conn }

// Online implements ports.Connectivity.
func (c *Client) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// Subscribe implements ports.Connectivity. fn is called on transitions only.
func (c *Client) Subscribe(fn func(online bool)) func() {
	return c.state.Subscribe(fn).Unsubscribe
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	changed := c.online != online
	c.online = online
	c.mu.Unlock()

	if changed {
		c.logger.Info("nats connection state changed", "online", online)
		c.state.Publish(online)
	}
}

// Ready reports whether the connection is currently usable.
func (c *Client) Ready() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c.conn != nil {
		_ = c.conn.Drain()
	}
	c.state.Close()
}
