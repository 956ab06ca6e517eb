// Package nats connects the portal to a NATS JetStream server for activity events.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Activity stream layout. Every portal subject lives under "portal.".
const (
	ActivityStream  = "PORTAL_ACTIVITY"
	ActivitySubject = "portal.>"

	activityRetention = 30 * 24 * time.Hour
	connectTimeout    = 5 * time.Second
)

// Client is a JetStream publisher bound to one connection.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
	log  *zerolog.Logger
}

// New dials the server and prepares a JetStream context. Disconnects and
// reconnects are logged on log when it is non-nil.
func New(_ context.Context, url string, log *zerolog.Logger) (*Client, error) {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}

	conn, err := nats.Connect(url,
		nats.Name("survey-portal"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open jetstream: %w", err)
	}

	return &Client{conn: conn, js: js, log: log}, nil
}

// EnsureStream creates or updates the named stream with the activity retention.
func (c *Client) EnsureStream(ctx context.Context, name string, subjects []string) error {
	if _, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: subjects,
		MaxAge:   activityRetention,
		Storage:  jetstream.FileStorage,
	}); err != nil {
		return fmt.Errorf("ensure stream %s: %w", name, err)
	}
	c.log.Debug().Str("stream", name).Strs("subjects", subjects).Msg("stream ready")
	return nil
}

// Publish encodes data as JSON and publishes it with a fresh message id so the
// server drops duplicates of a retried publish.
func (c *Client) Publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", subject, err)
	}

	ack, err := c.js.Publish(ctx, subject, payload, jetstream.WithMsgID(uuid.NewString()))
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	c.log.Debug().Str("subject", subject).Uint64("seq", ack.Sequence).Msg("activity published")
	return nil
}

// Close drains pending publishes and closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}
