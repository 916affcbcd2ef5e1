// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Compile-time interface check.
var _ Endpoint = (*Postgres)(nil)

// DefaultPostgresChannel is the NOTIFY channel shared by all bridges
// when Postgres.Channel is empty.
const DefaultPostgresChannel = "bytebridge"

// maxNotifyPayload is PostgreSQL's NOTIFY payload limit: the payload
// must be shorter than 8000 bytes.
const maxNotifyPayload = 7999

// ErrPayloadTooLarge is returned by Postgres.Publish when the encoded
// notification would exceed the NOTIFY payload limit.
var ErrPayloadTooLarge = errors.New("channel: payload exceeds PostgreSQL NOTIFY limit")

// Postgres is an Endpoint backed by PostgreSQL LISTEN/NOTIFY. All
// bridges share one notification channel; each notification carries
// the publishing topic and the base64-encoded payload (NOTIFY payloads
// are text), and Fetch discards notifications the filter rejects.
//
// The publish and subscribe handles are separate connections because a
// pgx.Conn is not safe for concurrent use and the sink loop holds the
// listening connection inside WaitForNotification.
type Postgres struct {
	// ConnString is a libpq-style URL or keyword/value string.
	ConnString string

	// Channel is the NOTIFY channel. Empty means DefaultPostgresChannel.
	Channel string

	// Logger receives lifecycle events. If nil, slog.Default() is used.
	Logger *slog.Logger

	guard     fetchGuard
	publisher *pgx.Conn
	listener  *pgx.Conn
	topic     string
	filter    Filter

	mu     sync.Mutex
	closed bool
}

func (p *Postgres) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Postgres) channelName() string {
	if p.Channel != "" {
		return p.Channel
	}
	return DefaultPostgresChannel
}

// Open connects both handles and issues LISTEN on the shared channel.
func (p *Postgres) Open(ctx context.Context, publishTopic string, filter Filter) error {
	if p.ConnString == "" {
		return fmt.Errorf("channel: postgres connection string is required")
	}
	p.guard = newFetchGuard()
	p.topic = publishTopic
	p.filter = filter

	publisher, err := pgx.Connect(ctx, p.ConnString)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}

	listener, err := pgx.Connect(ctx, p.ConnString)
	if err != nil {
		publisher.Close(ctx)
		return fmt.Errorf("postgres connect: %w", err)
	}

	if _, err := listener.Exec(ctx, "LISTEN "+pgx.Identifier{p.channelName()}.Sanitize()); err != nil {
		listener.Close(ctx)
		publisher.Close(ctx)
		return fmt.Errorf("postgres listen %s: %w", p.channelName(), err)
	}

	p.publisher = publisher
	p.listener = listener

	p.logger().Info("postgres endpoint open",
		"channel", p.channelName(),
		"publish_topic", publishTopic,
		"subscribe_filter", filter.String(),
	)
	return nil
}

// Publish sends payload with pg_notify.
func (p *Postgres) Publish(ctx context.Context, payload []byte) error {
	if p.isClosed() {
		return ErrClosed
	}
	if p.publisher == nil {
		return ErrNotOpen
	}

	notification, err := EncodeNotification(p.topic, payload)
	if err != nil {
		return err
	}
	if _, err := p.publisher.Exec(ctx, "SELECT pg_notify($1, $2)", p.channelName(), notification); err != nil {
		return fmt.Errorf("postgres notify %s: %w", p.channelName(), err)
	}
	return nil
}

// Fetch waits up to timeout for a notification whose topic matches the
// filter.
func (p *Postgres) Fetch(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}
	if p.listener == nil {
		return nil, ErrNotOpen
	}
	if err := p.guard.acquire(); err != nil {
		return nil, err
	}
	defer p.guard.release()

	if timeout <= 0 {
		timeout = time.Millisecond
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		notification, err := p.listener.WaitForNotification(waitCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
				return nil, nil
			}
			if p.isClosed() {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("postgres wait for notification: %w", err)
		}

		topic, payload, err := DecodeNotification(notification.Payload)
		if err != nil {
			p.logger().Warn("discarding malformed notification",
				"channel", notification.Channel,
				"pid", notification.PID,
				"error", err,
			)
			continue
		}
		if p.filter.Match(topic) {
			return payload, nil
		}
	}
}

// Close closes both connections.
func (p *Postgres) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if p.listener != nil {
		if err := p.listener.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing postgres listen connection: %w", err))
		}
	}
	if p.publisher != nil {
		if err := p.publisher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing postgres publish connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (p *Postgres) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// EncodeNotification builds the NOTIFY payload for payload published on
// topic: the topic, a newline, and the base64 body.
func EncodeNotification(topic string, payload []byte) (string, error) {
	if strings.ContainsRune(topic, '\n') {
		return "", fmt.Errorf("channel: topic %q contains a newline", topic)
	}
	encoded := topic + "\n" + base64.StdEncoding.EncodeToString(payload)
	if len(encoded) > maxNotifyPayload {
		return "", fmt.Errorf("%w: %d bytes encoded as %d", ErrPayloadTooLarge, len(payload), len(encoded))
	}
	return encoded, nil
}

// DecodeNotification reverses EncodeNotification.
func DecodeNotification(notification string) (topic string, payload []byte, err error) {
	topic, body, found := strings.Cut(notification, "\n")
	if !found {
		return "", nil, fmt.Errorf("channel: notification has no topic line")
	}
	payload, err = base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", nil, fmt.Errorf("channel: notification body: %w", err)
	}
	return topic, payload, nil
}
