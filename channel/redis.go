// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mediocregopher/radix.v2/pubsub"
	"github.com/mediocregopher/radix.v2/redis"
)

// Compile-time interface check.
var _ Endpoint = (*Redis)(nil)

const (
	defaultRedisTimeout = 10 * time.Second

	// redisReceivePoll is the read timeout on the subscribe connection.
	// The receive goroutine wakes at least this often to notice Close.
	redisReceivePoll = time.Second
)

// Redis is an Endpoint backed by Redis pub/sub. The publish handle
// issues PUBLISH on its own connection; the subscribe handle holds a
// second connection in PSUBSCRIBE mode with the filter as a glob.
type Redis struct {
	// Address is the "host:port" of the Redis server.
	Address string

	// Timeout bounds dialing and each PUBLISH round trip. Zero means
	// 10s.
	Timeout time.Duration

	// Logger receives lifecycle events. If nil, slog.Default() is used.
	Logger *slog.Logger

	guard      fetchGuard
	inbox      *inbox
	publisher  *redis.Client
	subscriber *pubsub.SubClient
	topic      string
	done       chan struct{}

	mu     sync.Mutex
	closed bool
}

func (r *Redis) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Redis) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return defaultRedisTimeout
}

// RedisPattern converts a Filter into a PSUBSCRIBE glob. Literal
// segments have glob metacharacters escaped.
func RedisPattern(filter Filter) string {
	convert := func(segment string) string {
		if segment == Wildcard {
			return "*"
		}
		var escaped strings.Builder
		for _, character := range segment {
			switch character {
			case '*', '?', '[', ']', '\\':
				escaped.WriteByte('\\')
			}
			escaped.WriteRune(character)
		}
		return escaped.String()
	}
	// A Redis "*" also spans "/", which is harmless: bridge topics
	// always have exactly two segments.
	return convert(filter.Source) + "/" + convert(filter.Channel)
}

// Open dials both connections and subscribes to the filter pattern.
func (r *Redis) Open(ctx context.Context, publishTopic string, filter Filter) error {
	if r.Address == "" {
		return fmt.Errorf("channel: redis address is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.guard = newFetchGuard()
	r.inbox = newInbox()
	r.topic = publishTopic
	r.done = make(chan struct{})

	publisher, err := redis.DialTimeout("tcp", r.Address, r.timeout())
	if err != nil {
		return fmt.Errorf("redis dial %s: %w", r.Address, err)
	}

	subscribeConnection, err := redis.DialTimeout("tcp", r.Address, redisReceivePoll)
	if err != nil {
		publisher.Close()
		return fmt.Errorf("redis dial %s: %w", r.Address, err)
	}

	subscriber := pubsub.NewSubClient(subscribeConnection)
	pattern := RedisPattern(filter)
	if response := subscriber.PSubscribe(pattern); response.Err != nil {
		subscribeConnection.Close()
		publisher.Close()
		return fmt.Errorf("redis psubscribe %q: %w", pattern, response.Err)
	}

	r.publisher = publisher
	r.subscriber = subscriber
	go r.receiveLoop()

	r.logger().Info("redis endpoint open",
		"address", r.Address,
		"publish_topic", publishTopic,
		"subscribe_pattern", pattern,
	)
	return nil
}

// receiveLoop moves messages from the subscribe connection into the
// inbox until Close or a connection failure.
func (r *Redis) receiveLoop() {
	defer close(r.done)
	for {
		response := r.subscriber.Receive()
		if r.isClosed() {
			return
		}
		switch {
		case response.Timeout():
			continue
		case response.Err != nil:
			r.inbox.fail(fmt.Errorf("redis receive: %w", response.Err))
			return
		case response.Type == pubsub.Message:
			r.inbox.push([]byte(response.Message))
		}
	}
}

// Publish sends payload with PUBLISH.
func (r *Redis) Publish(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.isClosed() {
		return ErrClosed
	}
	if r.publisher == nil {
		return ErrNotOpen
	}
	if response := r.publisher.Cmd("PUBLISH", r.topic, payload); response.Err != nil {
		return fmt.Errorf("redis publish to %s: %w", r.topic, response.Err)
	}
	return nil
}

// Fetch returns the next received message, waiting up to timeout.
func (r *Redis) Fetch(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if r.inbox == nil {
		return nil, ErrNotOpen
	}
	if err := r.guard.acquire(); err != nil {
		return nil, err
	}
	defer r.guard.release()
	return r.inbox.wait(ctx, timeout)
}

// Close closes both connections and waits for the receive goroutine.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	var firstErr error
	if r.subscriber != nil {
		if err := r.subscriber.Client.Close(); err != nil {
			firstErr = fmt.Errorf("closing redis subscribe connection: %w", err)
		}
		<-r.done
	}
	if r.publisher != nil {
		if err := r.publisher.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing redis publish connection: %w", err)
		}
	}
	if r.inbox != nil {
		r.inbox.close()
	}
	return firstErr
}

func (r *Redis) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
