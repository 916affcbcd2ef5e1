// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Endpoint = (*MemoryEndpoint)(nil)

// Broker is an in-process pub/sub hub. Every open MemoryEndpoint whose
// filter matches a published topic receives its own copy of the payload.
// Messages published while no endpoint matches are dropped.
type Broker struct {
	mu        sync.RWMutex
	endpoints map[*MemoryEndpoint]struct{}
	closed    bool
}

// NewBroker creates an empty in-process broker.
func NewBroker() *Broker {
	return &Broker{endpoints: make(map[*MemoryEndpoint]struct{})}
}

// Endpoint returns a new unopened endpoint attached to this broker.
func (b *Broker) Endpoint() *MemoryEndpoint {
	return &MemoryEndpoint{
		broker: b,
		inbox:  newInbox(),
		guard:  newFetchGuard(),
	}
}

// Publish delivers payload on topic to every matching endpoint. It is
// the same path MemoryEndpoint.Publish uses, exposed so tests and
// embedding code can inject traffic without a bridge of their own.
func (b *Broker) Publish(topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for endpoint := range b.endpoints {
		if endpoint.matches(topic) {
			// Each subscriber gets its own copy so neither the
			// publisher nor another subscriber can mutate it.
			endpoint.inbox.push(append([]byte{}, payload...))
		}
	}
	return nil
}

// Close closes every attached endpoint and rejects further publishes.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	endpoints := b.endpoints
	b.endpoints = make(map[*MemoryEndpoint]struct{})
	b.mu.Unlock()

	for endpoint := range endpoints {
		endpoint.markClosed()
	}
	return nil
}

func (b *Broker) register(endpoint *MemoryEndpoint, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	for other := range b.endpoints {
		if other.topic == topic {
			return fmt.Errorf("channel: topic %q already has a publisher", topic)
		}
	}
	b.endpoints[endpoint] = struct{}{}
	return nil
}

func (b *Broker) unregister(endpoint *MemoryEndpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.endpoints, endpoint)
}

// MemoryEndpoint is an Endpoint attached to a Broker. Its inbound queue
// is unbounded: the broker never blocks a publisher on a slow fetcher.
type MemoryEndpoint struct {
	broker *Broker
	guard  fetchGuard
	inbox  *inbox

	mu     sync.Mutex
	topic  string
	filter Filter
	opened bool
	closed bool
}

// Open registers the endpoint with its broker. Two endpoints may not
// publish on the same topic.
func (e *MemoryEndpoint) Open(_ context.Context, publishTopic string, filter Filter) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.opened {
		e.mu.Unlock()
		return fmt.Errorf("channel: endpoint already open on %q", e.topic)
	}
	e.topic = publishTopic
	e.filter = filter
	e.mu.Unlock()

	if err := e.broker.register(e, publishTopic); err != nil {
		return err
	}

	e.mu.Lock()
	e.opened = true
	e.mu.Unlock()
	return nil
}

// Publish delivers payload to every matching endpoint on the broker.
func (e *MemoryEndpoint) Publish(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	topic, err := e.openTopic()
	if err != nil {
		return err
	}
	return e.broker.Publish(topic, payload)
}

// Fetch returns the oldest queued message, waiting up to timeout.
func (e *MemoryEndpoint) Fetch(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if err := e.guard.acquire(); err != nil {
		return nil, err
	}
	defer e.guard.release()

	if _, err := e.openTopic(); err != nil {
		return nil, err
	}
	return e.inbox.wait(ctx, timeout)
}

// Close unregisters the endpoint and wakes any blocked Fetch.
func (e *MemoryEndpoint) Close() error {
	e.broker.unregister(e)
	e.markClosed()
	return nil
}

// Pending returns the number of queued, unfetched messages.
func (e *MemoryEndpoint) Pending() int {
	return e.inbox.len()
}

// Closed reports whether Close has been called (directly or by the
// broker shutting down).
func (e *MemoryEndpoint) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *MemoryEndpoint) openTopic() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}
	if !e.opened {
		return "", ErrNotOpen
	}
	return e.topic, nil
}

func (e *MemoryEndpoint) matches(topic string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened && e.filter.Match(topic)
}

func (e *MemoryEndpoint) markClosed() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.inbox.close()
}
