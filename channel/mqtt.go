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

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Compile-time interface check.
var _ Endpoint = (*MQTT)(nil)

// defaultMQTTTimeout bounds connect, subscribe, and publish
// acknowledgements when MQTT.Timeout is zero.
const defaultMQTTTimeout = 10 * time.Second

// MQTT is an Endpoint backed by an MQTT broker. It opens two client
// connections, one per handle, named after the bridge ("<name>Source"
// publishes, "<name>Sink" subscribes), matching how the bridge presents
// itself on the middleware.
//
// Automatic reconnection is disabled: a lost connection is a channel
// failure that shuts the bridge down.
type MQTT struct {
	// Broker is the broker address. A bare "host:port" is dialed as
	// "tcp://host:port".
	Broker string

	// Name is the bridge name used to derive client IDs.
	Name string

	// QoS is the quality of service for both publish and subscribe.
	QoS byte

	// Timeout bounds every acknowledged operation. Zero means 10s.
	Timeout time.Duration

	// Logger receives connection lifecycle events. If nil,
	// slog.Default() is used.
	Logger *slog.Logger

	guard     fetchGuard
	inbox     *inbox
	publisher mqtt.Client
	receiver  mqtt.Client
	topic     string

	mu         sync.Mutex
	closed     bool
	publishErr error
}

func (m *MQTT) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m *MQTT) timeout() time.Duration {
	if m.Timeout > 0 {
		return m.Timeout
	}
	return defaultMQTTTimeout
}

// brokerURL normalizes Broker into the URL form paho expects.
func (m *MQTT) brokerURL() string {
	if strings.Contains(m.Broker, "://") {
		return m.Broker
	}
	return "tcp://" + m.Broker
}

// MQTTTopicFilter converts a Filter into MQTT syntax, mapping the "*"
// wildcard to the single-level "+" wildcard.
func MQTTTopicFilter(filter Filter) string {
	convert := func(segment string) string {
		if segment == Wildcard {
			return "+"
		}
		return segment
	}
	return convert(filter.Source) + "/" + convert(filter.Channel)
}

// Open connects the publish and subscribe clients and subscribes to
// filter.
func (m *MQTT) Open(ctx context.Context, publishTopic string, filter Filter) error {
	if m.Broker == "" {
		return fmt.Errorf("channel: mqtt broker address is required")
	}
	if m.Name == "" {
		return fmt.Errorf("channel: mqtt client name is required")
	}
	m.guard = newFetchGuard()
	m.inbox = newInbox()
	m.topic = publishTopic

	publisher, err := m.connect(ctx, SourceName(m.Name), func(_ mqtt.Client, err error) {
		m.logger().Error("mqtt publish connection lost", "error", err)
		m.mu.Lock()
		m.publishErr = fmt.Errorf("mqtt publish connection lost: %w", err)
		m.mu.Unlock()
	})
	if err != nil {
		return err
	}

	receiver, err := m.connect(ctx, SinkName(m.Name), func(_ mqtt.Client, err error) {
		m.logger().Error("mqtt subscribe connection lost", "error", err)
		m.inbox.fail(fmt.Errorf("mqtt subscribe connection lost: %w", err))
	})
	if err != nil {
		publisher.Disconnect(0)
		return err
	}

	topicFilter := MQTTTopicFilter(filter)
	token := receiver.Subscribe(topicFilter, m.QoS, func(_ mqtt.Client, message mqtt.Message) {
		m.inbox.push(append([]byte{}, message.Payload()...))
	})
	if err := m.await(ctx, token, "subscribe to "+topicFilter); err != nil {
		receiver.Disconnect(0)
		publisher.Disconnect(0)
		return err
	}

	m.publisher = publisher
	m.receiver = receiver

	m.logger().Info("mqtt endpoint open",
		"broker", m.brokerURL(),
		"publish_topic", publishTopic,
		"subscribe_filter", topicFilter,
	)
	return nil
}

func (m *MQTT) connect(ctx context.Context, clientID string, onLost mqtt.ConnectionLostHandler) (mqtt.Client, error) {
	options := mqtt.NewClientOptions()
	options.AddBroker(m.brokerURL())
	options.SetClientID(clientID)
	options.SetCleanSession(true)
	options.SetAutoReconnect(false)
	options.SetConnectRetry(false)
	options.SetOrderMatters(true)
	options.SetConnectTimeout(m.timeout())
	options.SetConnectionLostHandler(onLost)

	client := mqtt.NewClient(options)
	if err := m.await(ctx, client.Connect(), "connect "+clientID); err != nil {
		// A connect that completes after the wait gave up would leave
		// a live session behind.
		client.Disconnect(0)
		return nil, err
	}
	return client, nil
}

// await waits for token within the endpoint timeout, honoring ctx.
func (m *MQTT) await(ctx context.Context, token mqtt.Token, operation string) error {
	timer := time.NewTimer(m.timeout())
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("mqtt %s: timed out after %s", operation, m.timeout())
	case <-ctx.Done():
		return fmt.Errorf("mqtt %s: %w", operation, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", operation, err)
	}
	return nil
}

// Publish sends payload on the publish topic and waits for the broker
// acknowledgement (immediate for QoS 0).
func (m *MQTT) Publish(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	closed, lost := m.closed, m.publishErr
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if lost != nil {
		return lost
	}
	if m.publisher == nil {
		return ErrNotOpen
	}
	return m.await(ctx, m.publisher.Publish(m.topic, m.QoS, false, payload), "publish to "+m.topic)
}

// Fetch returns the next received message, waiting up to timeout.
func (m *MQTT) Fetch(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if m.inbox == nil {
		return nil, ErrNotOpen
	}
	if err := m.guard.acquire(); err != nil {
		return nil, err
	}
	defer m.guard.release()
	return m.inbox.wait(ctx, timeout)
}

// Close disconnects both clients.
func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// Quiesce in milliseconds: give in-flight publishes a moment to
	// drain before the socket closes.
	if m.receiver != nil {
		m.receiver.Disconnect(250)
	}
	if m.publisher != nil {
		m.publisher.Disconnect(250)
	}
	if m.inbox != nil {
		m.inbox.close()
	}
	return nil
}
