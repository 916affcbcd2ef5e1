// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/bytebridge/channel"
	"github.com/bureau-foundation/bytebridge/transport"
)

const (
	// DefaultFetchTimeout is the sink loop's bounded wait per fetch.
	DefaultFetchTimeout = 250 * time.Millisecond

	// DefaultDrainTimeout is how long shutdown waits for the loops to
	// stop before closing the collaborators underneath them.
	DefaultDrainTimeout = 5 * time.Second
)

// Config parameterizes a Bridge.
type Config struct {
	// Name identifies the bridge. It derives the publish topic
	// (channel.PublishTopic) and appears in every log line.
	Name string

	// Filter selects the messages the sink loop delivers. The zero
	// value means channel.DefaultFilter.
	Filter channel.Filter

	// FetchTimeout bounds each Fetch. Zero means DefaultFetchTimeout.
	FetchTimeout time.Duration

	// PollInterval is the source loop's sleep when no input is
	// available. Zero yields the processor without sleeping.
	PollInterval time.Duration

	// DrainTimeout bounds the wait for loops during shutdown. Zero
	// means DefaultDrainTimeout.
	DrainTimeout time.Duration

	// Logger receives structured log output. If nil, slog.Default() is
	// used. Per-message events are logged at Debug level; lifecycle
	// events at Info; failures at Error.
	Logger *slog.Logger
}

// Stats counts traffic through a bridge. Published figures are the
// source direction (transport to channel); delivered figures are the
// sink direction.
type Stats struct {
	MessagesPublished uint64
	BytesPublished    uint64
	MessagesDelivered uint64
	BytesDelivered    uint64
}

// Bridge couples a transport and a channel endpoint. Create one with
// Open; a Bridge is single-use.
type Bridge struct {
	name         string
	topic        string
	filter       channel.Filter
	fetchTimeout time.Duration
	pollInterval time.Duration
	drainTimeout time.Duration
	logger       *slog.Logger

	transport transport.Transport
	endpoint  channel.Endpoint

	mu         sync.Mutex
	state      State
	cancel     context.CancelFunc
	stopNotify func()
	failure    error

	loops sync.WaitGroup

	shutdownOnce sync.Once
	closeErr     error
	done         chan struct{}

	messagesPublished atomic.Uint64
	bytesPublished    atomic.Uint64
	messagesDelivered atomic.Uint64
	bytesDelivered    atomic.Uint64
}

// Open acquires the transport, then opens the endpoint on the bridge's
// publish topic. If the endpoint cannot be opened the transport is
// closed again. On failure the error is a *TransportOpenError or a
// *ChannelOpenError and no Bridge is returned.
func Open(ctx context.Context, config Config, medium transport.Transport, endpoint channel.Endpoint) (*Bridge, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("bridge: name is required")
	}
	if medium == nil || endpoint == nil {
		return nil, fmt.Errorf("bridge: transport and endpoint are required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		name:         config.Name,
		topic:        channel.PublishTopic(config.Name),
		filter:       config.Filter,
		fetchTimeout: config.FetchTimeout,
		pollInterval: config.PollInterval,
		drainTimeout: config.DrainTimeout,
		logger:       logger.With("bridge", config.Name),
		transport:    medium,
		endpoint:     endpoint,
		done:         make(chan struct{}),
	}
	if b.filter == (channel.Filter{}) {
		b.filter = channel.DefaultFilter
	}
	if b.fetchTimeout <= 0 {
		b.fetchTimeout = DefaultFetchTimeout
	}
	if b.drainTimeout <= 0 {
		b.drainTimeout = DefaultDrainTimeout
	}

	if err := medium.Open(ctx); err != nil {
		return nil, &TransportOpenError{Op: "open", Err: err}
	}
	if err := endpoint.Open(ctx, b.topic, b.filter); err != nil {
		if closeErr := medium.Close(); closeErr != nil {
			b.logger.Error("closing transport after endpoint open failure", "error", closeErr)
		}
		return nil, &ChannelOpenError{Op: "open " + b.topic, Err: err}
	}

	b.logger.Info("bridge opened",
		"publish_topic", b.topic,
		"filter", b.filter.String(),
	)
	return b, nil
}

// Name returns the bridge name.
func (b *Bridge) Name() string {
	return b.name
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the traffic counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		MessagesPublished: b.messagesPublished.Load(),
		BytesPublished:    b.bytesPublished.Load(),
		MessagesDelivered: b.messagesDelivered.Load(),
		BytesDelivered:    b.bytesDelivered.Load(),
	}
}

// Done returns a channel that is closed once shutdown has completed.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Run starts the sink loop and either the source loop or the
// event-driven handler, and blocks until the bridge stops. It stops
// when ctx is cancelled, when Close is called, or when a loop ends.
// Shutdown has completed by the time Run returns.
//
// The returned error is the first loop failure (a *TransportIOError or
// *ChannelIOError) joined with the *CloseError from shutdown, if any.
// A stop caused by cancellation, Close, or a peer hang-up is not a
// failure. Run returns ErrNotRunnable if the bridge is not in
// StateCreated.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateCreated {
		b.mu.Unlock()
		return ErrNotRunnable
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.state = StateRunning
	b.cancel = cancel

	// Start everything under the lock so a concurrent Close observes
	// either nothing started or everything started.
	b.startLoop(runCtx, "sink", b.sinkLoop)
	mode := "polling"
	if notifying, ok := b.transport.(transport.EventDriven); ok && notifying.EventDriven() {
		mode = "event-driven"
		b.stopNotify = notifying.NotifyDataAvailable(func() {
			b.handleNotification(runCtx)
		})
	} else {
		b.startLoop(runCtx, "source", b.sourceLoop)
	}
	b.mu.Unlock()

	b.logger.Info("bridge running",
		"source_mode", mode,
		"fetch_timeout", b.fetchTimeout,
	)

	<-runCtx.Done()
	_, closeErr := b.shutdown()

	b.mu.Lock()
	failure := b.failure
	b.mu.Unlock()
	return errors.Join(failure, closeErr)
}

// Close stops the bridge and closes both collaborators. It is safe to
// call from any goroutine and any number of times; the first call
// returns the *CloseError from shutdown (if any) and later calls return
// nil. Close unblocks Run.
func (b *Bridge) Close() error {
	first, err := b.shutdown()
	if !first {
		return nil
	}
	return err
}

func (b *Bridge) startLoop(ctx context.Context, direction string, loop func(context.Context) error) {
	b.loops.Add(1)
	go func() {
		defer b.loops.Done()
		b.finish(ctx, direction, loop(ctx))
	}()
}

// finish records the outcome of a direction and stops the bridge. Any
// direction ending (cleanly or not) ends the bridge: a half-open bridge
// would silently drop one side of the conversation.
func (b *Bridge) finish(ctx context.Context, direction string, err error) {
	switch {
	case err == nil:
		b.logger.Debug("bridge direction finished", "direction", direction)
	case ctx.Err() != nil:
		// Errors from collaborators closed under a stopping loop are
		// a consequence of the stop, not a failure.
		b.logger.Debug("bridge direction stopped", "direction", direction, "error", err)
	default:
		b.logger.Error("bridge direction failed", "direction", direction, "error", err)
		b.mu.Lock()
		if b.failure == nil {
			b.failure = err
		}
		b.mu.Unlock()
	}

	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// shutdown runs the shutdown sequence exactly once. first reports
// whether this call ran it; every caller returns after it completes.
func (b *Bridge) shutdown() (first bool, err error) {
	b.shutdownOnce.Do(func() {
		first = true

		b.mu.Lock()
		previous := b.state
		b.state = StateDraining
		cancel, stopNotify := b.cancel, b.stopNotify
		b.stopNotify = nil
		b.mu.Unlock()

		b.logger.Info("bridge shutting down", "from_state", previous.String())
		if cancel != nil {
			cancel()
		}

		stopped := make(chan struct{})
		go func() {
			if stopNotify != nil {
				stopNotify()
			}
			b.loops.Wait()
			close(stopped)
		}()

		timer := time.NewTimer(b.drainTimeout)
		drained := true
		select {
		case <-stopped:
		case <-timer.C:
			drained = false
			b.logger.Warn("bridge loops did not stop within drain timeout, closing collaborators to interrupt them",
				"drain_timeout", b.drainTimeout,
			)
		}
		timer.Stop()

		endpointErr := b.endpoint.Close()
		transportErr := b.transport.Close()

		if !drained {
			<-stopped
		}

		if endpointErr != nil || transportErr != nil {
			closeErr := &CloseError{Endpoint: endpointErr, Transport: transportErr}
			b.logger.Error("bridge cleanup failed", "error", closeErr)
			b.closeErr = closeErr
		}

		stats := b.Stats()
		b.logger.Info("bridge closed",
			"messages_published", stats.MessagesPublished,
			"bytes_published", stats.BytesPublished,
			"messages_delivered", stats.MessagesDelivered,
			"bytes_delivered", stats.BytesDelivered,
		)

		b.mu.Lock()
		b.state = StateClosed
		b.mu.Unlock()
		close(b.done)
	})
	return first, b.closeErr
}
