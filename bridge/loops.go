// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"io"
	"runtime"
	"time"

	"github.com/bureau-foundation/bytebridge/lib/netutil"
)

// sinkLoop delivers fetched messages to the transport until ctx ends or
// a fetch or write fails.
func (b *Bridge) sinkLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		payload, err := b.endpoint.Fetch(ctx, b.fetchTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &ChannelIOError{Op: "fetch", Err: err}
		}
		if payload == nil {
			continue
		}

		if err := b.deliver(payload); err != nil {
			return b.hangupOrError(err)
		}
	}
}

// deliver writes one message to the transport's output in full.
func (b *Bridge) deliver(payload []byte) error {
	written, err := b.transport.Output().Write(payload)
	if err == nil && written != len(payload) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &TransportIOError{Op: "write", Err: err}
	}

	b.messagesDelivered.Add(1)
	b.bytesDelivered.Add(uint64(len(payload)))
	b.logger.Debug("message delivered", "bytes", len(payload))
	return nil
}

// sourceLoop publishes transport input until ctx ends or a transfer
// fails.
func (b *Bridge) sourceLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		transferred, err := b.transfer(ctx)
		if err != nil {
			return b.hangupOrError(err)
		}
		if transferred == 0 {
			b.yield(ctx)
		}
	}
}

// transfer reads everything the transport has available right now and
// publishes it as one message. It returns the number of bytes
// published, which is zero when nothing was available. The polling
// loop and the event-driven handler both use it.
func (b *Bridge) transfer(ctx context.Context) (int, error) {
	available, err := b.transport.Available()
	if err != nil {
		return 0, &TransportIOError{Op: "available", Err: err}
	}
	if available <= 0 {
		return 0, nil
	}

	payload := make([]byte, available)
	if _, err := io.ReadFull(b.transport.Input(), payload); err != nil {
		return 0, &TransportIOError{Op: "read", Err: err}
	}
	if err := b.endpoint.Publish(ctx, payload); err != nil {
		return 0, &ChannelIOError{Op: "publish " + b.topic, Err: err}
	}

	b.messagesPublished.Add(1)
	b.bytesPublished.Add(uint64(available))
	b.logger.Debug("message published", "bytes", available)
	return available, nil
}

// handleNotification is the event-driven replacement for sourceLoop. It
// runs on the transport's notification goroutine and transfers until
// the transport reports nothing available. Notifications coalesce, so
// one invocation may have to pick up a hang-up that arrived behind the
// data it was woken for.
func (b *Bridge) handleNotification(ctx context.Context) {
	for ctx.Err() == nil {
		transferred, err := b.transfer(ctx)
		if err != nil {
			b.finish(ctx, "source", b.hangupOrError(err))
			return
		}
		if transferred == 0 {
			return
		}
	}
}

// hangupOrError maps a transport failure that means the peer went away
// to a clean stop. Everything else passes through.
func (b *Bridge) hangupOrError(err error) error {
	var transportErr *TransportIOError
	if errors.As(err, &transportErr) && netutil.IsExpectedCloseError(transportErr.Err) {
		b.logger.Info("transport peer hung up", "op", transportErr.Op, "error", transportErr.Err)
		return nil
	}
	return err
}

// yield gives up the processor between empty polls: a short sleep when
// a poll interval is configured, otherwise a scheduler yield.
func (b *Bridge) yield(ctx context.Context) {
	if b.pollInterval <= 0 {
		runtime.Gosched()
		return
	}
	timer := time.NewTimer(b.pollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
