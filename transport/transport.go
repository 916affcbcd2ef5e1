// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

var (
	// ErrNotOpen is returned by Available before Open succeeds.
	ErrNotOpen = errors.New("transport: not open")

	// ErrClosed is returned by operations on a transport after Close.
	// It matches net.ErrClosed so that close classification in
	// lib/netutil treats it as an expected termination.
	ErrClosed = fmt.Errorf("transport: %w", net.ErrClosed)
)

// Transport is a bidirectional byte-stream medium.
type Transport interface {
	// Open acquires the medium. A Transport is opened at most once.
	Open(ctx context.Context) error

	// Input returns the stream of bytes received from the medium.
	Input() io.Reader

	// Output returns the stream of bytes sent to the medium. A single
	// Write delivers all of p or returns an error.
	Output() io.Writer

	// Available returns the number of bytes that can be read from
	// Input without blocking. When the peer has hung up and nothing
	// remains buffered, it returns an error matching io.EOF.
	Available() (int, error)

	// Close releases the medium. It is safe to call more than once.
	Close() error
}

// EventDriven is implemented by transports that can announce data
// arrival instead of being polled.
type EventDriven interface {
	Transport

	// EventDriven reports whether notifications are enabled for this
	// instance. A transport that implements the interface but returns
	// false must be polled.
	EventDriven() bool

	// NotifyDataAvailable registers handler to be invoked from the
	// transport's notification goroutine whenever new input arrives.
	// The returned stop function deregisters the handler and blocks
	// until any in-flight invocation returns; it must not be called
	// from inside the handler.
	NotifyDataAvailable(handler func()) (stop func())
}
