// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Compile-time interface check.
var _ EventDriven = (*Memory)(nil)

// Memory is an in-process transport backed by two buffers. An
// application (or test) supplies input with Feed and observes output
// with Written or WaitWritten. With Notify set it is event-driven and
// each Feed wakes the registered handler.
type Memory struct {
	// Notify enables data-available notification.
	Notify bool

	mu      sync.Mutex
	input   bytes.Buffer
	output  bytes.Buffer
	eof     bool
	opened  bool
	closed  bool
	readErr error

	// changed is closed and replaced whenever output grows or the
	// transport closes, waking WaitWritten callers.
	changed chan struct{}

	notifier notifier
}

// NewMemory returns an unopened Memory transport.
func NewMemory(notify bool) *Memory {
	return &Memory{Notify: notify}
}

// Open marks the transport open. Feed may be called before Open; the
// input is held until read.
func (m *Memory) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.opened = true
	return nil
}

// Feed appends p to the input stream.
func (m *Memory) Feed(p []byte) {
	m.mu.Lock()
	m.input.Write(p)
	m.mu.Unlock()
	m.notifier.notify()
}

// Hangup marks the end of input: once buffered input is consumed,
// Available returns io.EOF.
func (m *Memory) Hangup() {
	m.mu.Lock()
	m.eof = true
	m.mu.Unlock()
	m.notifier.notify()
}

// FailInput makes the next Available call return err.
func (m *Memory) FailInput(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
	m.notifier.notify()
}

// Input returns a reader over the fed bytes. Reads never block; a read
// with nothing buffered returns io.EOF after Hangup and (0, nil)
// before it.
func (m *Memory) Input() io.Reader {
	return memoryReader{m}
}

// Output returns a writer that appends to the written buffer.
func (m *Memory) Output() io.Writer {
	return memoryWriter{m}
}

// Available returns the number of fed bytes not yet read.
func (m *Memory) Available() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if !m.opened {
		return 0, ErrNotOpen
	}
	if m.readErr != nil {
		return 0, m.readErr
	}
	if m.input.Len() == 0 && m.eof {
		return 0, io.EOF
	}
	return m.input.Len(), nil
}

// Written returns a copy of everything written to Output so far.
func (m *Memory) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.output.Bytes())
}

// WaitWritten blocks until at least n bytes have been written to Output
// and returns a copy of the written bytes. It returns early with what
// was written if the transport closes or ctx ends.
func (m *Memory) WaitWritten(ctx context.Context, n int) ([]byte, error) {
	for {
		m.mu.Lock()
		if m.output.Len() >= n {
			written := bytes.Clone(m.output.Bytes())
			m.mu.Unlock()
			return written, nil
		}
		if m.closed {
			written := bytes.Clone(m.output.Bytes())
			m.mu.Unlock()
			return written, ErrClosed
		}
		changed := m.changedLocked()
		m.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return m.Written(), ctx.Err()
		}
	}
}

// Closed reports whether Close has been called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// EventDriven reports whether notifications are enabled.
func (m *Memory) EventDriven() bool {
	return m.Notify
}

// NotifyDataAvailable registers handler for Feed notifications.
func (m *Memory) NotifyDataAvailable(handler func()) func() {
	return m.notifier.register(handler)
}

// Close stops notifications and wakes WaitWritten callers.
func (m *Memory) Close() error {
	m.notifier.close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.broadcastLocked()
	return nil
}

func (m *Memory) changedLocked() chan struct{} {
	if m.changed == nil {
		m.changed = make(chan struct{})
	}
	return m.changed
}

func (m *Memory) broadcastLocked() {
	if m.changed != nil {
		close(m.changed)
		m.changed = nil
	}
}

type memoryReader struct{ m *Memory }

func (r memoryReader) Read(p []byte) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.closed {
		return 0, ErrClosed
	}
	if r.m.input.Len() == 0 {
		if r.m.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	return r.m.input.Read(p)
}

type memoryWriter struct{ m *Memory }

func (w memoryWriter) Write(p []byte) (int, error) {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	if w.m.closed {
		return 0, ErrClosed
	}
	w.m.output.Write(p)
	w.m.broadcastLocked()
	return len(p), nil
}
