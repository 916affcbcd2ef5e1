// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/bytebridge/channel"
	"github.com/bureau-foundation/bytebridge/transport"
)

// eventLog records collaborator calls across fakes so tests can check
// ordering.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeEndpoint is a scriptable channel.Endpoint. Messages sent on
// incoming are returned by Fetch; every successful Publish is sent on
// published.
type fakeEndpoint struct {
	openErr       error
	closeErr      error
	publishFailAt int // 1-based Publish call that fails; 0 never
	publishErr    error
	fetchErr      error
	events        *eventLog

	incoming  chan []byte
	published chan []byte

	mu           sync.Mutex
	topic        string
	filter       channel.Filter
	publishCalls int
	fetchCalls   atomic.Int64
	closeCalls   int
	closed       chan struct{}
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{
		incoming:  make(chan []byte, 64),
		published: make(chan []byte, 64),
		closed:    make(chan struct{}),
	}
}

func (f *fakeEndpoint) Open(_ context.Context, publishTopic string, filter channel.Filter) error {
	f.events.add("endpoint.open")
	if f.openErr != nil {
		return f.openErr
	}
	f.mu.Lock()
	f.topic = publishTopic
	f.filter = filter
	f.mu.Unlock()
	return nil
}

func (f *fakeEndpoint) Publish(_ context.Context, payload []byte) error {
	f.mu.Lock()
	f.publishCalls++
	call := f.publishCalls
	f.mu.Unlock()
	if f.publishFailAt != 0 && call >= f.publishFailAt {
		return f.publishErr
	}
	f.published <- append([]byte(nil), payload...)
	return nil
}

func (f *fakeEndpoint) Fetch(ctx context.Context, timeout time.Duration) ([]byte, error) {
	f.fetchCalls.Add(1)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case payload := <-f.incoming:
		return payload, nil
	case <-timer.C:
		return nil, nil
	case <-f.closed:
		return nil, channel.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeEndpoint) Close() error {
	f.events.add("endpoint.close")
	f.mu.Lock()
	f.closeCalls++
	if f.closeCalls == 1 {
		close(f.closed)
	}
	f.mu.Unlock()
	return f.closeErr
}

func (f *fakeEndpoint) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

// recordingTransport wraps a Memory transport, counting Available calls
// and recording Open and Close.
type recordingTransport struct {
	*transport.Memory

	openErr  error
	closeErr error
	events   *eventLog

	availableCalls atomic.Int64
	closeCalls     atomic.Int64
}

func newRecordingTransport(notify bool) *recordingTransport {
	return &recordingTransport{Memory: transport.NewMemory(notify)}
}

func (r *recordingTransport) Open(ctx context.Context) error {
	r.events.add("transport.open")
	if r.openErr != nil {
		return r.openErr
	}
	return r.Memory.Open(ctx)
}

func (r *recordingTransport) Available() (int, error) {
	r.availableCalls.Add(1)
	return r.Memory.Available()
}

func (r *recordingTransport) Close() error {
	r.events.add("transport.close")
	r.closeCalls.Add(1)
	r.Memory.Close()
	return r.closeErr
}

// stuckTransport's Output blocks every write until Close, modelling a
// foreign call that ignores cancellation.
type stuckTransport struct {
	*transport.Memory

	writing chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStuckTransport() *stuckTransport {
	return &stuckTransport{
		Memory:  transport.NewMemory(false),
		writing: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *stuckTransport) Output() io.Writer {
	return stuckWriter{s}
}

func (s *stuckTransport) Close() error {
	s.once.Do(func() { close(s.release) })
	return s.Memory.Close()
}

type stuckWriter struct{ s *stuckTransport }

func (w stuckWriter) Write(p []byte) (int, error) {
	select {
	case w.s.writing <- struct{}{}:
	default:
	}
	<-w.s.release
	return 0, transport.ErrClosed
}
