// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"sync"
	"time"
)

// inbox is the receive queue behind a subscribe handle. Middleware
// callbacks push into it from their own goroutines; Fetch drains it.
// The queue is unbounded so a slow sink never stalls the middleware
// client's dispatch goroutine.
type inbox struct {
	mu     sync.Mutex
	queue  [][]byte
	err    error
	closed bool

	// ready holds a token while there is something for a waiter to
	// observe: a queued message, a failure, or closure.
	ready chan struct{}
}

func newInbox() *inbox {
	return &inbox{ready: make(chan struct{}, 1)}
}

// push appends payload. Pushes after close are dropped.
func (in *inbox) push(payload []byte) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.queue = append(in.queue, payload)
	in.mu.Unlock()
	in.wake()
}

// fail records a terminal subscribe-side error. Queued messages are
// still delivered before the error is returned.
func (in *inbox) fail(err error) {
	in.mu.Lock()
	if in.err == nil {
		in.err = err
	}
	in.mu.Unlock()
	in.wake()
}

// close discards queued messages and makes every later wait return
// ErrClosed.
func (in *inbox) close() {
	in.mu.Lock()
	in.closed = true
	in.queue = nil
	in.mu.Unlock()
	in.wake()
}

func (in *inbox) len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.queue)
}

// wait returns the next message, (nil, nil) once timeout elapses, or
// the recorded failure.
func (in *inbox) wait(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		payload, ok, err := in.pop()
		if err != nil || ok {
			return payload, err
		}
		if expired == nil {
			return nil, nil
		}

		select {
		case <-in.ready:
		case <-expired:
			// A message may have landed between pop and expiry.
			payload, _, err := in.pop()
			return payload, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (in *inbox) pop() ([]byte, bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil, false, ErrClosed
	}
	if len(in.queue) == 0 {
		if in.err != nil {
			return nil, false, in.err
		}
		return nil, false, nil
	}

	payload := in.queue[0]
	in.queue[0] = nil
	in.queue = in.queue[1:]
	if payload == nil {
		payload = []byte{}
	}
	return payload, true, nil
}

func (in *inbox) wake() {
	select {
	case in.ready <- struct{}{}:
	default:
	}
}
