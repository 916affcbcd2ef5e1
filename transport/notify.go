// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "sync"

// notifier runs a registered data-available handler on a dedicated
// goroutine. Signals coalesce: any number of arrivals while the handler
// is running produce exactly one further invocation, so the handler
// must drain everything available each time it runs.
type notifier struct {
	mu     sync.Mutex
	signal chan struct{}
	stop   func()
}

// register starts delivering signals to handler, replacing (and
// stopping) any previous registration. The handler runs once right
// away so input that arrived before registration is not stranded.
func (n *notifier) register(handler func()) func() {
	n.mu.Lock()
	previous := n.stop
	n.mu.Unlock()
	if previous != nil {
		previous()
	}

	signal := make(chan struct{}, 1)
	quit := make(chan struct{})
	done := make(chan struct{})
	signal <- struct{}{}

	go func() {
		defer close(done)
		for {
			select {
			case <-signal:
				select {
				case <-quit:
					return
				default:
				}
				handler()
			case <-quit:
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			n.mu.Lock()
			if n.signal == signal {
				n.signal = nil
				n.stop = nil
			}
			n.mu.Unlock()
			close(quit)
		})
		<-done
	}

	n.mu.Lock()
	n.signal = signal
	n.stop = stop
	n.mu.Unlock()
	return stop
}

// notify wakes the registered handler, if any. It never blocks.
func (n *notifier) notify() {
	n.mu.Lock()
	signal := n.signal
	n.mu.Unlock()
	if signal == nil {
		return
	}
	select {
	case signal <- struct{}{}:
	default:
	}
}

// close stops the current registration, if any.
func (n *notifier) close() {
	n.mu.Lock()
	stop := n.stop
	n.mu.Unlock()
	if stop != nil {
		stop()
	}
}
