// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrClosed is returned by operations on an endpoint after Close.
	ErrClosed = errors.New("channel: endpoint is closed")

	// ErrNotOpen is returned by Publish and Fetch before Open succeeds.
	ErrNotOpen = errors.New("channel: endpoint is not open")

	// ErrFetchInProgress is returned when Fetch is called while another
	// Fetch on the same endpoint has not returned.
	ErrFetchInProgress = errors.New("channel: fetch already in progress")
)

// Endpoint is a publish handle plus a subscribe handle on a pub/sub
// middleware.
type Endpoint interface {
	// Open connects both handles. publishTopic is the full topic that
	// Publish writes to; filter selects what Fetch returns.
	Open(ctx context.Context, publishTopic string, filter Filter) error

	// Publish sends payload as one message on the publish topic.
	Publish(ctx context.Context, payload []byte) error

	// Fetch waits up to timeout for the next message matching the
	// filter. It returns (nil, nil) when the timeout elapses with no
	// message. A delivered zero-length message is returned as a
	// non-nil empty slice.
	Fetch(ctx context.Context, timeout time.Duration) ([]byte, error)

	// Close releases both handles. It is safe to call more than once.
	Close() error
}

// PublishTopic returns the topic a bridge named name publishes on.
func PublishTopic(name string) string {
	return name + "Source/" + name + "Channel"
}

// SinkName returns the client identity used for a bridge's subscribe
// handle.
func SinkName(name string) string {
	return name + "Sink"
}

// SourceName returns the client identity used for a bridge's publish
// handle.
func SourceName(name string) string {
	return name + "Source"
}

// Wildcard matches any single topic segment in a Filter.
const Wildcard = "*"

// Filter selects topics by source and channel segment.
type Filter struct {
	Source  string
	Channel string
}

// DefaultFilter matches every source and every channel.
var DefaultFilter = Filter{Source: Wildcard, Channel: Wildcard}

// ParseFilter parses a "source/channel" pattern. A bare source name
// ("GpsSource") is treated as "GpsSource/*". The empty string
// parses as DefaultFilter.
func ParseFilter(pattern string) (Filter, error) {
	if pattern == "" {
		return DefaultFilter, nil
	}
	source, channelName, found := strings.Cut(pattern, "/")
	if !found {
		channelName = Wildcard
	}
	if source == "" || channelName == "" {
		return Filter{}, fmt.Errorf("channel: invalid filter %q: empty segment", pattern)
	}
	if strings.Contains(channelName, "/") {
		return Filter{}, fmt.Errorf("channel: invalid filter %q: more than two segments", pattern)
	}
	return Filter{Source: source, Channel: channelName}, nil
}

// String returns the filter in "source/channel" form.
func (f Filter) String() string {
	return f.Source + "/" + f.Channel
}

// Match reports whether topic ("source/channel") is selected by f.
func (f Filter) Match(topic string) bool {
	source, channelName, found := strings.Cut(topic, "/")
	if !found {
		return false
	}
	return matchSegment(f.Source, source) && matchSegment(f.Channel, channelName)
}

func matchSegment(pattern, segment string) bool {
	return pattern == Wildcard || pattern == segment
}

// fetchGuard enforces the single outstanding Fetch rule.
type fetchGuard struct {
	busy chan struct{}
}

func newFetchGuard() fetchGuard {
	return fetchGuard{busy: make(chan struct{}, 1)}
}

func (g fetchGuard) acquire() error {
	select {
	case g.busy <- struct{}{}:
		return nil
	default:
		return ErrFetchInProgress
	}
}

func (g fetchGuard) release() {
	<-g.busy
}
