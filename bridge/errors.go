// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"
)

// ErrNotRunnable is returned by Run when the bridge has already been
// run or closed.
var ErrNotRunnable = errors.New("bridge: not runnable (already running or closed)")

// TransportOpenError reports that the transport could not be acquired.
// Open returns it and no bridge is created.
type TransportOpenError struct {
	Op  string
	Err error
}

func (e *TransportOpenError) Error() string {
	return fmt.Sprintf("bridge: transport %s: %v", e.Op, e.Err)
}

func (e *TransportOpenError) Unwrap() error { return e.Err }

// TransportIOError reports a read or write failure on an open transport.
type TransportIOError struct {
	Op  string
	Err error
}

func (e *TransportIOError) Error() string {
	return fmt.Sprintf("bridge: transport %s: %v", e.Op, e.Err)
}

func (e *TransportIOError) Unwrap() error { return e.Err }

// ChannelOpenError reports that the channel endpoint could not be
// opened. Open returns it after closing the already-open transport.
type ChannelOpenError struct {
	Op  string
	Err error
}

func (e *ChannelOpenError) Error() string {
	return fmt.Sprintf("bridge: channel %s: %v", e.Op, e.Err)
}

func (e *ChannelOpenError) Unwrap() error { return e.Err }

// ChannelIOError reports a publish or fetch failure on an open endpoint.
type ChannelIOError struct {
	Op  string
	Err error
}

func (e *ChannelIOError) Error() string {
	return fmt.Sprintf("bridge: channel %s: %v", e.Op, e.Err)
}

func (e *ChannelIOError) Unwrap() error { return e.Err }

// CloseError reports that closing a collaborator failed during
// shutdown. Both closes are always attempted; either field may be nil.
type CloseError struct {
	Endpoint  error
	Transport error
}

func (e *CloseError) Error() string {
	switch {
	case e.Endpoint != nil && e.Transport != nil:
		return fmt.Sprintf("bridge: closing endpoint: %v; closing transport: %v", e.Endpoint, e.Transport)
	case e.Endpoint != nil:
		return fmt.Sprintf("bridge: closing endpoint: %v", e.Endpoint)
	default:
		return fmt.Sprintf("bridge: closing transport: %v", e.Transport)
	}
}

// Unwrap returns the individual close failures.
func (e *CloseError) Unwrap() []error {
	var errs []error
	if e.Endpoint != nil {
		errs = append(errs, e.Endpoint)
	}
	if e.Transport != nil {
		errs = append(errs, e.Transport)
	}
	return errs
}
