// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relaycmd

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/bytebridge/bridge"
)

// Process exit codes.
const (
	// ExitRuntime means a bridge loop failed while running.
	ExitRuntime = 1
	// ExitOpen means the transport or channel endpoint could not be
	// opened.
	ExitOpen = 2
	// ExitUsage means the arguments or configuration were invalid.
	ExitUsage = 3
	// ExitClose means the bridge ran cleanly but cleanup failed.
	ExitClose = 4
)

// ExitError signals a non-zero exit code. The failure has already been
// reported, so main exits with Code without printing Err again.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// runExitCode maps the error from bridge.Run to an exit code. A loop
// failure outranks a cleanup failure reported alongside it.
func runExitCode(err error) int {
	if err == nil {
		return 0
	}
	var transportErr *bridge.TransportIOError
	var channelErr *bridge.ChannelIOError
	if errors.As(err, &transportErr) || errors.As(err, &channelErr) {
		return ExitRuntime
	}
	var closeErr *bridge.CloseError
	if errors.As(err, &closeErr) {
		return ExitClose
	}
	return ExitRuntime
}
