// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies I/O errors from byte-stream media.
package netutil

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// IsExpectedCloseError reports whether err means the far end went away
// rather than that something broke: EOF, a closed connection or file,
// a broken pipe, a reset or aborted connection, or EIO from a terminal
// whose line has hung up.
//
// A full close by the peer surfaces as ECONNRESET or EPIPE on the
// surviving side instead of EOF, and a pseudo-terminal whose master is
// closed returns EIO from the slave. All of them end a bridge cleanly.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EPIPE, syscall.ECONNRESET, syscall.ECONNABORTED, syscall.EIO:
			return true
		}
	}
	return false
}
