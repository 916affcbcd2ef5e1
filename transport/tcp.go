// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Compile-time interface check.
var _ Transport = (*TCP)(nil)

// TCP is a stream-socket client transport. Open dials Address; the
// connection is owned exclusively by the transport until Close.
type TCP struct {
	// Address is the remote endpoint in "host:port" form.
	Address string

	// DialTimeout bounds connection establishment. Zero means only the
	// context deadline applies.
	DialTimeout time.Duration

	// Logger receives lifecycle events. If nil, slog.Default() is used.
	Logger *slog.Logger

	mu     sync.Mutex
	conn   *net.TCPConn
	raw    syscall.RawConn
	closed bool

	// peek is the one-byte buffer for the EOF probe. Only the source
	// loop calls Available, so it is never shared.
	peek [1]byte
}

func (t *TCP) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// Open dials the remote endpoint.
func (t *TCP) Open(ctx context.Context) error {
	if t.Address == "" {
		return fmt.Errorf("transport: tcp address is required")
	}

	dialer := net.Dialer{Timeout: t.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", t.Address, err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return fmt.Errorf("dialing %s: unexpected connection type %T", t.Address, conn)
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		conn.Close()
		return fmt.Errorf("accessing socket for %s: %w", t.Address, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		conn.Close()
		return ErrClosed
	}
	t.conn = tcpConn
	t.raw = raw

	t.logger().Info("tcp transport connected",
		"remote", tcpConn.RemoteAddr().String(),
		"local", tcpConn.LocalAddr().String(),
	)
	return nil
}

// Input returns the socket for reading. It is nil before Open.
func (t *TCP) Input() io.Reader {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn
}

// Output returns the socket for writing. It is nil before Open.
func (t *TCP) Output() io.Writer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn
}

// Available returns the number of bytes queued in the socket's receive
// buffer (FIONREAD). When the queue is empty it probes with a
// non-blocking MSG_PEEK receive: a zero-length result means the peer
// closed its side, which is reported as io.EOF.
func (t *TCP) Available() (int, error) {
	t.mu.Lock()
	raw, closed := t.raw, t.closed
	t.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if raw == nil {
		return 0, ErrNotOpen
	}

	var (
		count    int
		probeErr error
	)
	controlErr := raw.Control(func(fd uintptr) {
		// TIOCINQ is FIONREAD on Linux.
		count, probeErr = unix.IoctlGetInt(int(fd), unix.TIOCINQ)
		if probeErr != nil || count > 0 {
			return
		}
		n, _, err := unix.Recvfrom(int(fd), t.peek[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		case err != nil:
			probeErr = err
		case n == 0:
			probeErr = io.EOF
		default:
			// Data landed between the ioctl and the peek.
			count = n
		}
	})
	if controlErr != nil {
		return 0, controlErr
	}
	if probeErr != nil {
		if errors.Is(probeErr, io.EOF) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("querying receive queue: %w", probeErr)
	}
	return count, nil
}

// Close closes the socket.
func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
