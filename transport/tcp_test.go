// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/bureau-foundation/bytebridge/lib/testutil"
)

// acceptOne listens on loopback and returns the listener address and a
// channel carrying the first accepted connection.
func acceptOne(t *testing.T) (string, <-chan net.Conn) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()
	return listener.Addr().String(), accepted
}

// waitAvailable polls Available until it reports at least want bytes.
func waitAvailable(t *testing.T, transport Transport, want int) int {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		n, err := transport.Available()
		if err != nil {
			t.Fatalf("Available: %v", err)
		}
		if n >= want {
			return n
		}
		if time.Now().After(deadline) {
			t.Fatalf("Available stuck at %d, want %d", n, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTCP_AvailableAndRead(t *testing.T) {
	address, accepted := acceptOne(t)

	transport := &TCP{Address: address, DialTimeout: 5 * time.Second}
	if err := transport.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer transport.Close()

	peer := testutil.RequireReceive(t, accepted, 5*time.Second, "waiting for accept")
	defer peer.Close()

	if n, err := transport.Available(); err != nil || n != 0 {
		t.Fatalf("Available on idle socket = %d, %v; want 0, nil", n, err)
	}

	if _, err := peer.Write([]byte("hello")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	n := waitAvailable(t, transport, 5)
	buffer := make([]byte, n)
	if _, err := io.ReadFull(transport.Input(), buffer); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(buffer) != "hello" {
		t.Errorf("read %q, want hello", buffer)
	}
}

func TestTCP_Output(t *testing.T) {
	address, accepted := acceptOne(t)

	transport := &TCP{Address: address}
	if err := transport.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer transport.Close()

	peer := testutil.RequireReceive(t, accepted, 5*time.Second, "waiting for accept")
	defer peer.Close()

	if _, err := transport.Output().Write([]byte("PING")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	peer.SetReadDeadline(time.Now().Add(5 * time.Second))
	buffer := make([]byte, 4)
	if _, err := io.ReadFull(peer, buffer); err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if string(buffer) != "PING" {
		t.Errorf("peer read %q, want PING", buffer)
	}
}

func TestTCP_PeerCloseIsEOF(t *testing.T) {
	address, accepted := acceptOne(t)

	transport := &TCP{Address: address}
	if err := transport.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer transport.Close()

	peer := testutil.RequireReceive(t, accepted, 5*time.Second, "waiting for accept")
	peer.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := transport.Available()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			t.Fatalf("Available = %v, want io.EOF", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("Available never reported the peer hang-up")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTCP_OpenRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	address := listener.Addr().String()
	listener.Close()

	transport := &TCP{Address: address, DialTimeout: 2 * time.Second}
	if err := transport.Open(context.Background()); err == nil {
		transport.Close()
		t.Fatal("expected Open to fail against a closed port")
	}
}

func TestTCP_Lifecycle(t *testing.T) {
	transport := &TCP{Address: "127.0.0.1:1"}
	if _, err := transport.Available(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Available before Open = %v, want ErrNotOpen", err)
	}
	if err := transport.Close(); err != nil {
		t.Errorf("Close before Open: %v", err)
	}
	if _, err := transport.Available(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Available after Close = %v, want net.ErrClosed", err)
	}
	if err := transport.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
