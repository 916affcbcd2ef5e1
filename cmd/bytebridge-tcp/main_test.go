// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/bytebridge/lib/config"
	"github.com/bureau-foundation/bytebridge/transport"
)

func TestNewTransport(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.TCP.DialTimeout = 3 * time.Second

	tests := []struct {
		name        string
		medium      []string
		wantAddress string
		wantErr     bool
	}{
		{
			name:        "hostname",
			medium:      []string{"logger.local", "23"},
			wantAddress: "logger.local:23",
		},
		{
			name:        "ipv6",
			medium:      []string{"::1", "4001"},
			wantAddress: "[::1]:4001",
		},
		{
			name:        "highest port",
			medium:      []string{"10.0.0.1", "65535"},
			wantAddress: "10.0.0.1:65535",
		},
		{
			name:    "port zero",
			medium:  []string{"10.0.0.1", "0"},
			wantErr: true,
		},
		{
			name:    "port out of range",
			medium:  []string{"10.0.0.1", "70000"},
			wantErr: true,
		},
		{
			name:    "port not a number",
			medium:  []string{"10.0.0.1", "telnet"},
			wantErr: true,
		},
		{
			name:    "empty host",
			medium:  []string{"", "23"},
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			medium, err := newTransport(test.medium, cfg, logger)
			if test.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tcp, ok := medium.(*transport.TCP)
			if !ok {
				t.Fatalf("transport is %T, want *transport.TCP", medium)
			}
			if tcp.Address != test.wantAddress {
				t.Errorf("Address = %q, want %q", tcp.Address, test.wantAddress)
			}
			if tcp.DialTimeout != 3*time.Second {
				t.Errorf("DialTimeout = %v, want 3s", tcp.DialTimeout)
			}
		})
	}
}

func TestCommand_Parse(t *testing.T) {
	invocation, _, err := newCommand().Parse([]string{"logger.local", "23", "localhost", "logger"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(invocation.Medium) != 2 || invocation.Medium[0] != "logger.local" || invocation.Medium[1] != "23" {
		t.Errorf("Medium = %v", invocation.Medium)
	}
	if invocation.MiddlewareHost != "localhost" || invocation.Name != "logger" {
		t.Errorf("invocation = %+v", invocation)
	}

	if _, _, err := newCommand().Parse([]string{"logger.local", "localhost", "logger"}); err == nil {
		t.Error("expected error when the port argument is missing")
	}
}
