// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/bureau-foundation/bytebridge/lib/config"
	"github.com/bureau-foundation/bytebridge/lib/relaycmd"
	"github.com/bureau-foundation/bytebridge/transport"
)

func main() {
	if err := run(); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return newCommand().Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func newCommand() *relaycmd.Command {
	return &relaycmd.Command{
		Name:       "bytebridge-tcp",
		Summary:    "Bridge a TCP byte stream to pub/sub middleware",
		MediumArgs: []string{"host", "port"},
		ArgumentHelp: `    host               TCP server to connect to
    port               TCP server port (1-65535)
`,
		Examples: `    # Relay a data logger's telnet port through a local MQTT broker
    bytebridge-tcp 192.168.1.40 23 localhost logger

    # Only deliver messages published by the "hub" bridge, using Redis
    bytebridge-tcp --middleware redis 192.168.1.40 23 cache.local logger 'hubSource/*'
`,
		NewTransport: newTransport,
	}
}

func newTransport(medium []string, cfg *config.Config, logger *slog.Logger) (transport.Transport, error) {
	host, portText := medium[0], medium[1]
	if host == "" {
		return nil, fmt.Errorf("host must not be empty")
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid port %q: must be a number from 1 to 65535", portText)
	}
	return &transport.TCP{
		Address:     net.JoinHostPort(host, strconv.Itoa(port)),
		DialTimeout: cfg.TCP.DialTimeout,
		Logger:      logger,
	}, nil
}
