// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/pflag"

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
	var poll bool
	return &relaycmd.Command{
		Name:       "bytebridge-serial",
		Summary:    "Bridge a serial port to pub/sub middleware",
		MediumArgs: []string{"device", "baud"},
		ArgumentHelp: fmt.Sprintf(`    device             Serial device path (e.g. /dev/ttyUSB0)
    baud               Line speed, one of %v
`, transport.SupportedBaudRates()),
		Examples: `    # Relay a GPS receiver through a local MQTT broker
    bytebridge-serial /dev/ttyUSB0 9600 localhost gps

    # Poll instead of waiting for data-available events
    bytebridge-serial --poll /dev/ttyS1 115200 localhost console
`,
		AddFlags: func(flagSet *pflag.FlagSet) {
			flagSet.BoolVar(&poll, "poll", false, "poll the port for input instead of waiting for data-available events")
		},
		NewTransport: func(medium []string, cfg *config.Config, logger *slog.Logger) (transport.Transport, error) {
			serial, err := newSerial(medium, poll || !cfg.Serial.EventDriven, logger)
			if err != nil {
				return nil, err
			}
			return serial, nil
		},
	}
}

func newSerial(medium []string, poll bool, logger *slog.Logger) (*transport.Serial, error) {
	device, baudText := medium[0], medium[1]
	if device == "" {
		return nil, fmt.Errorf("device must not be empty")
	}
	baud, err := strconv.Atoi(baudText)
	if err != nil || !slices.Contains(transport.SupportedBaudRates(), baud) {
		return nil, fmt.Errorf("unsupported baud rate %q (supported: %v)", baudText, transport.SupportedBaudRates())
	}
	return &transport.Serial{
		Device: device,
		Baud:   baud,
		Poll:   poll,
		Logger: logger,
	}, nil
}
