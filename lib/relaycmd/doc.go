// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relaycmd is the shared command-line driver for the bytebridge
// binaries. Each binary describes its medium with a [Command] (the
// positional medium arguments, any extra flags, and a transport
// factory); [Command.Run] does the rest:
//
//   - parses flags with spf13/pflag and the positional arguments
//     (medium arguments, middleware host, bridge name, optional filter)
//   - loads configuration (--config, then BYTEBRIDGE_CONFIG, then
//     defaults) and applies --middleware
//   - builds the slog logger, the transport, and the channel endpoint
//   - opens the bridge and runs it until SIGINT or SIGTERM
//
// Failures are returned as [*ExitError] carrying the process exit code
// ([ExitUsage], [ExitOpen], [ExitRuntime], [ExitClose]). Run has already
// reported the failure on stderr, so main only needs to exit with the
// code.
package relaycmd
