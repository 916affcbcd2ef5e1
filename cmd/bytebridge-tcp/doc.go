// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bytebridge-tcp connects to a TCP server and relays its byte stream to
// a pub/sub middleware (MQTT, Redis, or PostgreSQL LISTEN/NOTIFY) and
// back. Everything the server sends is published on
// "<name>Source/<name>Channel"; every message matching the subscription
// filter is written to the socket verbatim. There is no framing: message
// boundaries follow whatever the source loop happened to read.
//
// The bridge runs until SIGINT or SIGTERM, the server closes the
// connection, or either side fails. The process exit status tells them
// apart (see --help).
package main
