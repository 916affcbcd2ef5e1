// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bytebridge-serial relays a serial port to a pub/sub middleware (MQTT,
// Redis, or PostgreSQL LISTEN/NOTIFY) and back. The port is opened
// exclusively, put in raw 8N1 mode with no flow control, and restored to
// its previous settings on exit.
//
// Input is event-driven by default: a watcher goroutine wakes the
// bridge whenever bytes arrive. --poll (or serial.event_driven: false)
// switches to a polling source loop instead. A line hang-up (carrier
// loss, USB unplug) stops the bridge cleanly.
package main
