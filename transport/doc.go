// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the byte-stream media a bridge moves data
// across: TCP sockets, serial ports, in-process buffers, and WebRTC
// data channels.
//
// Every medium implements [Transport]: Open acquires it, Input and
// Output expose the byte streams, Available reports how many bytes can
// be read without blocking, and Close releases it. Available is the
// bridge's polling primitive. A reader that consumes exactly the
// reported count never blocks, which is what lets the source loop turn
// whatever arrived since the last poll into one message.
//
// A medium that can signal data arrival implements [EventDriven].
// NotifyDataAvailable registers a handler that the transport invokes
// from its own notification goroutine; the bridge uses this to avoid a
// busy polling loop. Handlers are never invoked concurrently with
// themselves, and the stop function blocks until an in-flight
// invocation has returned.
//
// [TCP] dials a stream socket and reads the kernel receive queue length
// with FIONREAD. [Serial] puts a terminal device into raw 8N1 mode at a
// fixed baud rate and is event-driven by default. [Memory] is an
// in-process medium for tests and embedding applications. [DataChannel]
// carries bytes over a pion/webrtc data channel, signaled through a
// [Signaler] using vanilla ICE (all candidates gathered before the SDP
// is published, so one offer/answer round-trip suffices). When two
// peers connect, the peer whose localpart is lexicographically smaller
// is the offerer.
package transport
