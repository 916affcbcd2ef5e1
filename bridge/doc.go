// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge moves bytes between a byte-stream transport and a
// publish/subscribe channel endpoint.
//
// A [Bridge] owns one [transport.Transport] and one [channel.Endpoint]
// for its whole life. [Open] acquires both (transport first) and never
// returns a partially open bridge. [Bridge.Run] starts two independent
// directions:
//
//   - The sink loop fetches messages from the endpoint with a bounded
//     wait and writes each one verbatim to the transport's output. An
//     empty fetch is not a reason to stop.
//   - The source loop asks the transport how many bytes are available,
//     yields when none are, and otherwise reads exactly that many and
//     publishes them as one message. No framing is added in either
//     direction; message boundaries on the channel are whatever the
//     producer's write pattern left in the input queue.
//
// Transports that can announce arrivals ([transport.EventDriven]) get
// no source goroutine. The bridge registers a handler that runs the
// same transfer routine from the transport's notification goroutine,
// so the polled and event-driven paths publish identically.
//
// Any loop termination (error, peer hang-up, or cancellation of Run's
// context) and any call to [Bridge.Close] drive one shutdown sequence:
// cancel the loops, deregister the handler, wait for the loops up to
// the drain timeout, then close the endpoint and the transport. Both
// closes are always attempted; their failures are reported together as
// a [CloseError]. If the loops are still blocked when the drain timeout
// expires, closing the collaborators is what interrupts them.
//
// Errors are typed by where they happened: [TransportOpenError] and
// [ChannelOpenError] from Open, [TransportIOError] and [ChannelIOError]
// from a running loop. A peer hang-up (io.EOF, or the reset and broken
// pipe errors classified by lib/netutil) stops the bridge without an
// error.
package bridge
