// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel provides the publish/subscribe side of a byte bridge.
//
// An [Endpoint] owns two handles to the middleware: a publish handle bound
// to one topic and a subscribe handle bound to one [Filter]. The bridge's
// source loop calls Publish and its sink loop calls Fetch; the two never
// share a method, so implementations need only make Publish safe to call
// while a Fetch is outstanding. At most one Fetch may be outstanding at a
// time; a second concurrent call fails with [ErrFetchInProgress].
//
// Topics have two segments, "<source>/<channel>". A bridge named N
// publishes on [PublishTopic](N), which is "NSource/NChannel", and
// identifies its subscribe handle as [SinkName](N). Filters use the same
// two segments with "*" matching any single segment, so the default
// filter "*/*" receives everything published by every bridge (including
// this one).
//
// Payloads are opaque. No framing, sequence numbers, or length prefixes
// are added; whatever encoding a middleware needs (base64 for Postgres
// NOTIFY) is undone before Fetch returns.
//
// Implementations:
//
//   - [Broker] and [MemoryEndpoint]: in-process hub for tests and
//     embedding applications.
//   - [MQTT]: eclipse/paho.mqtt.golang, "*" maps to the "+" wildcard.
//   - [Redis]: PUBLISH and PSUBSCRIBE over radix.v2, "*" is a glob.
//   - [Postgres]: LISTEN/NOTIFY over pgx, filtering on fetch.
package channel
