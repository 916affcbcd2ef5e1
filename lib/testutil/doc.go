// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for bytebridge packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. [RequireEventually] does
// the same for conditions that can only be polled.
//
// [OpenPTY] allocates a pseudo-terminal pair. The slave device is a
// real terminal, which makes it a stand-in for a serial port in tests
// that exercise termios configuration and hang-up handling.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, such as bridge names that must not collide on a
// shared broker.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no bytebridge-internal dependencies.
package testutil
