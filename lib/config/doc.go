// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the bytebridge
// commands.
//
// Configuration is loaded from a single file specified by either the
// BYTEBRIDGE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. A command given neither runs on
// [Default], which is complete on its own.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override the middleware and
// log sections when [Config].Environment matches. Production defaults
// to JSON logs.
//
// Variable expansion is performed on selected string fields after
// loading: ${VAR} and ${VAR:-default} patterns are expanded from the
// process environment, which keeps middleware credentials out of the
// file. Durations use Go syntax ("250ms", "5s").
//
// This package depends on no other bytebridge packages.
package config
