// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

// State is a bridge's lifecycle position. Transitions only move
// forward: Created, Running, Draining, Closed. A bridge closed before
// it ran skips Running.
type State int

const (
	// StateCreated is a bridge whose collaborators are open but whose
	// loops have not started.
	StateCreated State = iota

	// StateRunning is a bridge with its loops (or handler) active.
	StateRunning

	// StateDraining is a bridge in its shutdown sequence.
	StateDraining

	// StateClosed is a bridge whose collaborators have been closed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
