// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

// State is the lifecycle state of a Producer.  Transitions only move forward:
// Idle -> Active -> Draining -> Stopped.
type State int32

const (
	// StateIdle is a producer that has not been started.
	StateIdle State = iota

	// StateActive accepts produce calls and delivers completions.
	StateActive

	// StateDraining rejects produce calls while the poll loop stops and the
	// transport is released.  No handler is invoked once draining begins.
	StateDraining

	// StateStopped is terminal.  The transport has been released.
	StateStopped
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateActive:
		return "Active"
	case StateDraining:
		return "Draining"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// stateError maps a non-active state to the error returned to callers.
func stateError(s State) error {
	switch s {
	case StateActive:
		return nil
	case StateIdle:
		return ErrNotStarted
	default:
		return ErrClosed
	}
}
