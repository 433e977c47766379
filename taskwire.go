// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskwire defines the task lifecycle protocol shared by workers and
// callers: the task state machine, the event variants published as a task
// progresses, and the JSON wire shapes exchanged over HTTP and SSE.
package taskwire

// Version is the current version of the taskwire protocol.
const Version = "0.1.0"

// TaskState represents the lifecycle state of a Task.
type TaskState string

const (
	// TaskStateSubmitted indicates the task has been accepted but work has
	// not started.
	TaskStateSubmitted TaskState = "submitted"

	// TaskStateWorking indicates the task is being worked on.
	TaskStateWorking TaskState = "working"

	// TaskStateInputRequired indicates the task is paused waiting for
	// additional caller input.
	TaskStateInputRequired TaskState = "input-required"

	// TaskStateCompleted indicates the task finished successfully.
	TaskStateCompleted TaskState = "completed"

	// TaskStateFailed indicates the task finished with an error.
	TaskStateFailed TaskState = "failed"

	// TaskStateCanceled indicates the task was canceled before finishing.
	TaskStateCanceled TaskState = "canceled"
)

// IsTerminal reports whether s is a terminal state. A task in a terminal
// state absorbs further transition requests as no-ops.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// Valid reports whether s is a known task state.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// transitionTargets is the fixed adjacency table of the task state machine.
// Terminal states have no entries: they absorb transition requests instead.
var transitionTargets = map[TaskState][]TaskState{
	TaskStateSubmitted:     {TaskStateWorking, TaskStateCanceled},
	TaskStateWorking:       {TaskStateInputRequired, TaskStateCompleted, TaskStateFailed, TaskStateCanceled},
	TaskStateInputRequired: {TaskStateWorking, TaskStateCanceled},
}

// CanTransition reports whether the state machine allows moving from one
// non-terminal state to target. Same-state and terminal-state requests are
// handled by [Task.Transition] before this check applies.
func CanTransition(from, to TaskState) bool {
	for _, t := range transitionTargets[from] {
		if t == to {
			return true
		}
	}
	return false
}
