// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"testing"
	"time"
)

func TestTaskStateIsTerminal(t *testing.T) {
	tests := []struct {
		state    TaskState
		terminal bool
	}{
		{TaskStateSubmitted, false},
		{TaskStateWorking, false},
		{TaskStateInputRequired, false},
		{TaskStateCompleted, true},
		{TaskStateFailed, true},
		{TaskStateCanceled, true},
	}

	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestTransitionAdjacency(t *testing.T) {
	nonTerminal := []TaskState{TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired}
	all := []TaskState{
		TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled,
	}

	allowed := map[TaskState][]TaskState{
		TaskStateSubmitted:     {TaskStateWorking, TaskStateCanceled},
		TaskStateWorking:       {TaskStateInputRequired, TaskStateCompleted, TaskStateFailed, TaskStateCanceled},
		TaskStateInputRequired: {TaskStateWorking, TaskStateCanceled},
	}

	contains := func(states []TaskState, s TaskState) bool {
		for _, c := range states {
			if c == s {
				return true
			}
		}
		return false
	}

	for _, from := range nonTerminal {
		for _, to := range all {
			task := NewTask("t1")
			task.State = from
			before := task.UpdatedAt

			err := task.Transition(to)

			switch {
			case to == from:
				// Same-state request is a no-op that must succeed.
				if err != nil {
					t.Errorf("Transition(%s -> %s) = %v, want nil", from, to, err)
				}
				if task.State != from {
					t.Errorf("Transition(%s -> %s) changed state to %s", from, to, task.State)
				}

			case contains(allowed[from], to):
				if err != nil {
					t.Errorf("Transition(%s -> %s) = %v, want nil", from, to, err)
				}
				if task.State != to {
					t.Errorf("Transition(%s -> %s): state = %s, want %s", from, to, task.State, to)
				}
				if !task.UpdatedAt.After(before) && !task.UpdatedAt.Equal(before) {
					t.Errorf("Transition(%s -> %s) did not refresh UpdatedAt", from, to)
				}

			default:
				if err == nil {
					t.Errorf("Transition(%s -> %s) = nil, want InvalidTransitionError", from, to)
					continue
				}
				invalidErr, ok := err.(*InvalidTransitionError)
				if !ok {
					t.Errorf("Transition(%s -> %s) error type = %T, want *InvalidTransitionError", from, to, err)
					continue
				}
				if invalidErr.From != from || invalidErr.To != to {
					t.Errorf("InvalidTransitionError = %s -> %s, want %s -> %s",
						invalidErr.From, invalidErr.To, from, to)
				}
				if task.State != from {
					t.Errorf("failed Transition(%s -> %s) mutated state to %s", from, to, task.State)
				}
			}
		}
	}
}

func TestTransitionTerminalAbsorption(t *testing.T) {
	terminal := []TaskState{TaskStateCompleted, TaskStateFailed, TaskStateCanceled}
	all := []TaskState{
		TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled,
	}

	for _, from := range terminal {
		for _, to := range all {
			task := NewTask("t1")
			task.State = from
			task.UpdatedAt = time.Now().UTC().Add(-time.Hour)
			before := task.UpdatedAt

			if err := task.Transition(to); err != nil {
				t.Errorf("Transition(%s -> %s) = %v, want silent no-op", from, to, err)
			}
			if task.State != from {
				t.Errorf("Transition(%s -> %s) left terminal state, got %s", from, to, task.State)
			}
			if !task.UpdatedAt.After(before) {
				t.Errorf("Transition(%s -> %s) did not refresh UpdatedAt", from, to)
			}
		}
	}
}

func TestAppendMessageOrder(t *testing.T) {
	task := NewTask("t1")

	const n = 5
	for i := 0; i < n; i++ {
		task.AppendMessage(Message{
			Role:  RoleAgent,
			Parts: []Part{TextPart(string(rune('a' + i)))},
		})
	}

	if len(task.Messages) != n {
		t.Fatalf("len(Messages) = %d, want %d", len(task.Messages), n)
	}
	for i, msg := range task.Messages {
		want := string(rune('a' + i))
		if msg.Parts[0].Text != want {
			t.Errorf("Messages[%d] = %q, want %q", i, msg.Parts[0].Text, want)
		}
	}
}

func TestUpsertArtifactLastWriteWins(t *testing.T) {
	task := NewTask("t1")

	task.UpsertArtifact(Artifact{ID: "a1", Type: "result", Content: map[string]any{"v": 1}})
	task.UpsertArtifact(Artifact{ID: "a2", Type: "log"})
	task.UpsertArtifact(Artifact{ID: "a1", Type: "result", Content: map[string]any{"v": 2}})

	if len(task.Artifacts) != 2 {
		t.Fatalf("len(Artifacts) = %d, want 2", len(task.Artifacts))
	}
	if got := task.Artifacts[0].Content["v"]; got != 2 {
		t.Errorf("Artifacts[0].Content[v] = %v, want 2", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	task := NewTask("t1")
	task.AppendMessage(Message{Role: RoleUser, Parts: []Part{DataPart(map[string]any{"k": "v"})}})
	task.UpsertArtifact(Artifact{ID: "a1", Type: "result", Content: map[string]any{"x": 1}})

	clone := task.Clone()
	clone.Messages[0].Parts[0].Data["k"] = "mutated"
	clone.Artifacts[0].Content["x"] = 99
	clone.State = TaskStateFailed

	if task.Messages[0].Parts[0].Data["k"] != "v" {
		t.Error("mutating clone message data affected the original")
	}
	if task.Artifacts[0].Content["x"] != 1 {
		t.Error("mutating clone artifact content affected the original")
	}
	if task.State != TaskStateSubmitted {
		t.Error("mutating clone state affected the original")
	}
}
