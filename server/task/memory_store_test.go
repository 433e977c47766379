// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/taskwire/taskwire"
)

func TestMemoryStoreCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.Create(ctx, "t1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.State != taskwire.TaskStateSubmitted {
		t.Errorf("State = %s, want %s", first.State, taskwire.TaskStateSubmitted)
	}

	// Advance the record, then create again with the same ID.
	if _, err := store.UpdateState(ctx, "t1", taskwire.TaskStateWorking); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}

	second, err := store.Create(ctx, "t1")
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if second.ID != "t1" {
		t.Errorf("ID = %s, want t1", second.ID)
	}
	if second.State != taskwire.TaskStateWorking {
		t.Errorf("second Create reset state to %s, want %s", second.State, taskwire.TaskStateWorking)
	}
	if store.Size() != 1 {
		t.Errorf("Size = %d, want 1", store.Size())
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	var notFound *taskwire.TaskNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Get error = %v, want *TaskNotFoundError", err)
	}
	if notFound.TaskID != "missing" {
		t.Errorf("TaskID = %s, want missing", notFound.TaskID)
	}
}

func TestMemoryStoreAppendMessageOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Create(ctx, "t1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	want := []string{"one", "two", "three"}
	for _, text := range want {
		if _, err := store.AppendMessage(ctx, "t1", taskwire.Message{
			Role:  taskwire.RoleAgent,
			Parts: []taskwire.Part{taskwire.TextPart(text)},
		}); err != nil {
			t.Fatalf("AppendMessage(%s): %v", text, err)
		}
	}

	task, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var got []string
	for _, msg := range task.Messages {
		got = append(got, msg.Parts[0].Text)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("message order mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreUpdateStateInvalidTransition(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Create(ctx, "t1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// submitted -> completed is not adjacent.
	_, err := store.UpdateState(ctx, "t1", taskwire.TaskStateCompleted)
	var invalid *taskwire.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("UpdateState error = %v, want *InvalidTransitionError", err)
	}

	task, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.State != taskwire.TaskStateSubmitted {
		t.Errorf("failed transition mutated state to %s", task.State)
	}
}

func TestMemoryStoreUpdateStateTerminalNoOp(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Create(ctx, "t1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, state := range []taskwire.TaskState{taskwire.TaskStateWorking, taskwire.TaskStateCompleted} {
		if _, err := store.UpdateState(ctx, "t1", state); err != nil {
			t.Fatalf("UpdateState(%s): %v", state, err)
		}
	}

	// Post-terminal requests are absorbed, including re-setting the same
	// terminal state.
	for _, state := range []taskwire.TaskState{taskwire.TaskStateCompleted, taskwire.TaskStateWorking, taskwire.TaskStateFailed} {
		task, err := store.UpdateState(ctx, "t1", state)
		if err != nil {
			t.Errorf("post-terminal UpdateState(%s) = %v, want nil", state, err)
			continue
		}
		if task.State != taskwire.TaskStateCompleted {
			t.Errorf("post-terminal UpdateState(%s) changed state to %s", state, task.State)
		}
	}
}

func TestMemoryStorePublishArtifactUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Create(ctx, "t1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := store.PublishArtifact(ctx, "t1", taskwire.Artifact{
		ID: "a1", Type: "result", Content: map[string]any{"x": 1},
	}); err != nil {
		t.Fatalf("PublishArtifact: %v", err)
	}
	task, err := store.PublishArtifact(ctx, "t1", taskwire.Artifact{
		ID: "a1", Type: "result", Content: map[string]any{"x": 2},
	})
	if err != nil {
		t.Fatalf("PublishArtifact: %v", err)
	}

	if len(task.Artifacts) != 1 {
		t.Fatalf("len(Artifacts) = %d, want 1", len(task.Artifacts))
	}
	if got := task.Artifacts[0].Content["x"]; got != 2 {
		t.Errorf("Content[x] = %v, want 2", got)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Create(ctx, "t1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var notFound *taskwire.TaskNotFoundError
	if err := store.Delete(ctx, "t1"); !errors.As(err, &notFound) {
		t.Errorf("second Delete = %v, want *TaskNotFoundError", err)
	}
}

func TestMemoryStoreListPaginationIsStable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, id := range []string{"t3", "t1", "t5", "t2", "t4"} {
		if _, err := store.Create(ctx, id); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}

	ids := func(tasks []*taskwire.Task) []string {
		var out []string
		for _, task := range tasks {
			out = append(out, task.ID)
		}
		return out
	}

	pages := [][]string{}
	for offset := 0; offset < 5; offset += 2 {
		tasks, err := store.List(ctx, 2, offset)
		if err != nil {
			t.Fatalf("List(2, %d): %v", offset, err)
		}
		pages = append(pages, ids(tasks))
	}
	want := [][]string{{"t1", "t2"}, {"t3", "t4"}, {"t5"}}
	if diff := cmp.Diff(want, pages); diff != "" {
		t.Errorf("pages mismatch (-want +got):\n%s", diff)
	}

	// Offset past the end is an empty page, not an error.
	tasks, err := store.List(ctx, 2, 10)
	if err != nil {
		t.Fatalf("List(2, 10): %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("List past the end = %v, want empty", ids(tasks))
	}
}

func TestMemoryStoreSnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Create(ctx, "t1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.AppendMessage(ctx, "t1", taskwire.Message{
		Role:  taskwire.RoleUser,
		Parts: []taskwire.Part{taskwire.DataPart(map[string]any{"k": "v"})},
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	snapshot, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	snapshot.Messages[0].Parts[0].Data["k"] = "mutated"
	snapshot.State = taskwire.TaskStateFailed

	fresh, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fresh.Messages[0].Parts[0].Data["k"] != "v" {
		t.Error("mutating a snapshot leaked into the store")
	}
	if fresh.State != taskwire.TaskStateSubmitted {
		t.Error("mutating a snapshot state leaked into the store")
	}
}
