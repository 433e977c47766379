// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"time"
)

// Part is one piece of a message: text, structured data, or a file.
type Part struct {
	Type        string         `json:"type"`
	Text        string         `json:"text,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	FileName    string         `json:"fileName,omitempty"`
	FileContent string         `json:"fileContent,omitempty"`
}

// Part types.
const (
	PartTypeText = "text"
	PartTypeData = "data"
	PartTypeFile = "file"
)

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// DataPart returns a structured data part.
func DataPart(data map[string]any) Part {
	return Part{Type: PartTypeData, Data: data}
}

// Message is one entry in a task's message history.
type Message struct {
	Role      string    `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Message roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Artifact is a named, typed payload produced by a worker as task output.
// Artifacts are keyed by ID with last-write-wins semantics.
type Artifact struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Content    map[string]any `json:"content,omitempty"`
	Parts      []Part         `json:"parts,omitempty"`
	CreatedAt  time.Time      `json:"createdAt,omitzero"`
	ModifiedAt time.Time      `json:"modifiedAt,omitzero"`
}

// Task is the durable record of one unit of remote work. The record is the
// source of truth; events are only notifications that it already changed.
type Task struct {
	ID        string     `json:"id"`
	State     TaskState  `json:"state"`
	Messages  []Message  `json:"messages"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewTask returns a Task in the submitted state.
func NewTask(id string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        id,
		State:     TaskStateSubmitted,
		Messages:  make([]Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition requests a state change on the task.
//
// A request for the current state refreshes UpdatedAt and succeeds. A request
// against a terminal state is absorbed the same way: callers that re-set a
// terminal state (duplicate terminal events are at-least-once) must not see
// an error. An illegal move from a non-terminal state fails with
// [*InvalidTransitionError] and leaves the record unchanged.
func (t *Task) Transition(target TaskState) error {
	if target == t.State || t.State.IsTerminal() {
		t.UpdatedAt = time.Now().UTC()
		return nil
	}
	if !CanTransition(t.State, target) {
		return &InvalidTransitionError{TaskID: t.ID, From: t.State, To: target}
	}
	t.State = target
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendMessage appends a message to the task history in publish order.
func (t *Task) AppendMessage(msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = time.Now().UTC()
}

// UpsertArtifact stores an artifact, replacing any existing artifact with the
// same ID (last-write-wins).
func (t *Task) UpsertArtifact(artifact Artifact) {
	now := time.Now().UTC()
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = now
	}
	artifact.ModifiedAt = now
	for i := range t.Artifacts {
		if t.Artifacts[i].ID == artifact.ID {
			t.Artifacts[i] = artifact
			t.UpdatedAt = now
			return
		}
	}
	t.Artifacts = append(t.Artifacts, artifact)
	t.UpdatedAt = now
}

// Clone returns a deep copy of the task. Stores hand out clones so callers
// can never mutate shared state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Messages = make([]Message, len(t.Messages))
	for i, msg := range t.Messages {
		clone.Messages[i] = msg
		clone.Messages[i].Parts = cloneParts(msg.Parts)
	}
	if t.Artifacts != nil {
		clone.Artifacts = make([]Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			clone.Artifacts[i] = a
			clone.Artifacts[i].Parts = cloneParts(a.Parts)
			clone.Artifacts[i].Content = cloneMap(a.Content)
		}
	}
	return &clone
}

func cloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	out := make([]Part, len(parts))
	for i, p := range parts {
		out[i] = p
		out[i].Data = cloneMap(p.Data)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SubmitRequest is the body of POST /v1/tasks.
type SubmitRequest struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// SubmitResponse acknowledges a submission with the assigned task ID.
type SubmitResponse struct {
	TaskID string `json:"taskId"`
}

// CancelResponse reports whether a cancel request took effect.
type CancelResponse struct {
	Success bool `json:"success"`
}
