// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"fmt"

	"github.com/go-json-experiment/json"
)

// EventKind discriminates the event union on the wire. It is carried as the
// SSE "event:" field of each frame.
type EventKind string

const (
	// KindStatusChanged tags a task state transition.
	KindStatusChanged EventKind = "status_changed"

	// KindMessageAppended tags a message added to the task history.
	KindMessageAppended EventKind = "message_appended"

	// KindArtifactPublished tags an artifact produced (or replaced) by the
	// worker.
	KindArtifactPublished EventKind = "artifact_published"

	// KindError tags an in-band stream error frame. The data is an [Error]
	// envelope, not an event variant.
	KindError EventKind = "error"
)

// Event is a notification that a task record already mutated. Events are
// immutable and ephemeral; the Task record is the durable truth.
//
// The union is closed: StatusChangedEvent, MessageAppendedEvent and
// ArtifactPublishedEvent are the only variants, and consumers switch on the
// concrete type exhaustively.
type Event interface {
	// Kind returns the wire tag for the variant.
	Kind() EventKind

	// EventTaskID returns the ID of the task the event belongs to.
	EventTaskID() string
}

// StatusChangedEvent notifies that a task transitioned state.
type StatusChangedEvent struct {
	TaskID  string    `json:"taskId"`
	State   TaskState `json:"state"`
	Message string    `json:"message,omitempty"`
	// Final is set when State is terminal; the frame carrying a final event
	// is the last one on a stream.
	Final bool `json:"final,omitempty"`
}

// Kind implements Event.
func (e *StatusChangedEvent) Kind() EventKind { return KindStatusChanged }

// EventTaskID implements Event.
func (e *StatusChangedEvent) EventTaskID() string { return e.TaskID }

// MessageAppendedEvent notifies that a message was appended to the task
// history.
type MessageAppendedEvent struct {
	TaskID  string  `json:"taskId"`
	Message Message `json:"message"`
}

// Kind implements Event.
func (e *MessageAppendedEvent) Kind() EventKind { return KindMessageAppended }

// EventTaskID implements Event.
func (e *MessageAppendedEvent) EventTaskID() string { return e.TaskID }

// ArtifactPublishedEvent notifies that an artifact was stored on the task.
type ArtifactPublishedEvent struct {
	TaskID   string   `json:"taskId"`
	Artifact Artifact `json:"artifact"`
}

// Kind implements Event.
func (e *ArtifactPublishedEvent) Kind() EventKind { return KindArtifactPublished }

// EventTaskID implements Event.
func (e *ArtifactPublishedEvent) EventTaskID() string { return e.TaskID }

// UnmarshalEvent decodes the JSON payload of a stream frame into the event
// variant selected by kind. Unknown kinds are an error so that protocol
// drift is caught at the edge instead of being silently dropped.
func UnmarshalEvent(kind EventKind, data []byte) (Event, error) {
	switch kind {
	case KindStatusChanged:
		var e StatusChangedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s event: %w", kind, err)
		}
		return &e, nil

	case KindMessageAppended:
		var e MessageAppendedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s event: %w", kind, err)
		}
		return &e, nil

	case KindArtifactPublished:
		var e ArtifactPublishedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s event: %w", kind, err)
		}
		return &e, nil

	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}
