// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package task provides task record persistence for taskwire workers.
package task

import (
	"context"

	"github.com/taskwire/taskwire"
)

// Store defines task record persistence. Implementations return deep-copied
// snapshots; callers never share memory with the stored record.
//
// Stores only mutate records. Constructing and fanning out the matching
// events is the job of the server Manager, which owns the single writer for
// each task.
type Store interface {
	// Create persists a new record in the submitted state. If a record with
	// the ID already exists, the existing record is returned unchanged
	// (idempotent create, not an error).
	Create(ctx context.Context, taskID string) (*taskwire.Task, error)

	// Get returns a snapshot of the record, or *taskwire.TaskNotFoundError.
	Get(ctx context.Context, taskID string) (*taskwire.Task, error)

	// Delete removes the record. Returns *taskwire.TaskNotFoundError if it
	// does not exist.
	Delete(ctx context.Context, taskID string) error

	// UpdateState applies the state machine transition and returns the
	// updated snapshot. An illegal transition fails with
	// *taskwire.InvalidTransitionError and leaves the record unchanged;
	// terminal-state absorption succeeds as a timestamp-only no-op.
	UpdateState(ctx context.Context, taskID string, state taskwire.TaskState) (*taskwire.Task, error)

	// AppendMessage appends a message to the record history in call order.
	AppendMessage(ctx context.Context, taskID string, msg taskwire.Message) (*taskwire.Task, error)

	// PublishArtifact upserts an artifact by ID (last-write-wins).
	PublishArtifact(ctx context.Context, taskID string, artifact taskwire.Artifact) (*taskwire.Task, error)

	// List returns snapshots of up to limit records, skipping offset, in
	// unspecified order. limit <= 0 means no limit.
	List(ctx context.Context, limit, offset int) ([]*taskwire.Task, error)

	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}
