// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"errors"
	"fmt"
)

var errEmptyTaskID = errors.New("task ID cannot be empty")

// StoreError wraps a storage backend failure with the operation and task ID.
type StoreError struct {
	Operation string
	TaskID    string
	Err       error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	return fmt.Sprintf("task store %s failed for task %q: %v", e.Operation, e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation, taskID string, err error) *StoreError {
	return &StoreError{Operation: operation, TaskID: taskID, Err: err}
}
