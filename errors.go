// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"errors"
	"fmt"
	"net/http"
)

// Protocol error codes, carried in the [Error] envelope. The numbering
// follows the JSON-RPC convention for the standard codes, with the
// -32000..-32099 range reserved for domain errors.
const (
	// CodeInvalidParams indicates a malformed request.
	CodeInvalidParams int64 = -32602

	// CodeMethodNotFound indicates an unknown operation.
	CodeMethodNotFound int64 = -32601

	// CodeInternalError indicates a worker-side failure.
	CodeInternalError int64 = -32603

	// CodeOverloaded indicates the worker is temporarily unable to accept
	// work. It is the one domain code callers may retry.
	CodeOverloaded int64 = -32000

	// CodeTaskNotFound indicates the task ID is unknown to the worker.
	CodeTaskNotFound int64 = -32001

	// CodeTaskNotCancelable indicates the task is already terminal.
	CodeTaskNotCancelable int64 = -32002
)

// Error is the wire error envelope, used both as a non-stream response body
// and as the payload of in-band "error" stream frames.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("taskwire error %d: %s", e.Code, e.Message)
}

// Is matches two envelopes by code so sentinel comparisons via errors.Is
// work regardless of message wording.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus maps the error code to the HTTP status used outside streams.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidParams:
		return http.StatusBadRequest
	case CodeTaskNotFound, CodeMethodNotFound:
		return http.StatusNotFound
	case CodeOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates an error envelope with the given code and message.
func NewError(code int64, message string) *Error {
	return &Error{Code: code, Message: message}
}

// TaskNotFoundError reports that a task ID is unknown. During initial
// subscription it may also mean the record has not materialized yet; clients
// tolerate it there with a bounded retry.
type TaskNotFoundError struct {
	TaskID string
}

// Error implements the error interface.
func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// Envelope returns the wire form of the error.
func (e *TaskNotFoundError) Envelope() *Error {
	return &Error{Code: CodeTaskNotFound, Message: e.Error()}
}

// InvalidTransitionError reports an illegal state change request. It is
// surfaced only to the state-mutating caller, never onto the wire.
type InvalidTransitionError struct {
	TaskID string
	From   TaskState
	To     TaskState
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s: invalid transition %s -> %s", e.TaskID, e.From, e.To)
}
