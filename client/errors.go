// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/taskwire/taskwire"
)

// Common errors.
var (
	// ErrStreamClosed is returned when reading from a closed subscription.
	ErrStreamClosed = errors.New("stream is closed")

	// ErrNoTerminalState is returned when a task never reached a terminal
	// state within the reconciliation window.
	ErrNoTerminalState = errors.New("task did not reach a terminal state")
)

// ConfigurationError reports an invalid client configuration. It is fatal:
// retrying cannot fix it.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// ValidationError reports a request that is invalid before it ever leaves
// the client. It is fatal: retrying cannot fix it.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// TimeoutError reports a request that ran out of time. It implements
// net.Error so the retry classifier treats it as transient.
type TimeoutError struct {
	Operation string
	After     time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s after %s", e.Operation, e.After)
}

// Timeout implements net.Error.
func (e *TimeoutError) Timeout() bool { return true }

// Temporary implements net.Error.
func (e *TimeoutError) Temporary() bool { return true }

// ConnectionError reports a transport-level failure reaching the worker.
type ConnectionError struct {
	Operation string
	URL       string
	Err       error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s to %s: %v", e.Operation, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// HTTPError reports a non-2xx response whose body did not carry an error
// envelope.
type HTTPError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// ProcessingError reports that a submitted task ended without a usable
// result: it failed, was canceled, or never reached a terminal state. State
// and Message carry the last observed status so the failure reason (the
// worker's own words) survives into the error text.
type ProcessingError struct {
	TaskID   string
	Endpoint string
	State    taskwire.TaskState
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	msg := fmt.Sprintf("task %s at %s ended in state %s", e.TaskID, e.Endpoint, e.State)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// IsTaskNotFound reports whether err means the worker does not (yet) know
// the task ID.
func IsTaskNotFound(err error) bool {
	var envelope *taskwire.Error
	if errors.As(err, &envelope) && envelope.Code == taskwire.CodeTaskNotFound {
		return true
	}
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// isRetryable classifies an error as transient. Connection failures,
// timeouts, gateway-style HTTP statuses and the overloaded protocol code are
// retryable; validation, configuration and all other remote errors are
// fatal.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var envelope *taskwire.Error
	if errors.As(err, &envelope) {
		return envelope.Code == taskwire.CodeOverloaded
	}

	return false
}
