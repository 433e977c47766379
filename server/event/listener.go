// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package event provides per-task event listeners and the fan-out that
// delivers worker events to them.
package event

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/taskwire/taskwire"
)

// DefaultListenerBuffer is the default per-listener queue capacity.
const DefaultListenerBuffer = 64

// ErrListenerFull is returned by Enqueue when the listener queue is at
// capacity. The producer drops the event for that listener rather than
// blocking unrelated delivery.
var ErrListenerFull = errors.New("listener queue is full")

// ErrListenerClosed is returned by Enqueue after the listener is closed.
var ErrListenerClosed = errors.New("listener is closed")

// Listener is one subscriber's delivery queue, bound to exactly one task ID.
// Events arrive in publish order (FIFO). Enqueue never blocks: a full queue
// fails fast so one slow consumer cannot stall the producing task.
type Listener struct {
	id     string
	taskID string
	ch     chan taskwire.Event
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewListener creates a listener for the given task with the given queue
// capacity. A non-positive buffer falls back to DefaultListenerBuffer.
func NewListener(taskID string, buffer int, logger *slog.Logger) *Listener {
	if buffer <= 0 {
		buffer = DefaultListenerBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		id:     uuid.New().String(),
		taskID: taskID,
		ch:     make(chan taskwire.Event, buffer),
		logger: logger,
	}
}

// ID returns the unique listener ID.
func (l *Listener) ID() string { return l.id }

// TaskID returns the task this listener observes.
func (l *Listener) TaskID() string { return l.taskID }

// Events returns the delivery channel. It is closed when the subscription
// ends or the task reaches a terminal state.
func (l *Listener) Events() <-chan taskwire.Event { return l.ch }

// Enqueue offers an event to the listener without blocking.
func (l *Listener) Enqueue(evt taskwire.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrListenerClosed
	}
	select {
	case l.ch <- evt:
		return nil
	default:
		l.logger.Warn("listener queue full, dropping event",
			"task_id", l.taskID, "listener_id", l.id, "kind", evt.Kind())
		return ErrListenerFull
	}
}

// Close ends the subscription. Events already queued remain readable until
// the channel drains. Close is idempotent.
func (l *Listener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	close(l.ch)
}
