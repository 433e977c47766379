// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/taskwire/taskwire"
)

// Fanout tracks the listeners registered per task and pushes each produced
// event to all of them. Registration bookkeeping is serialized behind one
// mutex; the actual delivery happens outside the lock so a slow listener
// cannot stall unrelated registrations or other tasks.
type Fanout struct {
	mu        sync.Mutex
	listeners map[string][]*Listener
	logger    *slog.Logger
}

// NewFanout creates an empty Fanout.
func NewFanout(logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		listeners: make(map[string][]*Listener),
		logger:    logger,
	}
}

// Add registers a listener for its task. Pure bookkeeping: whether the task
// exists is the caller's concern (the record may have been deleted
// concurrently, which is tolerated).
func (f *Fanout) Add(l *Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[l.TaskID()] = append(f.listeners[l.TaskID()], l)
}

// Remove deregisters and closes a listener. Removing an unknown listener is
// a no-op.
func (f *Fanout) Remove(l *Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(l)
}

func (f *Fanout) removeLocked(l *Listener) {
	subs, ok := f.listeners[l.TaskID()]
	if !ok {
		return
	}
	for i, sub := range subs {
		if sub.ID() == l.ID() {
			f.listeners[l.TaskID()] = slices.Delete(subs, i, i+1)
			sub.Close()
			break
		}
	}
	if len(f.listeners[l.TaskID()]) == 0 {
		delete(f.listeners, l.TaskID())
	}
}

// Listeners returns the listeners currently registered for a task.
func (f *Fanout) Listeners(taskID string) []*Listener {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.listeners[taskID])
}

// Notify delivers evt to every listener currently registered for the task.
// Delivery is concurrent and best-effort: a full or closed listener is
// logged and skipped, and never fails the caller or blocks the remaining
// listeners. Notify returns once every listener has been offered the event,
// preserving per-listener FIFO order across successive calls.
func (f *Fanout) Notify(ctx context.Context, taskID string, evt taskwire.Event) {
	subs := f.Listeners(taskID)
	if len(subs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(l *Listener) {
			defer wg.Done()
			if err := l.Enqueue(evt); err != nil {
				f.logger.WarnContext(ctx, "event delivery failed",
					"task_id", taskID, "listener_id", l.ID(), "kind", evt.Kind(), "error", err)
			}
		}(sub)
	}
	wg.Wait()
}

// CloseTask closes and removes every listener for a task. Called when the
// task reaches a terminal state or is deleted.
func (f *Fanout) CloseTask(taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range f.listeners[taskID] {
		sub.Close()
	}
	delete(f.listeners, taskID)
}

// CloseAll closes every listener across all tasks.
func (f *Fanout) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for taskID, subs := range f.listeners {
		for _, sub := range subs {
			sub.Close()
		}
		delete(f.listeners, taskID)
	}
}
