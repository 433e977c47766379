// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskwire/taskwire"
	"github.com/taskwire/taskwire/server/event"
	"github.com/taskwire/taskwire/server/task"
)

// Manager owns the worker-side task lifecycle. It is the single writer for
// every record: each mutation goes through the store first, and only after
// the store accepts it is the matching event fanned out to listeners. The
// record is the durable truth; events only describe what already happened.
type Manager struct {
	store  task.Store
	fanout *event.Fanout

	logger *slog.Logger
	tracer trace.Tracer

	listenerBuffer int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger for the Manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTracer sets the tracer for the Manager.
func WithTracer(tracer trace.Tracer) ManagerOption {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// WithListenerBuffer sets the per-subscriber queue capacity.
func WithListenerBuffer(n int) ManagerOption {
	return func(m *Manager) {
		m.listenerBuffer = n
	}
}

// NewManager creates a Manager on top of the given store.
func NewManager(store task.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:          store,
		logger:         slog.Default(),
		tracer:         otel.GetTracerProvider().Tracer("github.com/taskwire/taskwire/server"),
		listenerBuffer: event.DefaultListenerBuffer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.fanout = event.NewFanout(m.logger)
	return m
}

// Submit creates a new task in the submitted state, records the inbound
// message, and announces the initial status. It returns the generated task
// ID.
func (m *Manager) Submit(ctx context.Context, msg taskwire.Message) (string, error) {
	taskID := uuid.New().String()
	ctx, span := m.tracer.Start(ctx, "taskwire.manager.Submit",
		trace.WithAttributes(attribute.String("taskwire.task_id", taskID)))
	defer span.End()

	if len(msg.Parts) == 0 {
		return "", taskwire.NewError(taskwire.CodeInvalidParams, "message must carry at least one part")
	}
	if msg.Role == "" {
		msg.Role = taskwire.RoleUser
	}

	if _, err := m.store.Create(ctx, taskID); err != nil {
		return "", err
	}
	if _, err := m.store.AppendMessage(ctx, taskID, msg); err != nil {
		return "", err
	}

	m.logger.InfoContext(ctx, "task submitted", "task_id", taskID, "role", msg.Role)
	m.fanout.Notify(ctx, taskID, &taskwire.StatusChangedEvent{
		TaskID: taskID,
		State:  taskwire.TaskStateSubmitted,
	})
	return taskID, nil
}

// GetTask returns a snapshot of the task record.
func (m *Manager) GetTask(ctx context.Context, taskID string) (*taskwire.Task, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.manager.GetTask",
		trace.WithAttributes(attribute.String("taskwire.task_id", taskID)))
	defer span.End()

	return m.store.Get(ctx, taskID)
}

// UpdateState transitions the task and fans out the status event. An
// absorbed request (same state, or any request against a terminal record)
// refreshes the timestamp and emits no event. Once a terminal status event
// has been delivered, all listeners for the task are closed.
func (m *Manager) UpdateState(ctx context.Context, taskID string, state taskwire.TaskState, message string) (*taskwire.Task, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.manager.UpdateState",
		trace.WithAttributes(
			attribute.String("taskwire.task_id", taskID),
			attribute.String("taskwire.state", string(state))))
	defer span.End()

	before, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	updated, err := m.store.UpdateState(ctx, taskID, state)
	if err != nil {
		return nil, err
	}
	if updated.State == before.State {
		// Absorbed no-op; the record did not change state.
		return updated, nil
	}
	if message != "" {
		// Record the worker's words so polling clients see them too. The
		// StatusChanged event already carries the message; no separate
		// MessageAppended event is emitted.
		updated, err = m.store.AppendMessage(ctx, taskID, taskwire.Message{
			Role:  taskwire.RoleAgent,
			Parts: []taskwire.Part{taskwire.TextPart(message)},
		})
		if err != nil {
			return nil, err
		}
	}

	m.logger.InfoContext(ctx, "task state changed",
		"task_id", taskID, "from", before.State, "to", updated.State)

	final := updated.State.IsTerminal()
	m.fanout.Notify(ctx, taskID, &taskwire.StatusChangedEvent{
		TaskID:  taskID,
		State:   updated.State,
		Message: message,
		Final:   final,
	})
	if final {
		m.fanout.CloseTask(taskID)
	}
	return updated, nil
}

// AppendMessage records a message on the task history and fans out the
// event.
func (m *Manager) AppendMessage(ctx context.Context, taskID string, msg taskwire.Message) (*taskwire.Task, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.manager.AppendMessage",
		trace.WithAttributes(attribute.String("taskwire.task_id", taskID)))
	defer span.End()

	updated, err := m.store.AppendMessage(ctx, taskID, msg)
	if err != nil {
		return nil, err
	}
	appended := updated.Messages[len(updated.Messages)-1]
	m.fanout.Notify(ctx, taskID, &taskwire.MessageAppendedEvent{
		TaskID:  taskID,
		Message: appended,
	})
	return updated, nil
}

// PublishArtifact upserts an artifact on the task and fans out the event.
func (m *Manager) PublishArtifact(ctx context.Context, taskID string, artifact taskwire.Artifact) (*taskwire.Task, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.manager.PublishArtifact",
		trace.WithAttributes(
			attribute.String("taskwire.task_id", taskID),
			attribute.String("taskwire.artifact_id", artifact.ID)))
	defer span.End()

	updated, err := m.store.PublishArtifact(ctx, taskID, artifact)
	if err != nil {
		return nil, err
	}
	var stored taskwire.Artifact
	for _, a := range updated.Artifacts {
		if a.ID == artifact.ID {
			stored = a
			break
		}
	}
	m.fanout.Notify(ctx, taskID, &taskwire.ArtifactPublishedEvent{
		TaskID:   taskID,
		Artifact: stored,
	})
	return updated, nil
}

// Cancel requests cancellation. Canceling a task that is already terminal
// reports success=false without changing the record; the cancel request is
// absorbed like any other post-terminal transition.
func (m *Manager) Cancel(ctx context.Context, taskID string) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.manager.Cancel",
		trace.WithAttributes(attribute.String("taskwire.task_id", taskID)))
	defer span.End()

	current, err := m.store.Get(ctx, taskID)
	if err != nil {
		return false, err
	}
	if current.State.IsTerminal() {
		m.logger.InfoContext(ctx, "cancel on terminal task ignored",
			"task_id", taskID, "state", current.State)
		return false, nil
	}

	if _, err := m.UpdateState(ctx, taskID, taskwire.TaskStateCanceled, "canceled by client"); err != nil {
		return false, err
	}
	return true, nil
}

// Subscribe registers a listener for the task's event stream. The current
// status is replayed as the first event so a subscriber that attaches late
// still learns where the task stands. Subscribing to a terminal task yields
// exactly that one final event before the listener closes.
func (m *Manager) Subscribe(ctx context.Context, taskID string) (*event.Listener, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.manager.Subscribe",
		trace.WithAttributes(attribute.String("taskwire.task_id", taskID)))
	defer span.End()

	current, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	l := event.NewListener(taskID, m.listenerBuffer, m.logger)
	final := current.State.IsTerminal()
	initial := &taskwire.StatusChangedEvent{
		TaskID: taskID,
		State:  current.State,
		Final:  final,
	}
	if err := l.Enqueue(initial); err != nil {
		// Fresh listener with a positive buffer; cannot happen.
		l.Close()
		return nil, err
	}
	if final {
		l.Close()
		return l, nil
	}

	m.fanout.Add(l)
	m.logger.DebugContext(ctx, "listener subscribed",
		"task_id", taskID, "listener_id", l.ID())
	return l, nil
}

// Unsubscribe deregisters and closes a listener.
func (m *Manager) Unsubscribe(l *event.Listener) {
	m.fanout.Remove(l)
}

// Delete removes the task record and closes any remaining listeners.
func (m *Manager) Delete(ctx context.Context, taskID string) error {
	ctx, span := m.tracer.Start(ctx, "taskwire.manager.Delete",
		trace.WithAttributes(attribute.String("taskwire.task_id", taskID)))
	defer span.End()

	if err := m.store.Delete(ctx, taskID); err != nil {
		return err
	}
	m.fanout.CloseTask(taskID)
	return nil
}

// List returns snapshots of stored tasks.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]*taskwire.Task, error) {
	return m.store.List(ctx, limit, offset)
}

// Close shuts the manager down: all listeners are closed and the store is
// released.
func (m *Manager) Close(ctx context.Context) error {
	m.fanout.CloseAll()
	return m.store.Close(ctx)
}

// IsNotFound reports whether err is a task-not-found failure from either the
// store or the wire envelope.
func IsNotFound(err error) bool {
	var notFound *taskwire.TaskNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	var envelope *taskwire.Error
	return errors.As(err, &envelope) && envelope.Code == taskwire.CodeTaskNotFound
}
