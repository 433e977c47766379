// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"time"

	"github.com/taskwire/taskwire"
)

// PayloadRecognizer extracts the usable result payload from a task record.
// Reconcile applies it both to the record it rebuilds from stream events and
// to the record it polls, so the two channels agree on what counts as a
// result.
type PayloadRecognizer interface {
	// Recognize returns the payload and whether one was found.
	Recognize(task *taskwire.Task) (map[string]any, bool)
}

// DefaultRecognizer keys on structural shape: the first artifact typed
// "result" becomes `{"result": content}`. When no result artifact exists,
// the data parts of the most recent agent message are used as the payload
// directly.
type DefaultRecognizer struct{}

var _ PayloadRecognizer = (*DefaultRecognizer)(nil)

// ResultArtifactType is the artifact type the default recognizer looks for.
const ResultArtifactType = "result"

// Recognize implements PayloadRecognizer.
func (DefaultRecognizer) Recognize(task *taskwire.Task) (map[string]any, bool) {
	for _, artifact := range task.Artifacts {
		if artifact.Type == ResultArtifactType {
			return map[string]any{"result": artifact.Content}, true
		}
	}

	for i := len(task.Messages) - 1; i >= 0; i-- {
		msg := task.Messages[i]
		if msg.Role != taskwire.RoleAgent {
			continue
		}
		payload := make(map[string]any)
		for _, part := range msg.Parts {
			for k, v := range part.Data {
				payload[k] = v
			}
		}
		if len(payload) > 0 {
			return payload, true
		}
	}
	return nil, false
}

// Reconcile waits for the task to finish and returns its result payload. It
// listens on the push channel first, rebuilding the record from events; if
// the task completes there with a recognizable payload, no poll happens. In
// every other case (stream failure, idle timeout, any terminal state without
// a captured payload) it polls the record exactly once, and that answer is
// ground truth.
//
// A completed task with no recognizable payload yields an empty, non-nil
// map. A failed or canceled task yields a *ProcessingError carrying the last
// observed state and the worker's failure message.
func (c *Client) Reconcile(ctx context.Context, handle *Handle) (map[string]any, error) {
	if handle == nil || handle.TaskID == "" {
		return nil, &ValidationError{Field: "handle", Message: "must carry a task ID"}
	}

	shadow, streamOK := c.consumeStream(ctx, handle)
	if streamOK && shadow.State == taskwire.TaskStateCompleted {
		if payload, found := c.recognizer.Recognize(shadow); found {
			return payload, nil
		}
		// Completed on the stream but nothing recognizable arrived: the
		// record may hold what the stream dropped.
	}

	// Pull channel: one poll, ground truth. Completed-with-payload is the
	// only outcome taken from the stream alone; every other terminal
	// verdict, failures included, is confirmed against the record.
	task, err := c.GetTask(ctx, handle.TaskID)
	if err != nil {
		return nil, c.processingError(handle, shadow, shadow, err)
	}
	return c.resolve(handle, task, shadow)
}

// consumeStream rebuilds the task record from stream events until the task
// turns terminal, the stream ends, or the reconcile window closes. It
// reports whether the stream stayed healthy enough to trust what it
// delivered.
func (c *Client) consumeStream(ctx context.Context, handle *Handle) (*taskwire.Task, bool) {
	shadow := &taskwire.Task{ID: handle.TaskID}

	// The reconcile window covers the whole push phase, stream open
	// included, so not-found retries and transient backoff at open count
	// against the same wall clock as event consumption.
	ctx, cancel := context.WithTimeout(ctx, c.reconcileTimeout)
	defer cancel()

	sub, err := c.Subscribe(ctx, handle.TaskID)
	if err != nil {
		c.logger.WarnContext(ctx, "stream unavailable, falling back to poll",
			"task_id", handle.TaskID, "error", err)
		return shadow, false
	}
	defer sub.Close()

	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					c.logger.WarnContext(ctx, "stream ended with error, falling back to poll",
						"task_id", handle.TaskID, "error", err)
					return shadow, false
				}
				return shadow, true
			}
			applyEvent(shadow, evt)
			if shadow.State.IsTerminal() {
				return shadow, true
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(c.idleTimeout)

		case <-idle.C:
			c.logger.WarnContext(ctx, "stream stalled, falling back to poll",
				"task_id", handle.TaskID, "last_state", shadow.State)
			return shadow, false

		case <-ctx.Done():
			c.logger.WarnContext(ctx, "reconcile window closed, falling back to poll",
				"task_id", handle.TaskID, "last_state", shadow.State)
			return shadow, false
		}
	}
}

// applyEvent folds one event into the rebuilt record.
func applyEvent(shadow *taskwire.Task, evt taskwire.Event) {
	switch e := evt.(type) {
	case *taskwire.StatusChangedEvent:
		shadow.State = e.State
		if e.Message != "" {
			shadow.AppendMessage(taskwire.Message{
				Role:  taskwire.RoleAgent,
				Parts: []taskwire.Part{taskwire.TextPart(e.Message)},
			})
		}
	case *taskwire.MessageAppendedEvent:
		shadow.AppendMessage(e.Message)
	case *taskwire.ArtifactPublishedEvent:
		shadow.UpsertArtifact(e.Artifact)
	}
}

// resolve turns the polled record into the final result.
func (c *Client) resolve(handle *Handle, task, shadow *taskwire.Task) (map[string]any, error) {
	switch task.State {
	case taskwire.TaskStateCompleted:
		if payload, found := c.recognizer.Recognize(task); found {
			return payload, nil
		}
		// Completed without a recognizable payload is still a success.
		return map[string]any{}, nil

	case taskwire.TaskStateFailed, taskwire.TaskStateCanceled:
		return nil, c.processingError(handle, task, shadow, nil)

	default:
		return nil, c.processingError(handle, task, shadow, ErrNoTerminalState)
	}
}

// processingError builds the failure report. The message prefers the
// stream's words, falling back to the polled record; the state always comes
// from the record.
func (c *Client) processingError(handle *Handle, task, shadow *taskwire.Task, err error) *ProcessingError {
	msg := lastAgentText(shadow)
	if msg == "" {
		msg = lastAgentText(task)
	}
	return &ProcessingError{
		TaskID:   handle.TaskID,
		Endpoint: handle.Endpoint,
		State:    task.State,
		Message:  msg,
		Err:      err,
	}
}

// lastAgentText returns the text of the most recent agent message, which
// carries the worker's own words for why a task failed.
func lastAgentText(task *taskwire.Task) string {
	for i := len(task.Messages) - 1; i >= 0; i-- {
		msg := task.Messages[i]
		if msg.Role != taskwire.RoleAgent {
			continue
		}
		for _, part := range msg.Parts {
			if part.Type == taskwire.PartTypeText && part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

// RunTask submits a task and reconciles its result in one call.
func (c *Client) RunTask(ctx context.Context, role string, parts []taskwire.Part) (map[string]any, error) {
	handle, err := c.Submit(ctx, role, parts)
	if err != nil {
		return nil, err
	}
	return c.Reconcile(ctx, handle)
}
