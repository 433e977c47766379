// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/taskwire/taskwire"
	"github.com/taskwire/taskwire/client/internal/sse"
)

// Subscription is one open event stream for a task. Events arrive on
// Events() in publish order; when the channel closes, Err() reports why the
// stream ended (nil for a graceful close).
type Subscription struct {
	taskID string
	events chan taskwire.Event
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Events returns the event channel. It closes when the task reaches a
// terminal state, the stream fails, or the subscription is closed.
func (s *Subscription) Events() <-chan taskwire.Event {
	return s.events
}

// Err reports why the stream ended. It is meaningful once Events() has
// closed; a graceful close returns nil.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the stream down and waits for the reader to finish. Closing
// an ended subscription is a no-op.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Subscribe opens the event stream for a task. Right after submission the
// worker may not know the ID yet, so "task not found" at open is retried a
// fixed number of times with a fixed delay before it becomes fatal.
// Transient connection failures at open follow the regular backoff
// schedule.
func (c *Client) Subscribe(ctx context.Context, taskID string) (*Subscription, error) {
	if taskID == "" {
		return nil, &ValidationError{Field: "taskID", Message: "cannot be empty"}
	}

	attempts := c.notFoundRetries
	if attempts <= 0 {
		attempts = 1
	}

	var resp *http.Response
	for attempt := 1; ; attempt++ {
		err := withRetry(ctx, c.retry, "open stream", func(ctx context.Context) error {
			var openErr error
			resp, openErr = c.openStream(ctx, taskID)
			return openErr
		})
		if err == nil {
			break
		}
		if !IsTaskNotFound(err) || attempt >= attempts {
			return nil, err
		}

		c.logger.DebugContext(ctx, "task not visible yet, retrying stream open",
			"task_id", taskID, "attempt", attempt)
		select {
		case <-time.After(c.notFoundDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	buffer := c.streamBuffer
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	streamCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		taskID: taskID,
		events: make(chan taskwire.Event, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.readLoop(streamCtx, resp.Body)
	return sub, nil
}

// openStream performs one GET against the events route. The request context
// deliberately carries no timeout: streams are long-lived by design.
func (c *Client) openStream(ctx context.Context, taskID string) (*http.Response, error) {
	url := c.endpoint + "/v1/tasks/" + taskID + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if err := c.setAuthorization(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Operation: "open stream", URL: url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeErrorResponse(resp)
	}
	return resp, nil
}

// readLoop decodes frames until the stream ends. A frame carrying a final
// status event is the regular end of a stream; an in-band error frame
// surfaces through Err().
func (s *Subscription) readLoop(ctx context.Context, body io.ReadCloser) {
	defer close(s.done)
	defer close(s.events)
	defer body.Close()
	defer s.cancel()

	// Tear the connection down when the subscription is canceled so the
	// decoder unblocks.
	go func() {
		<-ctx.Done()
		body.Close()
	}()

	decoder := sse.NewDecoder(body)
	for {
		frame, err := decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				// Graceful close, or a close we asked for.
				return
			}
			s.setErr(&ConnectionError{Operation: "read stream", URL: s.taskID, Err: err})
			return
		}

		kind := taskwire.EventKind(frame.Event)
		if kind == taskwire.KindError {
			var envelope taskwire.Error
			if err := json.Unmarshal([]byte(frame.Data), &envelope); err != nil {
				s.setErr(fmt.Errorf("malformed error frame: %w", err))
				return
			}
			s.setErr(&envelope)
			return
		}

		evt, err := taskwire.UnmarshalEvent(kind, []byte(frame.Data))
		if err != nil {
			s.setErr(err)
			return
		}

		select {
		case s.events <- evt:
		case <-ctx.Done():
			return
		}

		if status, ok := evt.(*taskwire.StatusChangedEvent); ok && status.Final {
			return
		}
	}
}
