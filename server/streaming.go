// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/taskwire/taskwire"
)

// DefaultKeepAliveInterval is how often an idle stream emits a comment frame
// so intermediaries do not drop the connection.
const DefaultKeepAliveInterval = 15 * time.Second

// Stream represents one Server-Sent Events (SSE) connection. Writes are
// serialized so the keep-alive ticker and the event loop never interleave
// frames.
type Stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewStream prepares an SSE connection on w. It returns an error if the
// underlying writer cannot flush, which SSE requires.
func NewStream(w http.ResponseWriter) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // For Nginx proxy

	return &Stream{w: w, flusher: flusher}, nil
}

// SendEvent writes one event frame: the kind in the "event:" field and the
// JSON payload in the "data:" field.
func (s *Stream) SendEvent(evt taskwire.Event) error {
	data, err := sonic.ConfigDefault.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return s.send(string(evt.Kind()), data)
}

// SendError writes an in-band error frame carrying the error envelope. The
// stream ends after an error frame.
func (s *Stream) SendError(envelope *taskwire.Error) error {
	data, err := sonic.ConfigDefault.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal error envelope: %w", err)
	}
	return s.send(string(taskwire.KindError), data)
}

func (s *Stream) send(kind string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", kind, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SendKeepAlive writes a comment frame. Comments carry no event and are
// ignored by decoders.
func (s *Stream) SendKeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
