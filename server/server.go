// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the worker side of the taskwire protocol: the
// task lifecycle manager, the event fan-out, and the HTTP surface clients
// talk to.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/taskwire/taskwire"
)

// Server exposes a Manager over HTTP. The surface is a small set of REST
// routes plus one SSE stream per task.
type Server struct {
	manager *Manager
	mux     *http.ServeMux
	logger  *slog.Logger

	keepAlive time.Duration
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger for the Server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithKeepAliveInterval sets how often idle streams emit keep-alive frames.
func WithKeepAliveInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		s.keepAlive = d
	}
}

// NewServer creates a Server around the given manager.
func NewServer(manager *Manager, opts ...ServerOption) *Server {
	s := &Server{
		manager:   manager,
		mux:       http.NewServeMux(),
		logger:    slog.Default(),
		keepAlive: DefaultKeepAliveInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerHandlers()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("POST /v1/tasks", s.handleSubmit)
	s.mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("POST /v1/tasks/{id}/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /v1/tasks/{id}/events", s.handleEvents)
	s.mux.HandleFunc("/", s.handleNotFound)
}

// handleSubmit accepts a new task submission and returns the generated ID.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req taskwire.SubmitRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, taskwire.NewError(taskwire.CodeInvalidParams, "malformed request body"))
		return
	}
	defer r.Body.Close()

	taskID, err := s.manager.Submit(r.Context(), taskwire.Message{
		Role:  req.Role,
		Parts: req.Parts,
	})
	if err != nil {
		s.sendError(w, toEnvelope(err))
		return
	}
	s.sendJSON(w, http.StatusCreated, taskwire.SubmitResponse{TaskID: taskID})
}

// handleGetTask returns the full task record.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.manager.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, toEnvelope(err))
		return
	}
	s.sendJSON(w, http.StatusOK, task)
}

// handleCancel requests cancellation of a task.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	success, err := s.manager.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, toEnvelope(err))
		return
	}
	s.sendJSON(w, http.StatusOK, taskwire.CancelResponse{Success: success})
}

// handleEvents serves the SSE event stream for a task. The stream replays
// the current status first, then pushes events as they happen. A frame
// carrying a final status event is the last frame; the server closes the
// stream after it.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	listener, err := s.manager.Subscribe(r.Context(), taskID)
	if err != nil {
		s.sendError(w, toEnvelope(err))
		return
	}
	defer s.manager.Unsubscribe(listener)

	stream, err := NewStream(w)
	if err != nil {
		s.sendError(w, taskwire.NewError(taskwire.CodeInternalError, err.Error()))
		return
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.DebugContext(r.Context(), "stream client disconnected",
				"task_id", taskID, "listener_id", listener.ID())
			return

		case <-ticker.C:
			if err := stream.SendKeepAlive(); err != nil {
				return
			}

		case evt, ok := <-listener.Events():
			if !ok {
				// Listener closed after a terminal event was delivered.
				return
			}
			if err := stream.SendEvent(evt); err != nil {
				s.logger.WarnContext(r.Context(), "stream write failed",
					"task_id", taskID, "listener_id", listener.ID(), "error", err)
				return
			}
			if status, isStatus := evt.(*taskwire.StatusChangedEvent); isStatus && status.Final {
				return
			}
		}
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.sendError(w, taskwire.NewError(taskwire.CodeMethodNotFound, "unknown operation"))
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, envelope *taskwire.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(envelope.HTTPStatus())
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(envelope); err != nil {
		s.logger.Warn("failed to encode error response", "error", err)
	}
}

// toEnvelope maps internal errors to the wire envelope. Typed lifecycle
// errors carry their own code; anything unrecognized becomes an internal
// error without leaking detail.
func toEnvelope(err error) *taskwire.Error {
	var notFound *taskwire.TaskNotFoundError
	if errors.As(err, &notFound) {
		return notFound.Envelope()
	}
	var envelope *taskwire.Error
	if errors.As(err, &envelope) {
		return envelope
	}
	return taskwire.NewError(taskwire.CodeInternalError, "internal error")
}
