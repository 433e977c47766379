// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the caller side of the taskwire protocol: task
// submission, the event stream subscription, and result reconciliation
// across the push and pull channels.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/taskwire/taskwire"
	"github.com/taskwire/taskwire/auth"
)

// Client talks to one taskwire worker endpoint. It is safe for concurrent
// use.
type Client struct {
	endpoint   string
	httpClient *http.Client

	timeout          time.Duration
	retry            *RetryConfig
	notFoundRetries  int
	notFoundDelay    time.Duration
	reconcileTimeout time.Duration
	idleTimeout      time.Duration
	streamBuffer     int

	tokenProvider auth.TokenProvider
	logger        *slog.Logger
	recognizer    PayloadRecognizer
}

// New creates a Client for the given worker endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &ConfigurationError{Field: "endpoint", Message: fmt.Sprintf("invalid endpoint URL %q", endpoint)}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, &ConfigurationError{Field: "endpoint", Message: fmt.Sprintf("unsupported scheme %q", parsed.Scheme)}
	}

	c := &Client{
		endpoint:         strings.TrimRight(endpoint, "/"),
		httpClient:       &http.Client{},
		timeout:          DefaultTimeout,
		retry:            DefaultRetryConfig(),
		notFoundRetries:  DefaultNotFoundRetries,
		notFoundDelay:    DefaultNotFoundDelay,
		reconcileTimeout: DefaultReconcileTimeout,
		idleTimeout:      DefaultIdleTimeout,
		streamBuffer:     DefaultStreamBuffer,
		logger:           slog.Default(),
		recognizer:       &DefaultRecognizer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout <= 0 {
		return nil, &ConfigurationError{Field: "timeout", Message: "must be positive"}
	}
	return c, nil
}

// Endpoint returns the worker endpoint this client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Handle identifies a submitted task: the ID the worker assigned and the
// endpoint it lives on.
type Handle struct {
	TaskID   string
	Endpoint string
}

// Submit sends a new task to the worker and returns its handle. Transient
// failures are retried under the backoff schedule.
func (c *Client) Submit(ctx context.Context, role string, parts []taskwire.Part) (*Handle, error) {
	if len(parts) == 0 {
		return nil, &ValidationError{Field: "parts", Message: "must carry at least one part"}
	}
	if role == "" {
		role = taskwire.RoleUser
	}

	req := taskwire.SubmitRequest{Role: role, Parts: parts}
	var resp taskwire.SubmitResponse
	err := withRetry(ctx, c.retry, "submit task", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, "/v1/tasks", req, &resp)
	})
	if err != nil {
		return nil, err
	}
	if resp.TaskID == "" {
		return nil, &ConnectionError{Operation: "submit task", URL: c.endpoint,
			Err: fmt.Errorf("worker returned no task ID")}
	}

	c.logger.DebugContext(ctx, "task submitted", "task_id", resp.TaskID, "endpoint", c.endpoint)
	return &Handle{TaskID: resp.TaskID, Endpoint: c.endpoint}, nil
}

// GetTask polls the full task record. This is the pull channel: its answer
// is ground truth regardless of what the stream delivered.
func (c *Client) GetTask(ctx context.Context, taskID string) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, &ValidationError{Field: "taskID", Message: "cannot be empty"}
	}

	var task taskwire.Task
	err := withRetry(ctx, c.retry, "get task", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, "/v1/tasks/"+taskID, nil, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Cancel requests cancellation. It returns false without error when the
// task was already terminal.
func (c *Client) Cancel(ctx context.Context, taskID string) (bool, error) {
	if taskID == "" {
		return false, &ValidationError{Field: "taskID", Message: "cannot be empty"}
	}

	var resp taskwire.CancelResponse
	err := withRetry(ctx, c.retry, "cancel task", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/cancel", struct{}{}, &resp)
	})
	if err != nil {
		return false, err
	}
	return resp.Success, nil
}

// doJSON performs one request/response cycle against the worker.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &ValidationError{Message: fmt.Sprintf("encode request body: %v", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("build request: %v", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if err := c.setAuthorization(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Operation: method + " " + path, After: c.timeout}
		}
		return &ConnectionError{Operation: method + " " + path, URL: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectionError{Operation: method + " " + path, URL: c.endpoint, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ConnectionError{Operation: method + " " + path, URL: c.endpoint,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) setAuthorization(ctx context.Context, req *http.Request) error {
	if c.tokenProvider == nil {
		return nil
	}
	token, err := c.tokenProvider.Token(ctx)
	if err != nil {
		return &ConfigurationError{Field: "tokenProvider", Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// decodeErrorResponse turns a non-2xx response into the error envelope it
// carries, or an HTTPError when the body is not an envelope.
func decodeErrorResponse(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil && len(data) > 0 {
		var envelope taskwire.Error
		if jsonErr := json.Unmarshal(data, &envelope); jsonErr == nil && envelope.Code != 0 {
			return &envelope
		}
	}
	return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
}
