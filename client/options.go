// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/taskwire/taskwire/auth"
)

// Defaults for the client configuration.
const (
	// DefaultTimeout bounds a single non-streaming request.
	DefaultTimeout = 30 * time.Second

	// DefaultReconcileTimeout bounds how long Reconcile listens on the event
	// stream before falling back to a poll.
	DefaultReconcileTimeout = 2 * time.Minute

	// DefaultNotFoundRetries is the total number of stream-open attempts
	// when the worker answers "task not found". The record may not have
	// materialized yet right after submission.
	DefaultNotFoundRetries = 3

	// DefaultNotFoundDelay is the fixed wait between not-found open
	// attempts.
	DefaultNotFoundDelay = 5 * time.Second

	// DefaultIdleTimeout is how long Reconcile waits between events before
	// it treats the stream as stalled and falls back to a poll. Keep-alive
	// comments do not count as events.
	DefaultIdleTimeout = 30 * time.Second

	// DefaultStreamBuffer is the subscription channel capacity.
	DefaultStreamBuffer = 16
)

// RetryConfig controls exponential backoff for transient failures.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the wait after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failure.
	Multiplier float64
}

// DefaultRetryConfig returns the standard backoff schedule: 4 attempts with
// delays of roughly 2s, 4s, 8s (capped at 30s), plus jitter.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for all requests. The stream
// connection strips the client timeout, which would otherwise kill
// long-lived streams.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds each non-streaming request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetryConfig replaces the backoff schedule for transient failures.
func WithRetryConfig(cfg *RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithNotFoundRetries sets the total number of stream-open attempts when the
// task is not found yet.
func WithNotFoundRetries(n int) Option {
	return func(c *Client) {
		c.notFoundRetries = n
	}
}

// WithNotFoundDelay sets the fixed wait between not-found open attempts.
func WithNotFoundDelay(d time.Duration) Option {
	return func(c *Client) {
		c.notFoundDelay = d
	}
}

// WithReconcileTimeout bounds how long Reconcile listens on the stream
// before falling back to a poll.
func WithReconcileTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.reconcileTimeout = d
	}
}

// WithIdleTimeout sets how long Reconcile tolerates a silent stream before
// falling back to a poll.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.idleTimeout = d
	}
}

// WithStreamBuffer sets the subscription channel capacity.
func WithStreamBuffer(n int) Option {
	return func(c *Client) {
		c.streamBuffer = n
	}
}

// WithTokenProvider attaches bearer tokens to every request.
func WithTokenProvider(provider auth.TokenProvider) Option {
	return func(c *Client) {
		c.tokenProvider = provider
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRecognizer replaces the payload recognizer used by Reconcile.
func WithRecognizer(r PayloadRecognizer) Option {
	return func(c *Client) {
		c.recognizer = r
	}
}
