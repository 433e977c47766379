// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskwire/taskwire"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastRetryConfig(4), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &ConnectionError{Operation: "test", URL: "http://worker", Err: errors.New("refused")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryStopsOnFatalError(t *testing.T) {
	fatal := &ValidationError{Message: "bad input"}
	calls := 0
	err := withRetry(context.Background(), fastRetryConfig(4), "test", func(ctx context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("withRetry = %v, want the fatal error unchanged", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	transient := &ConnectionError{Operation: "test", URL: "http://worker", Err: errors.New("refused")}
	err := withRetry(context.Background(), fastRetryConfig(4), "test", func(ctx context.Context) error {
		calls++
		return transient
	})
	if err == nil {
		t.Fatal("withRetry succeeded, want exhaustion error")
	}
	if !errors.Is(err, transient) {
		t.Errorf("exhaustion error does not wrap the last failure: %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestWithRetryHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, &RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Hour, // cancel fires long before the backoff ends
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}, "test", func(ctx context.Context) error {
		calls++
		cancel()
		return &ConnectionError{Operation: "test", URL: "http://worker", Err: errors.New("refused")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("withRetry = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIsRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection", &ConnectionError{Err: errors.New("refused")}, true},
		{"http 429", &HTTPError{StatusCode: 429}, true},
		{"http 502", &HTTPError{StatusCode: 502}, true},
		{"http 503", &HTTPError{StatusCode: 503}, true},
		{"http 504", &HTTPError{StatusCode: 504}, true},
		{"http 400", &HTTPError{StatusCode: 400}, false},
		{"overloaded", taskwire.NewError(taskwire.CodeOverloaded, "busy"), true},
		{"task not found", taskwire.NewError(taskwire.CodeTaskNotFound, "nope"), false},
		{"invalid params", taskwire.NewError(taskwire.CodeInvalidParams, "bad"), false},
		{"validation", &ValidationError{Message: "bad"}, false},
		{"configuration", &ConfigurationError{Field: "endpoint", Message: "bad"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %t, want %t", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTaskNotFound(t *testing.T) {
	if !IsTaskNotFound(taskwire.NewError(taskwire.CodeTaskNotFound, "nope")) {
		t.Error("envelope with task-not-found code not recognized")
	}
	if !IsTaskNotFound(&HTTPError{StatusCode: 404}) {
		t.Error("bare HTTP 404 not recognized")
	}
	if IsTaskNotFound(taskwire.NewError(taskwire.CodeOverloaded, "busy")) {
		t.Error("overloaded misclassified as not found")
	}
}
