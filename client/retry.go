// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// retryableFunc is one attempt of an operation.
type retryableFunc func(context.Context) error

// withRetry executes fn under the backoff schedule. Fatal errors (anything
// isRetryable rejects) return immediately; transient errors are retried
// until the attempt budget runs out.
func withRetry(ctx context.Context, config *RetryConfig, operation string, fn retryableFunc) error {
	if config == nil || config.MaxAttempts <= 0 {
		return fn(ctx)
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		// Add jitter to delay (10% variance)
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)

		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operation, config.MaxAttempts, lastErr)
}
