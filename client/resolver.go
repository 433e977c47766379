// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
)

// Resolver maps a worker identifier to the endpoint URL it serves on. How
// discovery works (registry, DNS, static config) lives outside this module.
type Resolver interface {
	Resolve(ctx context.Context, workerID string) (string, error)
}

// StaticResolver resolves worker IDs from a fixed table.
type StaticResolver map[string]string

var _ Resolver = (StaticResolver)(nil)

// Resolve implements Resolver.
func (r StaticResolver) Resolve(ctx context.Context, workerID string) (string, error) {
	endpoint, ok := r[workerID]
	if !ok {
		return "", &ConfigurationError{Field: "resolver", Message: fmt.Sprintf("unknown worker %q", workerID)}
	}
	return endpoint, nil
}

// DialWorker resolves a worker ID and builds a client for it.
func DialWorker(ctx context.Context, resolver Resolver, workerID string, opts ...Option) (*Client, error) {
	endpoint, err := resolver.Resolve(ctx, workerID)
	if err != nil {
		return nil, err
	}
	return New(endpoint, opts...)
}
