// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth provides bearer token providers for taskwire clients.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// TokenProvider supplies the bearer token attached to outgoing requests.
type TokenProvider interface {
	// Token returns a token valid at the time of the call.
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider returns a fixed token, typically an API key issued out
// of band.
type StaticTokenProvider struct {
	token string
}

var _ TokenProvider = (*StaticTokenProvider)(nil)

// NewStaticTokenProvider creates a provider for a fixed token.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

// Token implements TokenProvider.
func (p *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	if p.token == "" {
		return "", errors.New("static token is empty")
	}
	return p.token, nil
}

// JWTTokenProvider mints short-lived HS256 tokens from a shared secret. A
// minted token is reused until it nears expiry.
type JWTTokenProvider struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration

	mu      sync.Mutex
	current string
	expires time.Time
}

var _ TokenProvider = (*JWTTokenProvider)(nil)

// DefaultTokenTTL is the lifetime of minted tokens.
const DefaultTokenTTL = 5 * time.Minute

// NewJWTTokenProvider creates a provider that signs tokens with key. A
// non-positive ttl falls back to DefaultTokenTTL.
func NewJWTTokenProvider(key []byte, issuer, audience string, ttl time.Duration) (*JWTTokenProvider, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTTokenProvider{
		key:      key,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}, nil
}

// Token implements TokenProvider.
func (p *JWTTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Refresh when within 30s of expiry so in-flight requests do not carry
	// a token that dies mid-request.
	if p.current != "" && time.Until(p.expires) > 30*time.Second {
		return p.current, nil
	}

	now := time.Now()
	builder := jwt.NewBuilder().
		IssuedAt(now).
		Expiration(now.Add(p.ttl))
	if p.issuer != "" {
		builder = builder.Issuer(p.issuer)
	}
	if p.audience != "" {
		builder = builder.Audience([]string{p.audience})
	}
	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), p.key))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	p.current = string(signed)
	p.expires = now.Add(p.ttl)
	return p.current, nil
}

// Verify parses and validates a token signed by the same shared secret.
func (p *JWTTokenProvider) Verify(tokenString string) (jwt.Token, error) {
	tok, err := jwt.Parse([]byte(tokenString),
		jwt.WithKey(jwa.HS256(), p.key),
		jwt.WithValidate(true))
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	return tok, nil
}
