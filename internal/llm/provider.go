// Package llm provides inference provider clients and the racing and
// fallback strategies used to combine them.
package llm

import (
	"context"
	"errors"
	"time"
)

// Options bound a single inference call. Timeout is mandatory: the
// pool refuses calls without one so no provider request can run
// unbounded.
type Options struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Provider is a single external inference backend returning plain text.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// Infer runs the prompt and returns the response text. A provider
	// error never carries partial output.
	Infer(ctx context.Context, prompt string, opts Options) (string, error)
}

// Sentinel errors for the pool strategies.
var (
	// ErrUnconfigured means the pool has zero providers. This is a
	// valid terminal state, not a defect: callers degrade to their
	// catch-all behavior.
	ErrUnconfigured = errors.New("llm: no providers configured")

	// ErrNoResponse means every configured provider failed or returned
	// empty output.
	ErrNoResponse = errors.New("llm: all providers failed")

	// errMissingTimeout flags a call site that forgot the bound.
	errMissingTimeout = errors.New("llm: options missing timeout")
)
