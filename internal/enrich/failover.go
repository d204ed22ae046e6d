// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

const (
	breakerConsecutiveFailures = 3
	breakerWindow              = 60 * time.Second
)

// FailoverProvider routes Analyze calls to a primary provider and fails
// over to a fallback after three consecutive transient or timeout failures
// within the breaker window. The primary is probed again after the window
// elapses and wins back on success.
type FailoverProvider struct {
	primary  Provider
	fallback Provider
	breaker  *gobreaker.TwoStepCircuitBreaker
	logger   *slog.Logger
}

// NewFailoverProvider wraps primary with a circuit breaker; fallback may be
// nil, in which case open-circuit calls fail with the primary's error.
func NewFailoverProvider(primary, fallback Provider, logger *slog.Logger) *FailoverProvider {
	f := &FailoverProvider{primary: primary, fallback: fallback, logger: logger.With("component", "enrich")}
	f.breaker = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:     "llm-primary",
		Interval: breakerWindow,
		Timeout:  breakerWindow,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			f.logger.Warn("llm provider breaker state change", "from", from.String(), "to", to.String())
		},
	})
	return f
}

// Analyze calls the primary unless its breaker is open. Only transient and
// timeout failures count against the breaker; permanent and malformed
// results are the caller's problem, not the provider's health.
func (f *FailoverProvider) Analyze(ctx context.Context, prompt string, image []byte) ([]Item, error) {
	done, err := f.breaker.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return f.analyzeFallback(ctx, prompt, image, err)
		}
		return nil, err
	}

	items, err := f.primary.Analyze(ctx, prompt, image)
	if err == nil {
		done(true)
		return items, nil
	}
	if Classify(err) != ClassTransient {
		done(true)
		return nil, err
	}
	done(false)
	return f.analyzeFallback(ctx, prompt, image, err)
}

func (f *FailoverProvider) analyzeFallback(ctx context.Context, prompt string, image []byte, cause error) ([]Item, error) {
	if f.fallback == nil {
		return nil, cause
	}
	providerFailovers.Inc()
	return f.fallback.Analyze(ctx, prompt, image)
}
