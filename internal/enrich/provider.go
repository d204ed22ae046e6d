// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

// Package enrich runs the asynchronous LLM enrichment pipeline: a bounded
// task queue fed by the ingest path, a fixed worker pool calling a pluggable
// provider, and the thresholds that turn provider items into links or
// review tasks.
package enrich

import (
	"context"
	"errors"
	"fmt"
)

// Item is one object candidate returned by a provider.
type Item struct {
	ObjectType    string  `json:"object_type"`
	Identifier    string  `json:"identifier"`
	IdentifierKey string  `json:"identifier_key,omitempty"`
	Confidence    float64 `json:"confidence"`
}

// Provider analyzes a prompt (and optional screenshot) and returns object
// candidates.
type Provider interface {
	Analyze(ctx context.Context, prompt string, image []byte) ([]Item, error)
}

// ErrorClass partitions provider failures for retry handling.
type ErrorClass int

const (
	// ClassTransient covers 429, 5xx, network failures and timeouts:
	// retried with backoff.
	ClassTransient ErrorClass = iota
	// ClassPermanent covers other 4xx responses: dropped immediately.
	ClassPermanent
	// ClassMalformed covers unparsable provider responses: dropped.
	ClassMalformed
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ProviderError carries the failure class alongside the cause.
type ProviderError struct {
	Class ErrorClass
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (%s): %v", e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func transientErr(err error) error { return &ProviderError{Class: ClassTransient, Err: err} }
func permanentErr(err error) error { return &ProviderError{Class: ClassPermanent, Err: err} }
func malformedErr(err error) error { return &ProviderError{Class: ClassMalformed, Err: err} }

// Classify returns the failure class of a provider error. Unclassified
// errors (plain network failures, cancelled contexts) count as transient.
func Classify(err error) ErrorClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassTransient
}
