package rag

import (
	"errors"
	"fmt"
)

// Transient failures of the external model services. Callers decide whether
// to abort or degrade; the core never retries.
var (
	ErrEmbeddingUnavailable  = errors.New("embedding service unavailable")
	ErrCompletionUnavailable = errors.New("completion service unavailable")
	ErrCompletionRejected    = errors.New("completion rejected by provider")
)

// ConfigurationError reports invalid component configuration. It is fatal
// at startup and is never silently clamped.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// DimensionMismatchError means an embedding was produced by an incompatible
// vectorizer configuration. The operation in progress must abort; skipping
// the offending vector would hide config drift.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}
