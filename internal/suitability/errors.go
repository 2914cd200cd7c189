package suitability

import (
	"fmt"
	"time"
)

// ValidationError rejects out-of-range input before any external call.
// It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExternalServiceError means the points-of-interest lookup failed after
// bounded retries. No vector means no score, so it aborts the pipeline.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ContextualEvaluationFailure is the structured outcome of the contextual
// stage when primary retry and fallback failover are both exhausted. In
// full mode it degrades the request to rule-only rather than failing it.
type ContextualEvaluationFailure struct {
	Attempts int
	Models   []string
	Err      error
}

func (e *ContextualEvaluationFailure) Error() string {
	return fmt.Sprintf("contextual evaluation failed after %d attempts across %v: %v", e.Attempts, e.Models, e.Err)
}

func (e *ContextualEvaluationFailure) Unwrap() error { return e.Err }

// PipelineTimeoutError means the end-to-end deadline expired before the
// combining stage was reached.
type PipelineTimeoutError struct {
	Stage   Stage
	Timeout time.Duration
}

func (e *PipelineTimeoutError) Error() string {
	return fmt.Sprintf("pipeline timed out after %s during %s", e.Timeout, e.Stage)
}

// ConfigurationError is a startup-time failure: malformed rule table or
// ensemble weights that do not sum to 1.0. It is fatal to process
// initialization and never a per-request condition.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}
