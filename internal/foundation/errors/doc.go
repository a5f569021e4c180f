// Package errors provides classified error primitives used across pagesmith.
//
// A ClassifiedError carries a category (provider, plan_parse, persistence,
// rewrite, not_found, disconnected, ...), a severity, and a retry strategy.
// The retry strategy is what separates transient generation-service failures
// from fatal conditions; the stage controller and the stream error frames
// both read it.
//
// Example usage:
//
//	err := errors.WrapError(cause, errors.CategoryProvider, "completion request failed").
//		Retryable().
//		WithContext("status", 503).
//		Build()
package errors
