// Package ai provides common types for the STT, TTS, VAD and LLM
// provider implementations: standard error classification and helpers
// shared across adapters.
package ai

import (
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Common error types used across AI providers
var (
	// ErrRecoverable indicates a temporary failure that may succeed if retried.
	// Examples: network timeout, rate limiting, temporary service unavailability.
	// Inside a call session these degrade to fallback behavior; nothing retries.
	ErrRecoverable = errors.New("recoverable AI provider error")

	// ErrFatal indicates a permanent failure that will not succeed if retried.
	// Examples: invalid API key, unsupported format, malformed request.
	ErrFatal = errors.New("fatal AI provider error")
)

// IsRecoverable checks if an error is classified as recoverable.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal checks if an error is classified as fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// ClassifiedError wraps an underlying error with its classification.
type ClassifiedError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Underlying.Error()
	}
	return e.Underlying.Error()
}

func (e *ClassifiedError) Unwrap() error {
	if e.Retryable {
		return ErrRecoverable
	}
	return ErrFatal
}

// NewRecoverableError creates a recoverable error with context.
func NewRecoverableError(underlying error, message string) error {
	return &ClassifiedError{Underlying: underlying, Retryable: true, Message: message}
}

// NewFatalError creates a fatal error with context.
func NewFatalError(underlying error, message string) error {
	return &ClassifiedError{Underlying: underlying, Retryable: false, Message: message}
}

// ClassifyAPIError classifies a failed OpenAI-compatible API call.
// Credential and request-shape failures will never succeed on retry
// and are fatal; everything else (timeouts, rate limits, server
// errors, network failures) is recoverable.
func ClassifyAPIError(err error, message string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized,
			http.StatusForbidden, http.StatusNotFound:
			return NewFatalError(err, message)
		}
	}
	return NewRecoverableError(err, message)
}
