package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, transport-agnostic error code used to align
// retryability and degradation policy across the engine.
type ErrorCode string

const (
	// ErrCodeIngest marks a per-document ingestion failure. Non-fatal to a
	// multi-document batch.
	ErrCodeIngest ErrorCode = "RAG_INGEST_ERROR"
	// ErrCodeEmbeddingUnavailable marks a failure of the embedding capability.
	ErrCodeEmbeddingUnavailable ErrorCode = "RAG_EMBEDDING_UNAVAILABLE"
	// ErrCodeExtractionUnavailable marks a failure of the relation-extraction
	// capability. Recoverable: retrieval degrades to the basic strategy.
	ErrCodeExtractionUnavailable ErrorCode = "RAG_EXTRACTION_UNAVAILABLE"
	// ErrCodeGraphUnavailable means no knowledge-graph snapshot has ever been
	// published for the active scope. Recoverable via basic fallback.
	ErrCodeGraphUnavailable ErrorCode = "RAG_GRAPH_UNAVAILABLE"
	// ErrCodeGenerationUnavailable marks the generation capability failing
	// after retry exhaustion.
	ErrCodeGenerationUnavailable ErrorCode = "RAG_GENERATION_UNAVAILABLE"
	// ErrCodeGuardrailBlocked means a guardrail rule blocked the turn.
	ErrCodeGuardrailBlocked ErrorCode = "RAG_GUARDRAIL_BLOCKED"
	// ErrCodeSessionExpired means the session idled past its expiry window.
	ErrCodeSessionExpired ErrorCode = "RAG_SESSION_EXPIRED"
)

// Error is the engine's structured error. It carries a stable code so the
// pipeline can decide between degrade, retry and surface without string
// matching.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches two *Error values by code, so sentinel comparisons via
// errors.Is work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewError builds an *Error with an optional cause.
func NewError(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause, Retryable: retryableCode(code)}
}

func retryableCode(code ErrorCode) bool {
	switch code {
	case ErrCodeEmbeddingUnavailable, ErrCodeGenerationUnavailable:
		return true
	}
	return false
}

// CodeOf extracts the ErrorCode from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }
