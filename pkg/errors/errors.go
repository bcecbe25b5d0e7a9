// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Bastion.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Bastion errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid (e.g. a missing
	// required tool parameter).
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeToolFailure indicates a tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeTimeout indicates an operation exceeded its time budget.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeNotFound indicates a resource (tool, skill) was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeNotReady indicates a collaborator is registered but has not
	// finished its own initialization.
	CodeNotReady ErrorCode = "NOT_READY"

	// CodeNotAlive indicates a collaborator's connection or process died.
	CodeNotAlive ErrorCode = "NOT_ALIVE"

	// CodeExited indicates the callee terminated during the call.
	CodeExited ErrorCode = "EXITED"

	// CodeFallbackFailed indicates the fallback path itself faulted.
	CodeFallbackFailed ErrorCode = "FALLBACK_FAILED"

	// CodeMemoryError indicates a memory store error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeLLMError indicates an LLM consultation error.
	CodeLLMError ErrorCode = "LLM_ERROR"
)

// BastionError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type BastionError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
}

// Error implements the error interface.
func (e *BastionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *BastionError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *BastionError) MarshalJSON() ([]byte, error) {
	type Alias BastionError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new BastionError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *BastionError {
	return &BastionError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *BastionError) WithContext(key string, value interface{}) *BastionError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *BastionError) WithAttribute(key, value string) *BastionError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *BastionError) WithRecoverable(recoverable bool) *BastionError {
	e.Recoverable = recoverable
	return e
}

// AsBastionError attempts to convert an error to a BastionError.
// Returns the error as BastionError if it is one, or wraps it otherwise.
func AsBastionError(err error) *BastionError {
	if err == nil {
		return nil
	}
	if be, ok := err.(*BastionError); ok {
		return be
	}
	return New(CodeInternal, "wrapped error", err)
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *BastionError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}
