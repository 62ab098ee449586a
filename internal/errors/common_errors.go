package errors

import (
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Error types for setup failures outside the license lifecycle
	ErrTypeConfig      ErrorType = "CONFIG"
	ErrTypeFingerprint ErrorType = "FINGERPRINT"
	ErrTypeTelemetry   ErrorType = "TELEMETRY"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewFingerprintError reports that the machine could not be identified
func NewFingerprintError(message string, cause error) *AppError {
	return NewAppError(ErrTypeFingerprint, message, cause)
}

// NewTelemetryError reports a logging or OpenTelemetry setup failure
func NewTelemetryError(message string, cause error) *AppError {
	return NewAppError(ErrTypeTelemetry, message, cause)
}
