package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents how an error affects a provisioning run.
type ErrorClass string

const (
	// ErrorClassFatal stops the invocation before any execution.
	// Examples: missing profile, malformed configuration.
	ErrorClassFatal ErrorClass = "fatal"

	// ErrorClassRecoverable is recorded in the run and gated by the failure policy.
	// Examples: a failing step, an unknown pillar.
	ErrorClassRecoverable ErrorClass = "recoverable"

	// ErrorClassWarning degrades gracefully and is only reported.
	// Examples: a missing trait.
	ErrorClassWarning ErrorClass = "warning"
)

// Common error codes.
const (
	ErrCodeConfigNotFound = "CONFIG_NOT_FOUND"
	ErrCodeTraitNotFound  = "TRAIT_NOT_FOUND"
	ErrCodePillarNotFound = "PILLAR_NOT_FOUND"
	ErrCodeStepFailed     = "STEP_FAILED"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeCancelled      = "CANCELLED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. Matching compares class and code only.
var (
	ErrConfigNotFound = &EngineError{Class: ErrorClassFatal, Code: ErrCodeConfigNotFound}
	ErrTraitNotFound  = &EngineError{Class: ErrorClassWarning, Code: ErrCodeTraitNotFound}
	ErrPillarNotFound = &EngineError{Class: ErrorClassRecoverable, Code: ErrCodePillarNotFound}
	ErrStepFailed     = &EngineError{Class: ErrorClassRecoverable, Code: ErrCodeStepFailed}
	ErrValidation     = &EngineError{Class: ErrorClassFatal, Code: ErrCodeValidation}
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Code is an error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Unit is the profile, trait, pillar or step the error refers to.
	Unit string `json:"unit,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Unit != "" {
		msg = fmt.Sprintf("%s (unit=%s)", msg, e.Unit)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithUnit adds unit context to an error.
func (e *EngineError) WithUnit(unit string) *EngineError {
	e.Unit = unit
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewFatalError creates a new fatal error.
func NewFatalError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassFatal, Message: message, Err: err}
}

// NewRecoverableError creates a new recoverable error.
func NewRecoverableError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassRecoverable, Message: message, Err: err}
}

// NewWarning creates a new warning-class error.
func NewWarning(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassWarning, Message: message, Err: err}
}

// NewConfigNotFoundError reports a missing profile.
func NewConfigNotFoundError(profile string, err error) *EngineError {
	return NewFatalError("profile not found", err).
		WithCode(ErrCodeConfigNotFound).
		WithUnit(profile)
}

// NewTraitNotFoundError reports a missing trait.
func NewTraitNotFoundError(trait string, err error) *EngineError {
	return NewWarning("trait not found", err).
		WithCode(ErrCodeTraitNotFound).
		WithUnit(trait)
}

// NewPillarNotFoundError reports a pillar the registry does not know.
func NewPillarNotFoundError(pillar string, err error) *EngineError {
	return NewRecoverableError("pillar not found", err).
		WithCode(ErrCodePillarNotFound).
		WithUnit(pillar)
}

// NewValidationError reports a malformed configuration document.
func NewValidationError(unit string, err error) *EngineError {
	return NewFatalError("invalid configuration", err).
		WithCode(ErrCodeValidation).
		WithUnit(unit)
}

func hasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsConfigNotFound returns true if the error reports a missing profile.
func IsConfigNotFound(err error) bool {
	return hasCode(err, ErrCodeConfigNotFound)
}

// IsTraitNotFound returns true if the error reports a missing trait.
func IsTraitNotFound(err error) bool {
	return hasCode(err, ErrCodeTraitNotFound)
}

// IsPillarNotFound returns true if the error reports an unknown pillar.
func IsPillarNotFound(err error) bool {
	return hasCode(err, ErrCodePillarNotFound)
}

// IsValidation returns true if the error reports malformed configuration.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsFatal returns true if the error is classified as fatal.
func IsFatal(err error) bool {
	return hasClass(err, ErrorClassFatal)
}

// IsRecoverable returns true if the error is classified as recoverable.
func IsRecoverable(err error) bool {
	return hasClass(err, ErrorClassRecoverable)
}

// IsWarning returns true if the error is classified as a warning.
func IsWarning(err error) bool {
	return hasClass(err, ErrorClassWarning)
}
