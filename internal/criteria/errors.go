package criteria

import (
	"errors"
	"fmt"
)

// ParseError reports why a request cannot be bound to a version.
type ParseError struct {
	// Code identifies the error category.
	Code ParseErrorCode

	// Path locates the offending element, e.g. "criteria.and[1].timePeriods.range".
	Path string

	// Value is the offending id, code or literal, when there is one.
	Value string

	// Message is a human-readable description.
	Message string
}

// ParseErrorCode categorizes parse errors.
type ParseErrorCode string

const (
	// ErrCodeValidation indicates a malformed request or an exceeded budget.
	ErrCodeValidation ParseErrorCode = "VALIDATION"

	// ErrCodeUnknownFacetReference indicates an id or code that does not
	// exist in the version being queried.
	ErrCodeUnknownFacetReference ParseErrorCode = "UNKNOWN_FACET_REFERENCE"

	// ErrCodeInvalidRange indicates a time period range whose end is
	// before its start.
	ErrCodeInvalidRange ParseErrorCode = "INVALID_RANGE"
)

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s: %s (value=%q)", e.Code, e.Path, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
}

func validationf(path, format string, args ...any) *ParseError {
	return &ParseError{Code: ErrCodeValidation, Path: path, Message: fmt.Sprintf(format, args...)}
}

func unknownRef(path, what, value string) *ParseError {
	return &ParseError{
		Code:    ErrCodeUnknownFacetReference,
		Path:    path,
		Value:   value,
		Message: what + " not found in this version",
	}
}

// IsParseError returns true if err is a *ParseError of any code.
// Uses errors.As to handle wrapped errors.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsValidationError returns true if err is a VALIDATION parse error.
func IsValidationError(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsUnknownFacetReference returns true if err is an UNKNOWN_FACET_REFERENCE parse error.
func IsUnknownFacetReference(err error) bool {
	return hasCode(err, ErrCodeUnknownFacetReference)
}

// IsInvalidRange returns true if err is an INVALID_RANGE parse error.
func IsInvalidRange(err error) bool {
	return hasCode(err, ErrCodeInvalidRange)
}

func hasCode(err error, code ParseErrorCode) bool {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
