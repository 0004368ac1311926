package pipeline

import (
	"errors"
	"fmt"
)

// ErrMappingAmbiguous is returned when a version is published while its
// mapping still has entries awaiting an external decision.
var ErrMappingAmbiguous = errors.New("mapping has unresolved entries")

// StageError reports a stage that could not run or did not complete.
type StageError struct {
	// Code identifies the error category.
	Code StageErrorCode

	// Stage is the stage that failed.
	Stage Stage

	// VersionID identifies the affected version, when one exists.
	VersionID string

	// Message is a human-readable description.
	Message string

	Err error
}

// StageErrorCode categorizes stage errors.
type StageErrorCode string

const (
	// ErrCodeInvalidState indicates the version is not in a status the
	// stage can start from.
	ErrCodeInvalidState StageErrorCode = "INVALID_STATE"

	// ErrCodeMappingFailed indicates an option whose natural key could not
	// be derived. The version is marked Failed.
	ErrCodeMappingFailed StageErrorCode = "MAPPING_FAILED"

	// ErrCodeQuotaExceeded indicates an ingestion larger than allowed.
	ErrCodeQuotaExceeded StageErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeNoChange indicates an ingestion identical to the live
	// version without a patch requested. The draft is discarded.
	ErrCodeNoChange StageErrorCode = "NO_CHANGE"
)

// Error implements the error interface.
func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	if e.VersionID != "" {
		msg += fmt.Sprintf(" (version=%s)", e.VersionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// IsStageError reports whether err is a *StageError with code.
// Uses errors.As to handle wrapped errors.
func IsStageError(err error, code StageErrorCode) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsQuotaError reports whether err is a quota violation.
func IsQuotaError(err error) bool {
	return IsStageError(err, ErrCodeQuotaExceeded)
}

// IsNoChange reports whether err is a discarded no-op ingestion.
func IsNoChange(err error) bool {
	return IsStageError(err, ErrCodeNoChange)
}

func invalidState(stage Stage, versionID, format string, args ...any) *StageError {
	return &StageError{
		Code:      ErrCodeInvalidState,
		Stage:     stage,
		VersionID: versionID,
		Message:   fmt.Sprintf(format, args...),
	}
}

// newQuotaError reports an ingestion of n observations against limit.
func newQuotaError(dataSetID string, n, limit int) *StageError {
	return &StageError{
		Code:    ErrCodeQuotaExceeded,
		Stage:   StageIngest,
		Message: fmt.Sprintf("data set %s: %d observations exceed the limit of %d", dataSetID, n, limit),
	}
}
