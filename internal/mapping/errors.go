package mapping

import (
	"errors"
	"fmt"

	"github.com/roach88/dataver/internal/facet"
)

// Diagnostic identifies a facet option that could not be classified.
type Diagnostic struct {
	Kind     facet.Kind `json:"kind"`
	Side     string     `json:"side"` // "source" | "target"
	OptionID string     `json:"option_id"`
	Label    string     `json:"label"`
	Reason   string     `json:"reason"`
}

// MappingFailedError reports an option whose natural key cannot be derived.
// It is fatal to the draft version being mapped.
type MappingFailedError struct {
	Diagnostic Diagnostic
}

func (e *MappingFailedError) Error() string {
	d := e.Diagnostic
	return fmt.Sprintf("mapping failed: %s %s option %q (%s): %s", d.Side, d.Kind, d.OptionID, d.Label, d.Reason)
}

// IsMappingFailed reports whether err is a *MappingFailedError.
// Uses errors.As to handle wrapped errors.
func IsMappingFailed(err error) bool {
	var mf *MappingFailedError
	return errors.As(err, &mf)
}

// Errors returned by Resolve.
var (
	ErrUnknownSource  = errors.New("source option not in mapping")
	ErrUnknownTarget  = errors.New("target option not in target version")
	ErrTargetTaken    = errors.New("target option already mapped")
	ErrInvalidTarget  = errors.New("target option not allowed for this source")
	ErrParentUnmapped = errors.New("parent filter is not mapped")
)
