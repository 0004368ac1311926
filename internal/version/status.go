package version

import "fmt"

// Status is the lifecycle state of a data set version.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusMapping    Status = "mapping"
	StatusProcessing Status = "processing"
	StatusPublished  Status = "published"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
	StatusDeprecated Status = "deprecated"
)

var transitions = map[Status][]Status{
	StatusDraft:      {StatusMapping, StatusProcessing, StatusCancelled, StatusFailed},
	StatusMapping:    {StatusProcessing, StatusCancelled, StatusFailed},
	StatusProcessing: {StatusPublished, StatusCancelled, StatusFailed},
	StatusPublished:  {StatusDeprecated},
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusMapping, StatusProcessing, StatusPublished,
		StatusCancelled, StatusFailed, StatusDeprecated:
		return st, nil
	}
	return "", fmt.Errorf("unknown version status %q", s)
}

// CanTransition reports whether a version may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible. Published is
// not terminal because it can still be deprecated.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Queryable reports whether observations of a version in this status are
// served to public queries.
func (s Status) Queryable() bool {
	return s == StatusPublished || s == StatusDeprecated
}

// Previewable reports whether a preview token may grant access.
func (s Status) Previewable() bool {
	return s == StatusDraft || s == StatusMapping || s == StatusProcessing
}

// TransitionError reports a forbidden status change.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move version from %s to %s", e.From, e.To)
}

// CheckTransition returns a *TransitionError when the move is forbidden.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
