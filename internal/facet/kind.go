package facet

import (
	"errors"
	"fmt"
)

// Kind identifies a facet option variant.
type Kind string

const (
	KindLocation     Kind = "location"
	KindFilter       Kind = "filter"
	KindFilterOption Kind = "filter_option"
	KindIndicator    Kind = "indicator"
	KindTimePeriod   Kind = "time_period"
)

// Kinds lists every kind in reporting order.
var Kinds = []Kind{KindLocation, KindFilter, KindFilterOption, KindIndicator, KindTimePeriod}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown facet kind %q", s)
}

// Key is a natural key: hex SHA-256 of the canonical semantic attributes.
type Key string

// ErrMalformedKey is returned when an option lacks the attributes its natural
// key is derived from.
var ErrMalformedKey = errors.New("malformed natural key")

// ErrDuplicateOption is returned when a Set already holds an option with the
// same public id.
var ErrDuplicateOption = errors.New("duplicate facet option")
