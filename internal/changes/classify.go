package changes

import (
	"fmt"

	"github.com/roach88/dataver/internal/version"
)

// Decision is the outcome of classifying a ChangeSet.
type Decision struct {
	Bump       version.Bump   `json:"bump"`
	Blocked    bool           `json:"blocked"`
	Unresolved int            `json:"unresolved"`
	Reasons    []string       `json:"reasons,omitempty"`
	Next       version.Number `json:"next"`
}

// Classify decides the bump for cs. base is the greatest number ever
// assigned in the data set, zero when none was.
//
// The first version of a data set is major. A blocked ChangeSet yields
// a provisional decision with a zero Next: the bump cannot be finalized
// while entries await resolution. BumpNone also leaves Next zero.
func Classify(cs *ChangeSet, base version.Number) Decision {
	d := Decision{Blocked: cs.Blocked, Unresolved: cs.Unresolved}

	if cs.Initial {
		d.Bump = version.BumpMajor
		d.Reasons = []string{"first version of the data set"}
	} else {
		major := majorReasons(cs)
		switch {
		case len(major) > 0:
			d.Bump = version.BumpMajor
			d.Reasons = major
		case !cs.Empty():
			d.Bump = version.BumpMinor
			d.Reasons = minorReasons(cs)
		default:
			d.Bump = version.BumpNone
		}
	}

	if cs.Blocked {
		return d
	}
	d.Next = NextNumber(base, d.Bump)
	return d
}

// NextNumber applies bump to base, starting the data set at 1.0.
// BumpNone gives the zero Number.
func NextNumber(base version.Number, bump version.Bump) version.Number {
	switch {
	case bump == version.BumpNone:
		return version.Number{}
	case base.IsZero():
		return version.Initial
	}
	return version.Next(base, bump)
}

// majorReasons lists the breaking changes in cs. Unresolved entries count
// as breaking until they are resolved.
func majorReasons(cs *ChangeSet) []string {
	var reasons []string
	for _, st := range cs.Filters.Removed {
		reasons = append(reasons, fmt.Sprintf("filter %q removed", st.Attrs["column"]))
	}
	for _, st := range cs.FilterOptions.Removed {
		reasons = append(reasons, fmt.Sprintf("filter option %q removed from %q", st.Label, st.Attrs["filter"]))
	}
	for _, st := range cs.Indicators.Removed {
		reasons = append(reasons, fmt.Sprintf("indicator %q removed", st.Attrs["column"]))
	}
	for _, c := range cs.IndicatorUnits.Changed {
		reasons = append(reasons, fmt.Sprintf("indicator %q unit changed", c.Current.ID))
	}
	for _, st := range cs.GeographicLevels.Removed {
		reasons = append(reasons, fmt.Sprintf("geographic level %s removed", st.ID))
	}
	for _, st := range cs.LocationOptions.Removed {
		reasons = append(reasons, fmt.Sprintf("%s location %q removed", st.Attrs["level"], st.Label))
	}
	for _, st := range cs.TimePeriods.Removed {
		reasons = append(reasons, fmt.Sprintf("time period %s removed", st.ID))
	}
	if cs.Blocked {
		reasons = append(reasons, fmt.Sprintf("%d mapping entries await resolution", cs.Unresolved))
	}
	return reasons
}

func minorReasons(cs *ChangeSet) []string {
	var reasons []string
	for _, s := range cs.sections() {
		if n := len(s.section.Added); n > 0 {
			reasons = append(reasons, fmt.Sprintf("%d %s added", n, s.name))
		}
		if n := len(s.section.Changed); n > 0 {
			reasons = append(reasons, fmt.Sprintf("%d %s changed", n, s.name))
		}
	}
	return reasons
}
