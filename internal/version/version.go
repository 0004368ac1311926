// Package version implements data set version numbering: classification,
// formatting, parsing of public labels, ordering and the status lifecycle.
package version

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Type classifies a version number.
type Type string

const (
	TypeMajor Type = "major"
	TypeMinor Type = "minor"
)

// Classify returns TypeMajor iff minor is zero.
func Classify(major, minor int) Type {
	if minor == 0 {
		return TypeMajor
	}
	return TypeMinor
}

// Format renders a public version label: "{major}.{minor}" with ".{patch}"
// appended only when patch is non-zero.
func Format(major, minor, patch int) string {
	s := strconv.Itoa(major) + "." + strconv.Itoa(minor)
	if patch != 0 {
		s += "." + strconv.Itoa(patch)
	}
	return s
}

// Number is a version number. Numbers are totally ordered by
// (Major, Minor, Patch).
type Number struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// String returns the public label.
func (n Number) String() string {
	return Format(n.Major, n.Minor, n.Patch)
}

// Type classifies the number.
func (n Number) Type() Type {
	return Classify(n.Major, n.Minor)
}

// IsZero reports whether n is 0.0.0, which no real version carries.
func (n Number) IsZero() bool {
	return n == Number{}
}

// Compare orders a and b lexicographically on (major, minor, patch).
func Compare(a, b Number) int {
	return cmp.Or(
		cmp.Compare(a.Major, b.Major),
		cmp.Compare(a.Minor, b.Minor),
		cmp.Compare(a.Patch, b.Patch),
	)
}

// Less reports whether a orders before b.
func Less(a, b Number) bool {
	return Compare(a, b) < 0
}

// Parse reads a public label: "1.2" or "1.2.3", optionally prefixed by "v".
func Parse(label string) (Number, error) {
	s := strings.TrimPrefix(strings.TrimSpace(label), "v")
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Number{}, fmt.Errorf("invalid version %q: want major.minor[.patch]", label)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || p == "" || (len(p) > 1 && p[0] == '0') {
			return Number{}, fmt.Errorf("invalid version %q: bad component %q", label, p)
		}
		nums[i] = n
	}
	return Number{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// IsLatest reports whether label asks for the latest live version.
func IsLatest(label string) bool {
	return strings.EqualFold(strings.TrimSpace(label), "latest")
}

// Selector matches version numbers against a label that may contain
// wildcards: "1.2", "1.2.3", "1.*", "1.2.*" or "*".
type Selector struct {
	label string
	parts []int // -1 marks a wildcard component
}

// ParseSelector reads a label with optional wildcard components. Once a
// component is a wildcard, every later component must be one too.
func ParseSelector(label string) (Selector, error) {
	s := strings.TrimPrefix(strings.TrimSpace(label), "v")
	if s == "*" {
		return Selector{label: label, parts: []int{-1}}, nil
	}
	raw := strings.Split(s, ".")
	if len(raw) > 3 {
		return Selector{}, fmt.Errorf("invalid version selector %q", label)
	}
	sel := Selector{label: label}
	wild := false
	for _, p := range raw {
		if p == "*" {
			wild = true
			sel.parts = append(sel.parts, -1)
			continue
		}
		if wild {
			return Selector{}, fmt.Errorf("invalid version selector %q: number after wildcard", label)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Selector{}, fmt.Errorf("invalid version selector %q: bad component %q", label, p)
		}
		sel.parts = append(sel.parts, n)
	}
	if !wild && len(sel.parts) < 2 {
		return Selector{}, fmt.Errorf("invalid version selector %q: want major.minor[.patch]", label)
	}
	return sel, nil
}

// Match reports whether n satisfies the selector. A label without a patch
// component matches only patch zero unless it ends in a wildcard.
func (s Selector) Match(n Number) bool {
	comps := [3]int{n.Major, n.Minor, n.Patch}
	for i := 0; i < 3; i++ {
		if i >= len(s.parts) {
			return s.parts[len(s.parts)-1] == -1 || comps[i] == 0
		}
		if s.parts[i] == -1 {
			return true
		}
		if s.parts[i] != comps[i] {
			return false
		}
	}
	return true
}

// Wildcard reports whether the selector contains a wildcard.
func (s Selector) Wildcard() bool {
	return slices.Contains(s.parts, -1)
}

// Resolve returns the greatest candidate matching the selector.
func (s Selector) Resolve(candidates []Number) (Number, bool) {
	var best Number
	found := false
	for _, n := range candidates {
		if s.Match(n) && (!found || Less(best, n)) {
			best, found = n, true
		}
	}
	return best, found
}

// String returns the label the selector was parsed from.
func (s Selector) String() string { return s.label }

// Bump is the kind of increment between two versions.
type Bump string

const (
	BumpNone  Bump = "none"
	BumpPatch Bump = "patch"
	BumpMinor Bump = "minor"
	BumpMajor Bump = "major"
)

// Initial is the number of the first version of a data set.
var Initial = Number{Major: 1}

// Next applies bump to current. BumpNone returns current unchanged.
func Next(current Number, bump Bump) Number {
	switch bump {
	case BumpMajor:
		return Number{Major: current.Major + 1}
	case BumpMinor:
		return Number{Major: current.Major, Minor: current.Minor + 1}
	case BumpPatch:
		return Number{Major: current.Major, Minor: current.Minor, Patch: current.Patch + 1}
	}
	return current
}

var (
	// ErrDuplicateVersion is an invariant violation: a data set already has
	// a version with this number.
	ErrDuplicateVersion = errors.New("duplicate version number")

	// ErrVersionRegression is returned when a new version would order
	// before an existing one.
	ErrVersionRegression = errors.New("version number regression")
)

// Validate checks that candidate is strictly greater than every existing
// number of the data set.
func Validate(existing []Number, candidate Number) error {
	for _, n := range existing {
		switch c := Compare(candidate, n); {
		case c == 0:
			return fmt.Errorf("%w: %s", ErrDuplicateVersion, candidate)
		case c < 0:
			return fmt.Errorf("%w: %s is not after %s", ErrVersionRegression, candidate, n)
		}
	}
	return nil
}

// Max returns the greatest number, or false when nums is empty.
func Max(nums []Number) (Number, bool) {
	if len(nums) == 0 {
		return Number{}, false
	}
	return slices.MaxFunc(nums, Compare), true
}
