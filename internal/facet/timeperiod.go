package facet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TimeIdentifier is a time period code such as "AY", "CYQ2", "M7" or "T1T2".
type TimeIdentifier string

// Family groups the identifiers that form one ordered calendar sequence.
// Periods can only be compared and expanded within a single family.
type Family string

const (
	FamilyAcademicYear         Family = "academic_year"
	FamilyCalendarYear         Family = "calendar_year"
	FamilyFinancialYear        Family = "financial_year"
	FamilyTaxYear              Family = "tax_year"
	FamilyReportingYear        Family = "reporting_year"
	FamilyAcademicYearQuarter  Family = "academic_year_quarter"
	FamilyCalendarYearQuarter  Family = "calendar_year_quarter"
	FamilyFinancialYearQuarter Family = "financial_year_quarter"
	FamilyTaxYearQuarter       Family = "tax_year_quarter"
	FamilyMonth                Family = "month"
	FamilyWeek                 Family = "week"
	FamilyTerm                 Family = "term"
	FamilyFinancialYearPart    Family = "financial_year_part"
)

var (
	// ErrInvalidRange is returned when a range ends before it starts.
	ErrInvalidRange = errors.New("time period range ends before it starts")

	// ErrRangeTooLarge is returned when an expansion exceeds its limit.
	ErrRangeTooLarge = errors.New("time period range exceeds limit")
)

type identifierInfo struct {
	family   Family
	position int
	label    string
}

var (
	identifiers = map[TimeIdentifier]identifierInfo{}
	families    = map[Family][]TimeIdentifier{}
)

func register(f Family, code TimeIdentifier, label string) {
	identifiers[code] = identifierInfo{family: f, position: len(families[f]), label: label}
	families[f] = append(families[f], code)
}

var monthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

func init() {
	register(FamilyAcademicYear, "AY", "")
	register(FamilyCalendarYear, "CY", "")
	register(FamilyFinancialYear, "FY", "")
	register(FamilyTaxYear, "TY", "")
	register(FamilyReportingYear, "RY", "")
	for q := 1; q <= 4; q++ {
		label := "Q" + strconv.Itoa(q)
		register(FamilyAcademicYearQuarter, TimeIdentifier("AYQ"+strconv.Itoa(q)), label)
		register(FamilyCalendarYearQuarter, TimeIdentifier("CYQ"+strconv.Itoa(q)), label)
		register(FamilyFinancialYearQuarter, TimeIdentifier("FYQ"+strconv.Itoa(q)), label)
		register(FamilyTaxYearQuarter, TimeIdentifier("TYQ"+strconv.Itoa(q)), label)
	}
	for m := 1; m <= 12; m++ {
		register(FamilyMonth, TimeIdentifier("M"+strconv.Itoa(m)), monthNames[m-1])
	}
	for w := 1; w <= 53; w++ {
		register(FamilyWeek, TimeIdentifier("W"+strconv.Itoa(w)), "Week "+strconv.Itoa(w))
	}
	register(FamilyTerm, "T1", "Autumn term")
	register(FamilyTerm, "T1T2", "Autumn and spring term")
	register(FamilyTerm, "T2", "Spring term")
	register(FamilyTerm, "T3", "Summer term")
	register(FamilyFinancialYearPart, "P1", "Part 1 (April to September)")
	register(FamilyFinancialYearPart, "P2", "Part 2 (October to March)")
}

// ParseTimeIdentifier resolves a code, ignoring case.
func ParseTimeIdentifier(code string) (TimeIdentifier, error) {
	id := TimeIdentifier(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := identifiers[id]; !ok {
		return "", fmt.Errorf("unknown time identifier %q", code)
	}
	return id, nil
}

// Family returns the calendar family of the identifier.
func (t TimeIdentifier) Family() Family {
	return identifiers[t].family
}

// Valid reports whether t is a known identifier.
func (t TimeIdentifier) Valid() bool {
	_, ok := identifiers[t]
	return ok
}

// FamilyCodes returns the identifiers of f in calendar order.
func FamilyCodes(f Family) []TimeIdentifier {
	return append([]TimeIdentifier(nil), families[f]...)
}

// Period is a year plus a time identifier. Year is the first calendar year
// of the period, so academic year 2022/23 has Year 2022.
type Period struct {
	Year int            `json:"year"`
	Code TimeIdentifier `json:"code"`
}

// ParsePeriod reads a period such as "2022", "2022/2023" or "202223"
// together with its identifier code. Only the first year is significant.
func ParsePeriod(period, code string) (Period, error) {
	id, err := ParseTimeIdentifier(code)
	if err != nil {
		return Period{}, err
	}
	p := strings.TrimSpace(period)
	if i := strings.IndexAny(p, "/-"); i >= 0 {
		p = p[:i]
	}
	if len(p) == 6 {
		p = p[:4]
	}
	year, err := strconv.Atoi(p)
	if err != nil || year < 1000 || year > 9999 {
		return Period{}, fmt.Errorf("invalid time period %q", period)
	}
	return Period{Year: year, Code: id}, nil
}

// ID is the public identifier of the period, e.g. "2022_AYQ1".
func (p Period) ID() string {
	return fmt.Sprintf("%d_%s", p.Year, p.Code)
}

// ParsePeriodID reverses ID.
func ParsePeriodID(id string) (Period, error) {
	year, code, ok := strings.Cut(id, "_")
	if !ok {
		return Period{}, fmt.Errorf("invalid time period id %q", id)
	}
	return ParsePeriod(year, code)
}

// Ordinal places the period on its family's timeline. Ordinals are only
// comparable between periods of the same family.
func (p Period) Ordinal() int {
	info := identifiers[p.Code]
	return p.Year*len(families[info.family]) + info.position
}

// Label formats the period for display: "2022/23 Q4", "2022 Week 5",
// "2022/23 Autumn term", "2022-23 Part 1 (April to September)".
func (p Period) Label() string {
	info := identifiers[p.Code]
	var year string
	switch info.family {
	case FamilyAcademicYear, FamilyAcademicYearQuarter, FamilyTerm,
		FamilyTaxYear, FamilyTaxYearQuarter:
		year = fmt.Sprintf("%d/%02d", p.Year, (p.Year+1)%100)
	case FamilyFinancialYear, FamilyFinancialYearQuarter, FamilyFinancialYearPart:
		year = fmt.Sprintf("%d-%02d", p.Year, (p.Year+1)%100)
	default:
		year = strconv.Itoa(p.Year)
	}
	if info.label == "" {
		return year
	}
	return year + " " + info.label
}

// ComparePeriods orders two periods of the same family.
func ComparePeriods(a, b Period) (int, error) {
	if a.Code.Family() != b.Code.Family() {
		return 0, fmt.Errorf("cannot compare %s with %s: different calendar families", a.Code, b.Code)
	}
	oa, ob := a.Ordinal(), b.Ordinal()
	switch {
	case oa < ob:
		return -1, nil
	case oa > ob:
		return 1, nil
	}
	return 0, nil
}

// Expand returns every period from start to end inclusive, in calendar order.
// An end before start yields ErrInvalidRange; more than limit periods yields
// ErrRangeTooLarge. A limit of zero or less means unlimited.
func Expand(start, end Period, limit int) ([]Period, error) {
	cmp, err := ComparePeriods(start, end)
	if err != nil {
		return nil, err
	}
	if cmp > 0 {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidRange, start.ID(), end.ID())
	}

	codes := families[start.Code.Family()]
	from, to := start.Ordinal(), end.Ordinal()
	n := to - from + 1
	if limit > 0 && n > limit {
		return nil, fmt.Errorf("%w: %d periods, limit %d", ErrRangeTooLarge, n, limit)
	}

	out := make([]Period, 0, n)
	for o := from; o <= to; o++ {
		out = append(out, Period{Year: o / len(codes), Code: codes[o%len(codes)]})
	}
	return out, nil
}
