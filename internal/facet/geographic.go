package facet

import (
	"fmt"
	"strings"
)

// GeographicLevel is the level a location belongs to, identified by its code.
type GeographicLevel string

const (
	LevelCountry                    GeographicLevel = "NAT"
	LevelRegion                     GeographicLevel = "REG"
	LevelLocalAuthority             GeographicLevel = "LA"
	LevelLocalAuthorityDistrict     GeographicLevel = "LAD"
	LevelParliamentaryConstituency  GeographicLevel = "PCON"
	LevelSchool                     GeographicLevel = "SCH"
	LevelProvider                   GeographicLevel = "PROV"
	LevelInstitution                GeographicLevel = "INST"
	LevelMultiAcademyTrust          GeographicLevel = "MAT"
	LevelRSCRegion                  GeographicLevel = "RSC"
	LevelOpportunityArea            GeographicLevel = "OA"
	LevelWard                       GeographicLevel = "WARD"
	LevelLocalSkillsImprovement     GeographicLevel = "LSIP"
	LevelEnglishDevolvedArea        GeographicLevel = "EDA"
	LevelMayoralCombinedAuthority   GeographicLevel = "MCA"
	LevelPlanningArea               GeographicLevel = "PA"
	LevelSponsor                    GeographicLevel = "SPON"
	LevelLocalEnterprisePartnership GeographicLevel = "LEP"
)

var levelLabels = map[GeographicLevel]string{
	LevelCountry:                    "National",
	LevelRegion:                     "Regional",
	LevelLocalAuthority:             "Local authority",
	LevelLocalAuthorityDistrict:     "Local authority district",
	LevelParliamentaryConstituency:  "Parliamentary constituency",
	LevelSchool:                     "School",
	LevelProvider:                   "Provider",
	LevelInstitution:                "Institution",
	LevelMultiAcademyTrust:          "Multi-academy trust",
	LevelRSCRegion:                  "RSC region",
	LevelOpportunityArea:            "Opportunity area",
	LevelWard:                       "Ward",
	LevelLocalSkillsImprovement:     "Local skills improvement plan area",
	LevelEnglishDevolvedArea:        "English devolved area",
	LevelMayoralCombinedAuthority:   "Mayoral combined authority",
	LevelPlanningArea:               "Planning area",
	LevelSponsor:                    "Sponsor",
	LevelLocalEnterprisePartnership: "Local enterprise partnership",
}

// ParseGeographicLevel resolves a level code, ignoring case.
func ParseGeographicLevel(code string) (GeographicLevel, error) {
	level := GeographicLevel(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := levelLabels[level]; !ok {
		return "", fmt.Errorf("unknown geographic level %q", code)
	}
	return level, nil
}

// Label returns the display name of the level.
func (l GeographicLevel) Label() string {
	if label, ok := levelLabels[l]; ok {
		return label
	}
	return string(l)
}

// Valid reports whether l is a known level.
func (l GeographicLevel) Valid() bool {
	_, ok := levelLabels[l]
	return ok
}

// Code field names used by natural keys and typed location references.
const (
	CodeField    = "code"
	URNField     = "urn"
	UKPRNField   = "ukprn"
	LAEstabField = "laestab"
	OldCodeField = "old_code"
)

// keyFields returns the code fields that identify a location at level l,
// in precedence order. The first one present wins.
func keyFields(l GeographicLevel) []string {
	switch l {
	case LevelSchool:
		return []string{URNField, LAEstabField}
	case LevelProvider:
		return []string{UKPRNField}
	case LevelLocalAuthority:
		return []string{CodeField, OldCodeField}
	default:
		return []string{CodeField}
	}
}
