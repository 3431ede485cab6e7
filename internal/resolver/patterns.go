package resolver

import (
	"regexp"
	"strings"
)

// houseNumberPattern recognizes a leading unit token such as "14", "7a",
// "12-14" or "3/1", followed by the rest of the line.
var houseNumberPattern = regexp.MustCompile(`^(\d+[a-zA-Z]{0,1}\s{0,1}[-/]{0,1}\s{0,1}\d*[a-zA-Z]{0,1})\s+(.*)$`)

// poBoxPattern marks lines that are PO box designations rather than streets
var poBoxPattern = regexp.MustCompile(`(?i)^.*(po box).*$`)

// organisationPattern marks lines naming a company or PO box, which must
// never be taken as a street name.
var organisationPattern = regexp.MustCompile(`(?i)^.*(ltd|po box|plc).*$`)

// IsPOBox reports whether the line is a PO box designation
func IsPOBox(line string) bool {
	return poBoxPattern.MatchString(line)
}

// IsOrganisation reports whether the line names an organisation or PO box
func IsOrganisation(line string) bool {
	return organisationPattern.MatchString(line)
}

// SplitHouseNumber splits a line into its leading unit token and the
// remainder. ok is false when the line does not start with a unit token.
func SplitHouseNumber(line string) (unit, remainder string, ok bool) {
	m := houseNumberPattern.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// containsFold reports whether substr occurs in s ignoring case. An empty
// substr is contained in everything, matching the semantics the
// house-identifier rule depends on.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
