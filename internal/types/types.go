// Package types provides common type definitions for the street atlas system.
package types

import "strings"

// Postcode is a UK postcode in any input formatting. Use Normalize before
// storing or comparing.
type Postcode string

// Normalize uppercases the postcode and strips all internal whitespace,
// giving the canonical storage form.
func (p Postcode) Normalize() Postcode {
	s := strings.ToUpper(string(p))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\t", "")
	return Postcode(s)
}

// District derives the postal district (outcode) by dropping the three
// characters of the inward code from the normalized form. Postcodes too
// short to carry an inward code yield an empty district.
func (p Postcode) District() District {
	s := string(p.Normalize())
	if len(s) <= 3 {
		return ""
	}
	return District(s[:len(s)-3])
}

// ValidForLookup reports whether the postcode is long enough to query the
// lookup provider. Shorter strings are partial outcodes, not unit postcodes.
func (p Postcode) ValidForLookup() bool {
	return len(p.Normalize()) >= 5
}

func (p Postcode) String() string {
	return string(p)
}

// District is a postal district (outcode), e.g. "YO31" or "EC1A".
type District string

func (d District) String() string {
	return string(d)
}

// AgeBracket identifies a census age range
type AgeBracket string

const (
	// AgeBracketYoung covers ages 0 to 15
	AgeBracketYoung AgeBracket = "0-15"
	// AgeBracketWorking covers ages 16 to 35
	AgeBracketWorking AgeBracket = "16-35"
	// AgeBracketOlder covers ages 36 and up
	AgeBracketOlder AgeBracket = "36-100+"
)

// AgeBrackets lists the brackets in ascending order
var AgeBrackets = []AgeBracket{AgeBracketYoung, AgeBracketWorking, AgeBracketOlder}
