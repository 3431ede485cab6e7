package models

import (
	"github.com/constituency-streets/internal/types"
)

// Address represents one raw or resolved postal address. The primary key is
// the id issued by the lookup provider, so refetches upsert rather than
// duplicate.
type Address struct {
	LookupID         string         `json:"lookupId" db:"lookup_id"`
	HouseIdentifier  string         `json:"houseIdentifier" db:"house_identifier"`
	Line1            string         `json:"line1" db:"line_1"`
	Line2            string         `json:"line2" db:"line_2"`
	Line3            string         `json:"line3" db:"line_3"`
	Line4            string         `json:"line4" db:"line_4"`
	Thoroughfare     string         `json:"thoroughfare" db:"thoroughfare"`
	TownOrCity       string         `json:"townOrCity" db:"town_or_city"`
	Locality         string         `json:"locality" db:"locality"`
	County           string         `json:"county" db:"county"`
	Country          string         `json:"country" db:"country"`
	Postcode         types.Postcode `json:"postcode" db:"postcode"`
}

// Lines returns the four free-text lines in scanning order
func (a *Address) Lines() [4]string {
	return [4]string{a.Line1, a.Line2, a.Line3, a.Line4}
}
