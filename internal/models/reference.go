package models

import (
	"time"

	"github.com/constituency-streets/internal/types"
)

// Constituency is one ONS parliamentary constituency
type Constituency struct {
	ID   string `json:"id" db:"oid"`
	Name string `json:"name" db:"name"`
}

// LocalAuthorityDistrict is one ONS local authority district with its ward
type LocalAuthorityDistrict struct {
	ID       string `json:"id" db:"oid"`
	Name     string `json:"name" db:"name"`
	WardName string `json:"wardName" db:"ward_name"`
}

// MSOA is one middle layer super output area
type MSOA struct {
	ID   string `json:"id" db:"oid"`
	Name string `json:"name" db:"name"`
}

// CensusAgeRow holds bucketed census age counts for one MSOA
type CensusAgeRow struct {
	MSOAID      string `json:"msoaId" db:"msoa_id"`
	AgeYoung    int    `json:"ageYoung" db:"age_0_15"`
	AgeWorking  int    `json:"ageWorking" db:"age_16_35"`
	AgeOlder    int    `json:"ageOlder" db:"age_36_plus"`
}

// Total returns the summed population across brackets
func (c CensusAgeRow) Total() int {
	return c.AgeYoung + c.AgeWorking + c.AgeOlder
}

// IngestedFile records the modification time of a reference CSV at the time
// it was loaded, so unchanged files are not re-ingested.
type IngestedFile struct {
	Dataset  string    `json:"dataset" db:"dataset"`
	Filename string    `json:"filename" db:"filename"`
	Modified time.Time `json:"modified" db:"modified"`
}

// PostcodeAgeRank is one row of a postcodes-by-age ranking: a postcode with
// the share of its MSOA's population falling in the bracket.
type PostcodeAgeRank struct {
	Postcode types.Postcode  `json:"postcode" db:"postcode"`
	MSOAID   string          `json:"msoaId" db:"msoa_id"`
	Bracket  types.AgeBracket `json:"bracket"`
	Share    float64         `json:"share" db:"share"`
}
