package models

import (
	"github.com/constituency-streets/internal/types"
)

// Postcode represents one ONS postcode directory row. Immutable after
// ingest; District is derived at load time so district scans are indexable.
type Postcode struct {
	Postcode                 types.Postcode `json:"postcode" db:"postcode"`
	District                 types.District `json:"district" db:"postcode_district"`
	CountryID                string         `json:"countryId" db:"country_id"`
	RegionID                 string         `json:"regionId" db:"region_id"`
	ConstituencyID           string         `json:"constituencyId" db:"constituency_id"`
	ElectoralWardID          string         `json:"electoralWardId" db:"electoral_ward_id"`
	LocalAuthorityDistrictID string         `json:"localAuthorityDistrictId" db:"local_authority_district_id"`
	MSOAID                   string         `json:"msoaId" db:"msoa_id"`
}

// FetchMarker records that a postcode's addresses have been fetched from the
// lookup provider, so repeats are skipped.
type FetchMarker struct {
	Postcode       types.Postcode `json:"postcode" db:"postcode"`
	ConstituencyID string         `json:"constituencyId" db:"constituency_id"`
	WasFetched     bool           `json:"wasFetched" db:"was_fetched"`
}
