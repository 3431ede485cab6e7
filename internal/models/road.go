package models

import (
	"github.com/constituency-streets/internal/types"
)

// Road represents one OS Open Names gazetteer entry retained for
// resolution. Only rows whose local type carries a "Road" indicator are
// ingested. The bounding box is unused by the resolver and kept for mapping
// consumers.
type Road struct {
	OSID           string         `json:"osId" db:"os_id"`
	Name           string         `json:"name" db:"name"`
	LocalType      string         `json:"localType" db:"local_type"`
	District       types.District `json:"district" db:"postcode_district"`
	PopulatedPlace string         `json:"populatedPlace" db:"populated_place"`
	MinX           float64        `json:"minX" db:"min_x"`
	MinY           float64        `json:"minY" db:"min_y"`
	MaxX           float64        `json:"maxX" db:"max_x"`
	MaxY           float64        `json:"maxY" db:"max_y"`
}
