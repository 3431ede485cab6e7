package storage

import (
	"context"
	"fmt"

	"github.com/constituency-streets/internal/models"
	"github.com/constituency-streets/internal/types"
)

// RoadRepository handles the OS Open Names road gazetteer
type RoadRepository struct {
	db *PostgresDB
}

// NewRoadRepository creates a new road repository
func NewRoadRepository(db *PostgresDB) *RoadRepository {
	return &RoadRepository{db: db}
}

// NamesForDistrict returns the known road names in a postal district
func (r *RoadRepository) NamesForDistrict(ctx context.Context, district types.District) ([]string, error) {
	query := `SELECT name FROM os_openname_road WHERE postcode_district = $1 ORDER BY name`

	rows, err := r.db.Pool().Query(ctx, query, district)
	if err != nil {
		return nil, fmt.Errorf("failed to query roads for district %s: %w", district, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan road name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading road rows: %w", err)
	}
	return names, nil
}

// InsertBatch inserts gazetteer rows in one transaction. Re-ingested rows
// replace their previous values.
func (r *RoadRepository) InsertBatch(ctx context.Context, roads []*models.Road) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO os_openname_road (os_id, name, local_type, postcode_district, populated_place, min_x, min_y, max_x, max_y)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (os_id) DO UPDATE SET
			name = EXCLUDED.name,
			local_type = EXCLUDED.local_type,
			postcode_district = EXCLUDED.postcode_district,
			populated_place = EXCLUDED.populated_place,
			min_x = EXCLUDED.min_x,
			min_y = EXCLUDED.min_y,
			max_x = EXCLUDED.max_x,
			max_y = EXCLUDED.max_y
	`

	for _, road := range roads {
		_, err := tx.Exec(ctx, query,
			road.OSID,
			road.Name,
			road.LocalType,
			road.District,
			road.PopulatedPlace,
			road.MinX,
			road.MinY,
			road.MaxX,
			road.MaxY,
		)
		if err != nil {
			return fmt.Errorf("failed to insert road %s: %w", road.OSID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit road batch: %w", err)
	}
	return nil
}

// Truncate clears the gazetteer, used when an ingest fails partway
func (r *RoadRepository) Truncate(ctx context.Context) error {
	if _, err := r.db.Pool().Exec(ctx, `TRUNCATE os_openname_road`); err != nil {
		return fmt.Errorf("failed to truncate road table: %w", err)
	}
	return nil
}

// Count returns the number of gazetteer rows
func (r *RoadRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM os_openname_road`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count roads: %w", err)
	}
	return n, nil
}
