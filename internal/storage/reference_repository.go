package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/constituency-streets/internal/models"
	"github.com/jackc/pgx/v5"
)

// ReferenceRepository handles the small ONS reference aggregates
// (constituencies, local authorities, MSOAs, census age) and ingest state.
type ReferenceRepository struct {
	db *PostgresDB
}

// NewReferenceRepository creates a new reference repository
func NewReferenceRepository(db *PostgresDB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// UpsertConstituencies inserts or replaces constituency rows
func (r *ReferenceRepository) UpsertConstituencies(ctx context.Context, rows []*models.Constituency) error {
	query := `
		INSERT INTO ons_constituency (oid, name) VALUES ($1, $2)
		ON CONFLICT (oid) DO UPDATE SET name = EXCLUDED.name
	`
	return r.execBatch(ctx, "constituencies", func(tx pgx.Tx) error {
		for _, c := range rows {
			if _, err := tx.Exec(ctx, query, c.ID, c.Name); err != nil {
				return fmt.Errorf("failed to upsert constituency %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// UpsertLocalAuthorities inserts or replaces local authority rows
func (r *ReferenceRepository) UpsertLocalAuthorities(ctx context.Context, rows []*models.LocalAuthorityDistrict) error {
	query := `
		INSERT INTO ons_local_auth_district (oid, name, ward_name) VALUES ($1, $2, $3)
		ON CONFLICT (oid) DO UPDATE SET name = EXCLUDED.name, ward_name = EXCLUDED.ward_name
	`
	return r.execBatch(ctx, "local authorities", func(tx pgx.Tx) error {
		for _, d := range rows {
			if _, err := tx.Exec(ctx, query, d.ID, d.Name, d.WardName); err != nil {
				return fmt.Errorf("failed to upsert local authority %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

// UpsertMSOAs inserts or replaces MSOA rows
func (r *ReferenceRepository) UpsertMSOAs(ctx context.Context, rows []*models.MSOA) error {
	query := `
		INSERT INTO ons_msoa (oid, name) VALUES ($1, $2)
		ON CONFLICT (oid) DO UPDATE SET name = EXCLUDED.name
	`
	return r.execBatch(ctx, "msoas", func(tx pgx.Tx) error {
		for _, m := range rows {
			if _, err := tx.Exec(ctx, query, m.ID, m.Name); err != nil {
				return fmt.Errorf("failed to upsert msoa %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

// UpsertCensusAge inserts or replaces census age rows
func (r *ReferenceRepository) UpsertCensusAge(ctx context.Context, rows []*models.CensusAgeRow) error {
	query := `
		INSERT INTO census_age_by_msoa (msoa_id, age_0_15, age_16_35, age_36_plus)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (msoa_id) DO UPDATE SET
			age_0_15 = EXCLUDED.age_0_15,
			age_16_35 = EXCLUDED.age_16_35,
			age_36_plus = EXCLUDED.age_36_plus
	`
	return r.execBatch(ctx, "census age", func(tx pgx.Tx) error {
		for _, c := range rows {
			if _, err := tx.Exec(ctx, query, c.MSOAID, c.AgeYoung, c.AgeWorking, c.AgeOlder); err != nil {
				return fmt.Errorf("failed to upsert census row %s: %w", c.MSOAID, err)
			}
		}
		return nil
	})
}

func (r *ReferenceRepository) execBatch(ctx context.Context, what string, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin %s transaction: %w", what, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s batch: %w", what, err)
	}
	return nil
}

// Constituencies returns all constituencies ordered by name
func (r *ReferenceRepository) Constituencies(ctx context.Context) ([]*models.Constituency, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT oid, name FROM ons_constituency ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query constituencies: %w", err)
	}
	defer rows.Close()

	var out []*models.Constituency
	for rows.Next() {
		var c models.Constituency
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan constituency: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading constituency rows: %w", err)
	}
	return out, nil
}

// ConstituencyByName returns the constituency with the exact name, nil when
// unknown.
func (r *ReferenceRepository) ConstituencyByName(ctx context.Context, name string) (*models.Constituency, error) {
	var c models.Constituency
	err := r.db.Pool().QueryRow(ctx, `SELECT oid, name FROM ons_constituency WHERE name = $1`, name).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get constituency: %w", err)
	}
	return &c, nil
}

// LocalAuthorityByName returns the local authority with the exact name
func (r *ReferenceRepository) LocalAuthorityByName(ctx context.Context, name string) (*models.LocalAuthorityDistrict, error) {
	var d models.LocalAuthorityDistrict
	err := r.db.Pool().QueryRow(ctx,
		`SELECT oid, name, ward_name FROM ons_local_auth_district WHERE name = $1`, name).
		Scan(&d.ID, &d.Name, &d.WardName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get local authority: %w", err)
	}
	return &d, nil
}

// MSOAs returns all MSOAs ordered by name
func (r *ReferenceRepository) MSOAs(ctx context.Context) ([]*models.MSOA, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT oid, name FROM ons_msoa ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query msoas: %w", err)
	}
	defer rows.Close()

	var out []*models.MSOA
	for rows.Next() {
		var m models.MSOA
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan msoa: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading msoa rows: %w", err)
	}
	return out, nil
}

// CensusAge returns all census age rows keyed by MSOA
func (r *ReferenceRepository) CensusAge(ctx context.Context) ([]*models.CensusAgeRow, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT msoa_id, age_0_15, age_16_35, age_36_plus FROM census_age_by_msoa`)
	if err != nil {
		return nil, fmt.Errorf("failed to query census age: %w", err)
	}
	defer rows.Close()

	var out []*models.CensusAgeRow
	for rows.Next() {
		var c models.CensusAgeRow
		if err := rows.Scan(&c.MSOAID, &c.AgeYoung, &c.AgeWorking, &c.AgeOlder); err != nil {
			return nil, fmt.Errorf("failed to scan census row: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading census rows: %w", err)
	}
	return out, nil
}

// GetIngestedFile returns the recorded state of a reference file, nil when
// the dataset has never been ingested.
func (r *ReferenceRepository) GetIngestedFile(ctx context.Context, dataset string) (*models.IngestedFile, error) {
	var f models.IngestedFile
	err := r.db.Pool().QueryRow(ctx,
		`SELECT dataset, filename, modified FROM csv_files_modified WHERE dataset = $1`, dataset).
		Scan(&f.Dataset, &f.Filename, &f.Modified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ingested file: %w", err)
	}
	return &f, nil
}

// SetIngestedFile records that a dataset's file was loaded at its mtime
func (r *ReferenceRepository) SetIngestedFile(ctx context.Context, dataset, filename string, modified time.Time) error {
	query := `
		INSERT INTO csv_files_modified (dataset, filename, modified)
		VALUES ($1, $2, $3)
		ON CONFLICT (dataset) DO UPDATE SET
			filename = EXCLUDED.filename,
			modified = EXCLUDED.modified
	`
	if _, err := r.db.Pool().Exec(ctx, query, dataset, filename, modified.UTC()); err != nil {
		return fmt.Errorf("failed to record ingested file: %w", err)
	}
	return nil
}

// ClearIngestedFile forgets a dataset's ingest record, forcing a reload
func (r *ReferenceRepository) ClearIngestedFile(ctx context.Context, dataset string) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM csv_files_modified WHERE dataset = $1`, dataset); err != nil {
		return fmt.Errorf("failed to clear ingested file: %w", err)
	}
	return nil
}

// TruncateDataset clears one reference table by dataset name
func (r *ReferenceRepository) TruncateDataset(ctx context.Context, table string) error {
	switch table {
	case "ons_constituency", "ons_local_auth_district", "ons_msoa",
		"census_age_by_msoa", "ons_postcode", "os_openname_road":
	default:
		return fmt.Errorf("unknown reference table %q", table)
	}
	if _, err := r.db.Pool().Exec(ctx, `TRUNCATE `+table+` CASCADE`); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", table, err)
	}
	return nil
}
