package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/constituency-streets/internal/models"
	"github.com/constituency-streets/internal/types"
	"github.com/jackc/pgx/v5"
)

// PostcodeRepository handles the ONS postcode directory and fetch markers
type PostcodeRepository struct {
	db *PostgresDB
}

// NewPostcodeRepository creates a new postcode repository
func NewPostcodeRepository(db *PostgresDB) *PostcodeRepository {
	return &PostcodeRepository{db: db}
}

// InsertBatch inserts directory rows in one transaction
func (r *PostcodeRepository) InsertBatch(ctx context.Context, postcodes []*models.Postcode) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO ons_postcode (postcode, postcode_district, country_id, region_id,
			constituency_id, electoral_ward_id, local_authority_district_id, msoa_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (postcode) DO UPDATE SET
			postcode_district = EXCLUDED.postcode_district,
			country_id = EXCLUDED.country_id,
			region_id = EXCLUDED.region_id,
			constituency_id = EXCLUDED.constituency_id,
			electoral_ward_id = EXCLUDED.electoral_ward_id,
			local_authority_district_id = EXCLUDED.local_authority_district_id,
			msoa_id = EXCLUDED.msoa_id
	`

	for _, p := range postcodes {
		_, err := tx.Exec(ctx, query,
			p.Postcode.Normalize(),
			p.District,
			p.CountryID,
			p.RegionID,
			p.ConstituencyID,
			p.ElectoralWardID,
			p.LocalAuthorityDistrictID,
			p.MSOAID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert postcode %s: %w", p.Postcode, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit postcode batch: %w", err)
	}
	return nil
}

// Get retrieves one directory row by normalized postcode
func (r *PostcodeRepository) Get(ctx context.Context, postcode types.Postcode) (*models.Postcode, error) {
	query := `
		SELECT postcode, postcode_district, country_id, region_id,
			   constituency_id, electoral_ward_id, local_authority_district_id, msoa_id
		FROM ons_postcode WHERE postcode = $1
	`

	var p models.Postcode
	err := r.db.Pool().QueryRow(ctx, query, postcode.Normalize()).Scan(
		&p.Postcode,
		&p.District,
		&p.CountryID,
		&p.RegionID,
		&p.ConstituencyID,
		&p.ElectoralWardID,
		&p.LocalAuthorityDistrictID,
		&p.MSOAID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get postcode: %w", err)
	}
	return &p, nil
}

// ForConstituency returns every directory row in a constituency
func (r *PostcodeRepository) ForConstituency(ctx context.Context, constituencyID string) ([]*models.Postcode, error) {
	query := `
		SELECT postcode, postcode_district, country_id, region_id,
			   constituency_id, electoral_ward_id, local_authority_district_id, msoa_id
		FROM ons_postcode WHERE constituency_id = $1 ORDER BY postcode
	`

	rows, err := r.db.Pool().Query(ctx, query, constituencyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query constituency postcodes: %w", err)
	}
	defer rows.Close()

	var out []*models.Postcode
	for rows.Next() {
		var p models.Postcode
		err := rows.Scan(
			&p.Postcode,
			&p.District,
			&p.CountryID,
			&p.RegionID,
			&p.ConstituencyID,
			&p.ElectoralWardID,
			&p.LocalAuthorityDistrictID,
			&p.MSOAID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan postcode: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading postcode rows: %w", err)
	}
	return out, nil
}

// DistrictsForConstituency returns the distinct postal districts covering a
// constituency, the unit of parallel resolution.
func (r *PostcodeRepository) DistrictsForConstituency(ctx context.Context, constituencyID string) ([]types.District, error) {
	query := `
		SELECT DISTINCT postcode_district FROM ons_postcode
		WHERE constituency_id = $1 ORDER BY postcode_district
	`

	rows, err := r.db.Pool().Query(ctx, query, constituencyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query constituency districts: %w", err)
	}
	defer rows.Close()

	var out []types.District
	for rows.Next() {
		var d types.District
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan district: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading district rows: %w", err)
	}
	return out, nil
}

// AllDistricts returns every known postal district
func (r *PostcodeRepository) AllDistricts(ctx context.Context) ([]types.District, error) {
	query := `SELECT DISTINCT postcode_district FROM ons_postcode ORDER BY postcode_district`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query districts: %w", err)
	}
	defer rows.Close()

	var out []types.District
	for rows.Next() {
		var d types.District
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan district: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading district rows: %w", err)
	}
	return out, nil
}

// CountForConstituency returns the number of directory rows in a constituency
func (r *PostcodeRepository) CountForConstituency(ctx context.Context, constituencyID string) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM ons_postcode WHERE constituency_id = $1`
	if err := r.db.Pool().QueryRow(ctx, query, constituencyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count constituency postcodes: %w", err)
	}
	return n, nil
}

// Truncate clears the directory, used when an ingest fails partway
func (r *PostcodeRepository) Truncate(ctx context.Context) error {
	if _, err := r.db.Pool().Exec(ctx, `TRUNCATE ons_postcode`); err != nil {
		return fmt.Errorf("failed to truncate postcode table: %w", err)
	}
	return nil
}

// GetFetchMarker retrieves the fetch marker for a postcode, nil when the
// postcode has never been fetched.
func (r *PostcodeRepository) GetFetchMarker(ctx context.Context, postcode types.Postcode) (*models.FetchMarker, error) {
	query := `SELECT postcode, constituency_id, was_fetched FROM postcode_fetched WHERE postcode = $1`

	var m models.FetchMarker
	err := r.db.Pool().QueryRow(ctx, query, postcode.Normalize()).Scan(&m.Postcode, &m.ConstituencyID, &m.WasFetched)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get fetch marker: %w", err)
	}
	return &m, nil
}

// CountFetched returns how many of a constituency's postcodes are fetched
func (r *PostcodeRepository) CountFetched(ctx context.Context, constituencyID string) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM postcode_fetched WHERE constituency_id = $1 AND was_fetched`
	if err := r.db.Pool().QueryRow(ctx, query, constituencyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count fetched postcodes: %w", err)
	}
	return n, nil
}

// ageBracketColumns whitelists the census column per bracket so the ORDER BY
// expression is never built from caller input.
var ageBracketColumns = map[types.AgeBracket]string{
	types.AgeBracketYoung:   "age_0_15",
	types.AgeBracketWorking: "age_16_35",
	types.AgeBracketOlder:   "age_36_plus",
}

// RankedByAgeBracket returns postcodes ordered by the share of the given age
// bracket within their MSOA's census population, highest first.
func (r *PostcodeRepository) RankedByAgeBracket(ctx context.Context, bracket types.AgeBracket, limit int) ([]*models.PostcodeAgeRank, error) {
	column, ok := ageBracketColumns[bracket]
	if !ok {
		return nil, fmt.Errorf("unknown age bracket %q", bracket)
	}

	query := fmt.Sprintf(`
		SELECT p.postcode, p.msoa_id,
		       %s::float8 / NULLIF(c.age_0_15 + c.age_16_35 + c.age_36_plus, 0) AS share
		FROM ons_postcode p
		JOIN census_age_by_msoa c ON c.msoa_id = p.msoa_id
		WHERE c.age_0_15 + c.age_16_35 + c.age_36_plus > 0
		ORDER BY share DESC, p.postcode
		LIMIT $1`, "c."+column)

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank postcodes by age bracket: %w", err)
	}
	defer rows.Close()

	var out []*models.PostcodeAgeRank
	for rows.Next() {
		var rank models.PostcodeAgeRank
		if err := rows.Scan(&rank.Postcode, &rank.MSOAID, &rank.Share); err != nil {
			return nil, fmt.Errorf("failed to scan age rank row: %w", err)
		}
		rank.Bracket = bracket
		out = append(out, &rank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading age rank rows: %w", err)
	}
	return out, nil
}
