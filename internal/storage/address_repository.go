package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/constituency-streets/internal/models"
	"github.com/constituency-streets/internal/types"
	"github.com/jackc/pgx/v5"
)

// AddressRepository handles persistence of raw and resolved addresses
type AddressRepository struct {
	db *PostgresDB
}

// NewAddressRepository creates a new address repository
func NewAddressRepository(db *PostgresDB) *AddressRepository {
	return &AddressRepository{db: db}
}

const addressColumns = `lookup_id, house_identifier, line_1, line_2, line_3, line_4,
	   thoroughfare, town_or_city, locality, county, country, postcode`

func scanAddress(row pgx.Row) (*models.Address, error) {
	var a models.Address
	err := row.Scan(
		&a.LookupID,
		&a.HouseIdentifier,
		&a.Line1,
		&a.Line2,
		&a.Line3,
		&a.Line4,
		&a.Thoroughfare,
		&a.TownOrCity,
		&a.Locality,
		&a.County,
		&a.Country,
		&a.Postcode,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Get retrieves one address by its lookup id
func (r *AddressRepository) Get(ctx context.Context, lookupID string) (*models.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM simple_addresses WHERE lookup_id = $1`

	addr, err := scanAddress(r.db.Pool().QueryRow(ctx, query, lookupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return addr, nil
}

// UpsertBatch inserts or replaces a batch of fetched addresses in one
// transaction, together with the postcode's fetch marker when given. The
// single transaction keeps "addresses stored" and "postcode marked fetched"
// atomic.
func (r *AddressRepository) UpsertBatch(ctx context.Context, addresses []*models.Address, marker *models.FetchMarker) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO simple_addresses (` + addressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (lookup_id) DO UPDATE SET
			house_identifier = EXCLUDED.house_identifier,
			line_1 = EXCLUDED.line_1,
			line_2 = EXCLUDED.line_2,
			line_3 = EXCLUDED.line_3,
			line_4 = EXCLUDED.line_4,
			thoroughfare = EXCLUDED.thoroughfare,
			town_or_city = EXCLUDED.town_or_city,
			locality = EXCLUDED.locality,
			county = EXCLUDED.county,
			country = EXCLUDED.country,
			postcode = EXCLUDED.postcode
	`

	for _, a := range addresses {
		_, err := tx.Exec(ctx, query,
			a.LookupID,
			a.HouseIdentifier,
			a.Line1,
			a.Line2,
			a.Line3,
			a.Line4,
			a.Thoroughfare,
			a.TownOrCity,
			a.Locality,
			a.County,
			a.Country,
			a.Postcode.Normalize(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert address %s: %w", a.LookupID, err)
		}
	}

	if marker != nil {
		markerQuery := `
			INSERT INTO postcode_fetched (postcode, constituency_id, was_fetched)
			VALUES ($1, $2, $3)
			ON CONFLICT (postcode) DO UPDATE SET
				constituency_id = EXCLUDED.constituency_id,
				was_fetched = EXCLUDED.was_fetched
		`
		if _, err := tx.Exec(ctx, markerQuery, marker.Postcode.Normalize(), marker.ConstituencyID, marker.WasFetched); err != nil {
			return fmt.Errorf("failed to upsert fetch marker: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit address batch: %w", err)
	}
	return nil
}

// ForDistrict returns every address whose postcode belongs to the district
func (r *AddressRepository) ForDistrict(ctx context.Context, district types.District) ([]*models.Address, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM simple_addresses a
		WHERE EXISTS (
			SELECT 1 FROM ons_postcode p
			WHERE p.postcode = a.postcode AND p.postcode_district = $1
		)
		ORDER BY a.postcode, a.lookup_id
	`

	rows, err := r.db.Pool().Query(ctx, query, district)
	if err != nil {
		return nil, fmt.Errorf("failed to query district addresses: %w", err)
	}
	defer rows.Close()

	return collectAddresses(rows)
}

// ForConstituency returns every address in a constituency
func (r *AddressRepository) ForConstituency(ctx context.Context, constituencyID string) ([]*models.Address, error) {
	return r.forArea(ctx, "constituency_id", constituencyID)
}

// ForLocalAuthority returns every address in a local authority district
func (r *AddressRepository) ForLocalAuthority(ctx context.Context, localAuthorityID string) ([]*models.Address, error) {
	return r.forArea(ctx, "local_authority_district_id", localAuthorityID)
}

// ForMSOA returns every address in a middle layer super output area
func (r *AddressRepository) ForMSOA(ctx context.Context, msoaID string) ([]*models.Address, error) {
	return r.forArea(ctx, "msoa_id", msoaID)
}

func (r *AddressRepository) forArea(ctx context.Context, column, id string) ([]*models.Address, error) {
	// column is one of three fixed names above, never user input
	query := fmt.Sprintf(`
		SELECT `+addressColumns+`
		FROM simple_addresses a
		JOIN ons_postcode p ON p.postcode = a.postcode
		WHERE p.%s = $1
		ORDER BY a.postcode, a.lookup_id
	`, column)

	rows, err := r.db.Pool().Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query area addresses: %w", err)
	}
	defer rows.Close()

	return collectAddresses(rows)
}

func collectAddresses(rows pgx.Rows) ([]*models.Address, error) {
	var out []*models.Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading address rows: %w", err)
	}
	return out, nil
}

// UpdateResolvedBatch writes the resolved thoroughfare and house identifier
// for a whole district batch in one transaction, so a reader never sees a
// half-resolved batch.
func (r *AddressRepository) UpdateResolvedBatch(ctx context.Context, addresses []*models.Address) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		UPDATE simple_addresses
		SET thoroughfare = $2, house_identifier = $3
		WHERE lookup_id = $1
	`

	for _, a := range addresses {
		if _, err := tx.Exec(ctx, query, a.LookupID, a.Thoroughfare, a.HouseIdentifier); err != nil {
			return fmt.Errorf("failed to update resolved address %s: %w", a.LookupID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit resolved batch: %w", err)
	}
	return nil
}

// BlankResolvedForDistrict clears the resolved fields for one district,
// leaving other districts untouched. Used to recover from a failed batch.
func (r *AddressRepository) BlankResolvedForDistrict(ctx context.Context, district types.District) error {
	query := `
		UPDATE simple_addresses a
		SET thoroughfare = '', house_identifier = ''
		WHERE EXISTS (
			SELECT 1 FROM ons_postcode p
			WHERE p.postcode = a.postcode AND p.postcode_district = $1
		)
	`

	if _, err := r.db.Pool().Exec(ctx, query, district); err != nil {
		return fmt.Errorf("failed to blank district %s: %w", district, err)
	}
	return nil
}

// StreetsForConstituency returns the distinct resolved street names in a
// constituency, ordered by name.
func (r *AddressRepository) StreetsForConstituency(ctx context.Context, constituencyID string) ([]string, error) {
	return r.streetsForArea(ctx, "constituency_id", constituencyID)
}

// StreetsForLocalAuthority returns the distinct resolved street names in a
// local authority district, ordered by name.
func (r *AddressRepository) StreetsForLocalAuthority(ctx context.Context, localAuthorityID string) ([]string, error) {
	return r.streetsForArea(ctx, "local_authority_district_id", localAuthorityID)
}

func (r *AddressRepository) streetsForArea(ctx context.Context, column, id string) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT a.thoroughfare
		FROM simple_addresses a
		JOIN ons_postcode p ON p.postcode = a.postcode
		WHERE p.%s = $1 AND a.thoroughfare <> ''
		ORDER BY a.thoroughfare
	`, column)

	rows, err := r.db.Pool().Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query streets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan street name: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading street rows: %w", err)
	}
	return out, nil
}

// Count returns the total number of stored addresses
func (r *AddressRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM simple_addresses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count addresses: %w", err)
	}
	return n, nil
}
