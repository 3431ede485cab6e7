// Package export writes the CSV products of a finished run: street and
// address lists per area, and postcode rankings from census age data.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/constituency-streets/internal/logging"
	"github.com/constituency-streets/internal/models"
	"github.com/constituency-streets/internal/types"
)

// residentialExcludePattern drops flats and business records from the
// door-to-door address lists.
var residentialExcludePattern = regexp.MustCompile(`(?i)\b(apartment[s]?|flat[s]?|apt[s]?|studio|ltd|limited)\b`)

var firstNumberPattern = regexp.MustCompile(`\d+`)

// AddressSource reads resolved addresses and street lists per area.
type AddressSource interface {
	ForConstituency(ctx context.Context, constituencyID string) ([]*models.Address, error)
	ForLocalAuthority(ctx context.Context, localAuthorityID string) ([]*models.Address, error)
	ForMSOA(ctx context.Context, msoaID string) ([]*models.Address, error)
	StreetsForConstituency(ctx context.Context, constituencyID string) ([]string, error)
	StreetsForLocalAuthority(ctx context.Context, localAuthorityID string) ([]string, error)
}

// ReferenceSource resolves area names to ids and lists MSOAs.
type ReferenceSource interface {
	ConstituencyByName(ctx context.Context, name string) (*models.Constituency, error)
	LocalAuthorityByName(ctx context.Context, name string) (*models.LocalAuthorityDistrict, error)
	MSOAs(ctx context.Context) ([]*models.MSOA, error)
}

// AgeRanker ranks postcodes by census age-bracket share.
type AgeRanker interface {
	RankedByAgeBracket(ctx context.Context, bracket types.AgeBracket, limit int) ([]*models.PostcodeAgeRank, error)
}

// Service writes CSV exports into a single output directory.
type Service struct {
	addresses AddressSource
	reference ReferenceSource
	ranker    AgeRanker
	outDir    string
	logger    *logging.Logger
}

func NewService(addresses AddressSource, reference ReferenceSource, ranker AgeRanker, outDir string, logger *logging.Logger) *Service {
	return &Service{
		addresses: addresses,
		reference: reference,
		ranker:    ranker,
		outDir:    outDir,
		logger:    logger.WithField("component", "export"),
	}
}

var fileNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

func fileName(parts ...string) string {
	name := ""
	for i, p := range parts {
		if i > 0 {
			name += "_"
		}
		name += fileNameSanitizer.ReplaceAllString(p, "-")
	}
	return name + ".csv"
}

func (s *Service) writeCSV(name string, header []string, rows [][]string) (string, error) {
	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.outDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush %s: %w", path, err)
	}

	s.logger.WithFields(map[string]interface{}{"file": path, "rows": len(rows)}).Info("export written")
	return path, nil
}

func streetRows(streets []string) [][]string {
	sort.Strings(streets)
	rows := make([][]string, 0, len(streets))
	for _, street := range streets {
		rows = append(rows, []string{street})
	}
	return rows
}

var addressHeader = []string{
	"house_identifier", "thoroughfare", "line_1", "line_2", "line_3", "line_4",
	"town_or_city", "locality", "county", "postcode",
}

func addressRow(a *models.Address) []string {
	return []string{
		a.HouseIdentifier, a.Thoroughfare, a.Line1, a.Line2, a.Line3, a.Line4,
		a.TownOrCity, a.Locality, a.County, string(a.Postcode),
	}
}

// StreetsByConstituency writes the distinct resolved street names of a
// constituency, one per line, alphabetically.
func (s *Service) StreetsByConstituency(ctx context.Context, name string) (string, error) {
	c, err := s.reference.ConstituencyByName(ctx, name)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", fmt.Errorf("constituency %q not found", name)
	}
	streets, err := s.addresses.StreetsForConstituency(ctx, c.ID)
	if err != nil {
		return "", err
	}
	return s.writeCSV(fileName("streets", "constituency", c.Name), []string{"street"}, streetRows(streets))
}

// StreetsByLocalAuthority writes the distinct resolved street names of a
// local authority district.
func (s *Service) StreetsByLocalAuthority(ctx context.Context, name string) (string, error) {
	lad, err := s.reference.LocalAuthorityByName(ctx, name)
	if err != nil {
		return "", err
	}
	if lad == nil {
		return "", fmt.Errorf("local authority %q not found", name)
	}
	streets, err := s.addresses.StreetsForLocalAuthority(ctx, lad.ID)
	if err != nil {
		return "", err
	}
	return s.writeCSV(fileName("streets", "local-authority", lad.Name), []string{"street"}, streetRows(streets))
}

// AddressesByConstituency writes every address of a constituency.
func (s *Service) AddressesByConstituency(ctx context.Context, name string) (string, error) {
	c, err := s.reference.ConstituencyByName(ctx, name)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", fmt.Errorf("constituency %q not found", name)
	}
	addresses, err := s.addresses.ForConstituency(ctx, c.ID)
	if err != nil {
		return "", err
	}
	rows := make([][]string, 0, len(addresses))
	for _, a := range addresses {
		rows = append(rows, addressRow(a))
	}
	return s.writeCSV(fileName("addresses", "constituency", c.Name), addressHeader, rows)
}

// AddressesByLocalAuthority writes every address of a local authority
// district.
func (s *Service) AddressesByLocalAuthority(ctx context.Context, name string) (string, error) {
	lad, err := s.reference.LocalAuthorityByName(ctx, name)
	if err != nil {
		return "", err
	}
	if lad == nil {
		return "", fmt.Errorf("local authority %q not found", name)
	}
	addresses, err := s.addresses.ForLocalAuthority(ctx, lad.ID)
	if err != nil {
		return "", err
	}
	rows := make([][]string, 0, len(addresses))
	for _, a := range addresses {
		rows = append(rows, addressRow(a))
	}
	return s.writeCSV(fileName("addresses", "local-authority", lad.Name), addressHeader, rows)
}

// MSOAAddresses writes one walkable address list per MSOA: flats and
// business records are excluded and the remainder is ordered by the first
// house number found scanning line4 down to line1.
func (s *Service) MSOAAddresses(ctx context.Context) ([]string, error) {
	msoas, err := s.reference.MSOAs(ctx)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, m := range msoas {
		addresses, err := s.addresses.ForMSOA(ctx, m.ID)
		if err != nil {
			return paths, fmt.Errorf("load addresses for MSOA %s: %w", m.ID, err)
		}

		kept := filterResidential(addresses)
		if len(kept) == 0 {
			continue
		}
		sortByFirstNumber(kept)

		rows := make([][]string, 0, len(kept))
		for _, a := range kept {
			rows = append(rows, addressRow(a))
		}
		path, err := s.writeCSV(fileName("addresses", "msoa", m.Name), addressHeader, rows)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// PostcodesByAge writes the top postcodes ranked by the share of their
// MSOA's population in the given age bracket.
func (s *Service) PostcodesByAge(ctx context.Context, bracket types.AgeBracket, limit int) (string, error) {
	ranks, err := s.ranker.RankedByAgeBracket(ctx, bracket, limit)
	if err != nil {
		return "", err
	}
	rows := make([][]string, 0, len(ranks))
	for _, r := range ranks {
		rows = append(rows, []string{
			string(r.Postcode),
			r.MSOAID,
			strconv.FormatFloat(r.Share, 'f', 4, 64),
		})
	}
	return s.writeCSV(fileName("postcodes", "age", string(bracket)), []string{"postcode", "msoa_id", "share"}, rows)
}

func filterResidential(addresses []*models.Address) []*models.Address {
	kept := make([]*models.Address, 0, len(addresses))
	for _, a := range addresses {
		if excluded(a) {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func excluded(a *models.Address) bool {
	for _, line := range a.Lines() {
		if residentialExcludePattern.MatchString(line) {
			return true
		}
	}
	return false
}

// firstNumber scans line4 down to line1 and returns the first integer found.
// Addresses without one sort to the end.
func firstNumber(a *models.Address) (int, bool) {
	lines := a.Lines()
	for i := len(lines) - 1; i >= 0; i-- {
		if m := firstNumberPattern.FindString(lines[i]); m != "" {
			if n, err := strconv.Atoi(m); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func sortByFirstNumber(addresses []*models.Address) {
	sort.SliceStable(addresses, func(i, j int) bool {
		ni, oki := firstNumber(addresses[i])
		nj, okj := firstNumber(addresses[j])
		if oki != okj {
			return oki
		}
		return ni < nj
	})
}
