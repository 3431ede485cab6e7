// Package ingest loads the ONS and OS reference CSVs into the store. Each
// dataset records the source file's modification time, so unchanged files
// are skipped on re-runs; a failed load truncates that dataset's table
// before surfacing the error so partial loads never look cached.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"

	"github.com/constituency-streets/internal/config"
	"github.com/constituency-streets/internal/logging"
	"github.com/constituency-streets/internal/models"
	"github.com/constituency-streets/internal/types"
)

// Dataset names recorded in csv_files_modified.
const (
	DatasetConstituencies   = "ons_constituency"
	DatasetLocalAuthorities = "ons_local_auth_district"
	DatasetMSOAs            = "ons_msoa"
	DatasetCensusAge        = "census_age_by_msoa"
	DatasetPostcodes        = "ons_postcode"
	DatasetRoads            = "os_openname_road"
)

// ReferenceWriter persists reference aggregates and ingest markers.
type ReferenceWriter interface {
	UpsertConstituencies(ctx context.Context, rows []*models.Constituency) error
	UpsertLocalAuthorities(ctx context.Context, rows []*models.LocalAuthorityDistrict) error
	UpsertMSOAs(ctx context.Context, rows []*models.MSOA) error
	UpsertCensusAge(ctx context.Context, rows []*models.CensusAgeRow) error
	GetIngestedFile(ctx context.Context, dataset string) (*models.IngestedFile, error)
	SetIngestedFile(ctx context.Context, dataset, filename string, modified time.Time) error
	ClearIngestedFile(ctx context.Context, dataset string) error
	TruncateDataset(ctx context.Context, table string) error
}

// PostcodeWriter persists postcode directory batches.
type PostcodeWriter interface {
	InsertBatch(ctx context.Context, rows []*models.Postcode) error
}

// RoadWriter persists gazetteer batches.
type RoadWriter interface {
	InsertBatch(ctx context.Context, rows []*models.Road) error
}

// Service runs the reference ingest.
type Service struct {
	cfg       config.IngestConfig
	reference ReferenceWriter
	postcodes PostcodeWriter
	roads     RoadWriter
	progress  bool
	logger    *logging.Logger
}

func NewService(
	cfg config.IngestConfig,
	reference ReferenceWriter,
	postcodes PostcodeWriter,
	roads RoadWriter,
	progress bool,
	logger *logging.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		reference: reference,
		postcodes: postcodes,
		roads:     roads,
		progress:  progress,
		logger:    logger.WithField("component", "ingest"),
	}
}

// All ingests every dataset in dependency order.
func (s *Service) All(ctx context.Context) error {
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{DatasetConstituencies, s.Constituencies},
		{DatasetLocalAuthorities, s.LocalAuthorities},
		{DatasetMSOAs, s.MSOAs},
		{DatasetCensusAge, s.CensusAge},
		{DatasetPostcodes, s.Postcodes},
		{DatasetRoads, s.Roads},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("ingest %s: %w", step.name, err)
		}
	}
	return nil
}

// fileUnchanged reports whether the dataset was already loaded from this
// exact file state.
func (s *Service) fileUnchanged(ctx context.Context, dataset, path string, modified time.Time) (bool, error) {
	marker, err := s.reference.GetIngestedFile(ctx, dataset)
	if err != nil {
		return false, err
	}
	if marker == nil {
		return false, nil
	}
	return marker.Filename == filepath.Base(path) && marker.Modified.Equal(modified), nil
}

// runDataset wraps one dataset load with the skip-unchanged check and the
// truncate-on-error cleanup.
func (s *Service) runDataset(ctx context.Context, dataset, path string, load func(ctx context.Context) error) error {
	log := s.logger.WithField("dataset", dataset)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	// truncated so the value survives a TIMESTAMPTZ round trip
	modified := info.ModTime().UTC().Truncate(time.Microsecond)

	unchanged, err := s.fileUnchanged(ctx, dataset, path, modified)
	if err != nil {
		return err
	}
	if unchanged {
		log.Info("source file unchanged, skipping")
		return nil
	}

	log.WithField("file", path).Info("loading dataset")
	if err := load(ctx); err != nil {
		if truncErr := s.reference.TruncateDataset(ctx, dataset); truncErr != nil {
			log.ErrorWithErr("failed to truncate dataset after load error", truncErr)
		}
		if clearErr := s.reference.ClearIngestedFile(ctx, dataset); clearErr != nil {
			log.ErrorWithErr("failed to clear ingest marker after load error", clearErr)
		}
		return err
	}

	return s.reference.SetIngestedFile(ctx, dataset, filepath.Base(path), modified)
}

func (s *Service) newBar(total int, prefix string) *pb.ProgressBar {
	if !s.progress {
		return nil
	}
	bar := pb.Full.Start(total)
	bar.Set("prefix", prefix)
	bar.Set(pb.CleanOnFinish, true)
	return bar
}

// openCSV returns a reader over the file plus its header index.
func openCSV(path string) (*os.File, *csv.Reader, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	return f, r, index, nil
}

// column resolves required headers up front so a schema drift fails fast.
func column(index map[string]int, path string, names ...string) ([]int, error) {
	cols := make([]int, len(names))
	for i, name := range names {
		idx, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, name)
		}
		cols[i] = idx
	}
	return cols, nil
}

// Constituencies loads the ONS constituency register. The file carries just
// an id and a name in its first two columns.
func (s *Service) Constituencies(ctx context.Context) error {
	path := s.cfg.ConstituenciesCSV
	return s.runDataset(ctx, DatasetConstituencies, path, func(ctx context.Context) error {
		f, r, _, err := openCSV(path)
		if err != nil {
			return err
		}
		defer f.Close()

		var rows []*models.Constituency
		for {
			record, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if len(record) < 2 || record[0] == "" {
				continue
			}
			rows = append(rows, &models.Constituency{ID: record[0], Name: record[1]})
		}
		return s.reference.UpsertConstituencies(ctx, rows)
	})
}

// LocalAuthorities loads the local authority district register.
func (s *Service) LocalAuthorities(ctx context.Context) error {
	path := s.cfg.LocalAuthoritiesCSV
	return s.runDataset(ctx, DatasetLocalAuthorities, path, func(ctx context.Context) error {
		f, r, index, err := openCSV(path)
		if err != nil {
			return err
		}
		defer f.Close()

		cols, err := column(index, path, "LAD23CD", "LAD23NM", "LAD23NMW")
		if err != nil {
			return err
		}

		var rows []*models.LocalAuthorityDistrict
		for {
			record, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			rows = append(rows, &models.LocalAuthorityDistrict{
				ID:       record[cols[0]],
				Name:     record[cols[1]],
				WardName: record[cols[2]],
			})
		}
		return s.reference.UpsertLocalAuthorities(ctx, rows)
	})
}

// MSOAs loads the middle layer super output area register.
func (s *Service) MSOAs(ctx context.Context) error {
	path := s.cfg.MSOACSV
	return s.runDataset(ctx, DatasetMSOAs, path, func(ctx context.Context) error {
		f, r, index, err := openCSV(path)
		if err != nil {
			return err
		}
		defer f.Close()

		cols, err := column(index, path, "MSOA21CD", "MSOA21NM")
		if err != nil {
			return err
		}

		var rows []*models.MSOA
		for {
			record, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			rows = append(rows, &models.MSOA{ID: record[cols[0]], Name: record[cols[1]]})
		}
		return s.reference.UpsertMSOAs(ctx, rows)
	})
}

// CensusAge loads the census age observations, folding the one-year
// categories into the three brackets used by the exports. Category 100
// means 100 and over.
func (s *Service) CensusAge(ctx context.Context) error {
	path := s.cfg.CensusAgeCSV
	return s.runDataset(ctx, DatasetCensusAge, path, func(ctx context.Context) error {
		f, r, index, err := openCSV(path)
		if err != nil {
			return err
		}
		defer f.Close()

		cols, err := column(index, path,
			"Middle layer Super Output Areas Code",
			"Age (101 categories) Code",
			"Observation",
		)
		if err != nil {
			return err
		}

		byMSOA := make(map[string]*models.CensusAgeRow)
		var order []string
		for {
			record, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			msoaID := record[cols[0]]
			age, err := strconv.Atoi(record[cols[1]])
			if err != nil {
				return fmt.Errorf("%s: bad age category %q: %w", path, record[cols[1]], err)
			}
			count, err := strconv.Atoi(record[cols[2]])
			if err != nil {
				return fmt.Errorf("%s: bad observation %q: %w", path, record[cols[2]], err)
			}

			row, ok := byMSOA[msoaID]
			if !ok {
				row = &models.CensusAgeRow{MSOAID: msoaID}
				byMSOA[msoaID] = row
				order = append(order, msoaID)
			}
			switch {
			case age <= 15:
				row.AgeYoung += count
			case age <= 35:
				row.AgeWorking += count
			default:
				row.AgeOlder += count
			}
		}

		rows := make([]*models.CensusAgeRow, 0, len(order))
		for _, id := range order {
			rows = append(rows, byMSOA[id])
		}
		return s.reference.UpsertCensusAge(ctx, rows)
	})
}

// Postcodes streams the ONS postcode directory in batches. Rows without a
// constituency are dropped, matching the directory's terminated codes.
func (s *Service) Postcodes(ctx context.Context) error {
	path := s.cfg.PostcodesCSV
	return s.runDataset(ctx, DatasetPostcodes, path, func(ctx context.Context) error {
		f, r, index, err := openCSV(path)
		if err != nil {
			return err
		}
		defer f.Close()

		cols, err := column(index, path, "pcd", "ctry", "rgn", "pcon", "ward", "laua", "msoa21")
		if err != nil {
			return err
		}

		bar := s.newBar(0, "postcodes")
		defer barFinish(bar)

		batch := make([]*models.Postcode, 0, s.cfg.BatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := s.postcodes.InsertBatch(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			return nil
		}

		for {
			record, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			barIncrement(bar)

			if record[cols[3]] == "" {
				continue
			}
			pc := types.Postcode(record[cols[0]])
			batch = append(batch, &models.Postcode{
				Postcode:                 types.Postcode(pc.Normalize()),
				District:                 pc.District(),
				CountryID:                record[cols[1]],
				RegionID:                 record[cols[2]],
				ConstituencyID:           record[cols[3]],
				ElectoralWardID:          record[cols[4]],
				LocalAuthorityDistrictID: record[cols[5]],
				MSOAID:                   record[cols[6]],
			})
			if len(batch) >= s.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})
}

// Roads loads every OS Open Names CSV under the configured directory,
// keeping only road-typed rows. Open Names ships as one small headed CSV
// per grid square.
func (s *Service) Roads(ctx context.Context) error {
	dir := s.cfg.OpenNamesDir
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no CSV files under %s", dir)
	}
	sort.Strings(files)

	// the marker tracks the directory through its newest file
	newest := files[0]
	var newestTime time.Time
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			return fmt.Errorf("stat %s: %w", file, err)
		}
		if info.ModTime().After(newestTime) {
			newest = file
			newestTime = info.ModTime()
		}
	}

	return s.runDataset(ctx, DatasetRoads, newest, func(ctx context.Context) error {
		bar := s.newBar(len(files), "opennames")
		defer barFinish(bar)

		batch := make([]*models.Road, 0, s.cfg.BatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := s.roads.InsertBatch(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			return nil
		}

		for _, file := range files {
			if err := s.loadOpenNamesFile(ctx, file, &batch, flush); err != nil {
				return err
			}
			barIncrement(bar)
		}
		return flush()
	})
}

func (s *Service) loadOpenNamesFile(ctx context.Context, path string, batch *[]*models.Road, flush func() error) error {
	f, r, index, err := openCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cols, err := column(index, path,
		"ID", "NAME1", "LOCAL_TYPE", "POSTCODE_DISTRICT", "POPULATED_PLACE",
		"MBR_XMIN", "MBR_YMIN", "MBR_XMAX", "MBR_YMAX",
	)
	if err != nil {
		return err
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		road, keep, err := parseRoadRecord(record, cols)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if !keep {
			continue
		}

		*batch = append(*batch, road)
		if len(*batch) >= s.cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseRoadRecord(record []string, cols []int) (*models.Road, bool, error) {
	localType := record[cols[2]]
	if !containsRoadType(localType) {
		return nil, false, nil
	}

	district := types.Postcode(record[cols[3]]).Normalize()

	road := &models.Road{
		OSID:           record[cols[0]],
		Name:           record[cols[1]],
		LocalType:      localType,
		District:       types.District(district),
		PopulatedPlace: record[cols[4]],
	}

	bboxFields := []struct {
		value string
		dst   *float64
	}{
		{record[cols[5]], &road.MinX},
		{record[cols[6]], &road.MinY},
		{record[cols[7]], &road.MaxX},
		{record[cols[8]], &road.MaxY},
	}
	for _, f := range bboxFields {
		if f.value == "" {
			continue
		}
		v, err := strconv.ParseFloat(f.value, 64)
		if err != nil {
			return nil, false, fmt.Errorf("bad bounding box value %q: %w", f.value, err)
		}
		*f.dst = v
	}
	return road, true, nil
}

// containsRoadType keeps the road-classed Open Names rows ("Named Road",
// "Section Of Named Road" and similar).
func containsRoadType(localType string) bool {
	return strings.Contains(localType, "Road")
}

func barIncrement(bar *pb.ProgressBar) {
	if bar != nil {
		bar.Increment()
	}
}

func barFinish(bar *pb.ProgressBar) {
	if bar != nil {
		bar.Finish()
	}
}
