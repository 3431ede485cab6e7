package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/constituency-streets/internal/errors"
	"github.com/constituency-streets/internal/logging"
	"github.com/constituency-streets/internal/models"
	"github.com/constituency-streets/internal/resolver"
	"github.com/constituency-streets/internal/service"
	"github.com/constituency-streets/internal/types"
)

// PostcodeSource lists the postcodes and districts a run iterates over.
type PostcodeSource interface {
	ForConstituency(ctx context.Context, constituencyID string) ([]*models.Postcode, error)
	AllDistricts(ctx context.Context) ([]types.District, error)
	DistrictsForConstituency(ctx context.Context, constituencyID string) ([]types.District, error)
}

// Fetcher fetches one postcode's addresses.
type Fetcher interface {
	FetchPostcode(ctx context.Context, postcode types.Postcode, constituencyID string) (service.FetchResult, error)
}

// DistrictResolver resolves one district's addresses.
type DistrictResolver interface {
	ResolveDistrict(ctx context.Context, district types.District) (resolver.Summary, error)
}

// FetchReport aggregates one fetch run.
type FetchReport struct {
	RunID     string
	Postcodes int
	Fetched   int
	Skipped   int
	Capped    int
	Failed    int
}

// ResolveReport aggregates one resolution sweep.
type ResolveReport struct {
	RunID     string
	Districts int
	Failed    int
	Summary   resolver.Summary
}

// Orchestrator drives fetch and resolve runs over a bounded worker pool.
// Per-item failures are accumulated and reported at the end of the run;
// operational errors from the governor abort the whole run.
type Orchestrator struct {
	postcodes PostcodeSource
	fetcher   Fetcher
	resolver  DistrictResolver
	workers   int
	progress  bool
	logger    *logging.Logger
}

func NewOrchestrator(
	postcodes PostcodeSource,
	fetcher Fetcher,
	districtResolver DistrictResolver,
	workers int,
	progress bool,
	logger *logging.Logger,
) *Orchestrator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Orchestrator{
		postcodes: postcodes,
		fetcher:   fetcher,
		resolver:  districtResolver,
		workers:   workers,
		progress:  progress,
		logger:    logger.WithField("component", "orchestrator"),
	}
}

func (o *Orchestrator) newBar(total int, prefix string) *pb.ProgressBar {
	if !o.progress {
		return nil
	}
	bar := pb.Full.Start(total)
	bar.Set("prefix", prefix)
	bar.Set(pb.CleanOnFinish, true)
	return bar
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

// fatal reports errors that must abort the whole run instead of being
// accumulated against one item.
func fatal(err error) bool {
	return apperrors.IsFatal(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// FetchConstituency fetches every postcode of one constituency.
func (o *Orchestrator) FetchConstituency(ctx context.Context, constituencyID string) (FetchReport, error) {
	report := FetchReport{RunID: uuid.NewString()}
	log := o.logger.WithFields(map[string]interface{}{
		"run":          report.RunID,
		"constituency": constituencyID,
	})

	postcodes, err := o.postcodes.ForConstituency(ctx, constituencyID)
	if err != nil {
		return report, err
	}
	report.Postcodes = len(postcodes)
	if len(postcodes) == 0 {
		log.Warn("constituency has no postcodes")
		return report, nil
	}
	log.WithField("postcodes", len(postcodes)).Info("fetch run starting")

	bar := o.newBar(len(postcodes), "fetch")
	defer barFinish(bar)

	var mu sync.Mutex
	var failures []error

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, pc := range postcodes {
		pc := pc
		g.Go(func() error {
			result, err := o.fetcher.FetchPostcode(gCtx, pc.Postcode, constituencyID)
			barIncrement(bar)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fatal(err) {
					return err
				}
				report.Failed++
				failures = append(failures, err)
				log.WithField("postcode", pc.Postcode.Normalize()).WithError(err).Warn("postcode fetch failed")
				return nil
			}
			switch {
			case result.Skipped:
				report.Skipped++
			default:
				report.Fetched += result.Fetched
				if result.Capped {
					report.Capped++
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	log.WithFields(map[string]interface{}{
		"fetched": report.Fetched,
		"skipped": report.Skipped,
		"capped":  report.Capped,
		"failed":  report.Failed,
	}).Info("fetch run finished")
	return report, errors.Join(failures...)
}

// ResolveAll resolves every postal district in the store.
func (o *Orchestrator) ResolveAll(ctx context.Context) (ResolveReport, error) {
	districts, err := o.postcodes.AllDistricts(ctx)
	if err != nil {
		return ResolveReport{}, err
	}
	return o.resolveDistricts(ctx, districts)
}

// ResolveConstituency resolves only the districts of one constituency.
func (o *Orchestrator) ResolveConstituency(ctx context.Context, constituencyID string) (ResolveReport, error) {
	districts, err := o.postcodes.DistrictsForConstituency(ctx, constituencyID)
	if err != nil {
		return ResolveReport{}, err
	}
	return o.resolveDistricts(ctx, districts)
}

func (o *Orchestrator) resolveDistricts(ctx context.Context, districts []types.District) (ResolveReport, error) {
	report := ResolveReport{RunID: uuid.NewString(), Districts: len(districts)}
	log := o.logger.WithField("run", report.RunID)
	log.WithField("districts", len(districts)).Info("resolution sweep starting")

	bar := o.newBar(len(districts), "resolve")
	defer barFinish(bar)

	var mu sync.Mutex
	var failures []error

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, district := range districts {
		district := district
		g.Go(func() error {
			summary, err := o.resolver.ResolveDistrict(gCtx, district)
			barIncrement(bar)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fatal(err) {
					return err
				}
				report.Failed++
				failures = append(failures, err)
				log.WithField("district", string(district)).WithError(err).Warn("district resolution failed")
				return nil
			}
			report.Summary.Add(summary)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	log.WithFields(map[string]interface{}{
		"districts":  report.Districts,
		"resolved":   report.Summary.Total - report.Summary.Unresolved,
		"unresolved": report.Summary.Unresolved,
		"failed":     report.Failed,
	}).Info("resolution sweep finished")
	return report, errors.Join(failures...)
}
