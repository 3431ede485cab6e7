package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/constituency-streets/internal/errors"
	"github.com/constituency-streets/internal/logging"
	"github.com/constituency-streets/internal/models"
	"github.com/constituency-streets/internal/resolver"
	"github.com/constituency-streets/internal/service"
	"github.com/constituency-streets/internal/types"
)

type fakePostcodes struct {
	postcodes []*models.Postcode
	districts []types.District
}

func (f *fakePostcodes) ForConstituency(ctx context.Context, constituencyID string) ([]*models.Postcode, error) {
	return f.postcodes, nil
}

func (f *fakePostcodes) AllDistricts(ctx context.Context) ([]types.District, error) {
	return f.districts, nil
}

func (f *fakePostcodes) DistrictsForConstituency(ctx context.Context, constituencyID string) ([]types.District, error) {
	return f.districts, nil
}

type fakeFetcher struct {
	calls   atomic.Int32
	failOn  map[string]error
	skipOn  map[string]bool
	perCall int
}

func (f *fakeFetcher) FetchPostcode(ctx context.Context, postcode types.Postcode, constituencyID string) (service.FetchResult, error) {
	f.calls.Add(1)
	key := string(postcode.Normalize())
	if err, ok := f.failOn[key]; ok {
		return service.FetchResult{}, err
	}
	if f.skipOn[key] {
		return service.FetchResult{Postcode: postcode, Skipped: true}, nil
	}
	return service.FetchResult{Postcode: postcode, Fetched: f.perCall}, nil
}

type fakeDistrictResolver struct {
	calls  atomic.Int32
	failOn map[types.District]error
}

func (f *fakeDistrictResolver) ResolveDistrict(ctx context.Context, district types.District) (resolver.Summary, error) {
	f.calls.Add(1)
	if err, ok := f.failOn[district]; ok {
		return resolver.Summary{}, err
	}
	return resolver.Summary{Total: 10, FuzzyMatched: 10}, nil
}

func somePostcodes(codes ...string) []*models.Postcode {
	rows := make([]*models.Postcode, 0, len(codes))
	for _, c := range codes {
		rows = append(rows, &models.Postcode{Postcode: types.Postcode(c)})
	}
	return rows
}

func newOrchestrator(postcodes *fakePostcodes, fetcher *fakeFetcher, res *fakeDistrictResolver) *Orchestrator {
	logger := logging.New(logging.LevelError, logging.FormatText)
	return NewOrchestrator(postcodes, fetcher, res, 4, false, logger)
}

func TestFetchConstituencyAggregates(t *testing.T) {
	fetcher := &fakeFetcher{perCall: 3, skipOn: map[string]bool{"LS11AB": true}}
	o := newOrchestrator(
		&fakePostcodes{postcodes: somePostcodes("LS1 1AA", "LS1 1AB", "LS1 1AC")},
		fetcher, &fakeDistrictResolver{},
	)

	report, err := o.FetchConstituency(context.Background(), "E1")
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Postcodes)
	assert.Equal(t, 6, report.Fetched)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, int32(3), fetcher.calls.Load())
}

func TestFetchConstituencyAccumulatesFailures(t *testing.T) {
	boom := errors.New("provider returned status 500")
	fetcher := &fakeFetcher{perCall: 2, failOn: map[string]error{"LS11AB": boom}}
	o := newOrchestrator(
		&fakePostcodes{postcodes: somePostcodes("LS1 1AA", "LS1 1AB", "LS1 1AC")},
		fetcher, &fakeDistrictResolver{},
	)

	report, err := o.FetchConstituency(context.Background(), "E1")
	require.ErrorIs(t, err, boom)

	// one bad postcode never stops the others
	assert.Equal(t, int32(3), fetcher.calls.Load())
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 4, report.Fetched)
}

func TestFetchConstituencyAbortsOnFatalError(t *testing.T) {
	fetcher := &fakeFetcher{failOn: map[string]error{"LS11AA": apperrors.ErrWindowWaitExceeded}}
	o := newOrchestrator(
		&fakePostcodes{postcodes: somePostcodes("LS1 1AA")},
		fetcher, &fakeDistrictResolver{},
	)

	_, err := o.FetchConstituency(context.Background(), "E1")
	require.ErrorIs(t, err, apperrors.ErrWindowWaitExceeded)
}

func TestFetchConstituencyEmpty(t *testing.T) {
	o := newOrchestrator(&fakePostcodes{}, &fakeFetcher{}, &fakeDistrictResolver{})

	report, err := o.FetchConstituency(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Postcodes)
}

func TestResolveAllAggregatesSummaries(t *testing.T) {
	res := &fakeDistrictResolver{}
	o := newOrchestrator(
		&fakePostcodes{districts: []types.District{"YO24", "LS1", "SW1A"}},
		&fakeFetcher{}, res,
	)

	report, err := o.ResolveAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Districts)
	assert.Equal(t, 30, report.Summary.Total)
	assert.Equal(t, int32(3), res.calls.Load())
}

func TestResolveAllAccumulatesDistrictFailures(t *testing.T) {
	boom := apperrors.NewResolutionError("LS1", errors.New("commit failed"))
	res := &fakeDistrictResolver{failOn: map[types.District]error{"LS1": boom}}
	o := newOrchestrator(
		&fakePostcodes{districts: []types.District{"YO24", "LS1"}},
		&fakeFetcher{}, res,
	)

	report, err := o.ResolveAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 10, report.Summary.Total)
	assert.Equal(t, int32(2), res.calls.Load())
}
