package service

import (
	"context"
	"fmt"

	"github.com/constituency-streets/internal/adapter"
	apperrors "github.com/constituency-streets/internal/errors"
	"github.com/constituency-streets/internal/logging"
	"github.com/constituency-streets/internal/models"
	"github.com/constituency-streets/internal/types"
)

// AddressLookup is the provider surface the fetcher needs.
type AddressLookup interface {
	Autocomplete(ctx context.Context, postcode types.Postcode, full bool) ([]*models.Address, error)
}

// RequestGate admits one outbound request per Acquire, waiting while the
// rolling window is saturated.
type RequestGate interface {
	Acquire(ctx context.Context) error
}

// FullLookupBudget spends one unit of the paid daily allowance.
type FullLookupBudget interface {
	ConsumeLookup(ctx context.Context) (bool, error)
}

// ResponseCache caches provider responses keyed by postcode and scope.
type ResponseCache interface {
	Get(ctx context.Context, postcode types.Postcode, full bool) ([]*models.Address, bool, error)
	Set(ctx context.Context, postcode types.Postcode, full bool, addresses []*models.Address) error
}

// MarkerStore reads fetch-state markers.
type MarkerStore interface {
	GetFetchMarker(ctx context.Context, postcode types.Postcode) (*models.FetchMarker, error)
}

// AddressWriter persists a fetched batch and its marker in one transaction.
type AddressWriter interface {
	UpsertBatch(ctx context.Context, addresses []*models.Address, marker *models.FetchMarker) error
}

// FetchResult summarizes one postcode fetch.
type FetchResult struct {
	Postcode  types.Postcode
	Fetched   int
	Skipped   bool
	FromCache bool
	// Capped reports that the top-20 page was full but no full lookup was
	// affordable, so the stored set may be incomplete.
	Capped bool
}

// FetchService pulls every address of a postcode from the lookup provider,
// spending the rolling-window and daily budgets, and stores the batch with
// its fetch marker.
type FetchService struct {
	lookup  AddressLookup
	gate    RequestGate
	budget  FullLookupBudget
	cache   ResponseCache
	markers MarkerStore
	writer  AddressWriter
	logger  *logging.Logger
}

func NewFetchService(
	lookup AddressLookup,
	gate RequestGate,
	budget FullLookupBudget,
	cache ResponseCache,
	markers MarkerStore,
	writer AddressWriter,
	logger *logging.Logger,
) *FetchService {
	return &FetchService{
		lookup:  lookup,
		gate:    gate,
		budget:  budget,
		cache:   cache,
		markers: markers,
		writer:  writer,
		logger:  logger.WithField("component", "fetch"),
	}
}

// FetchPostcode fetches and stores all addresses of one postcode. Already
// fetched postcodes are skipped via their marker. A full top-20 page
// triggers an uncapped lookup when the daily budget allows it.
func (s *FetchService) FetchPostcode(ctx context.Context, postcode types.Postcode, constituencyID string) (FetchResult, error) {
	result := FetchResult{Postcode: postcode}
	log := s.logger.WithField("postcode", postcode.Normalize())

	marker, err := s.markers.GetFetchMarker(ctx, postcode)
	if err != nil {
		return result, apperrors.NewDatabaseError("read fetch marker", err)
	}
	if marker != nil && marker.WasFetched {
		result.Skipped = true
		return result, nil
	}

	if !postcode.ValidForLookup() {
		return result, fmt.Errorf("postcode %q: %w", string(postcode), apperrors.ErrPostcodeTooShort)
	}

	addresses, fromCache, err := s.topResults(ctx, postcode)
	if err != nil {
		return result, err
	}
	result.FromCache = fromCache

	if len(addresses) == adapter.TopResultLimit {
		full, capped, err := s.fullResults(ctx, postcode, log)
		if err != nil {
			return result, err
		}
		result.Capped = capped
		if !capped {
			addresses = full
		}
	}

	// A capped batch keeps its partial addresses but stays unfetched, so a
	// later run retries the full lookup once the budget refreshes.
	err = s.writer.UpsertBatch(ctx, addresses, &models.FetchMarker{
		Postcode:       postcode.Normalize(),
		ConstituencyID: constituencyID,
		WasFetched:     !result.Capped,
	})
	if err != nil {
		return result, apperrors.NewDatabaseError("store fetched batch", err)
	}

	result.Fetched = len(addresses)
	log.WithFields(map[string]interface{}{
		"fetched":   result.Fetched,
		"fromCache": result.FromCache,
		"capped":    result.Capped,
	}).Debug("postcode fetched")
	return result, nil
}

// topResults returns the capped suggestion page, from cache when possible.
func (s *FetchService) topResults(ctx context.Context, postcode types.Postcode) ([]*models.Address, bool, error) {
	if cached, hit := s.cacheGet(ctx, postcode, false); hit {
		return cached, true, nil
	}

	if err := s.gate.Acquire(ctx); err != nil {
		return nil, false, err
	}
	addresses, err := s.lookup.Autocomplete(ctx, postcode, false)
	if err != nil {
		return nil, false, err
	}

	s.cacheSet(ctx, postcode, false, addresses)
	return addresses, false, nil
}

// fullResults returns the uncapped set, or capped=true when the daily
// budget is spent. A cached full response costs no budget.
func (s *FetchService) fullResults(ctx context.Context, postcode types.Postcode, log *logging.Logger) ([]*models.Address, bool, error) {
	if cached, hit := s.cacheGet(ctx, postcode, true); hit {
		return cached, false, nil
	}

	granted, err := s.budget.ConsumeLookup(ctx)
	if err != nil {
		return nil, false, err
	}
	if !granted {
		log.Warn("daily lookup budget exhausted, keeping capped results")
		return nil, true, nil
	}

	if err := s.gate.Acquire(ctx); err != nil {
		return nil, false, err
	}
	addresses, err := s.lookup.Autocomplete(ctx, postcode, true)
	if err != nil {
		return nil, false, err
	}

	s.cacheSet(ctx, postcode, true, addresses)
	return addresses, false, nil
}

// cache failures degrade to provider calls, they never fail a fetch
func (s *FetchService) cacheGet(ctx context.Context, postcode types.Postcode, full bool) ([]*models.Address, bool) {
	addresses, hit, err := s.cache.Get(ctx, postcode, full)
	if err != nil {
		s.logger.WithError(err).Warn("response cache read failed")
		return nil, false
	}
	return addresses, hit
}

func (s *FetchService) cacheSet(ctx context.Context, postcode types.Postcode, full bool, addresses []*models.Address) {
	if err := s.cache.Set(ctx, postcode, full, addresses); err != nil {
		s.logger.WithError(err).Warn("response cache write failed")
	}
}
