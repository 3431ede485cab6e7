package service

import (
	"context"
	"fmt"

	apperrors "github.com/constituency-streets/internal/errors"
	"github.com/constituency-streets/internal/logging"
	"github.com/constituency-streets/internal/models"
	"github.com/constituency-streets/internal/resolver"
	"github.com/constituency-streets/internal/types"
)

// RoadProvider supplies the road gazetteer names of a postal district.
type RoadProvider interface {
	Roads(ctx context.Context, district types.District) ([]string, error)
}

// ResolveStore is the address storage surface of a resolution sweep.
type ResolveStore interface {
	ForDistrict(ctx context.Context, district types.District) ([]*models.Address, error)
	UpdateResolvedBatch(ctx context.Context, addresses []*models.Address) error
	BlankResolvedForDistrict(ctx context.Context, district types.District) error
}

// ResolveService runs the thoroughfare resolver over one postal district at
// a time and commits each batch atomically. A failed commit blanks only the
// failed district's resolved fields.
type ResolveService struct {
	roads    RoadProvider
	store    ResolveStore
	resolver *resolver.Resolver
	logger   *logging.Logger
}

func NewResolveService(roads RoadProvider, store ResolveStore, res *resolver.Resolver, logger *logging.Logger) *ResolveService {
	return &ResolveService{
		roads:    roads,
		store:    store,
		resolver: res,
		logger:   logger.WithField("component", "resolve"),
	}
}

// ResolveDistrict resolves every address of one postal district.
func (s *ResolveService) ResolveDistrict(ctx context.Context, district types.District) (resolver.Summary, error) {
	log := s.logger.WithField("district", string(district))

	roads, err := s.roads.Roads(ctx, district)
	if err != nil {
		return resolver.Summary{}, apperrors.NewDatabaseError(fmt.Sprintf("load roads for district %s", district), err)
	}

	addresses, err := s.store.ForDistrict(ctx, district)
	if err != nil {
		return resolver.Summary{}, apperrors.NewDatabaseError(fmt.Sprintf("load addresses for district %s", district), err)
	}
	if len(addresses) == 0 {
		log.Debug("no addresses in district")
		return resolver.Summary{}, nil
	}

	summary := s.resolver.ResolveBatch(addresses, roads)

	if err := s.store.UpdateResolvedBatch(ctx, addresses); err != nil {
		if blankErr := s.store.BlankResolvedForDistrict(ctx, district); blankErr != nil {
			log.ErrorWithErr("failed to blank district after commit failure", blankErr)
		}
		return summary, apperrors.NewResolutionError(string(district), err)
	}

	log.WithFields(map[string]interface{}{
		"total":      summary.Total,
		"unresolved": summary.Unresolved,
	}).Info("district resolved")
	return summary, nil
}
