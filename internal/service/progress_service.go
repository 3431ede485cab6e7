package service

import (
	"context"
	"fmt"

	"github.com/constituency-streets/internal/models"
	"github.com/constituency-streets/internal/resolver"
)

// similarNameCutoff is deliberately loose so misspelled CLI input still
// finds the intended constituency.
const (
	similarNameCutoff  = 0.3
	similarNameResults = 5
)

// ConstituencyLister reads constituency reference rows.
type ConstituencyLister interface {
	Constituencies(ctx context.Context) ([]*models.Constituency, error)
}

// FetchCounter counts postcodes and fetch markers per constituency.
type FetchCounter interface {
	CountForConstituency(ctx context.Context, constituencyID string) (int64, error)
	CountFetched(ctx context.Context, constituencyID string) (int64, error)
}

// UsageReader exposes the governor's rolling count and the provider quota.
type UsageReader interface {
	RollingCount(ctx context.Context) (int, error)
}

// BudgetReader exposes the current daily and monthly quota counts.
type BudgetReader interface {
	Counts(ctx context.Context) (models.UsageCounts, error)
}

// ConstituencyProgress reports how far one constituency's fetch has come.
type ConstituencyProgress struct {
	ConstituencyID string  `json:"constituencyId"`
	Name           string  `json:"name"`
	Postcodes      int64   `json:"postcodes"`
	Fetched        int64   `json:"fetched"`
	Percent        float64 `json:"percent"`
}

// UsageReport combines the rolling window count with the provider quota.
type UsageReport struct {
	WindowCount int                `json:"windowCount"`
	Counts      models.UsageCounts `json:"counts"`
	Remaining   int                `json:"remaining"`
}

// ProgressService answers operational questions about a long-running fetch.
type ProgressService struct {
	constituencies ConstituencyLister
	counter        FetchCounter
	usage          UsageReader
	budget         BudgetReader
}

func NewProgressService(constituencies ConstituencyLister, counter FetchCounter, usage UsageReader, budget BudgetReader) *ProgressService {
	return &ProgressService{
		constituencies: constituencies,
		counter:        counter,
		usage:          usage,
		budget:         budget,
	}
}

// FetchProgress reports percent-fetched for every constituency.
func (s *ProgressService) FetchProgress(ctx context.Context) ([]ConstituencyProgress, error) {
	rows, err := s.constituencies.Constituencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list constituencies: %w", err)
	}

	progress := make([]ConstituencyProgress, 0, len(rows))
	for _, c := range rows {
		total, err := s.counter.CountForConstituency(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("count postcodes for %s: %w", c.Name, err)
		}
		fetched, err := s.counter.CountFetched(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("count fetched for %s: %w", c.Name, err)
		}

		p := ConstituencyProgress{
			ConstituencyID: c.ID,
			Name:           c.Name,
			Postcodes:      total,
			Fetched:        fetched,
		}
		if total > 0 {
			p.Percent = 100 * float64(fetched) / float64(total)
		}
		progress = append(progress, p)
	}
	return progress, nil
}

// Usage reports the current rolling window count and remaining quota.
func (s *ProgressService) Usage(ctx context.Context) (UsageReport, error) {
	count, err := s.usage.RollingCount(ctx)
	if err != nil {
		return UsageReport{}, fmt.Errorf("rolling count: %w", err)
	}
	counts, err := s.budget.Counts(ctx)
	if err != nil {
		return UsageReport{}, fmt.Errorf("budget counts: %w", err)
	}
	return UsageReport{
		WindowCount: count,
		Counts:      counts,
		Remaining:   counts.Remaining(),
	}, nil
}

// SimilarConstituencies suggests constituency names close to the query.
func (s *ProgressService) SimilarConstituencies(ctx context.Context, query string) ([]string, error) {
	rows, err := s.constituencies.Constituencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list constituencies: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, c := range rows {
		names = append(names, c.Name)
	}
	return resolver.CloseMatches(query, names, similarNameResults, similarNameCutoff), nil
}
