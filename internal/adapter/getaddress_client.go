package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/constituency-streets/internal/config"
	apperrors "github.com/constituency-streets/internal/errors"
	"github.com/constituency-streets/internal/logging"
	"github.com/constituency-streets/internal/models"
	"github.com/constituency-streets/internal/retry"
	"github.com/constituency-streets/internal/types"
)

// addressTemplate asks the provider to render every suggestion as eight
// pipe-separated fields. Parsing depends on this exact field order.
const addressTemplate = "{line_1}|{line_2}|{line_3}|{line_4}|{town_or_city}|{locality}|{county}|{country}"

const templateFieldCount = 8

// TopResultLimit is the page size of a capped autocomplete call. A response
// that fills the page exactly signals that more addresses may exist.
const TopResultLimit = 20

// GetAddressClient talks to the getAddress.io autocomplete and usage
// endpoints. All calls are paced through a shared rate limiter so that
// concurrent workers cannot spike the provider.
type GetAddressClient struct {
	baseURL  string
	apiKey   string
	adminKey string
	client   *http.Client
	limiter  *rate.Limiter
	retryCfg *retry.Config
	logger   *logging.Logger
}

// NewGetAddressClient builds a client from lookup configuration. The pacing
// limit of 5 req/s stays well under the provider's per-second throttle.
func NewGetAddressClient(cfg config.LookupConfig, logger *logging.Logger) *GetAddressClient {
	return &GetAddressClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		adminKey: cfg.AdminKey,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(5), 5),
		retryCfg: retry.DefaultConfig(),
		logger:   logger.WithField("component", "getaddress"),
	}
}

type suggestionResponse struct {
	Suggestions []suggestion `json:"suggestions"`
}

type suggestion struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

type usageResponse struct {
	UsageToday        int `json:"usage_today"`
	DailyLimit        int `json:"daily_limit"`
	MonthlyBuffer     int `json:"monthly_buffer"`
	MonthlyBufferUsed int `json:"monthly_buffer_used"`
}

// Autocomplete fetches every address suggestion for a postcode. With
// full=false the provider caps the response at TopResultLimit results;
// with full=true it returns the complete set, which counts against the
// paid daily allowance.
func (c *GetAddressClient) Autocomplete(ctx context.Context, postcode types.Postcode, full bool) ([]*models.Address, error) {
	normalized := postcode.Normalize()

	url := fmt.Sprintf("%s/autocomplete/%s?api-key=%s&all=true&template=%s", c.baseURL, normalized, c.apiKey, addressTemplate)
	if !full {
		url = fmt.Sprintf("%s/autocomplete/%s?api-key=%s&all=false&top=%d&template=%s", c.baseURL, normalized, c.apiKey, TopResultLimit, addressTemplate)
	}

	body, err := c.get(ctx, url, "autocomplete")
	if err != nil {
		return nil, err
	}

	var resp suggestionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewProviderError("autocomplete", fmt.Errorf("decode response: %w", err))
	}

	addresses := make([]*models.Address, 0, len(resp.Suggestions))
	for _, s := range resp.Suggestions {
		addr, err := parseSuggestion(s, normalized)
		if err != nil {
			c.logger.WithField("id", s.ID).WithError(err).Warn("skipping malformed suggestion")
			continue
		}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// Usage implements ratelimit.UsageFetcher. Without an admin key, or when
// the provider denies the admin endpoint, it falls back to the documented
// default quotas.
func (c *GetAddressClient) Usage(ctx context.Context, day time.Time) (models.UsageCounts, error) {
	if c.adminKey == "" {
		c.logger.Debug("no admin key configured, using default usage counts")
		return models.DefaultUsageCounts(), nil
	}

	url := fmt.Sprintf("%s/v3/usage/%d/%d/%d?api-key=%s", c.baseURL, day.Day(), int(day.Month()), day.Year(), c.adminKey)

	body, err := c.get(ctx, url, "usage")
	if err != nil {
		if forbidden(err) {
			c.logger.Warn("usage endpoint forbidden, using default usage counts")
			return models.DefaultUsageCounts(), nil
		}
		return models.UsageCounts{}, err
	}

	var resp usageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.UsageCounts{}, apperrors.NewProviderError("usage", fmt.Errorf("decode response: %w", err))
	}

	return models.UsageCounts{
		UsageToday:        resp.UsageToday,
		DailyLimit:        resp.DailyLimit,
		MonthlyBuffer:     resp.MonthlyBuffer,
		MonthlyBufferUsed: resp.MonthlyBufferUsed,
	}, nil
}

// statusError marks an HTTP failure with the provider's status code so
// callers can distinguish throttling from hard denials.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

func forbidden(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.StatusCode == http.StatusForbidden
}

// get performs a paced GET with retries on throttling and outages.
func (c *GetAddressClient) get(ctx context.Context, url, operation string) ([]byte, error) {
	var body []byte

	err := retry.Do(ctx, c.retryCfg, c.logger, func(ctx context.Context, attempt int) (bool, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, apperrors.NewProviderError(operation, err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return true, apperrors.NewProviderError(operation, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return true, apperrors.NewProviderError(operation, err)
		}

		if resp.StatusCode != http.StatusOK {
			se := &statusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
			return transientStatus(resp.StatusCode), apperrors.NewProviderError(operation, se)
		}

		body = data
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func parseSuggestion(s suggestion, normalized types.Postcode) (*models.Address, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("suggestion has empty id")
	}
	fields := strings.Split(s.Address, "|")
	if len(fields) != templateFieldCount {
		return nil, fmt.Errorf("expected %d template fields, got %d", templateFieldCount, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return &models.Address{
		LookupID:   s.ID,
		Line1:      fields[0],
		Line2:      fields[1],
		Line3:      fields[2],
		Line4:      fields[3],
		TownOrCity: fields[4],
		Locality:   fields[5],
		County:     fields[6],
		Country:    fields[7],
		Postcode:   normalized,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
