package models

import "time"

// UsageLogEntry is one row of the shared per-minute request log. Minute is
// floored to the UTC minute; at most one row exists per minute.
type UsageLogEntry struct {
	Minute      time.Time `json:"minute" db:"minute"`
	NumRequests int       `json:"numRequests" db:"num_requests"`
}

// UsageCounts mirrors the lookup provider's daily and monthly quota state
type UsageCounts struct {
	UsageToday        int `json:"usageToday"`
	DailyLimit        int `json:"dailyLimit"`
	MonthlyBuffer     int `json:"monthlyBuffer"`
	MonthlyBufferUsed int `json:"monthlyBufferUsed"`
}

// DefaultUsageCounts returns the provider's documented defaults, used when
// no admin key is configured or the usage endpoint denies access.
func DefaultUsageCounts() UsageCounts {
	return UsageCounts{
		UsageToday:        0,
		DailyLimit:        5000,
		MonthlyBuffer:     500,
		MonthlyBufferUsed: 0,
	}
}

// Remaining reports how many full lookups are still available today
func (u UsageCounts) Remaining() int {
	remaining := (u.DailyLimit - u.UsageToday) + (u.MonthlyBuffer - u.MonthlyBufferUsed)
	if remaining < 0 {
		return 0
	}
	return remaining
}
