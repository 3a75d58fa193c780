package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownPeriod = errors.New("unknown period")
	ErrUnknownMode   = errors.New("unknown graph mode")
)

// Period is the resampling granularity of a state series.
type Period string

const (
	PeriodDaily   Period = "D"
	PeriodWeekly  Period = "W"
	PeriodMonthly Period = "M"
)

// ParsePeriod accepts the short codes D/W/M or the long names, case-insensitively.
// An empty string selects daily, matching the dashboard's default.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "d", "day", "daily":
		return PeriodDaily, nil
	case "w", "week", "weekly":
		return PeriodWeekly, nil
	case "m", "month", "monthly":
		return PeriodMonthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
	}
}

// Label is the human-readable name of the period.
func (p Period) Label() string {
	switch p {
	case PeriodDaily:
		return "Daily"
	case PeriodWeekly:
		return "Weekly"
	case PeriodMonthly:
		return "Monthly"
	default:
		return string(p)
	}
}

// Start returns the start of the bucket containing t, in UTC.
func (p Period) Start(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	switch p {
	case PeriodWeekly:
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		// Weekday is 0 for Sunday; ISO weeks start on Monday.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}

// Next returns the start of the bucket after the one starting at t.
func (p Period) Next(t time.Time) time.Time {
	switch p {
	case PeriodWeekly:
		return t.AddDate(0, 0, 7)
	case PeriodMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// SeasonalCycle is the number of buckets in one seasonal cycle.
func (p Period) SeasonalCycle() int {
	switch p {
	case PeriodWeekly:
		return 52
	case PeriodMonthly:
		return 12
	default:
		return 7
	}
}

// GraphMode selects what the analysis panel plots.
type GraphMode string

const (
	ModeData       GraphMode = "data"
	ModeTrend      GraphMode = "trend"
	ModeSeasonal   GraphMode = "seasonal"
	ModePrediction GraphMode = "prediction"
)

// ParseGraphMode is case-insensitive; an empty string selects ModeData.
func ParseGraphMode(s string) (GraphMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "data":
		return ModeData, nil
	case "trend":
		return ModeTrend, nil
	case "seasonal":
		return ModeSeasonal, nil
	case "prediction":
		return ModePrediction, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}
