package pipeline

import (
	"github.com/couchcryptid/traffic-eagle/internal/domain"
)

// Panel messages shown in place of, or next to, a chart.
const (
	PlaceholderText           = "Select a state to analyze..."
	NoticeInsufficientData    = "not enough data to decompose"
	NoticeForecastUnavailable = "forecast unavailable"
)

// Series names in an AnalysisResult.
const (
	SeriesAccidents = "accidents"
	SeriesTrend     = "trend"
	SeriesSeasonal  = "seasonal"
	SeriesForecast  = "forecast"
)

// Features toggles the optional stages of the analysis panel.
type Features struct {
	// YearScoped restricts drill-down series to the selected year.
	YearScoped    bool
	Decomposition bool
	Forecasting   bool
	Horizon       int
}

// DefaultFeatures enables everything with a ten-period forecast.
func DefaultFeatures() Features {
	return Features{YearScoped: true, Decomposition: true, Forecasting: true, Horizon: 10}
}

// YearSelected is the map's year-slider event. A zero Year selects the
// earliest year with data.
type YearSelected struct {
	Year int
}

// MapResult is the choropleth input for one year.
type MapResult struct {
	Year  int                `json:"year"`
	Rates []domain.StateRate `json:"rates"`
}

// YearsResult lists the years the map can show.
type YearsResult struct {
	Years   []int `json:"years"`
	Default int   `json:"default"`
}

// AnalysisRequest is the drill-down event: a clicked state plus the period
// and graph-mode selectors. An empty State means nothing was clicked yet.
type AnalysisRequest struct {
	State  string
	Period domain.Period
	Mode   domain.GraphMode
	Year   int
}

// NamedSeries is one line on the analysis chart.
type NamedSeries struct {
	Name   string         `json:"name"`
	Points []domain.Point `json:"points"`
}

// AnalysisResult is what the analysis panel renders. Placeholder is set only
// when no state was selected; Notice carries a recoverable stage failure.
type AnalysisResult struct {
	State       string           `json:"state,omitempty"`
	Label       string           `json:"label,omitempty"`
	Period      domain.Period    `json:"period,omitempty"`
	Mode        domain.GraphMode `json:"mode,omitempty"`
	Year        int              `json:"year,omitempty"`
	Model       string           `json:"model,omitempty"`
	Placeholder string           `json:"placeholder,omitempty"`
	Notice      string           `json:"notice,omitempty"`
	Series      []NamedSeries    `json:"series"`
}

type analysisKey struct {
	state  string
	period domain.Period
	mode   domain.GraphMode
	year   int
}
