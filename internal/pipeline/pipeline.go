package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/traffic-eagle/internal/cache"
	"github.com/couchcryptid/traffic-eagle/internal/domain"
	"github.com/couchcryptid/traffic-eagle/internal/forecast"
	"github.com/couchcryptid/traffic-eagle/internal/observability"
)

var (
	ErrNotReady     = errors.New("source tables are not loaded")
	ErrModeDisabled = errors.New("graph mode is disabled")
)

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithCacheSize bounds the number of memoized results per handler. Zero
// disables caching.
func WithCacheSize(n int) Option {
	return func(p *Pipeline) {
		p.rates = cache.New[int, MapResult](n)
		p.analyses = cache.New[analysisKey, AnalysisResult](n)
	}
}

// WithForecastConfig overrides the ARIMA order search bounds.
func WithForecastConfig(cfg forecast.Config) Option {
	return func(p *Pipeline) { p.forecastCfg = cfg }
}

// Pipeline serves the map and analysis-panel events from the immutable
// source tables. Handlers are safe for concurrent use. Results may be shared
// with the cache and must not be modified by callers.
type Pipeline struct {
	tables      atomic.Pointer[domain.Tables]
	features    Features
	forecastCfg forecast.Config
	rates       *cache.LRU[int, MapResult]
	analyses    *cache.LRU[analysisKey, AnalysisResult]
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates a Pipeline. Handlers return ErrNotReady until Attach is called.
func New(features Features, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	if features.Horizon <= 0 {
		features.Horizon = DefaultFeatures().Horizon
	}
	p := &Pipeline{
		features:    features,
		forecastCfg: forecast.DefaultConfig(),
		logger:      logger,
		metrics:     metrics,
	}
	WithCacheSize(256)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Attach publishes the loaded tables. It is called once at startup.
func (p *Pipeline) Attach(t *domain.Tables) {
	p.tables.Store(t)
	p.metrics.TablesReady.Set(1)
	p.logger.Info("source tables attached",
		"source", t.Source,
		"accidents", len(t.Accidents),
		"population", len(t.Population),
		"years", t.Years(),
	)
}

// CheckReadiness returns nil once non-empty tables are attached.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	t := p.tables.Load()
	if t == nil {
		return ErrNotReady
	}
	if t.Empty() {
		return errors.New("source tables are empty")
	}
	return nil
}

// Features reports the enabled stages.
func (p *Pipeline) Features() Features {
	return p.features
}

func (p *Pipeline) current() (*domain.Tables, error) {
	t := p.tables.Load()
	if t == nil {
		return nil, ErrNotReady
	}
	return t, nil
}

// Years lists the years with accident data and the map's initial year.
func (p *Pipeline) Years() (YearsResult, error) {
	t, err := p.current()
	if err != nil {
		return YearsResult{}, err
	}
	def, _ := t.DefaultYear()
	return YearsResult{Years: t.Years(), Default: def}, nil
}

// SelectYear computes the accident rate per million residents for every state
// present in both tables.
func (p *Pipeline) SelectYear(ctx context.Context, ev YearSelected) (MapResult, error) {
	t, err := p.current()
	if err != nil {
		return MapResult{}, err
	}
	year := ev.Year
	if year == 0 {
		year, _ = t.DefaultYear()
	}

	if res, ok := p.rates.Get(year); ok {
		p.metrics.AnalysisCache.WithLabelValues("rates", "hit").Inc()
		return res, nil
	}
	p.metrics.AnalysisCache.WithLabelValues("rates", "miss").Inc()

	if err := ctx.Err(); err != nil {
		return MapResult{}, err
	}

	start := time.Now()
	rates, skipped := domain.ComputeStateRates(t.Accidents, t.Population, year)
	p.observe("rates", start, "ok")

	if len(skipped) > 0 {
		p.metrics.ZeroPopulationStates.Add(float64(len(skipped)))
		p.logger.Debug("states omitted for zero population", "year", year, "states", skipped)
	}
	if rates == nil {
		rates = []domain.StateRate{}
	}

	res := MapResult{Year: year, Rates: rates}
	p.rates.Put(year, res)
	return res, nil
}

// Analyze builds the drill-down panel for one state. Decomposition and
// forecast failures are reported in the result's Notice rather than as errors.
func (p *Pipeline) Analyze(ctx context.Context, req AnalysisRequest) (AnalysisResult, error) {
	state := domain.NormalizeState(req.State)
	if state == "" {
		return AnalysisResult{Placeholder: PlaceholderText, Series: []NamedSeries{}}, nil
	}

	t, err := p.current()
	if err != nil {
		return AnalysisResult{}, err
	}

	period := req.Period
	if period == "" {
		period = domain.PeriodDaily
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeData
	}
	if err := p.checkMode(mode); err != nil {
		return AnalysisResult{}, err
	}

	// A single year holds fewer than two weekly or monthly cycles, so
	// decompositions always span the state's full history.
	var yearFilter *int
	year := 0
	if p.features.YearScoped && !decomposes(mode) {
		year = req.Year
		if year == 0 {
			year, _ = t.DefaultYear()
		}
		yearFilter = &year
	}

	key := analysisKey{state: state, period: period, mode: mode, year: year}
	if res, ok := p.analyses.Get(key); ok {
		p.metrics.AnalysisCache.WithLabelValues("analysis", "hit").Inc()
		return res, nil
	}
	p.metrics.AnalysisCache.WithLabelValues("analysis", "miss").Inc()

	start := time.Now()
	series := domain.ComputeStateSeries(t.Accidents, state, period, yearFilter)
	p.observe("series", start, "ok")

	if err := ctx.Err(); err != nil {
		return AnalysisResult{}, err
	}

	res := AnalysisResult{
		State:  state,
		Label:  domain.StateName(state),
		Period: period,
		Mode:   mode,
		Year:   year,
	}

	switch mode {
	case domain.ModeData:
		res.Series = []NamedSeries{{Name: SeriesAccidents, Points: series.Points}}
	case domain.ModeTrend, domain.ModeSeasonal:
		p.addDecomposition(&res, series)
	case domain.ModePrediction:
		p.addForecast(&res, series)
	default:
		return AnalysisResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
	}

	p.analyses.Put(key, res)
	return res, nil
}

func (p *Pipeline) checkMode(mode domain.GraphMode) error {
	switch mode {
	case domain.ModeTrend, domain.ModeSeasonal:
		if !p.features.Decomposition {
			return fmt.Errorf("%w: %s", ErrModeDisabled, mode)
		}
	case domain.ModePrediction:
		if !p.features.Forecasting {
			return fmt.Errorf("%w: %s", ErrModeDisabled, mode)
		}
	}
	return nil
}

func decomposes(mode domain.GraphMode) bool {
	return mode == domain.ModeTrend || mode == domain.ModeSeasonal
}

func (p *Pipeline) addDecomposition(res *AnalysisResult, series domain.StateSeries) {
	start := time.Now()
	d, err := forecast.Decompose(series.Values(), series.Period.SeasonalCycle())
	if err != nil {
		p.observe("decompose", start, "notice")
		p.logger.Debug("decomposition unavailable", "state", series.State, "period", series.Period, "error", err)
		res.Notice = NoticeInsufficientData
		res.Series = []NamedSeries{}
		return
	}
	p.observe("decompose", start, "ok")

	name, values := SeriesTrend, d.Trend
	if res.Mode == domain.ModeSeasonal {
		name, values = SeriesSeasonal, d.Seasonal
	}
	points := make([]domain.Point, len(series.Points))
	for i, pt := range series.Points {
		points[i] = domain.Point{Time: pt.Time, Value: values[i]}
	}
	res.Series = []NamedSeries{{Name: name, Points: points}}
}

func (p *Pipeline) addForecast(res *AnalysisResult, series domain.StateSeries) {
	res.Series = []NamedSeries{{Name: SeriesAccidents, Points: series.Points}}

	start := time.Now()
	model, err := forecast.AutoARIMA(series.Values(), p.forecastCfg)
	if err != nil {
		p.observe("forecast", start, "notice")
		p.logger.Debug("forecast unavailable", "state", series.State, "period", series.Period, "error", err)
		res.Notice = NoticeForecastUnavailable
		return
	}

	h := p.features.Horizon
	values := model.Forecast(h)
	times := series.Following(h)
	points := make([]domain.Point, h)
	for i := range points {
		points[i] = domain.Point{Time: times[i], Value: values[i]}
	}
	p.observe("forecast", start, "ok")

	res.Model = model.Order.String()
	res.Series = append(res.Series, NamedSeries{Name: SeriesForecast, Points: points})
}

func (p *Pipeline) observe(op string, start time.Time, outcome string) {
	p.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	p.metrics.Operations.WithLabelValues(op, outcome).Inc()
}
