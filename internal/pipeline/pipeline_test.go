package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/traffic-eagle/internal/domain"
	"github.com/couchcryptid/traffic-eagle/internal/observability"
	"github.com/couchcryptid/traffic-eagle/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type staticSource struct {
	accidents  []domain.AccidentRecord
	population []domain.PopulationRecord
	failures   int
	calls      atomic.Int64
}

func (s *staticSource) LoadAccidents(_ context.Context) ([]domain.AccidentRecord, error) {
	if int(s.calls.Add(1)) <= s.failures {
		return nil, errors.New("broker unavailable")
	}
	return s.accidents, nil
}

func (s *staticSource) LoadPopulation(_ context.Context) ([]domain.PopulationRecord, error) {
	return s.population, nil
}

func (s *staticSource) Describe() string { return "static" }

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rec(d time.Time, state string, count int) domain.AccidentRecord {
	return domain.AccidentRecord{Date: d, Year: d.Year(), State: state, Count: count}
}

func scenarioTables() *domain.Tables {
	return domain.NewTables(
		[]domain.AccidentRecord{
			rec(day(2019, 1, 1), "CA", 5),
			rec(day(2019, 6, 1), "CA", 3),
			rec(day(2019, 1, 1), "NY", 2),
			rec(day(2020, 1, 1), "NY", 7),
		},
		[]domain.PopulationRecord{
			{State: "CA", Population: 1_000_000},
			{State: "NY", Population: 500_000},
			{State: "WY", Population: 0},
		},
		"scenario",
	)
}

// dailyTables has 60 days of Texas accidents in 2021 with a weekly rhythm.
func dailyTables() *domain.Tables {
	weekly := []int{9, 12, 11, 10, 14, 6, 4}
	var acc []domain.AccidentRecord
	for i := 0; i < 60; i++ {
		d := day(2021, 1, 1).AddDate(0, 0, i)
		acc = append(acc, rec(d, "TX", weekly[i%7]+(i*7)%5))
	}
	acc = append(acc, rec(day(2021, 1, 5), "OK", 1))
	return domain.NewTables(acc, []domain.PopulationRecord{{State: "TX", Population: 29_000_000}}, "daily")
}

func newPipeline(t *testing.T, tables *domain.Tables, features pipeline.Features, opts ...pipeline.Option) (*pipeline.Pipeline, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	p := pipeline.New(features, discardLogger(), m, opts...)
	if tables != nil {
		p.Attach(tables)
	}
	return p, m
}

// --- tests ---

func TestSelectYear_RatesPerMillion(t *testing.T) {
	p, m := newPipeline(t, scenarioTables(), pipeline.DefaultFeatures())

	res, err := p.SelectYear(context.Background(), pipeline.YearSelected{Year: 2019})
	require.NoError(t, err)

	require.Len(t, res.Rates, 2)
	assert.Equal(t, 2019, res.Year)
	assert.Equal(t, "CA", res.Rates[0].State)
	assert.Equal(t, 8.0, res.Rates[0].Rate)
	assert.Equal(t, "NY", res.Rates[1].State)
	assert.Equal(t, 4.0, res.Rates[1].Rate)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("rates", "ok")))
}

func TestSelectYear_DefaultsToEarliestYear(t *testing.T) {
	p, _ := newPipeline(t, scenarioTables(), pipeline.DefaultFeatures())

	res, err := p.SelectYear(context.Background(), pipeline.YearSelected{})
	require.NoError(t, err)
	assert.Equal(t, 2019, res.Year)

	years, err := p.Years()
	require.NoError(t, err)
	assert.Equal(t, pipeline.YearsResult{Years: []int{2019, 2020}, Default: 2019}, years)
}

func TestSelectYear_UnknownYearIsEmpty(t *testing.T) {
	p, _ := newPipeline(t, scenarioTables(), pipeline.DefaultFeatures())

	res, err := p.SelectYear(context.Background(), pipeline.YearSelected{Year: 1999})
	require.NoError(t, err)
	assert.NotNil(t, res.Rates)
	assert.Empty(t, res.Rates)
}

func TestSelectYear_ZeroPopulationCounted(t *testing.T) {
	tables := domain.NewTables(
		[]domain.AccidentRecord{rec(day(2019, 1, 1), "WY", 3), rec(day(2019, 1, 1), "CA", 1)},
		[]domain.PopulationRecord{{State: "WY", Population: 0}, {State: "CA", Population: 10}},
		"zero",
	)
	p, m := newPipeline(t, tables, pipeline.DefaultFeatures())

	res, err := p.SelectYear(context.Background(), pipeline.YearSelected{Year: 2019})
	require.NoError(t, err)

	require.Len(t, res.Rates, 1)
	assert.Equal(t, "CA", res.Rates[0].State)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ZeroPopulationStates))
}

func TestSelectYear_Cached(t *testing.T) {
	p, m := newPipeline(t, scenarioTables(), pipeline.DefaultFeatures())

	_, err := p.SelectYear(context.Background(), pipeline.YearSelected{Year: 2019})
	require.NoError(t, err)
	_, err = p.SelectYear(context.Background(), pipeline.YearSelected{Year: 2019})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisCache.WithLabelValues("rates", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisCache.WithLabelValues("rates", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("rates", "ok")))
}

func TestAnalyze_Placeholder(t *testing.T) {
	p, _ := newPipeline(t, nil, pipeline.DefaultFeatures())

	res, err := p.Analyze(context.Background(), pipeline.AnalysisRequest{Period: domain.PeriodWeekly})
	require.NoError(t, err)

	assert.Equal(t, "Select a state to analyze...", res.Placeholder)
	assert.Empty(t, res.Series)
	assert.Empty(t, res.State)
}

func TestAnalyze_NotReady(t *testing.T) {
	p, _ := newPipeline(t, nil, pipeline.DefaultFeatures())

	_, err := p.Analyze(context.Background(), pipeline.AnalysisRequest{State: "CA"})
	require.ErrorIs(t, err, pipeline.ErrNotReady)

	_, err = p.SelectYear(context.Background(), pipeline.YearSelected{Year: 2019})
	require.ErrorIs(t, err, pipeline.ErrNotReady)

	require.ErrorIs(t, p.CheckReadiness(context.Background()), pipeline.ErrNotReady)
}

func TestAnalyze_Data(t *testing.T) {
	tables := domain.NewTables(
		[]domain.AccidentRecord{rec(day(2020, 1, 1), "CA", 4), rec(day(2020, 1, 3), "CA", 6)},
		[]domain.PopulationRecord{{State: "CA", Population: 1}},
		"gap",
	)
	p, _ := newPipeline(t, tables, pipeline.DefaultFeatures())

	res, err := p.Analyze(context.Background(), pipeline.AnalysisRequest{State: "ca", Period: domain.PeriodDaily})
	require.NoError(t, err)

	assert.Equal(t, "CA", res.State)
	assert.Equal(t, "California", res.Label)
	assert.Equal(t, domain.ModeData, res.Mode)
	assert.Equal(t, 2020, res.Year)
	assert.Empty(t, res.Notice)
	require.Len(t, res.Series, 1)
	assert.Equal(t, pipeline.SeriesAccidents, res.Series[0].Name)
	require.Len(t, res.Series[0].Points, 3)
	assert.Equal(t, 0.0, res.Series[0].Points[1].Value)
}

func TestAnalyze_YearScoping(t *testing.T) {
	tables := scenarioTables()

	scoped, _ := newPipeline(t, tables, pipeline.DefaultFeatures())
	res, err := scoped.Analyze(context.Background(), pipeline.AnalysisRequest{State: "NY", Period: domain.PeriodMonthly, Year: 2020})
	require.NoError(t, err)
	require.Len(t, res.Series[0].Points, 1)
	assert.Equal(t, day(2020, 1, 1), res.Series[0].Points[0].Time)

	features := pipeline.DefaultFeatures()
	features.YearScoped = false
	allYears, _ := newPipeline(t, tables, features)
	res, err = allYears.Analyze(context.Background(), pipeline.AnalysisRequest{State: "NY", Period: domain.PeriodMonthly, Year: 2020})
	require.NoError(t, err)
	assert.Len(t, res.Series[0].Points, 13)
	assert.Zero(t, res.Year)
}

func TestAnalyze_Trend(t *testing.T) {
	p, m := newPipeline(t, dailyTables(), pipeline.DefaultFeatures())

	res, err := p.Analyze(context.Background(), pipeline.AnalysisRequest{State: "TX", Mode: domain.ModeTrend})
	require.NoError(t, err)

	assert.Empty(t, res.Notice)
	require.Len(t, res.Series, 1)
	assert.Equal(t, pipeline.SeriesTrend, res.Series[0].Name)
	points := res.Series[0].Points
	require.Len(t, points, 60)
	for _, i := range []int{0, 1, 2, 57, 58, 59} {
		assert.False(t, points[i].Defined(), "edge %d should be undefined", i)
	}
	for i := 3; i < 57; i++ {
		assert.True(t, points[i].Defined(), "point %d should be defined", i)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("decompose", "ok")))
}

func TestAnalyze_Seasonal(t *testing.T) {
	p, _ := newPipeline(t, dailyTables(), pipeline.DefaultFeatures())

	res, err := p.Analyze(context.Background(), pipeline.AnalysisRequest{State: "TX", Mode: domain.ModeSeasonal})
	require.NoError(t, err)

	require.Len(t, res.Series, 1)
	assert.Equal(t, pipeline.SeriesSeasonal, res.Series[0].Name)
	points := res.Series[0].Points
	var cycle float64
	for i := 0; i < 7; i++ {
		require.True(t, points[i].Defined())
		cycle += points[i].Value
		assert.InDelta(t, points[i].Value, points[i+7].Value, 1e-9)
	}
	assert.InDelta(t, 0, cycle, 1e-9)
}

func TestAnalyze_DecompositionSpansAllYears(t *testing.T) {
	var acc []domain.AccidentRecord
	for m := 0; m < 48; m++ {
		d := day(2016, 1, 1).AddDate(0, m, 0)
		acc = append(acc, rec(d, "TX", 100+10*(m%12)+m))
	}
	tables := domain.NewTables(acc, []domain.PopulationRecord{{State: "TX", Population: 29_000_000}}, "monthly")
	p, _ := newPipeline(t, tables, pipeline.DefaultFeatures())

	for _, mode := range []domain.GraphMode{domain.ModeTrend, domain.ModeSeasonal} {
		t.Run(string(mode), func(t *testing.T) {
			res, err := p.Analyze(context.Background(), pipeline.AnalysisRequest{
				State: "TX", Period: domain.PeriodMonthly, Mode: mode, Year: 2019,
			})
			require.NoError(t, err)

			assert.Empty(t, res.Notice)
			assert.Zero(t, res.Year)
			require.Len(t, res.Series, 1)
			require.Len(t, res.Series[0].Points, 48)
			assert.Equal(t, day(2016, 1, 1), res.Series[0].Points[0].Time)
			assert.True(t, res.Series[0].Points[24].Defined())
		})
	}

	res, err := p.Analyze(context.Background(), pipeline.AnalysisRequest{
		State: "TX", Period: domain.PeriodMonthly, Mode: domain.ModeData, Year: 2019,
	})
	require.NoError(t, err)
	assert.Equal(t, 2019, res.Year)
	assert.Len(t, res.Series[0].Points, 12)
}

func TestAnalyze_InsufficientDataNotice(t *testing.T) {
	p, m := newPipeline(t, dailyTables(), pipeline.DefaultFeatures())

	res, err := p.Analyze(context.Background(), pipeline.AnalysisRequest{State: "OK", Mode: domain.ModeTrend})
	require.NoError(t, err)

	assert.Equal(t, "not enough data to decompose", res.Notice)
	assert.Empty(t, res.Series)
	assert.Equal(t, "Oklahoma", res.Label)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("decompose", "notice")))
}

func TestAnalyze_Prediction(t *testing.T) {
	p, _ := newPipeline(t, dailyTables(), pipeline.DefaultFeatures())

	res, err := p.Analyze(context.Background(), pipeline.AnalysisRequest{State: "TX", Mode: domain.ModePrediction})
	require.NoError(t, err)

	assert.Empty(t, res.Notice)
	assert.NotEmpty(t, res.Model)
	require.Len(t, res.Series, 2)
	assert.Equal(t, pipeline.SeriesAccidents, res.Series[0].Name)
	assert.Equal(t, pipeline.SeriesForecast, res.Series[1].Name)

	observed := res.Series[0].Points
	predicted := res.Series[1].Points
	require.Len(t, observed, 60)
	require.Len(t, predicted, 10)
	last := observed[len(observed)-1].Time
	for i, pt := range predicted {
		assert.Equal(t, last.AddDate(0, 0, i+1), pt.Time)
		assert.False(t, math.IsNaN(pt.Value))
		assert.GreaterOrEqual(t, pt.Value, 0.0)
	}
}

func TestAnalyze_ForecastUnavailableNotice(t *testing.T) {
	var acc []domain.AccidentRecord
	for i := 0; i < 30; i++ {
		acc = append(acc, rec(day(2021, 3, 1).AddDate(0, 0, i), "VT", 2))
	}
	tables := domain.NewTables(acc, []domain.PopulationRecord{{State: "VT", Population: 640_000}}, "flat")
	p, _ := newPipeline(t, tables, pipeline.DefaultFeatures())

	res, err := p.Analyze(context.Background(), pipeline.AnalysisRequest{State: "VT", Mode: domain.ModePrediction})
	require.NoError(t, err)

	assert.Equal(t, "forecast unavailable", res.Notice)
	require.Len(t, res.Series, 1)
	assert.Equal(t, pipeline.SeriesAccidents, res.Series[0].Name)
	assert.Len(t, res.Series[0].Points, 30)
}

func TestAnalyze_ModeDisabled(t *testing.T) {
	features := pipeline.Features{YearScoped: true, Horizon: 10}
	p, _ := newPipeline(t, dailyTables(), features)

	for _, mode := range []domain.GraphMode{domain.ModeTrend, domain.ModeSeasonal, domain.ModePrediction} {
		_, err := p.Analyze(context.Background(), pipeline.AnalysisRequest{State: "TX", Mode: mode})
		require.ErrorIs(t, err, pipeline.ErrModeDisabled, mode)
	}

	_, err := p.Analyze(context.Background(), pipeline.AnalysisRequest{State: "TX", Mode: domain.ModeData})
	require.NoError(t, err)
}

func TestAnalyze_Cached(t *testing.T) {
	p, m := newPipeline(t, dailyTables(), pipeline.DefaultFeatures())
	req := pipeline.AnalysisRequest{State: "TX", Period: domain.PeriodWeekly}

	first, err := p.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("series", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisCache.WithLabelValues("analysis", "hit")))
}

func TestAnalyze_CacheDisabled(t *testing.T) {
	p, m := newPipeline(t, dailyTables(), pipeline.DefaultFeatures(), pipeline.WithCacheSize(0))
	req := pipeline.AnalysisRequest{State: "TX"}

	for i := 0; i < 2; i++ {
		_, err := p.Analyze(context.Background(), req)
		require.NoError(t, err)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("series", "ok")))
}

func TestAnalyze_CancelledContext(t *testing.T) {
	p, _ := newPipeline(t, dailyTables(), pipeline.DefaultFeatures())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Analyze(ctx, pipeline.AnalysisRequest{State: "TX"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadTables(t *testing.T) {
	src := &staticSource{
		accidents:  []domain.AccidentRecord{rec(day(2020, 1, 1), "CA", 1)},
		population: []domain.PopulationRecord{{State: "CA", Population: 5}},
	}

	tables, err := pipeline.LoadTables(context.Background(), src, src)
	require.NoError(t, err)

	assert.Len(t, tables.Accidents, 1)
	assert.Len(t, tables.Population, 1)
	assert.Equal(t, "static + static", tables.Source)
}

func TestLoadAndAttach_RetriesUntilLoaded(t *testing.T) {
	src := &staticSource{
		accidents:  []domain.AccidentRecord{rec(day(2020, 1, 1), "CA", 1)},
		population: []domain.PopulationRecord{{State: "CA", Population: 5}},
		failures:   1,
	}
	p, m := newPipeline(t, nil, pipeline.DefaultFeatures())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.LoadAndAttach(ctx, src, src))

	assert.Equal(t, int64(2), src.calls.Load())
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TablesReady))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsLoaded.WithLabelValues("accidents")))
}

func TestLoadAndAttach_StopsOnCancel(t *testing.T) {
	src := &staticSource{failures: math.MaxInt32}
	p, _ := newPipeline(t, nil, pipeline.DefaultFeatures())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := p.LoadAndAttach(ctx, src, src)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Error(t, p.CheckReadiness(context.Background()))
}
