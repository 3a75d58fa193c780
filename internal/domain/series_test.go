package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStateSeries(t *testing.T) {
	t.Run("daily gap is zero filled", func(t *testing.T) {
		accidents := []AccidentRecord{
			accident(date(2020, 1, 1), "CA", 4),
			accident(date(2020, 1, 3), "CA", 6),
		}

		s := ComputeStateSeries(accidents, "CA", PeriodDaily, nil)

		want := []Point{
			{Time: date(2020, 1, 1), Value: 4},
			{Time: date(2020, 1, 2), Value: 0},
			{Time: date(2020, 1, 3), Value: 6},
		}
		if diff := cmp.Diff(want, s.Points); diff != "" {
			t.Errorf("points mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("sums records in the same bucket", func(t *testing.T) {
		accidents := []AccidentRecord{
			accident(date(2020, 1, 1), "CA", 4),
			{Date: time.Date(2020, 1, 1, 17, 30, 0, 0, time.UTC), Year: 2020, State: "CA", County: "Kern", Count: 2},
			accident(date(2020, 1, 1), "NY", 50),
		}

		s := ComputeStateSeries(accidents, "CA", PeriodDaily, nil)

		require.Len(t, s.Points, 1)
		assert.Equal(t, 6.0, s.Points[0].Value)
	})

	t.Run("weekly buckets start on Monday", func(t *testing.T) {
		// 2020-01-01 and 2020-01-15 are Wednesdays.
		accidents := []AccidentRecord{
			accident(date(2020, 1, 1), "CA", 1),
			accident(date(2020, 1, 15), "CA", 2),
			accident(date(2020, 1, 19), "CA", 3),
		}

		s := ComputeStateSeries(accidents, "CA", PeriodWeekly, nil)

		want := []Point{
			{Time: date(2019, 12, 30), Value: 1},
			{Time: date(2020, 1, 6), Value: 0},
			{Time: date(2020, 1, 13), Value: 5},
		}
		if diff := cmp.Diff(want, s.Points); diff != "" {
			t.Errorf("points mismatch (-want +got):\n%s", diff)
		}
		for _, p := range s.Points {
			assert.Equal(t, time.Monday, p.Time.Weekday())
		}
	})

	t.Run("monthly buckets start on the first", func(t *testing.T) {
		accidents := []AccidentRecord{
			accident(date(2020, 1, 15), "CA", 1),
			accident(date(2020, 3, 2), "CA", 2),
		}

		s := ComputeStateSeries(accidents, "CA", PeriodMonthly, nil)

		want := []Point{
			{Time: date(2020, 1, 1), Value: 1},
			{Time: date(2020, 2, 1), Value: 0},
			{Time: date(2020, 3, 1), Value: 2},
		}
		if diff := cmp.Diff(want, s.Points); diff != "" {
			t.Errorf("points mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("year scoping", func(t *testing.T) {
		accidents := []AccidentRecord{
			accident(date(2019, 12, 31), "CA", 9),
			accident(date(2020, 1, 2), "CA", 1),
		}
		year := 2020

		scoped := ComputeStateSeries(accidents, "CA", PeriodDaily, &year)
		all := ComputeStateSeries(accidents, "CA", PeriodDaily, nil)

		require.Len(t, scoped.Points, 1)
		assert.Equal(t, date(2020, 1, 2), scoped.Points[0].Time)
		assert.Len(t, all.Points, 3)
	})

	t.Run("state code is normalized", func(t *testing.T) {
		accidents := []AccidentRecord{accident(date(2020, 1, 1), "CA", 4)}

		s := ComputeStateSeries(accidents, " ca ", PeriodDaily, nil)

		assert.Equal(t, "CA", s.State)
		assert.Len(t, s.Points, 1)
	})

	t.Run("unknown state yields empty series", func(t *testing.T) {
		accidents := []AccidentRecord{accident(date(2020, 1, 1), "CA", 4)}

		s := ComputeStateSeries(accidents, "NV", PeriodDaily, nil)

		assert.Zero(t, s.Len())
		assert.Nil(t, s.Following(3))

		data, err := json.Marshal(s.Points)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(data))
	})
}

func TestComputeStateSeries_EvenlySpaced(t *testing.T) {
	var accidents []AccidentRecord
	for i := 0; i < 400; i += 3 {
		accidents = append(accidents, accident(date(2019, 1, 1).AddDate(0, 0, i), "OH", i%5))
	}

	for _, period := range []Period{PeriodDaily, PeriodWeekly, PeriodMonthly} {
		t.Run(period.Label(), func(t *testing.T) {
			s := ComputeStateSeries(accidents, "OH", period, nil)

			require.NotEmpty(t, s.Points)
			total := 0.0
			for i, p := range s.Points {
				total += p.Value
				if i == 0 {
					continue
				}
				assert.Equal(t, period.Next(s.Points[i-1].Time), p.Time)
			}

			want := 0
			for _, a := range accidents {
				want += a.Count
			}
			assert.Equal(t, float64(want), total)
		})
	}
}

func TestStateSeries_Following(t *testing.T) {
	s := StateSeries{
		Period: PeriodMonthly,
		Points: []Point{{Time: date(2020, 11, 1)}, {Time: date(2020, 12, 1)}},
	}

	got := s.Following(3)

	assert.Equal(t, []time.Time{date(2021, 1, 1), date(2021, 2, 1), date(2021, 3, 1)}, got)
}

func TestPoint_MarshalJSON(t *testing.T) {
	data, err := json.Marshal([]Point{
		{Time: date(2020, 1, 1), Value: 2.5},
		{Time: date(2020, 1, 2), Value: math.NaN()},
	})

	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"time":"2020-01-01T00:00:00Z","value":2.5},
		{"time":"2020-01-02T00:00:00Z","value":null}
	]`, string(data))
}
