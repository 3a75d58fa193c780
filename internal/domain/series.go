package domain

import (
	"math"
	"strconv"
	"time"
)

// Point is one timestamped value. A NaN value marks an undefined entry, such
// as the edge windows of a centered moving average, and encodes as JSON null.
type Point struct {
	Time  time.Time
	Value float64
}

// Defined reports whether the point carries a value.
func (p Point) Defined() bool {
	return !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0)
}

// MarshalJSON writes undefined values as null, since JSON has no NaN.
func (p Point) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, `{"time":"`...)
	buf = p.Time.UTC().AppendFormat(buf, time.RFC3339)
	buf = append(buf, `","value":`...)
	if p.Defined() {
		buf = strconv.AppendFloat(buf, p.Value, 'f', -1, 64)
	} else {
		buf = append(buf, "null"...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// StateSeries is a regularized accident count series for one state.
type StateSeries struct {
	State  string
	Period Period
	Points []Point
}

// Len returns the number of buckets.
func (s StateSeries) Len() int { return len(s.Points) }

// Values returns the bucket counts in order.
func (s StateSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Following returns the n bucket starts after the last observed bucket.
func (s StateSeries) Following(n int) []time.Time {
	if len(s.Points) == 0 || n <= 0 {
		return nil
	}
	out := make([]time.Time, n)
	t := s.Points[len(s.Points)-1].Time
	for i := range out {
		t = s.Period.Next(t)
		out[i] = t
	}
	return out
}

// ComputeStateSeries buckets state's accidents by period and fills every
// bucket between the first and last observation, using zero where nothing
// was recorded. When year is non-nil only that year's records are used.
func ComputeStateSeries(accidents []AccidentRecord, state string, period Period, year *int) StateSeries {
	state = NormalizeState(state)
	out := StateSeries{State: state, Period: period, Points: []Point{}}

	sums := make(map[time.Time]int)
	var first, last time.Time
	for _, a := range accidents {
		if a.State != state {
			continue
		}
		if year != nil && a.Year != *year {
			continue
		}
		start := period.Start(a.Date)
		if len(sums) == 0 || start.Before(first) {
			first = start
		}
		if len(sums) == 0 || start.After(last) {
			last = start
		}
		sums[start] += a.Count
	}
	if len(sums) == 0 {
		return out
	}

	for t := first; !t.After(last); t = period.Next(t) {
		out.Points = append(out.Points, Point{Time: t, Value: float64(sums[t])})
	}
	return out
}
