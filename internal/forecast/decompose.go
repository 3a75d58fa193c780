package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientData is returned when a series is shorter than two full
// seasonal cycles.
var ErrInsufficientData = errors.New("not enough data to decompose")

// Decomposition is a classical additive decomposition:
//
//	Observed = Trend + Seasonal + Residual
//
// Trend and Residual hold NaN for the first and last Cycle/2 entries, where
// the centered moving average has no full window.
type Decomposition struct {
	Cycle    int
	Observed []float64
	Trend    []float64
	Seasonal []float64
	Residual []float64
}

// Decompose splits values into trend, seasonal, and residual components using
// a centered moving average of width cycle (a 2×cycle average when cycle is
// even) and per-phase means of the detrended series.
func Decompose(values []float64, cycle int) (Decomposition, error) {
	if cycle < 2 {
		return Decomposition{}, fmt.Errorf("seasonal cycle must be at least 2, got %d", cycle)
	}
	n := len(values)
	if n < 2*cycle {
		return Decomposition{}, fmt.Errorf("%w: have %d observations, need %d", ErrInsufficientData, n, 2*cycle)
	}

	trend := centeredMovingAverage(values, cycle)

	detrended := make([]float64, n)
	for i := range values {
		detrended[i] = values[i] - trend[i]
	}

	phaseMeans := make([]float64, cycle)
	for phase := 0; phase < cycle; phase++ {
		var xs []float64
		for i := phase; i < n; i += cycle {
			if !math.IsNaN(detrended[i]) {
				xs = append(xs, detrended[i])
			}
		}
		phaseMeans[phase] = stat.Mean(xs, nil)
	}
	floats.AddConst(-stat.Mean(phaseMeans, nil), phaseMeans)

	seasonal := make([]float64, n)
	residual := make([]float64, n)
	for i := range values {
		seasonal[i] = phaseMeans[i%cycle]
		residual[i] = detrended[i] - seasonal[i]
	}

	return Decomposition{
		Cycle:    cycle,
		Observed: append([]float64(nil), values...),
		Trend:    trend,
		Seasonal: seasonal,
		Residual: residual,
	}, nil
}

func centeredMovingAverage(values []float64, cycle int) []float64 {
	var weights []float64
	if cycle%2 == 0 {
		weights = make([]float64, cycle+1)
		for i := range weights {
			weights[i] = 1 / float64(cycle)
		}
		weights[0] /= 2
		weights[cycle] /= 2
	} else {
		weights = make([]float64, cycle)
		for i := range weights {
			weights[i] = 1 / float64(cycle)
		}
	}
	half := len(weights) / 2

	out := make([]float64, len(values))
	for i := range out {
		if i < half || i+half >= len(values) {
			out[i] = math.NaN()
			continue
		}
		out[i] = floats.Dot(weights, values[i-half:i+half+1])
	}
	return out
}
