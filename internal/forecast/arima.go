package forecast

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// ErrForecastUnavailable is returned when no model can be fitted to a series.
var ErrForecastUnavailable = errors.New("forecast unavailable")

// kpssCritical5 is the 5% critical value of the KPSS level-stationarity test.
const kpssCritical5 = 0.463

// invalidFit is the objective value for coefficients outside the
// stationary or invertible region.
const invalidFit = 1e300

// Config bounds the automatic order search.
type Config struct {
	MaxP            int
	MaxQ            int
	MaxD            int
	MaxOrder        int // upper bound on p+q
	MinObservations int
	MaxIterations   int // Nelder-Mead iterations per candidate
}

// DefaultConfig searches ARIMA(p,d,q) with p,q ≤ 3, d ≤ 2.
func DefaultConfig() Config {
	return Config{
		MaxP:            3,
		MaxQ:            3,
		MaxD:            2,
		MaxOrder:        5,
		MinObservations: 8,
		MaxIterations:   2000,
	}
}

// Order is a non-seasonal ARIMA order.
type Order struct {
	P, D, Q int
}

func (o Order) String() string {
	return fmt.Sprintf("ARIMA(%d,%d,%d)", o.P, o.D, o.Q)
}

// Model is a fitted ARIMA model ready to forecast.
type Model struct {
	Order    Order
	Mean     float64 // mean of the differenced series; zero when not estimated
	AR       []float64
	MA       []float64
	Sigma2   float64
	AICc     float64
	hasMean  bool
	levels   [][]float64 // levels[k] is the series differenced k times
	residual []float64
}

// AutoARIMA chooses the differencing order with repeated KPSS tests, then fits
// every ARMA(p,q) candidate within cfg on the differenced series and keeps the
// one with the lowest AICc.
func AutoARIMA(values []float64, cfg Config) (*Model, error) {
	if err := checkSeries(values, cfg); err != nil {
		return nil, err
	}

	d := ndiffs(values, cfg.MaxD)

	var best *Model
	for p := 0; p <= cfg.MaxP; p++ {
		for q := 0; q <= cfg.MaxQ; q++ {
			if p+q > cfg.MaxOrder {
				continue
			}
			m, err := fit(values, Order{P: p, D: d, Q: q}, cfg)
			if err != nil {
				continue
			}
			if best == nil || m.AICc < best.AICc {
				best = m
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no candidate model converged", ErrForecastUnavailable)
	}
	return best, nil
}

// Fit estimates a model of the given order by conditional sum of squares.
func Fit(values []float64, order Order, cfg Config) (*Model, error) {
	if err := checkSeries(values, cfg); err != nil {
		return nil, err
	}
	return fit(values, order, cfg)
}

func checkSeries(values []float64, cfg Config) error {
	if len(values) < cfg.MinObservations {
		return fmt.Errorf("%w: have %d observations, need %d", ErrForecastUnavailable, len(values), cfg.MinObservations)
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: series contains non-finite values", ErrForecastUnavailable)
		}
	}
	if floats.Max(values) == floats.Min(values) {
		return fmt.Errorf("%w: series is constant", ErrForecastUnavailable)
	}
	return nil
}

func fit(values []float64, order Order, cfg Config) (*Model, error) {
	levels := [][]float64{append([]float64(nil), values...)}
	for k := 0; k < order.D; k++ {
		levels = append(levels, diff(levels[k]))
	}
	y := levels[order.D]

	m := &Model{
		Order:   order,
		hasMean: order.D < 2,
		levels:  levels,
	}

	nParams := order.P + order.Q
	if m.hasMean {
		nParams++
	}
	// Conditioning drops the first P observations.
	nEff := len(y) - order.P
	k := nParams + 1
	if nEff-k-1 <= 0 {
		return nil, fmt.Errorf("%w: %s needs more observations", ErrForecastUnavailable, order)
	}

	objective := func(x []float64) float64 {
		mu, ar, ma := m.unpack(x)
		if !stationary(ar) || !invertible(ma) {
			return invalidFit
		}
		return css(y, mu, ar, ma, nil)
	}

	x0 := make([]float64, nParams)
	if m.hasMean {
		x0[0] = stat.Mean(y, nil)
	}

	x := x0
	if order.P+order.Q > 0 {
		res, err := optimize.Minimize(optimize.Problem{Func: objective}, x0,
			&optimize.Settings{MajorIterations: cfg.MaxIterations}, &optimize.NelderMead{})
		if res == nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrForecastUnavailable, order, err)
		}
		x = res.X
	}

	sse := objective(x)
	if math.IsNaN(sse) || math.IsInf(sse, 0) || sse >= invalidFit {
		return nil, fmt.Errorf("%w: %s did not converge", ErrForecastUnavailable, order)
	}

	mu, ar, ma := m.unpack(x)
	m.Mean = mu
	m.AR = append([]float64(nil), ar...)
	m.MA = append([]float64(nil), ma...)
	m.residual = make([]float64, len(y))
	css(y, mu, ar, ma, m.residual)

	m.Sigma2 = math.Max(sse/float64(nEff), 1e-12)
	loglik := -0.5 * float64(nEff) * (math.Log(2*math.Pi*m.Sigma2) + 1)
	aic := -2*loglik + 2*float64(k)
	m.AICc = aic + 2*float64(k*(k+1))/float64(nEff-k-1)
	return m, nil
}

func (m *Model) unpack(x []float64) (mu float64, ar, ma []float64) {
	if m.hasMean {
		mu, x = x[0], x[1:]
	}
	return mu, x[:m.Order.P], x[m.Order.P : m.Order.P+m.Order.Q]
}

// Forecast returns point forecasts for the next h steps on the original
// scale. Counts cannot be negative, so forecasts are floored at zero.
func (m *Model) Forecast(h int) []float64 {
	if h <= 0 {
		return nil
	}
	y := m.levels[m.Order.D]
	n := len(y)

	ext := append(append([]float64(nil), y...), make([]float64, h)...)
	res := append(append([]float64(nil), m.residual...), make([]float64, h)...)
	for t := n; t < n+h; t++ {
		v := m.Mean
		for i, phi := range m.AR {
			v += phi * (ext[t-i-1] - m.Mean)
		}
		for j, theta := range m.MA {
			v += theta * res[t-j-1]
		}
		ext[t] = v
	}
	out := ext[n:]

	for k := m.Order.D - 1; k >= 0; k-- {
		prev := m.levels[k][len(m.levels[k])-1]
		for i := range out {
			prev += out[i]
			out[i] = prev
		}
	}

	for i := range out {
		out[i] = math.Max(out[i], 0)
	}
	return out
}

// css returns the conditional sum of squared one-step errors of an ARMA
// model with mean mu. When resid is non-nil the errors are written into it.
func css(y []float64, mu float64, ar, ma []float64, resid []float64) float64 {
	p := len(ar)
	e := resid
	if e == nil {
		e = make([]float64, len(y))
	}
	for i := 0; i < p && i < len(e); i++ {
		e[i] = 0
	}

	var sum float64
	for t := p; t < len(y); t++ {
		pred := mu
		for i, phi := range ar {
			pred += phi * (y[t-i-1] - mu)
		}
		for j, theta := range ma {
			if t-j-1 >= 0 {
				pred += theta * e[t-j-1]
			}
		}
		e[t] = y[t] - pred
		sum += e[t] * e[t]
	}
	return sum
}

// stationary reports whether the AR polynomial 1 - φ₁z - ... - φₚzᵖ has
// all its roots outside the unit circle.
func stationary(ar []float64) bool {
	return rootsInsideUnitCircle(ar)
}

// invertible reports the same for the MA polynomial 1 + θ₁z + ... + θ_qz^q.
func invertible(ma []float64) bool {
	neg := make([]float64, len(ma))
	for i, c := range ma {
		neg[i] = -c
	}
	return rootsInsideUnitCircle(neg)
}

// rootsInsideUnitCircle reports whether every eigenvalue of the companion
// matrix with first row c has modulus below one.
func rootsInsideUnitCircle(c []float64) bool {
	for _, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	switch len(c) {
	case 0:
		return true
	case 1:
		return math.Abs(c[0]) < 1
	}

	n := len(c)
	companion := mat.NewDense(n, n, nil)
	companion.SetRow(0, c)
	for i := 1; i < n; i++ {
		companion.Set(i, i-1, 1)
	}

	var eig mat.Eigen
	if !eig.Factorize(companion, mat.EigenNone) {
		return false
	}
	for _, lambda := range eig.Values(nil) {
		if cmplx.Abs(lambda) >= 1 {
			return false
		}
	}
	return true
}

func diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := range out {
		out[i] = x[i+1] - x[i]
	}
	return out
}

// ndiffs differences x until a KPSS level-stationarity test no longer rejects
// at 5%, up to maxD times.
func ndiffs(x []float64, maxD int) int {
	d := 0
	for d < maxD && len(x) > 3 && kpss(x) > kpssCritical5 {
		x = diff(x)
		d++
	}
	return d
}

// kpss computes the KPSS level-stationarity statistic with a Bartlett
// long-run variance estimate.
func kpss(x []float64) float64 {
	n := len(x)
	mean := stat.Mean(x, nil)
	e := make([]float64, n)
	for i, v := range x {
		e[i] = v - mean
	}

	var s, eta float64
	for _, v := range e {
		s += v
		eta += s * s
	}
	eta /= float64(n * n)

	lags := int(4 * math.Pow(float64(n)/100, 0.25))
	lrv := floats.Dot(e, e) / float64(n)
	for l := 1; l <= lags && l < n; l++ {
		w := 1 - float64(l)/float64(lags+1)
		lrv += 2 * w * floats.Dot(e[l:], e[:n-l]) / float64(n)
	}
	if lrv <= 1e-12 {
		return 0
	}
	return eta / lrv
}
