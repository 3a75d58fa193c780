// Package forecast holds the numerical kernels behind the analysis panel:
// classical additive seasonal decomposition and an automatic ARIMA order
// search. Both operate on plain float slices; callers attach timestamps.
package forecast
