// Package domain models U.S. traffic-accident counts and the two derived
// views served by the dashboard: per-state accident rates and per-state
// time series.
//
// # Data Sources
//
// Two tables are loaded once at process start and never mutated afterwards:
//
//	accidents:  Date, Year, State, [County], Count
//	population: State, [County], Population
//
// Accident files exist at both state and county granularity; the loader maps
// columns through a configurable schema so either layout works. Population is
// a single snapshot (one row per county) and is summed per state, so the same
// denominator is used for every year.
//
// # Accident Rates
//
// [ComputeStateRates] filters accidents to one year, sums Count per state,
// sums Population per state, and inner-joins the two:
//
//	Rate = Count / Population × 1,000,000
//
// States present in only one table are dropped. States whose summed
// population is zero are omitted from the result and returned separately so
// the caller can count them.
//
// # Time Series
//
// [ComputeStateSeries] buckets one state's records by [Period]:
//
//	D  calendar day (UTC)
//	W  week starting Monday (ISO week)
//	M  calendar month
//
// Buckets are then regularized onto a contiguous grid from the first to the
// last observed bucket. Buckets with no records get a count of zero; values
// are never carried forward.
//
// Seasonal cycle lengths used by decomposition are 7 (daily), 52 (weekly),
// and 12 (monthly). See [Period.SeasonalCycle].
//
// # State Codes
//
// State codes are two-letter USPS abbreviations, normalized to upper case at
// load time. [StateName] maps a code to the display label shown above the
// analysis panel.
package domain
