package domain

import "sort"

// perMillion scales a per-capita rate to accidents per million residents.
const perMillion = 1_000_000

// StateRate is the normalized accident rate for one state and year.
type StateRate struct {
	State      string  `json:"state"`
	Year       int     `json:"year"`
	Count      int     `json:"count"`
	Population int     `json:"population"`
	Rate       float64 `json:"rate"`
}

// ComputeStateRates sums accidents for year and population per state, joins
// the two on state, and returns one rate per joined state sorted by code.
// States with zero summed population cannot be normalized; they are left out
// of rates and listed in skipped.
func ComputeStateRates(accidents []AccidentRecord, population []PopulationRecord, year int) (rates []StateRate, skipped []string) {
	counts := make(map[string]int)
	for _, a := range accidents {
		if a.Year != year {
			continue
		}
		counts[a.State] += a.Count
	}
	if len(counts) == 0 {
		return nil, nil
	}

	pops := make(map[string]int)
	for _, p := range population {
		pops[p.State] += p.Population
	}

	rates = make([]StateRate, 0, len(counts))
	for state, count := range counts {
		pop, ok := pops[state]
		if !ok {
			continue
		}
		if pop <= 0 {
			skipped = append(skipped, state)
			continue
		}
		rates = append(rates, StateRate{
			State:      state,
			Year:       year,
			Count:      count,
			Population: pop,
			Rate:       float64(count) * perMillion / float64(pop),
		})
	}

	sort.Slice(rates, func(i, j int) bool { return rates[i].State < rates[j].State })
	sort.Strings(skipped)
	return rates, skipped
}
