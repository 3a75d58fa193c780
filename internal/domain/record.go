package domain

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// AccidentRecord is one row of the accident table.
type AccidentRecord struct {
	Date   time.Time `json:"date"`
	Year   int       `json:"year"`
	State  string    `json:"state"`
	County string    `json:"county,omitempty"`
	Count  int       `json:"count"`
}

// PopulationRecord is one row of the population table, usually one county.
type PopulationRecord struct {
	State      string `json:"state"`
	County     string `json:"county,omitempty"`
	Population int    `json:"population"`
}

// NormalizeState upper-cases and trims a state code.
func NormalizeState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Tables is the immutable pair of source tables shared by every request.
// Callers must not modify the slices after NewTables returns.
type Tables struct {
	Accidents  []AccidentRecord
	Population []PopulationRecord
	Source     string
	LoadedAt   time.Time

	years []int
}

// NewTables freezes the loaded records. Accidents are sorted by date so
// series extraction walks them in order.
func NewTables(accidents []AccidentRecord, population []PopulationRecord, source string) *Tables {
	acc := slices.Clone(accidents)
	sort.SliceStable(acc, func(i, j int) bool { return acc[i].Date.Before(acc[j].Date) })

	seen := make(map[int]struct{})
	for _, a := range acc {
		seen[a.Year] = struct{}{}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)

	return &Tables{
		Accidents:  acc,
		Population: slices.Clone(population),
		Source:     source,
		LoadedAt:   clock.Now().UTC(),
		years:      years,
	}
}

// Years returns the distinct accident years in ascending order.
func (t *Tables) Years() []int {
	return slices.Clone(t.years)
}

// DefaultYear is the earliest year with data, which the map shows first.
func (t *Tables) DefaultYear() (int, bool) {
	if len(t.years) == 0 {
		return 0, false
	}
	return t.years[0], true
}

// HasYear reports whether any accident falls in year.
func (t *Tables) HasYear(year int) bool {
	_, ok := slices.BinarySearch(t.years, year)
	return ok
}

// Empty reports whether either table has no rows.
func (t *Tables) Empty() bool {
	return len(t.Accidents) == 0 || len(t.Population) == 0
}
