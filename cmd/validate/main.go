// Command validate runs integrity checks over the accident and population
// files using the service's own loader and column schema: parse health, join
// coverage between the two tables, per-year rate sanity, and regularity of
// the resampled state series. It prints the rate table for one year and can
// export it to XLSX.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -accidents data/accidents_by_county.csv \
//	  -population data/population_by_county_2019.csv \
//	  -schema schema.yaml \
//	  -year 2019 \
//	  -xlsx rates_2019.xlsx
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/couchcryptid/traffic-eagle/internal/adapter/csvsource"
	"github.com/couchcryptid/traffic-eagle/internal/config"
	"github.com/couchcryptid/traffic-eagle/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	accidentsPath  string
	populationPath string
	schemaPath     string
	year           int
	xlsxPath       string
	maxSkipRatio   float64
	maxRate        float64
}

func main() {
	var opts options
	flag.StringVar(&opts.accidentsPath, "accidents", "data/accidents_by_county.csv", "accident CSV (.csv, .csv.gz, .csv.lz4)")
	flag.StringVar(&opts.populationPath, "population", "data/population_by_county_2019.csv", "population CSV")
	flag.StringVar(&opts.schemaPath, "schema", "", "optional YAML column schema")
	flag.IntVar(&opts.year, "year", 0, "year for the rate table (default: earliest year with data)")
	flag.StringVar(&opts.xlsxPath, "xlsx", "", "write the rate table to this XLSX file")
	flag.Float64Var(&opts.maxSkipRatio, "max-skip", 0.01, "maximum share of unparseable rows per file")
	flag.Float64Var(&opts.maxRate, "max-rate", 100_000, "maximum plausible accidents per million residents per year")
	flag.Parse()

	os.Exit(run(opts))
}

func run(opts options) int {
	fmt.Println("=== Traffic Accident Data Validation ===")
	fmt.Println()

	schema, err := config.LoadSchema(opts.schemaPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	loaded, parsePhase := loadTables(context.Background(), opts, schema)
	if loaded == nil {
		printPhases([]*phase{parsePhase})
		fmt.Println("\nValidation FAILED.")
		return 1
	}

	phases := []*phase{
		parsePhase,
		validateJoinCoverage(loaded),
		validateRates(loaded, opts.maxRate),
		validateSeries(loaded),
	}
	allPassed := printPhases(phases)

	fmt.Println()
	fmt.Printf("Records: %d accident rows, %d population rows, years %v\n",
		len(loaded.Accidents), len(loaded.Population), loaded.Years())

	year := opts.year
	if year == 0 {
		year, _ = loaded.DefaultYear()
	}
	rates, _ := domain.ComputeStateRates(loaded.Accidents, loaded.Population, year)
	fmt.Println()
	fmt.Println(renderRateTable(year, rates))

	if opts.xlsxPath != "" {
		if err := exportRates(opts.xlsxPath, year, rates); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: export xlsx: %v\n", err)
			return 1
		}
		fmt.Printf("Wrote %s\n", opts.xlsxPath)
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func printPhases(phases []*phase) bool {
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}
	return allPassed
}

// ── Phase 1: Schema & Parse ──
// Loads both files with the service loader. A missing column or an empty
// table is fatal; too many unparseable rows fails the phase.

func loadTables(ctx context.Context, opts options, schema config.Schema) (*domain.Tables, *phase) {
	p := &phase{name: "Phase 1: Schema & Parse"}

	var accidents []domain.AccidentRecord
	var accSkipped int
	err := readFile(opts.accidentsPath, func(rc io.Reader) error {
		var err error
		accidents, accSkipped, err = csvsource.ReadAccidents(ctx, rc, schema)
		return err
	})
	if err != nil {
		p.errorf("accidents %s: %v", opts.accidentsPath, err)
	}

	var population []domain.PopulationRecord
	var popSkipped int
	err = readFile(opts.populationPath, func(rc io.Reader) error {
		var err error
		population, popSkipped, err = csvsource.ReadPopulation(ctx, rc, schema)
		return err
	})
	if err != nil {
		p.errorf("population %s: %v", opts.populationPath, err)
	}
	if !p.passed() {
		return nil, p
	}

	checkSkipRatio(p, "accidents", accSkipped, len(accidents), opts.maxSkipRatio)
	checkSkipRatio(p, "population", popSkipped, len(population), opts.maxSkipRatio)

	return domain.NewTables(accidents, population, opts.accidentsPath+" + "+opts.populationPath), p
}

func readFile(path string, read func(io.Reader) error) error {
	if path == "" {
		return errNoPath
	}
	rc, err := csvsource.Open(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	return read(rc)
}

func checkSkipRatio(p *phase, table string, skipped, kept int, maxRatio float64) {
	total := skipped + kept
	if total == 0 || skipped == 0 {
		return
	}
	ratio := float64(skipped) / float64(total)
	if ratio > maxRatio {
		p.errorf("%s: %d of %d rows unparseable (%.2f%% > %.2f%%)", table, skipped, total, ratio*100, maxRatio*100)
	}
}

// ── Phase 2: Join Coverage ──
// Every accident state should have a population, every code should be a
// known state, and no joined state may have zero population.

func validateJoinCoverage(t *domain.Tables) *phase {
	p := &phase{name: "Phase 2: Join Coverage"}

	popByState := map[string]int{}
	for _, r := range t.Population {
		popByState[r.State] += r.Population
	}
	accStates := map[string]bool{}
	for _, r := range t.Accidents {
		accStates[r.State] = true
	}

	for _, s := range sortedKeys(accStates) {
		if !domain.IsKnownState(s) {
			p.errorf("accidents: unknown state code %q", s)
		}
		pop, ok := popByState[s]
		switch {
		case !ok:
			p.errorf("accidents: state %s has no population rows", s)
		case pop == 0:
			p.errorf("population: state %s sums to zero residents", s)
		}
	}
	for _, s := range sortedKeys(popByState) {
		if !domain.IsKnownState(s) {
			p.errorf("population: unknown state code %q", s)
		}
	}
	return p
}

// ── Phase 3: Rate Sanity ──
// Rates must be finite, non-negative, and below a plausibility ceiling, and
// their counts must add up to the joined accident rows.

func validateRates(t *domain.Tables, maxRate float64) *phase {
	p := &phase{name: "Phase 3: Rate Sanity"}

	for _, year := range t.Years() {
		rates, _ := domain.ComputeStateRates(t.Accidents, t.Population, year)
		if len(rates) == 0 {
			p.errorf("%d: no state has both accidents and population", year)
			continue
		}

		joined := map[string]bool{}
		for _, r := range rates {
			joined[r.State] = true
			if math.IsNaN(r.Rate) || math.IsInf(r.Rate, 0) {
				p.errorf("%d %s: rate is not finite", year, r.State)
			}
			if r.Rate < 0 {
				p.errorf("%d %s: negative rate %.3f", year, r.State, r.Rate)
			}
			if r.Rate > maxRate {
				p.errorf("%d %s: rate %.1f exceeds %.0f per million", year, r.State, r.Rate, maxRate)
			}
		}

		want := 0
		for _, a := range t.Accidents {
			if a.Year == year && joined[a.State] {
				want += a.Count
			}
		}
		got := 0
		for _, r := range rates {
			got += r.Count
		}
		if got != want {
			p.errorf("%d: rate counts sum to %d, accident rows sum to %d", year, got, want)
		}
	}
	return p
}

// ── Phase 4: Series Regularity ──
// Each state's resampled series must be evenly spaced on the period grid and
// preserve the state's total count.

func validateSeries(t *domain.Tables) *phase {
	p := &phase{name: "Phase 4: Series Regularity"}

	totals := map[string]int{}
	for _, a := range t.Accidents {
		totals[a.State] += a.Count
	}

	for _, state := range sortedKeys(totals) {
		for _, period := range []domain.Period{domain.PeriodDaily, domain.PeriodWeekly, domain.PeriodMonthly} {
			s := domain.ComputeStateSeries(t.Accidents, state, period, nil)
			sum := 0.0
			for i, pt := range s.Points {
				sum += pt.Value
				if pt.Value < 0 {
					p.errorf("%s/%s: negative bucket at %s", state, period, pt.Time.Format("2006-01-02"))
				}
				if i > 0 && !period.Next(s.Points[i-1].Time).Equal(pt.Time) {
					p.errorf("%s/%s: gap before %s", state, period, pt.Time.Format("2006-01-02"))
				}
			}
			if int(sum) != totals[state] {
				p.errorf("%s/%s: series sums to %.0f, expected %d", state, period, sum, totals[state])
			}
		}
	}
	return p
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var errNoPath = errors.New("path is empty")
