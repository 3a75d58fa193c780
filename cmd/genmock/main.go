// Command genmock writes deterministic accident and population CSV fixtures
// in the default column layout, and can replay the accidents onto Kafka for
// the ACCIDENTS_SOURCE=kafka mode. The same seed always yields the same files.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out-dir data/mock \
//	  -states CA,NY,TX,FL,OH \
//	  -from 2016-01-01 -to 2020-12-31 \
//	  -seasonal \
//	  -publish -brokers localhost:9092 -topic traffic-accidents
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	kafkaadapter "github.com/couchcryptid/traffic-eagle/internal/adapter/kafka"
	"github.com/couchcryptid/traffic-eagle/internal/config"
	"github.com/couchcryptid/traffic-eagle/internal/domain"
	"github.com/jonboulle/clockwork"
)

// countiesPerState is the number of synthetic counties generated per state.
const countiesPerState = 3

// dailyPerMillion is the mean accident count per million residents per day.
const dailyPerMillion = 2.5

// basePopulation is each state's synthetic population, split across counties.
var basePopulation = map[string]int{
	"CA": 39_500_000,
	"TX": 29_000_000,
	"FL": 21_500_000,
	"NY": 19_450_000,
	"OH": 11_700_000,
	"WA": 7_600_000,
	"CO": 5_750_000,
	"WY": 578_000,
}

// Output file names match the ACCIDENTS_PATH and POPULATION_PATH defaults.
const (
	accidentsFile  = "accidents_by_county.csv"
	populationFile = "population_by_county_2019.csv"
)

// weekdayFactor scales the daily mean, Sunday first.
var weekdayFactor = [7]float64{0.7, 1.05, 1.0, 1.0, 1.1, 1.25, 0.85}

type options struct {
	outDir   string
	states   []string
	from, to time.Time
	seed     uint64
	seasonal bool
	publish  bool
	brokers  []string
	topic    string
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "data/mock", "directory for the generated CSV files")
	states := flag.String("states", "CA,NY,TX,FL,OH", "comma-separated state codes")
	from := flag.String("from", "2016-01-01", "first accident date (YYYY-MM-DD)")
	to := flag.String("to", "2020-12-31", "last accident date (YYYY-MM-DD)")
	seed := flag.Uint64("seed", 42, "random seed")
	seasonal := flag.Bool("seasonal", true, "add weekly and annual seasonality")
	publish := flag.Bool("publish", false, "also publish the accidents to Kafka")
	brokers := flag.String("brokers", "localhost:9092", "comma-separated Kafka brokers for -publish")
	topic := flag.String("topic", "traffic-accidents", "Kafka topic for -publish")
	flag.Parse()

	opts := options{
		outDir:   *outDir,
		seed:     *seed,
		seasonal: *seasonal,
		publish:  *publish,
		brokers:  sharedcfg.ParseBrokers(*brokers),
		topic:    *topic,
	}
	var err error
	if opts.from, err = time.Parse("2006-01-02", *from); err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	if opts.to, err = time.Parse("2006-01-02", *to); err != nil {
		return fmt.Errorf("invalid -to: %w", err)
	}
	if opts.to.Before(opts.from) {
		return fmt.Errorf("-to %s is before -from %s", *to, *from)
	}
	for _, s := range strings.Split(*states, ",") {
		code := domain.NormalizeState(s)
		if !domain.IsKnownState(code) {
			return fmt.Errorf("unknown state %q", s)
		}
		opts.states = append(opts.states, code)
	}

	// Set a fixed clock so the printed load stamp is reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(opts.to.Add(24 * time.Hour)))
	defer domain.SetClock(nil)

	population := generatePopulation(opts.states)
	accidents := generateAccidents(opts, population)
	log.Printf("generated %d accident rows and %d population rows", len(accidents), len(population))

	schema := config.DefaultSchema()
	accPath := filepath.Join(opts.outDir, accidentsFile)
	if err := writeAccidents(accPath, schema.Accidents, accidents); err != nil {
		return fmt.Errorf("writing accidents: %w", err)
	}
	log.Printf("wrote %s", accPath)

	popPath := filepath.Join(opts.outDir, populationFile)
	if err := writePopulation(popPath, schema.Population, population); err != nil {
		return fmt.Errorf("writing population: %w", err)
	}
	log.Printf("wrote %s", popPath)

	if opts.publish {
		if err := publishAccidents(opts, accidents); err != nil {
			return fmt.Errorf("publishing to kafka: %w", err)
		}
	}

	printStats(domain.NewTables(accidents, population, "genmock"))
	return nil
}

func countyName(state string, i int) string {
	return fmt.Sprintf("%s County %d", state, i+1)
}

// generatePopulation splits each state's base population over its counties
// in a 3:2:1 ratio.
func generatePopulation(states []string) []domain.PopulationRecord {
	out := make([]domain.PopulationRecord, 0, len(states)*countiesPerState)
	for _, s := range states {
		total, ok := basePopulation[s]
		if !ok {
			total = 1_000_000
		}
		weights := [countiesPerState]int{3, 2, 1}
		for i, w := range weights {
			out = append(out, domain.PopulationRecord{
				State:      s,
				County:     countyName(s, i),
				Population: total * w / 6,
			})
		}
	}
	return out
}

func generateAccidents(opts options, population []domain.PopulationRecord) []domain.AccidentRecord {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15)) //nolint:gosec // fixtures, not secrets

	var out []domain.AccidentRecord
	for d := opts.from; !d.After(opts.to); d = d.AddDate(0, 0, 1) {
		factor := 1.0
		if opts.seasonal {
			factor = weekdayFactor[d.Weekday()] * annualFactor(d)
		}
		for _, p := range population {
			mean := float64(p.Population) / 1e6 * dailyPerMillion * factor
			count := int(math.Round(mean + rng.NormFloat64()*math.Sqrt(mean)))
			if count <= 0 {
				continue
			}
			out = append(out, domain.AccidentRecord{
				Date:   d,
				Year:   d.Year(),
				State:  p.State,
				County: p.County,
				Count:  count,
			})
		}
	}
	return out
}

// annualFactor peaks in December and bottoms out in June.
func annualFactor(d time.Time) float64 {
	return 1 + 0.2*math.Cos(2*math.Pi*float64(d.YearDay()-355)/365.25)
}

func createCSV(path string) (*os.File, *csv.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, csv.NewWriter(f), nil
}

func writeAccidents(path string, cols config.AccidentColumns, records []domain.AccidentRecord) error {
	f, w, err := createCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := w.Write([]string{cols.Date, cols.Year, cols.State, cols.County, cols.Count}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{r.Date.Format("2006-01-02"), strconv.Itoa(r.Year), r.State, r.County, strconv.Itoa(r.Count)}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writePopulation(path string, cols config.PopulationColumns, records []domain.PopulationRecord) error {
	f, w, err := createCSV(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := w.Write([]string{cols.State, cols.County, cols.Population}); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write([]string{r.State, r.County, strconv.Itoa(r.Population)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func publishAccidents(opts options, records []domain.AccidentRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	w := kafkaadapter.NewWriter(opts.brokers, opts.topic, logger)
	defer w.Close()

	return w.Publish(ctx, records)
}

func printStats(t *domain.Tables) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Generated at: %s\n", t.LoadedAt.Format(time.RFC3339))
	fmt.Printf("Accident rows: %d, population rows: %d\n", len(t.Accidents), len(t.Population))
	for _, year := range t.Years() {
		rates, skipped := domain.ComputeStateRates(t.Accidents, t.Population, year)
		fmt.Printf("%d:", year)
		for _, r := range rates {
			fmt.Printf(" %s=%.1f", r.State, r.Rate)
		}
		if len(skipped) > 0 {
			fmt.Printf(" (zero population: %s)", strings.Join(skipped, ","))
		}
		fmt.Println()
	}
}
