package config

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AccidentColumns names the accident table's CSV header fields. Year and
// County may be empty: Year is then derived from Date and County is left blank.
type AccidentColumns struct {
	Date   string `koanf:"date"`
	Year   string `koanf:"year"`
	State  string `koanf:"state"`
	County string `koanf:"county"`
	Count  string `koanf:"count"`
}

// PopulationColumns names the population table's CSV header fields.
type PopulationColumns struct {
	State      string `koanf:"state"`
	County     string `koanf:"county"`
	Population string `koanf:"population"`
}

// Schema maps source CSV headers onto the domain records. Accident files come
// at state and county granularity with slightly different headers.
type Schema struct {
	Accidents   AccidentColumns   `koanf:"accidents"`
	Population  PopulationColumns `koanf:"population"`
	DateLayouts []string          `koanf:"date_layouts"`
}

// DefaultSchema matches the county-level accident and population CSVs.
func DefaultSchema() Schema {
	return Schema{
		Accidents: AccidentColumns{
			Date:   "Date",
			Year:   "Year",
			State:  "State",
			County: "County",
			Count:  "Count",
		},
		Population: PopulationColumns{
			State:      "State",
			County:     "County",
			Population: "Population",
		},
		DateLayouts: []string{
			"2006-01-02",
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05Z07:00",
			"01/02/2006",
		},
	}
}

// LoadSchema returns DefaultSchema overlaid with the YAML file at path.
// An empty path returns the defaults.
func LoadSchema(path string) (Schema, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultSchema(), "koanf"), nil); err != nil {
		return Schema{}, fmt.Errorf("load schema defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Schema{}, fmt.Errorf("load schema file %s: %w", path, err)
		}
	}

	var s Schema
	if err := k.Unmarshal("", &s); err != nil {
		return Schema{}, fmt.Errorf("decode schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// Validate checks that every required column is mapped.
func (s Schema) Validate() error {
	switch {
	case s.Accidents.Date == "":
		return errors.New("schema: accidents.date is required")
	case s.Accidents.State == "":
		return errors.New("schema: accidents.state is required")
	case s.Accidents.Count == "":
		return errors.New("schema: accidents.count is required")
	case s.Population.State == "":
		return errors.New("schema: population.state is required")
	case s.Population.Population == "":
		return errors.New("schema: population.population is required")
	case len(s.DateLayouts) == 0:
		return errors.New("schema: date_layouts must not be empty")
	}
	return nil
}
