// Package csvsource reads the accident and population tables from CSV files.
// Files ending in .gz or .lz4 are decompressed on the fly.
package csvsource

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/traffic-eagle/internal/config"
	"github.com/couchcryptid/traffic-eagle/internal/domain"
	"github.com/couchcryptid/traffic-eagle/internal/observability"
	"github.com/pierrec/lz4/v4"
)

// ErrNoRows is returned when a file has a header but no parseable rows.
var ErrNoRows = errors.New("no valid rows")

// File loads one table from a CSV file. It implements pipeline.AccidentSource
// or pipeline.PopulationSource depending on which loader is called.
type File struct {
	path    string
	schema  config.Schema
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFile creates a loader for the CSV at path.
func NewFile(path string, schema config.Schema, logger *slog.Logger, metrics *observability.Metrics) *File {
	return &File{path: path, schema: schema, logger: logger, metrics: metrics}
}

// Describe names the file for logs and errors.
func (f *File) Describe() string {
	return "file:" + f.path
}

// LoadAccidents reads the file as an accident table.
func (f *File) LoadAccidents(ctx context.Context) ([]domain.AccidentRecord, error) {
	rc, err := Open(f.path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	records, skipped, err := ReadAccidents(ctx, rc, f.schema)
	f.report("accidents", len(records), skipped)
	return records, err
}

// LoadPopulation reads the file as a population table.
func (f *File) LoadPopulation(ctx context.Context) ([]domain.PopulationRecord, error) {
	rc, err := Open(f.path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	records, skipped, err := ReadPopulation(ctx, rc, f.schema)
	f.report("population", len(records), skipped)
	return records, err
}

func (f *File) report(table string, loaded, skipped int) {
	if skipped > 0 {
		f.metrics.RecordsSkipped.WithLabelValues(table).Add(float64(skipped))
		f.logger.Warn("skipped unparseable rows", "table", table, "path", f.path, "skipped", skipped)
	}
	f.logger.Info("csv table read", "table", table, "path", f.path, "rows", loaded)
}

// ReadAccidents parses an accident CSV. Rows that fail to parse are counted
// in skipped and left out; a table with no valid rows is an error.
func ReadAccidents(ctx context.Context, r io.Reader, schema config.Schema) (records []domain.AccidentRecord, skipped int, err error) {
	cols := schema.Accidents
	err = readRows(ctx, r, func(h header) error {
		return h.require(cols.Date, cols.State, cols.Count)
	}, func(h header, row []string) error {
		d, err := parseDate(h.get(row, cols.Date), schema.DateLayouts)
		if err != nil {
			return err
		}
		count, err := parseCount(h.get(row, cols.Count))
		if err != nil {
			return err
		}
		year := d.Year()
		if cols.Year != "" && h.has(cols.Year) {
			if year, err = strconv.Atoi(strings.TrimSpace(h.get(row, cols.Year))); err != nil {
				return fmt.Errorf("year: %w", err)
			}
		}
		state := domain.NormalizeState(h.get(row, cols.State))
		if state == "" {
			return errors.New("empty state")
		}
		records = append(records, domain.AccidentRecord{
			Date:   d,
			Year:   year,
			State:  state,
			County: strings.TrimSpace(h.get(row, cols.County)),
			Count:  count,
		})
		return nil
	}, &skipped)
	if err == nil && len(records) == 0 {
		err = ErrNoRows
	}
	return records, skipped, err
}

// ReadPopulation parses a population CSV with the same skip rules as ReadAccidents.
func ReadPopulation(ctx context.Context, r io.Reader, schema config.Schema) (records []domain.PopulationRecord, skipped int, err error) {
	cols := schema.Population
	err = readRows(ctx, r, func(h header) error {
		return h.require(cols.State, cols.Population)
	}, func(h header, row []string) error {
		pop, err := parseCount(h.get(row, cols.Population))
		if err != nil {
			return err
		}
		state := domain.NormalizeState(h.get(row, cols.State))
		if state == "" {
			return errors.New("empty state")
		}
		records = append(records, domain.PopulationRecord{
			State:      state,
			County:     strings.TrimSpace(h.get(row, cols.County)),
			Population: pop,
		})
		return nil
	}, &skipped)
	if err == nil && len(records) == 0 {
		err = ErrNoRows
	}
	return records, skipped, err
}

type header map[string]int

func (h header) has(col string) bool {
	_, ok := h[col]
	return ok
}

func (h header) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (h header) require(cols ...string) error {
	for _, c := range cols {
		if !h.has(c) {
			return fmt.Errorf("missing column %q", c)
		}
	}
	return nil
}

func readRows(ctx context.Context, r io.Reader, check func(header) error, parse func(header, []string) error, skipped *int) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	first, err := cr.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	h := make(header, len(first))
	for i, name := range first {
		// Strip a UTF-8 byte order mark from the first column.
		h[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	if err := check(h); err != nil {
		return err
	}

	for line := 2; ; line++ {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				*skipped++
				continue
			}
			return fmt.Errorf("read line %d: %w", line, err)
		}
		if err := parse(h, row); err != nil {
			*skipped++
		}
	}
}

func parseDate(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		// Some exports write integer columns as floats ("12.0").
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("invalid count %q", s)
		}
		n = int(f)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}

type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var errs []error
	for _, c := range m.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Open opens path for reading, decompressing .gz and .lz4 files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		return &multiCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case strings.HasSuffix(path, ".lz4"):
		return &multiCloser{Reader: lz4.NewReader(f), closers: []io.Closer{f}}, nil
	default:
		return f, nil
	}
}
