package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/traffic-eagle/internal/domain"
	"golang.org/x/sync/errgroup"
)

// AccidentSource reads the full accident table.
type AccidentSource interface {
	LoadAccidents(ctx context.Context) ([]domain.AccidentRecord, error)
	Describe() string
}

// PopulationSource reads the full population table.
type PopulationSource interface {
	LoadPopulation(ctx context.Context) ([]domain.PopulationRecord, error)
	Describe() string
}

// LoadTables reads both tables concurrently and freezes them.
func LoadTables(ctx context.Context, acc AccidentSource, pop PopulationSource) (*domain.Tables, error) {
	var (
		accidents  []domain.AccidentRecord
		population []domain.PopulationRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accidents, err = acc.LoadAccidents(gctx)
		if err != nil {
			return fmt.Errorf("load accidents from %s: %w", acc.Describe(), err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		population, err = pop.LoadPopulation(gctx)
		if err != nil {
			return fmt.Errorf("load population from %s: %w", pop.Describe(), err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	source := acc.Describe() + " + " + pop.Describe()
	return domain.NewTables(accidents, population, source), nil
}

// LoadAndAttach retries LoadTables with exponential backoff until it succeeds
// or ctx is cancelled, then attaches the result.
func (p *Pipeline) LoadAndAttach(ctx context.Context, acc AccidentSource, pop PopulationSource) error {
	// Start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		start := time.Now()
		t, err := LoadTables(ctx, acc, pop)
		if err == nil {
			p.metrics.RecordsLoaded.WithLabelValues("accidents").Add(float64(len(t.Accidents)))
			p.metrics.RecordsLoaded.WithLabelValues("population").Add(float64(len(t.Population)))
			p.logger.Info("source tables loaded", "duration", time.Since(start))
			p.Attach(t)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.logger.Error("load source tables failed", "error", err, "retry_in", backoff)
		if !sleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
