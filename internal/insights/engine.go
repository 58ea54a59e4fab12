package insights

import (
	"context"
	"time"

	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/medication"
	"github.com/omnia-aid/platform/internal/resource"
	"github.com/omnia-aid/platform/internal/scoring"
	"github.com/omnia-aid/platform/internal/shared/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine recomputes every family's local score in parallel and assembles the
// report. It never consults the ML service.
type Engine struct {
	calc        *scoring.Calculator
	concurrency int
	log         *zap.Logger
	now         func() time.Time
}

// NewEngine creates an insight engine scoring at most concurrency records at
// once.
func NewEngine(calc *scoring.Calculator, concurrency int, log *zap.Logger) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{calc: calc, concurrency: concurrency, log: log.Named("insights"), now: time.Now}
}

// Compute scores every valid record and assembles the report. The result does
// not depend on the concurrency. A malformed record is skipped and counted;
// only cancellation aborts the pass.
func (e *Engine) Compute(ctx context.Context, records []family.Record, medRecords []medication.Record, resources []resource.Item) (*Report, error) {
	now := e.now().UTC()
	history := groupByFamily(medRecords)
	slots := make([]*scored, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := rec.Validate(); err != nil {
				e.log.Warn("skipping malformed family record",
					zap.String("family_id", rec.ID.String()), zap.Error(err))
				return nil
			}
			slots[i] = &scored{rec: rec, res: e.calc.Score(rec, history[rec.ID], now)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RecordInsightRun(false, 0, 0)
		return nil, err
	}

	results := make([]scored, 0, len(records))
	skipped := 0
	for _, s := range slots {
		if s == nil {
			skipped++
			continue
		}
		results = append(results, *s)
	}

	report := assemble(len(records), results, skipped, medRecords, resources, now)
	metrics.RecordInsightRun(true, skipped, len(report.ResourceShortages))
	e.log.Info("insight report computed",
		zap.Int("families", len(records)),
		zap.Int("skipped", skipped),
		zap.Int("shortages", len(report.ResourceShortages)))
	return report, nil
}
