package insights

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/medication"
	"github.com/omnia-aid/platform/internal/resource"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/events"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FamilySource lists the families the report covers.
type FamilySource interface {
	ListActive(ctx context.Context) ([]family.Record, error)
}

// MedicationSource lists the whole medication corpus.
type MedicationSource interface {
	ListAll(ctx context.Context) ([]medication.Record, error)
}

// ResourceSource lists the inventory.
type ResourceSource interface {
	ListAll(ctx context.Context) ([]resource.Item, error)
}

// Cache holds the last computed report. Get returns nil on a miss.
type Cache interface {
	Get(ctx context.Context) (*Report, error)
	Set(ctx context.Context, r *Report) error
	Invalidate(ctx context.Context) error
}

// Service loads the population, computes the report and caches it.
type Service struct {
	families  FamilySource
	meds      MedicationSource
	resources ResourceSource
	engine    *Engine
	cache     Cache
	log       *zap.Logger
}

// NewService creates the insight service. cache may be nil.
func NewService(families FamilySource, meds MedicationSource, resources ResourceSource, engine *Engine, cache Cache, log *zap.Logger) *Service {
	return &Service{
		families:  families,
		meds:      meds,
		resources: resources,
		engine:    engine,
		cache:     cache,
		log:       log.Named("insights"),
	}
}

// GlobalInsights returns the cached report unless refresh is set or the
// cache misses. Cache failures only cost a recompute.
func (s *Service) GlobalInsights(ctx context.Context, refresh bool) (*Report, error) {
	if s.cache != nil && !refresh {
		cached, err := s.cache.Get(ctx)
		if err != nil {
			s.log.Warn("insight cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	report, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, report); err != nil {
			s.log.Warn("insight cache write failed", zap.Error(err))
		}
	}
	return report, nil
}

func (s *Service) compute(ctx context.Context) (*Report, error) {
	var (
		records   []family.Record
		medRecs   []medication.Record
		inventory []resource.Item
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		records, err = s.families.ListActive(gctx)
		return err
	})
	g.Go(func() (err error) {
		medRecs, err = s.meds.ListAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		inventory, err = s.resources.ListAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "failed to load insight inputs")
	}

	report, err := s.engine.Compute(ctx, records, medRecs, inventory)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute insights")
	}
	return report, nil
}

// InvalidationPatterns are the event types that make the cached report stale.
var InvalidationPatterns = []string{"family.*", "medication.*", "resource.*", "visit.*"}

// ErrNoInvalidationSource is returned by WatchInvalidations when a cache is
// configured but no bus can announce the writes that make it stale.
var ErrNoInvalidationSource = stderrors.New("insight cache has no event bus to invalidate it")

// WatchInvalidations drops the cached report whenever a domain write is
// published on bus.
func (s *Service) WatchInvalidations(ctx context.Context, bus events.EventBus) error {
	if s.cache == nil {
		return nil
	}
	if bus == nil {
		return ErrNoInvalidationSource
	}
	for _, pattern := range InvalidationPatterns {
		if err := bus.Subscribe(ctx, pattern, "insights-cache", s.invalidate); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, e events.Event) error {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("insight cache invalidation failed", zap.String("event", e.Type), zap.Error(err))
	}
	return nil
}
