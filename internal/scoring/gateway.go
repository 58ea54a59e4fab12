package scoring

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/shared/events"
	"github.com/omnia-aid/platform/internal/shared/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExternalScorer is a remote scoring service.
type ExternalScorer interface {
	Score(ctx context.Context, s Subject) (*Result, error)
	// ScoreBatch returns the results the service produced; families it
	// could not score are simply absent.
	ScoreBatch(ctx context.Context, subjects []Subject) ([]Result, error)
}

// GatewayConfig tunes the gateway.
type GatewayConfig struct {
	Timeout     time.Duration
	Concurrency int
}

// Gateway prefers the external scorer and falls back to the local engine on
// any failure, so callers always get a complete result.
type Gateway struct {
	external ExternalScorer
	engine   *Engine
	cfg      GatewayConfig
	bus      events.EventBus
	log      *zap.Logger
}

// NewGateway creates a gateway. external may be nil to score locally only.
func NewGateway(external ExternalScorer, engine *Engine, cfg GatewayConfig, bus events.EventBus, log *zap.Logger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Gateway{external: external, engine: engine, cfg: cfg, bus: bus, log: log.Named("scoring.gateway")}
}

// Engine returns the local engine behind the gateway.
func (g *Gateway) Engine() *Engine {
	return g.engine
}

// ErrMalformed marks an external response that cannot be adopted.
var ErrMalformed = stderrors.New("malformed score response")

// Score scores one family. It never fails.
func (g *Gateway) Score(ctx context.Context, rec family.Record) Result {
	return g.scoreSubject(ctx, g.engine.Subject(ctx, rec))
}

func (g *Gateway) scoreSubject(ctx context.Context, s Subject) Result {
	if g.external == nil {
		return g.local(s)
	}
	return g.withFallback(ctx, "score", s, func(ctx context.Context) (Result, error) {
		res, err := g.external.Score(ctx, s)
		if err != nil {
			return Result{}, err
		}
		return adopt(*res, s)
	})
}

// ScoreBatch scores every record, keeping input order. If the batch call
// fails, each record is scored on its own and may fall back independently.
func (g *Gateway) ScoreBatch(ctx context.Context, recs []family.Record) []Result {
	subjects := make([]Subject, len(recs))
	var eg errgroup.Group
	eg.SetLimit(g.cfg.Concurrency)
	for i, rec := range recs {
		i, rec := i, rec
		eg.Go(func() error {
			subjects[i] = g.engine.Subject(ctx, rec)
			return nil
		})
	}
	eg.Wait()

	results := make([]Result, len(subjects))
	var pending []int

	if g.external != nil && len(subjects) > 0 {
		batch, err := g.callBatch(ctx, subjects)
		if err != nil {
			g.fallbackUsed(ctx, "score_batch", "", err)
			for i := range subjects {
				pending = append(pending, i)
			}
		} else {
			byFamily := make(map[string]Result, len(batch))
			for _, res := range batch {
				byFamily[strings.ToLower(res.FamilyID.String())] = res
			}
			for i, s := range subjects {
				res, ok := byFamily[strings.ToLower(s.Record.ID.String())]
				if !ok {
					g.fallbackUsed(ctx, "score_batch", s.Record.ID.String(), fmt.Errorf("%w: family missing from batch", ErrMalformed))
					results[i] = g.local(s)
					continue
				}
				adopted, err := adopt(res, s)
				if err != nil {
					g.fallbackUsed(ctx, "score_batch", s.Record.ID.String(), err)
					results[i] = g.local(s)
					continue
				}
				metrics.RecordScore(string(SourceML))
				results[i] = adopted
			}
		}
	} else {
		for i := range subjects {
			pending = append(pending, i)
		}
	}

	var fan errgroup.Group
	fan.SetLimit(g.cfg.Concurrency)
	for _, i := range pending {
		i := i
		fan.Go(func() error {
			results[i] = g.scoreSubject(ctx, subjects[i])
			return nil
		})
	}
	fan.Wait()

	return results
}

func (g *Gateway) callBatch(ctx context.Context, subjects []Subject) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	batch, err := g.external.ScoreBatch(ctx, subjects)
	metrics.RecordMLRequest("score_batch", time.Since(start))
	return batch, err
}

// withFallback runs try under the gateway timeout and substitutes the local
// result on any error.
func (g *Gateway) withFallback(ctx context.Context, op string, s Subject, try func(context.Context) (Result, error)) Result {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res, err := try(callCtx)
	metrics.RecordMLRequest(op, time.Since(start))
	if err == nil {
		metrics.RecordScore(string(SourceML))
		return res
	}

	g.fallbackUsed(ctx, op, s.Record.ID.String(), err)
	return g.local(s)
}

func (g *Gateway) local(s Subject) Result {
	metrics.RecordScore(string(SourceLocal))
	return g.engine.Local(s)
}

func (g *Gateway) fallbackUsed(ctx context.Context, op, familyID string, cause error) {
	reason := fallbackReason(cause)
	metrics.RecordFallback(op, reason)
	g.log.Warn("ML scoring failed, using local score",
		zap.String("operation", op),
		zap.String("family_id", familyID),
		zap.String("reason", reason),
		zap.Error(cause))

	event := events.NewEvent(events.ScoringFallbackUsed, map[string]any{
		"operation": op,
		"family_id": familyID,
		"reason":    reason,
	}).WithActor("", "system")
	events.PublishBestEffort(ctx, g.bus, g.log, event)
}

// adopt accepts an external result for s if it is well formed.
func adopt(res Result, s Subject) (Result, error) {
	if !strings.EqualFold(res.FamilyID.String(), s.Record.ID.String()) {
		return Result{}, fmt.Errorf("%w: result is for family %q", ErrMalformed, res.FamilyID)
	}
	res.FamilyID = s.Record.ID
	if err := res.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	res.Source = SourceML
	return res, nil
}

func fallbackReason(err error) string {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case stderrors.Is(err, context.Canceled):
		return "canceled"
	case stderrors.Is(err, ErrMalformed):
		return "malformed"
	}
	return "error"
}
