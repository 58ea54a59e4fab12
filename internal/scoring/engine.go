package scoring

import (
	"context"
	"time"

	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/medication"
	"github.com/omnia-aid/platform/internal/shared/types"
	"go.uber.org/zap"
)

// MedicationReader reads a family's medication history.
type MedicationReader interface {
	ListByFamily(ctx context.Context, familyID types.ID) ([]medication.Record, error)
}

// Subject is a family record together with its medication history.
type Subject struct {
	Record  family.Record
	History []medication.Record
}

// Engine computes scores locally, loading medication history on demand.
type Engine struct {
	calc *Calculator
	meds MedicationReader
	log  *zap.Logger
	now  func() time.Time
}

// NewEngine creates a local scoring engine. meds may be nil, in which case
// every family is scored with an empty history.
func NewEngine(calc *Calculator, meds MedicationReader, log *zap.Logger) *Engine {
	return &Engine{calc: calc, meds: meds, log: log.Named("scoring"), now: time.Now}
}

// Calculator returns the engine's calculator.
func (e *Engine) Calculator() *Calculator {
	return e.calc
}

// Now returns the engine's clock reading.
func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

// History loads a family's medication history. A failed read is logged and
// treated as no history.
func (e *Engine) History(ctx context.Context, familyID types.ID) []medication.Record {
	if e.meds == nil || familyID.IsZero() {
		return nil
	}
	history, err := e.meds.ListByFamily(ctx, familyID)
	if err != nil {
		e.log.Warn("medication history unavailable, scoring without it",
			zap.String("family_id", familyID.String()), zap.Error(err))
		return nil
	}
	return history
}

// Subject loads the history for rec.
func (e *Engine) Subject(ctx context.Context, rec family.Record) Subject {
	return Subject{Record: rec, History: e.History(ctx, rec.ID)}
}

// Score computes a local result for rec.
func (e *Engine) Score(ctx context.Context, rec family.Record) Result {
	return e.Local(e.Subject(ctx, rec))
}

// Local computes a local result for an already loaded subject.
func (e *Engine) Local(s Subject) Result {
	return e.calc.Score(s.Record, s.History, e.Now())
}
