package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// Event types published by the domain modules. The part before the dot is
// the aggregate and names the stream the event lands in.
const (
	FamilyCreated     = "family.created"
	FamilyUpdated     = "family.updated"
	FamilyDeactivated = "family.deactivated"

	MedicationRecorded = "medication.recorded"

	ResourceCreated = "resource.created"
	ResourceUpdated = "resource.updated"
	ResourceDeleted = "resource.deleted"

	VisitRecorded = "visit.recorded"
	VisitDeleted  = "visit.deleted"

	ScoringFallbackUsed = "scoring.fallback_used"
)

// Event is a domain change announced on the bus.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	ActorID   types.ID `json:"actor_id"`
	ActorType string   `json:"actor_type"` // user, system

	Data any `json:"data"`
}

// NewEvent stamps an event of the given type. Source is the aggregate.
func NewEvent(eventType string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    Aggregate(eventType),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithActor sets who caused the event.
func (e Event) WithActor(actorID types.ID, actorType string) Event {
	e.ActorID = actorID
	e.ActorType = actorType
	return e
}

// WithCorrelation sets the request id the event belongs to.
func (e Event) WithCorrelation(correlationID string) Event {
	e.CorrelationID = correlationID
	return e
}

// Handler handles one delivered event.
type Handler func(ctx context.Context, event Event) error

// Aggregate returns the aggregate an event type belongs to:
// "visit.recorded" -> "visit".
func Aggregate(eventType string) string {
	agg, _, _ := strings.Cut(eventType, ".")
	return agg
}

// Matches reports whether eventType is selected by pattern. A pattern is "*",
// "<aggregate>.*" or an exact event type.
func Matches(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}
	if agg, ok := strings.CutSuffix(pattern, ".*"); ok {
		return Aggregate(eventType) == agg && strings.Contains(eventType, ".")
	}
	return pattern == eventType
}
