package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/omnia-aid/platform/internal/shared/events"
	"github.com/omnia-aid/platform/internal/shared/types"
	"go.uber.org/zap"
)

// Subscriber listens to domain events and creates audit entries
type Subscriber struct {
	repo Store
	bus  events.EventBus
	log  *zap.Logger
}

// NewSubscriber creates a new audit subscriber
func NewSubscriber(repo Store, bus events.EventBus, log *zap.Logger) *Subscriber {
	return &Subscriber{repo: repo, bus: bus, log: log.Named("audit")}
}

// Start subscribes to all audited event families
func (s *Subscriber) Start(ctx context.Context) error {
	for _, resource := range []string{"family", "medication", "resource", "visit"} {
		pattern := resource + ".*"
		consumer := "audit-" + resource + "-subscriber"
		if err := s.bus.Subscribe(ctx, pattern, consumer, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
		}
	}
	return nil
}

func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	entry := eventToAuditEntry(event)
	if entry == nil {
		return nil
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		s.log.Error("failed to audit event", zap.String("type", event.Type), zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// eventToAuditEntry converts a domain event to an audit entry. Events without
// a resource prefix are not audited.
func eventToAuditEntry(event events.Event) *AuditEntry {
	resourceType := events.Aggregate(event.Type)
	if resourceType == "" || resourceType == event.Type {
		return nil
	}

	data, _ := event.Data.(map[string]any)

	actorType := ActorTypeUser
	if event.ActorType == string(ActorTypeSystem) || event.ActorID.IsZero() {
		actorType = ActorTypeSystem
	}

	entry := &AuditEntry{
		ID:            types.NewID(),
		Timestamp:     event.Timestamp.UTC().Truncate(time.Microsecond),
		ActorType:     actorType,
		ActorID:       event.ActorID,
		Action:        event.Type,
		ResourceType:  resourceType,
		ResourceID:    resourceID(resourceType, data),
		CorrelationID: event.CorrelationID,
	}
	if len(data) > 0 {
		entry.Changes = data
	}
	return entry
}

// resourceID looks for <resource>_id, then id. Data decoded from the event
// store carries plain strings; in-process events carry types.ID.
func resourceID(resourceType string, data map[string]any) string {
	for _, field := range []string{resourceType + "_id", "id"} {
		switch v := data[field].(type) {
		case string:
			return v
		case types.ID:
			return v.String()
		}
	}
	return ""
}
