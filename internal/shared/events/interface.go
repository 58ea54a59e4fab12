package events

import (
	"context"

	"github.com/omnia-aid/platform/internal/shared/config"
	"go.uber.org/zap"
)

// EventBus publishes domain events and delivers them to subscribers.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error
	Close()
	Health() error
}

// Connect creates the KurrentDB bus and verifies it answers a read.
func Connect(cfg config.KurrentDBConfig, log *zap.Logger) (*Bus, error) {
	bus, err := NewBus(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := bus.Health(); err != nil {
		bus.Close()
		return nil, err
	}
	return bus, nil
}

// PublishBestEffort publishes when a bus is configured and logs failures.
// Domain writes never fail because the event stream is down.
func PublishBestEffort(ctx context.Context, bus EventBus, log *zap.Logger, event Event) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, event); err != nil {
		log.Warn("failed to publish event", zap.String("type", event.Type), zap.Error(err))
	}
}

// Ensure Bus implements EventBus
var _ EventBus = (*Bus)(nil)
