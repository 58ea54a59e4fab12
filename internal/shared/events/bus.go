package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	"github.com/omnia-aid/platform/internal/shared/config"
	"go.uber.org/zap"
)

const streamPrefix = "omnia-"

// Bus publishes domain events to KurrentDB, one stream per aggregate
// (omnia-family, omnia-visit, ...), and fans them back out to in-process
// subscribers.
type Bus struct {
	client *esdb.Client
	log    *zap.Logger
}

// NewBus creates a client for the configured KurrentDB node. It does not
// contact the server; see Connect.
func NewBus(cfg config.KurrentDBConfig, log *zap.Logger) (*Bus, error) {
	settings, err := esdb.ParseConnectionString(connectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create KurrentDB client: %w", err)
	}
	return &Bus{client: client, log: log.Named("events")}, nil
}

func connectionString(cfg config.KurrentDBConfig) string {
	u := url.URL{Scheme: "esdb", Host: cfg.Host + ":" + strconv.Itoa(cfg.Port)}
	if cfg.Username != "" && cfg.Password != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	if cfg.Insecure {
		q := url.Values{}
		q.Set("tls", "false")
		q.Set("keepAliveInterval", "10000")
		q.Set("keepAliveTimeout", "10000")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// StreamFor names the stream an event type is appended to.
func StreamFor(eventType string) string {
	return streamPrefix + Aggregate(eventType)
}

// Publish appends the event to its aggregate stream.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	_, err = b.client.AppendToStream(ctx, StreamFor(event.Type), esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdb.EventData{
		EventID:     eventID,
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// Subscribe delivers events matching pattern, starting from now, until ctx
// is cancelled. The server filters by stream prefix; the exact type is
// matched here. Handler errors are logged and the event is skipped.
func (b *Bus) Subscribe(ctx context.Context, pattern, consumerName string, handler Handler) error {
	prefix := streamPrefix
	if pattern != "*" {
		prefix = StreamFor(pattern)
	}

	sub, err := b.client.SubscribeToAll(ctx, esdb.SubscribeToAllOptions{
		From:   esdb.End{},
		Filter: &esdb.SubscriptionFilter{Type: esdb.StreamFilterType, Prefixes: []string{prefix}},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe %s to %s: %w", consumerName, pattern, err)
	}

	log := b.log.With(zap.String("consumer", consumerName), zap.String("pattern", pattern))
	go b.consume(ctx, sub, pattern, handler, log)
	return nil
}

func (b *Bus) consume(ctx context.Context, sub *esdb.Subscription, pattern string, handler Handler, log *zap.Logger) {
	defer sub.Close()

	for {
		msg := sub.Recv()
		if msg.SubscriptionDropped != nil {
			if ctx.Err() == nil {
				log.Warn("subscription dropped", zap.Error(msg.SubscriptionDropped.Error))
			}
			return
		}
		if msg.EventAppeared == nil || msg.EventAppeared.Event == nil {
			continue
		}

		event, err := decode(msg.EventAppeared.Event)
		if err != nil {
			log.Warn("skipping undecodable event", zap.Error(err))
			continue
		}
		if !Matches(pattern, event.Type) {
			continue
		}

		if err := handler(ctx, event); err != nil {
			log.Error("event handler failed",
				zap.String("event_id", event.ID), zap.String("type", event.Type), zap.Error(err))
		}
	}
}

func decode(recorded *esdb.RecordedEvent) (Event, error) {
	var event Event
	if err := json.Unmarshal(recorded.Data, &event); err != nil {
		return Event{}, fmt.Errorf("event %s on %s: %w", recorded.EventID, recorded.StreamID, err)
	}
	if event.ID == "" {
		event.ID = recorded.EventID.String()
	}
	if event.Type == "" {
		event.Type = recorded.EventType
	}
	return event, nil
}

// Close closes the KurrentDB connection.
func (b *Bus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Health reads the newest event of $all to prove the node answers.
func (b *Bus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := b.client.ReadAll(ctx, esdb.ReadAllOptions{From: esdb.End{}, Direction: esdb.Backwards}, 1)
	if err != nil {
		return fmt.Errorf("KurrentDB health check failed: %w", err)
	}
	defer stream.Close()

	if _, err := stream.Recv(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("KurrentDB health check failed: %w", err)
	}
	return nil
}
