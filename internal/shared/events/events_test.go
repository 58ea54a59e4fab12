package events

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/omnia-aid/platform/internal/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"family.*", FamilyCreated, true},
		{"*", ScoringFallbackUsed, true},
		{FamilyCreated, FamilyCreated, true},
		{"resource.*", FamilyCreated, false},
		{"family.*", "familyhistory.created", false},
		{"family.*", "family", false},
		{VisitRecorded, VisitDeleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.eventType, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.pattern, tt.eventType))
		})
	}
}

func TestStreamFor(t *testing.T) {
	assert.Equal(t, "omnia-scoring", StreamFor(ScoringFallbackUsed))
	assert.Equal(t, "omnia-medication", StreamFor("medication.*"))
	assert.Equal(t, "visit", Aggregate(VisitDeleted))
}

func TestConnectionString(t *testing.T) {
	raw := connectionString(config.KurrentDBConfig{Host: "kurrent", Port: 2113, Insecure: true, Username: "admin", Password: "p@ss"})
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "esdb", u.Scheme)
	assert.Equal(t, "kurrent:2113", u.Host)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)
	assert.Equal(t, "false", u.Query().Get("tls"))

	assert.Equal(t, "esdb://kurrent:2113", connectionString(config.KurrentDBConfig{Host: "kurrent", Port: 2113}))
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(FamilyCreated, map[string]any{"family_id": "x"}).WithActor("u-1", "user").WithCorrelation("req-9")
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, FamilyCreated, e.Type)
	assert.Equal(t, "family", e.Source)
	assert.Equal(t, "user", e.ActorType)
	assert.Equal(t, "req-9", e.CorrelationID)
	assert.False(t, e.Timestamp.IsZero())
}

type failingBus struct {
	EventBus
	published int
}

func (f *failingBus) Publish(ctx context.Context, event Event) error {
	f.published++
	return errors.New("stream unavailable")
}

func TestPublishBestEffort(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bus := &failingBus{}

	PublishBestEffort(context.Background(), bus, zap.New(core), NewEvent(ResourceUpdated, nil))
	assert.Equal(t, 1, bus.published)
	assert.Equal(t, 1, logs.Len())

	// nil bus is a no-op
	PublishBestEffort(context.Background(), nil, zap.New(core), NewEvent(ResourceUpdated, nil))
	assert.Equal(t, 1, logs.Len())
}
