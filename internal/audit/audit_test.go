package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/omnia-aid/platform/internal/shared/auth"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/events"
	"github.com/omnia-aid/platform/internal/shared/types"
	"go.uber.org/zap"
)

// chain builds n linked entries, oldest first.
func chain(n int) []*AuditEntry {
	actorID := types.NewID()
	entries := make([]*AuditEntry, n)
	prevHash := ""
	for i := 0; i < n; i++ {
		entries[i] = NewAuditEntry(
			ActorTypeUser,
			actorID,
			ActionFamilyUpdated,
			"family",
			types.NewID().String(),
			map[string]any{"changed": []any{"member_count"}, "index": i},
			prevHash,
		)
		entries[i].Sequence = int64(i + 1)
		prevHash = entries[i].Hash
	}
	return entries
}

// newestFirst returns copies of entries in the order the store reads them.
func newestFirst(entries []*AuditEntry) []AuditEntry {
	out := make([]AuditEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, *entries[i])
	}
	return out
}

func TestNewAuditEntry(t *testing.T) {
	actorID := types.NewID()
	familyID := types.NewID()

	entry := NewAuditEntry(
		ActorTypeUser,
		actorID,
		ActionFamilyCreated,
		"family",
		familyID.String(),
		map[string]any{"code": "F-001"},
		"",
	)

	if entry.ID.IsZero() {
		t.Error("Expected non-zero ID")
	}
	if entry.ActorID != actorID {
		t.Errorf("Expected actorID %s, got %s", actorID, entry.ActorID)
	}
	if entry.Action != ActionFamilyCreated {
		t.Errorf("Expected action %s, got %s", ActionFamilyCreated, entry.Action)
	}
	if entry.Hash == "" {
		t.Error("Expected non-empty hash")
	}
	if entry.PrevHash != "" {
		t.Error("Expected empty prev_hash for first entry")
	}
}

func TestHashChainIntegrity(t *testing.T) {
	entries := chain(5)
	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash != entries[i-1].Hash {
			t.Errorf("Chain broken at entry %d: expected prev_hash %s, got %s",
				i, entries[i-1].Hash, entries[i].PrevHash)
		}
	}
}

func TestHashChainTamperDetection(t *testing.T) {
	entry := NewAuditEntry(ActorTypeUser, types.NewID(), ActionResourceUpdated, "resource",
		types.NewID().String(), map[string]any{"quantity": 12}, "")
	originalHash := entry.Hash

	if !entry.VerifyHash() {
		t.Error("Hash should be valid before tampering")
	}

	entry.Changes["quantity"] = 1200

	if entry.VerifyHash() {
		t.Error("Hash should be invalid after tampering")
	}
	if entry.ComputeHash() == originalHash {
		t.Error("Computed hash should differ after tampering")
	}
}

func TestCanonicalJSONDeterminism(t *testing.T) {
	changes := map[string]any{
		"zebra":  "last",
		"apple":  "first",
		"middle": "middle",
		"nested": map[string]any{"z": 3, "a": 1, "m": 2},
	}

	entry1 := NewAuditEntry(ActorTypeUser, types.NewID(), ActionVisitRecorded, "visit",
		types.NewID().String(), changes, "prevhash")

	entry2 := &AuditEntry{
		ID:           entry1.ID,
		Timestamp:    entry1.Timestamp,
		PrevHash:     entry1.PrevHash,
		ActorType:    entry1.ActorType,
		ActorID:      entry1.ActorID,
		Action:       entry1.Action,
		ResourceType: entry1.ResourceType,
		ResourceID:   entry1.ResourceID,
		Changes:      changes,
	}
	entry2.Hash = entry2.calculateHash()

	if entry1.Hash != entry2.Hash {
		t.Errorf("Hashes should be identical for same data: got %s and %s", entry1.Hash, entry2.Hash)
	}
}

// Changes come back from JSONB as generic JSON values; the hash must not move.
func TestHashSurvivesJSONRoundTrip(t *testing.T) {
	entry := NewAuditEntry(ActorTypeUser, types.NewID(), ActionVisitRecorded, "visit", types.NewID().String(),
		map[string]any{
			"visit_id":   types.NewID(),
			"aid_count":  3,
			"visited_at": time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
		}, "")

	raw, err := json.Marshal(entry.Changes)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	entry.Changes = decoded

	if !entry.VerifyHash() {
		t.Error("Hash should survive a JSON round trip of the changes")
	}
}

func TestEntryTimestampPrecision(t *testing.T) {
	entry := NewAuditEntry(ActorTypeSystem, "", ActionResourceDeleted, "resource", "", nil, "")

	if entry.Timestamp.Nanosecond()%1000 != 0 {
		t.Error("Timestamp should be truncated to microseconds")
	}
	if entry.Timestamp.Location() != time.UTC {
		t.Error("Timestamp should be in UTC")
	}
}

func TestWithRequest(t *testing.T) {
	entry := NewAuditEntry(ActorTypeUser, types.NewID(), ActionFamilyUpdated, "family", "", nil, "")
	entry.WithRequest("192.168.1.100")

	if entry.ActorIP != "192.168.1.100" {
		t.Errorf("Expected IP '192.168.1.100', got '%s'", entry.ActorIP)
	}
}

func TestVerifyValidChain(t *testing.T) {
	result := Verify(newestFirst(chain(20)), true)

	if !result.Valid {
		t.Fatalf("Expected valid chain, got violations %v", result.Violations)
	}
	if result.Checked != 20 || result.ContentValid != 20 || result.LinkageValid != 19 {
		t.Errorf("Unexpected counters: %+v", result)
	}
	if len(result.Entries) != 20 {
		t.Errorf("Expected 20 detail rows, got %d", len(result.Entries))
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	entries := chain(10)
	entries[4].Changes["index"] = 999

	result := Verify(newestFirst(entries), false)

	if result.Valid {
		t.Fatal("Tampered chain should be invalid")
	}
	if result.ContentInvalid != 1 {
		t.Errorf("Expected 1 content violation, got %d", result.ContentInvalid)
	}
	if result.LinkageInvalid != 0 {
		t.Errorf("Content tampering alone should not break linkage, got %d", result.LinkageInvalid)
	}
	if len(result.Entries) != 0 {
		t.Error("Details should be omitted")
	}
}

func TestVerifyDetectsBrokenLink(t *testing.T) {
	entries := chain(6)
	// re-hash a rewritten entry so its content is self-consistent
	entries[2].Changes["index"] = 42
	entries[2].Hash = entries[2].ComputeHash()

	result := Verify(newestFirst(entries), true)

	if result.Valid {
		t.Fatal("Rewritten chain should be invalid")
	}
	if result.ContentInvalid != 0 {
		t.Errorf("Expected no content violation, got %d", result.ContentInvalid)
	}
	if result.LinkageInvalid != 1 {
		t.Errorf("Expected 1 linkage violation, got %d", result.LinkageInvalid)
	}
	for _, e := range result.Entries {
		if e.ID == entries[2].ID && e.ViolationType != "linkage" {
			t.Errorf("Expected linkage violation on rewritten entry, got %q", e.ViolationType)
		}
	}
}

func TestEventToAuditEntry(t *testing.T) {
	actorID := types.NewID()
	familyID := types.NewID()

	tests := []struct {
		name       string
		event      events.Event
		resource   string
		resourceID string
		actorType  ActorType
	}{
		{
			name: "in-process event",
			event: events.NewEvent("family.created", map[string]any{"family_id": familyID, "code": "F-1"}).
				WithActor(actorID, "user"),
			resource:   "family",
			resourceID: familyID.String(),
			actorType:  ActorTypeUser,
		},
		{
			name: "decoded from the event store",
			event: events.NewEvent("resource.updated", map[string]any{"resource_id": "abc-123"}).
				WithActor(actorID, "user"),
			resource:   "resource",
			resourceID: "abc-123",
			actorType:  ActorTypeUser,
		},
		{
			name:      "system event without data",
			event:     events.NewEvent("visit.deleted", nil).WithActor("", "system"),
			resource:  "visit",
			actorType: ActorTypeSystem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := eventToAuditEntry(tt.event)
			if entry == nil {
				t.Fatal("Expected an entry")
			}
			if entry.ResourceType != tt.resource {
				t.Errorf("Expected resource type %s, got %s", tt.resource, entry.ResourceType)
			}
			if entry.ResourceID != tt.resourceID {
				t.Errorf("Expected resource id %q, got %q", tt.resourceID, entry.ResourceID)
			}
			if entry.ActorType != tt.actorType {
				t.Errorf("Expected actor type %s, got %s", tt.actorType, entry.ActorType)
			}
			if entry.Action != tt.event.Type {
				t.Errorf("Expected action %s, got %s", tt.event.Type, entry.Action)
			}
		})
	}

	if eventToAuditEntry(events.NewEvent("heartbeat", nil)) != nil {
		t.Error("Events without a resource prefix should be skipped")
	}
}

// memStore chains entries in memory the way Repository does.
type memStore struct {
	mu      sync.Mutex
	entries []*AuditEntry
}

func (m *memStore) Append(ctx context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.entries); n > 0 {
		entry.PrevHash = m.entries[n-1].Hash
	}
	entry.Hash = entry.calculateHash()
	entry.Sequence = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memStore) FindByID(ctx context.Context, id types.ID) (*AuditEntry, error) {
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errors.NotFound("audit entry", id.String())
}

func (m *memStore) List(ctx context.Context, filter ListEntriesFilter) ([]AuditEntry, int, error) {
	var out []AuditEntry
	for _, e := range newestFirst(m.entries) {
		if filter.ResourceType != "" && e.ResourceType != filter.ResourceType {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *memStore) GetByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]AuditEntry, error) {
	out, _, err := m.List(ctx, ListEntriesFilter{ResourceType: resourceType, ResourceID: resourceID})
	return out, err
}

func (m *memStore) VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error) {
	return Verify(newestFirst(m.entries), includeDetails), nil
}

type subscribingBus struct {
	events.EventBus
	handlers map[string]events.Handler
}

func (b *subscribingBus) Subscribe(ctx context.Context, pattern, consumer string, h events.Handler) error {
	b.handlers[pattern] = h
	return nil
}

func TestSubscriberAppendsChainedEntries(t *testing.T) {
	store := &memStore{}
	bus := &subscribingBus{handlers: map[string]events.Handler{}}
	sub := NewSubscriber(store, bus, zap.NewNop())
	ctx := context.Background()

	if err := sub.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for _, pattern := range []string{"family.*", "medication.*", "resource.*", "visit.*"} {
		if bus.handlers[pattern] == nil {
			t.Errorf("Expected a subscription to %s", pattern)
		}
	}

	familyID := types.NewID()
	bus.handlers["family.*"](ctx, events.NewEvent("family.created", map[string]any{"family_id": familyID}))
	bus.handlers["visit.*"](ctx, events.NewEvent("visit.recorded", map[string]any{"visit_id": types.NewID()}))

	if len(store.entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(store.entries))
	}
	if store.entries[1].PrevHash != store.entries[0].Hash {
		t.Error("Second entry should chain to the first")
	}
	if store.entries[0].ResourceID != familyID.String() {
		t.Errorf("Expected resource id %s, got %s", familyID, store.entries[0].ResourceID)
	}
}

func serve(h http.Handler, path string, role auth.Role) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: types.NewID(), Roles: []auth.Role{role}}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 3; i++ {
		store.Append(context.Background(), NewAuditEntry(ActorTypeUser, types.NewID(), ActionFamilyCreated,
			"family", types.NewID().String(), nil, ""))
	}
	routes := NewHandler(store).Routes()

	rec := serve(routes, "/", auth.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var page struct {
		Data  []AuditEntry `json:"data"`
		Total int          `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 {
		t.Errorf("Expected 3 entries, got %d", page.Total)
	}

	rec = serve(routes, "/verify?details=true", auth.RoleAdmin)
	var result VerifyResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !result.Valid || result.Checked != 3 {
		t.Errorf("Expected a valid chain of 3, got %+v", result)
	}

	target := store.entries[1]
	rec = serve(routes, "/"+target.ID.String(), auth.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for entry lookup, got %d", rec.Code)
	}

	rec = serve(routes, "/resource/family/"+target.ResourceID, auth.RoleAdmin)
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 {
		t.Errorf("Expected 1 entry for the resource, got %d", page.Total)
	}

	rec = serve(routes, "/"+types.NewID().String(), auth.RoleAdmin)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}

	rec = serve(routes, "/?start_time=yesterday", auth.RoleAdmin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}

	for _, role := range []auth.Role{auth.RoleVolunteer, auth.RoleFieldManager, auth.RoleCoordinator} {
		if rec := serve(routes, "/", role); rec.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for %s, got %d", role, rec.Code)
		}
	}
}
