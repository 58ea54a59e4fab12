package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/omnia-aid/platform/internal/shared/events"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// canonicalJSON produces deterministic JSON output with sorted map keys.
// Go maps have random iteration order and JSONB reorders keys, so hashing
// needs a stable encoding.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}

// ActorType defines the type of actor
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// AuditEntry represents an immutable audit log entry
type AuditEntry struct {
	ID        types.ID  `json:"id"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prev_hash,omitempty"`

	ActorType ActorType `json:"actor_type"`
	ActorID   types.ID  `json:"actor_id,omitempty"`
	ActorIP   string    `json:"actor_ip,omitempty"`

	Action       string `json:"action"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`

	Changes map[string]any `json:"changes,omitempty"`

	CorrelationID string `json:"correlation_id,omitempty"`
}

// NewAuditEntry creates a new audit entry chained to prevHash.
func NewAuditEntry(actorType ActorType, actorID types.ID, action, resourceType, resourceID string, changes map[string]any, prevHash string) *AuditEntry {
	entry := &AuditEntry{
		ID: types.NewID(),
		// PostgreSQL keeps microseconds; the hash must survive a round trip.
		Timestamp:    time.Now().UTC().Truncate(time.Microsecond),
		PrevHash:     prevHash,
		ActorType:    actorType,
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Changes:      changes,
	}
	entry.Hash = entry.calculateHash()
	return entry
}

// calculateHash hashes the canonical JSON of the entry's content fields.
// The timestamp is always hashed in UTC.
func (e *AuditEntry) calculateHash() string {
	data := map[string]any{
		"id":            e.ID,
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
		"prev_hash":     e.PrevHash,
		"actor_type":    e.ActorType,
		"actor_id":      e.ActorID,
		"action":        e.Action,
		"resource_type": e.ResourceType,
	}
	if e.ResourceID != "" {
		data["resource_id"] = e.ResourceID
	}
	if len(e.Changes) > 0 {
		data["changes"] = e.Changes
	}

	jsonData, _ := canonicalJSON(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// VerifyHash verifies the entry's hash
func (e *AuditEntry) VerifyHash() bool {
	return e.Hash == e.calculateHash()
}

// ComputeHash computes and returns the correct hash for this entry
func (e *AuditEntry) ComputeHash() string {
	return e.calculateHash()
}

// WithRequest adds request information to the entry
func (e *AuditEntry) WithRequest(ip string) *AuditEntry {
	e.ActorIP = ip
	return e
}

// ListEntriesFilter defines filters for listing audit entries
type ListEntriesFilter struct {
	ActorID      *types.ID  `json:"actor_id,omitempty"`
	ActorType    *ActorType `json:"actor_type,omitempty"`
	Action       string     `json:"action,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	ResourceID   string     `json:"resource_id,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Offset       int        `json:"offset,omitempty"`
}

// Audited domain actions are the event types of the audited aggregates.
const (
	ActionFamilyCreated     = events.FamilyCreated
	ActionFamilyUpdated     = events.FamilyUpdated
	ActionFamilyDeactivated = events.FamilyDeactivated

	ActionMedicationRecorded = events.MedicationRecorded

	ActionResourceCreated = events.ResourceCreated
	ActionResourceUpdated = events.ResourceUpdated
	ActionResourceDeleted = events.ResourceDeleted

	ActionVisitRecorded = events.VisitRecorded
	ActionVisitDeleted  = events.VisitDeleted
)
