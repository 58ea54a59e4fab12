package audit

import (
	"fmt"

	"github.com/omnia-aid/platform/internal/shared/types"
)

// VerifyResult contains detailed verification results
type VerifyResult struct {
	Valid          bool                `json:"valid"`
	Checked        int                 `json:"checked"`
	ContentValid   int                 `json:"content_valid"`
	ContentInvalid int                 `json:"content_invalid"`
	LinkageValid   int                 `json:"linkage_valid"`
	LinkageInvalid int                 `json:"linkage_invalid"`
	Violations     []string            `json:"violations,omitempty"`
	Entries        []VerifyEntryResult `json:"entries,omitempty"`
}

// VerifyEntryResult contains verification result for a single entry
type VerifyEntryResult struct {
	ID            types.ID `json:"id"`
	Sequence      int64    `json:"sequence"`
	Hash          string   `json:"hash"`
	ComputedHash  string   `json:"computed_hash,omitempty"`
	PrevHash      string   `json:"prev_hash"`
	Valid         bool     `json:"valid"`
	ContentValid  bool     `json:"content_valid"`
	LinkageValid  bool     `json:"linkage_valid"`
	Action        string   `json:"action"`
	ViolationType string   `json:"violation_type,omitempty"` // content, linkage or both
}

// Verify checks entries ordered newest first. Each entry's stored hash must
// match its content, and must equal the prev_hash of the entry after it.
func Verify(entries []AuditEntry, includeDetails bool) *VerifyResult {
	result := &VerifyResult{
		Valid:   true,
		Entries: make([]VerifyEntryResult, 0),
	}

	// prev_hash of the entry that follows the current one in time
	var expected string

	for i, e := range entries {
		v := VerifyEntryResult{
			ID:           e.ID,
			Sequence:     e.Sequence,
			Hash:         e.Hash,
			PrevHash:     e.PrevHash,
			Action:       e.Action,
			ContentValid: true,
			LinkageValid: true,
			Valid:        true,
		}

		v.ComputedHash = e.ComputeHash()
		if v.ComputedHash != e.Hash {
			v.ContentValid = false
			v.Valid = false
			v.ViolationType = "content"
			result.ContentInvalid++
			result.Valid = false
			result.Violations = append(result.Violations,
				fmt.Sprintf("CONTENT TAMPERED: Entry %s (seq %d) - stored hash doesn't match content", e.ID, e.Sequence))
		} else {
			result.ContentValid++
		}

		if i > 0 {
			if e.Hash != expected {
				v.LinkageValid = false
				v.Valid = false
				if v.ViolationType == "content" {
					v.ViolationType = "both"
				} else {
					v.ViolationType = "linkage"
				}
				result.LinkageInvalid++
				result.Valid = false
				result.Violations = append(result.Violations,
					fmt.Sprintf("CHAIN BROKEN: Entry %s (seq %d) - hash doesn't match next entry's prev_hash", e.ID, e.Sequence))
			} else {
				result.LinkageValid++
			}
		}

		if includeDetails {
			result.Entries = append(result.Entries, v)
		}

		expected = e.PrevHash
		result.Checked++
	}

	return result
}
