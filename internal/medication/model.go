package medication

import (
	"strings"
	"time"

	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// Entry is one medication line confirmed from a prescription.
type Entry struct {
	Name        string `json:"name"`
	GenericName string `json:"generic_name,omitempty"`
	DrugClass   string `json:"drug_class,omitempty"`
	Dosage      string `json:"dosage,omitempty"`
}

// Record is an append-only medication history entry for a family.
type Record struct {
	ID        types.ID  `json:"id"`
	FamilyID  types.ID  `json:"family_id"`
	VisitID   *types.ID `json:"visit_id,omitempty"`
	RawText   string    `json:"raw_text,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	Entries   []Entry   `json:"entries"`
	CreatedBy *types.ID `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ClassifiedEntries returns the entries that carry a drug class.
func (r Record) ClassifiedEntries() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if strings.TrimSpace(e.DrugClass) != "" {
			out = append(out, e)
		}
	}
	return out
}

// CreateRequest confirms a prescription for a family.
type CreateRequest struct {
	FamilyID string    `json:"family_id"`
	VisitID  *types.ID `json:"visit_id,omitempty"`
	RawText  string    `json:"raw_text"`
	ImageURL string    `json:"image_url"`
	Entries  []Entry   `json:"entries"`
}

// Validate checks the request and returns the parsed family ID.
func (req CreateRequest) Validate() (types.ID, error) {
	details := map[string]string{}

	familyID, err := types.ParseID(req.FamilyID)
	if err != nil {
		details["family_id"] = "a valid family ID is required"
	}
	if len(req.Entries) == 0 {
		details["entries"] = "at least one medication is required"
	}
	for _, e := range req.Entries {
		if strings.TrimSpace(e.Name) == "" {
			details["entries"] = "every medication needs a name"
			break
		}
	}

	if len(details) > 0 {
		return "", errors.Validation("invalid medication record", details)
	}
	return familyID, nil
}
