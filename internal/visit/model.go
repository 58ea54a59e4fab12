package visit

import (
	"fmt"
	"strings"
	"time"

	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// Visit is a field visit during which aid was handed to one or more families.
type Visit struct {
	ID        types.ID      `json:"id"`
	WorkerID  *types.ID     `json:"worker_id,omitempty"`
	Notes     string        `json:"notes,omitempty"`
	VisitedAt time.Time     `json:"visited_at"`
	Families  []Beneficiary `json:"families"`
	CreatedAt time.Time     `json:"created_at"`
}

// Beneficiary links a visited family to the aid it received.
type Beneficiary struct {
	ID       types.ID `json:"id"`
	FamilyID types.ID `json:"family_id"`
	Aids     []Aid    `json:"aids"`
}

// Aid is a single distribution.
type Aid struct {
	ID             types.ID  `json:"id"`
	Type           string    `json:"type"`
	Nature         string    `json:"nature,omitempty"`
	Recurring      bool      `json:"recurring"`
	EstimatedValue *float64  `json:"estimated_value,omitempty"`
	Quantity       float64   `json:"quantity"`
	Unit           string    `json:"unit,omitempty"`
	DistributedAt  time.Time `json:"distributed_at"`
}

// LatestDistribution returns the most recent distribution time among the
// beneficiary's aids, or false when nothing was distributed.
func (b Beneficiary) LatestDistribution() (time.Time, bool) {
	var latest time.Time
	for _, a := range b.Aids {
		if a.DistributedAt.After(latest) {
			latest = a.DistributedAt
		}
	}
	return latest, !latest.IsZero()
}

// AidView is an aid row joined with its visit and family, used by the aid log.
type AidView struct {
	Aid
	VisitID  types.ID  `json:"visit_id"`
	FamilyID types.ID  `json:"family_id"`
	WorkerID *types.ID `json:"worker_id,omitempty"`
}

// AidInput is an aid in a create request
type AidInput struct {
	Type           string     `json:"type"`
	Nature         string     `json:"nature"`
	Recurring      bool       `json:"recurring"`
	EstimatedValue *float64   `json:"estimated_value"`
	Quantity       *float64   `json:"quantity"`
	Unit           string     `json:"unit"`
	DistributedAt  *time.Time `json:"distributed_at"`
}

// AssociationInput names a family and the aid it received
type AssociationInput struct {
	FamilyID string     `json:"family_id"`
	Aids     []AidInput `json:"aids"`
}

// CreateRequest is the request to record a visit
type CreateRequest struct {
	Notes        string             `json:"notes"`
	VisitedAt    *time.Time         `json:"visited_at"`
	Associations []AssociationInput `json:"associations"`
}

// ToVisit validates the request and builds the visit. Missing timestamps
// default to now and a missing quantity defaults to 1.
func (req CreateRequest) ToVisit(workerID *types.ID, now time.Time) (*Visit, error) {
	details := map[string]string{}
	if len(req.Associations) == 0 {
		details["associations"] = "at least one family is required"
	}

	v := &Visit{
		ID:        types.NewID(),
		WorkerID:  workerID,
		Notes:     strings.TrimSpace(req.Notes),
		VisitedAt: now,
	}
	if req.VisitedAt != nil {
		v.VisitedAt = *req.VisitedAt
	}

	seen := map[types.ID]bool{}
	for i, assoc := range req.Associations {
		familyID, err := types.ParseID(assoc.FamilyID)
		if err != nil {
			details[fmt.Sprintf("associations[%d].family_id", i)] = "invalid family ID"
			continue
		}
		if seen[familyID] {
			details[fmt.Sprintf("associations[%d].family_id", i)] = "family listed twice"
			continue
		}
		seen[familyID] = true

		b := Beneficiary{ID: types.NewID(), FamilyID: familyID, Aids: []Aid{}}
		for j, in := range assoc.Aids {
			key := fmt.Sprintf("associations[%d].aids[%d]", i, j)
			if strings.TrimSpace(in.Type) == "" {
				details[key+".type"] = "type is required"
				continue
			}
			aid := Aid{
				ID:             types.NewID(),
				Type:           strings.TrimSpace(in.Type),
				Nature:         in.Nature,
				Recurring:      in.Recurring,
				EstimatedValue: in.EstimatedValue,
				Quantity:       1,
				Unit:           in.Unit,
				DistributedAt:  v.VisitedAt,
			}
			if in.Quantity != nil {
				aid.Quantity = *in.Quantity
			}
			if aid.Quantity <= 0 {
				details[key+".quantity"] = "must be positive"
			}
			if in.EstimatedValue != nil && *in.EstimatedValue < 0 {
				details[key+".estimated_value"] = "must not be negative"
			}
			if in.DistributedAt != nil {
				aid.DistributedAt = *in.DistributedAt
			}
			b.Aids = append(b.Aids, aid)
		}
		v.Families = append(v.Families, b)
	}

	if len(details) > 0 {
		return nil, errors.Validation("invalid visit", details)
	}
	return v, nil
}

// ListFilter defines filters for listing visits
type ListFilter struct {
	FamilyID *types.ID `json:"family_id,omitempty"`
	WorkerID *types.ID `json:"worker_id,omitempty"`
	Limit    int       `json:"limit,omitempty"`
	Offset   int       `json:"offset,omitempty"`
}
