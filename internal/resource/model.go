package resource

import (
	"strings"
	"time"

	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// Item is a stocked resource.
type Item struct {
	ID           types.ID   `json:"id"`
	Name         string     `json:"name"`
	Category     string     `json:"category"`
	Quantity     float64    `json:"quantity"`
	Unit         string     `json:"unit"`
	MinThreshold float64    `json:"min_threshold"`
	Location     string     `json:"location,omitempty"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsLowStock reports whether the quantity has reached the minimum threshold.
func (i Item) IsLowStock() bool {
	return i.Quantity <= i.MinThreshold
}

// IsOutOfStock reports whether nothing is left.
func (i Item) IsOutOfStock() bool {
	return i.Quantity <= 0
}

// Validate checks the item fields
func (i Item) Validate() error {
	details := map[string]string{}
	if strings.TrimSpace(i.Name) == "" {
		details["name"] = "name is required"
	}
	if strings.TrimSpace(i.Category) == "" {
		details["category"] = "category is required"
	}
	if i.MinThreshold < 0 {
		details["min_threshold"] = "must not be negative"
	}
	if len(details) > 0 {
		return errors.Validation("invalid resource", details)
	}
	return nil
}

// CreateRequest is the request to register a resource
type CreateRequest struct {
	Name         string     `json:"name"`
	Category     string     `json:"category"`
	Quantity     float64    `json:"quantity"`
	Unit         string     `json:"unit"`
	MinThreshold float64    `json:"min_threshold"`
	Location     string     `json:"location"`
	ExpiryDate   *time.Time `json:"expiry_date"`
}

// UpdateRequest is the request to update a resource
type UpdateRequest struct {
	Name         *string    `json:"name,omitempty"`
	Category     *string    `json:"category,omitempty"`
	Quantity     *float64   `json:"quantity,omitempty"`
	Unit         *string    `json:"unit,omitempty"`
	MinThreshold *float64   `json:"min_threshold,omitempty"`
	Location     *string    `json:"location,omitempty"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
}

// Apply copies the set fields onto item
func (req UpdateRequest) Apply(item *Item) {
	if req.Name != nil {
		item.Name = *req.Name
	}
	if req.Category != nil {
		item.Category = *req.Category
	}
	if req.Quantity != nil {
		item.Quantity = *req.Quantity
	}
	if req.Unit != nil {
		item.Unit = *req.Unit
	}
	if req.MinThreshold != nil {
		item.MinThreshold = *req.MinThreshold
	}
	if req.Location != nil {
		item.Location = *req.Location
	}
	if req.ExpiryDate != nil {
		item.ExpiryDate = req.ExpiryDate
	}
}

// ListFilter defines filters for listing resources
type ListFilter struct {
	Category string `json:"category,omitempty"`
	Search   string `json:"search,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}
