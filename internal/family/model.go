package family

import (
	"strings"
	"time"

	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// Record is a registered beneficiary household.
type Record struct {
	ID    types.ID `json:"id"`
	Code  string   `json:"code"`
	Phone string   `json:"phone,omitempty"`

	MemberCount   int `json:"member_count"`
	ChildCount    int `json:"child_count"`
	ElderlyCount  int `json:"elderly_count"`
	DisabledCount int `json:"disabled_count"`

	// MonthlyIncome is nil when unknown.
	MonthlyIncome *float64 `json:"monthly_income"`

	HousingType      string `json:"housing_type"`
	SocialStatus     string `json:"social_status"`
	SocialSituation  string `json:"social_situation"`
	HealthConditions string `json:"health_conditions"`
	MigrationStatus  string `json:"migration_status"`

	LastAidDate *time.Time `json:"last_aid_date,omitempty"`
	Active      bool       `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the structural invariants of a record.
func (r Record) Validate() error {
	details := map[string]string{}
	if strings.TrimSpace(r.Code) == "" {
		details["code"] = "code is required"
	}
	if r.MemberCount < 1 {
		details["member_count"] = "must be at least 1"
	}
	if r.ChildCount < 0 {
		details["child_count"] = "must not be negative"
	}
	if r.ElderlyCount < 0 {
		details["elderly_count"] = "must not be negative"
	}
	if r.DisabledCount < 0 {
		details["disabled_count"] = "must not be negative"
	}
	if r.MonthlyIncome != nil && *r.MonthlyIncome < 0 {
		details["monthly_income"] = "must not be negative"
	}
	if len(details) > 0 {
		return errors.Validation("invalid family record", details)
	}
	return nil
}

// IncomePerCapita divides income by household size. Unknown income yields 0
// and a non-positive member count is treated as a single member.
func (r Record) IncomePerCapita() float64 {
	if r.MonthlyIncome == nil {
		return 0
	}
	members := r.MemberCount
	if members < 1 {
		members = 1
	}
	return *r.MonthlyIncome / float64(members)
}

// DisplayName is the first comma-separated segment of the social situation
// narrative, used where a household needs a short human label.
func (r Record) DisplayName() string {
	name := strings.TrimSpace(strings.SplitN(r.SocialSituation, ",", 2)[0])
	if name == "" {
		return "Unknown"
	}
	return name
}

// CreateRequest is the request to register a family
type CreateRequest struct {
	Code             string     `json:"code"`
	Phone            string     `json:"phone"`
	MemberCount      *int       `json:"member_count"`
	ChildCount       int        `json:"child_count"`
	ElderlyCount     int        `json:"elderly_count"`
	DisabledCount    int        `json:"disabled_count"`
	MonthlyIncome    *float64   `json:"monthly_income"`
	HousingType      string     `json:"housing_type"`
	SocialStatus     string     `json:"social_status"`
	SocialSituation  string     `json:"social_situation"`
	HealthConditions string     `json:"health_conditions"`
	MigrationStatus  string     `json:"migration_status"`
	LastAidDate      *time.Time `json:"last_aid_date"`
}

// ToRecord builds a new active record. Member count defaults to 1.
func (req CreateRequest) ToRecord() Record {
	members := 1
	if req.MemberCount != nil {
		members = *req.MemberCount
	}
	return Record{
		ID:               types.NewID(),
		Code:             strings.TrimSpace(req.Code),
		Phone:            req.Phone,
		MemberCount:      members,
		ChildCount:       req.ChildCount,
		ElderlyCount:     req.ElderlyCount,
		DisabledCount:    req.DisabledCount,
		MonthlyIncome:    req.MonthlyIncome,
		HousingType:      req.HousingType,
		SocialStatus:     req.SocialStatus,
		SocialSituation:  req.SocialSituation,
		HealthConditions: req.HealthConditions,
		MigrationStatus:  req.MigrationStatus,
		LastAidDate:      req.LastAidDate,
		Active:           true,
	}
}

// UpdateRequest is the request to update a family
type UpdateRequest struct {
	Phone            *string  `json:"phone,omitempty"`
	MemberCount      *int     `json:"member_count,omitempty"`
	ChildCount       *int     `json:"child_count,omitempty"`
	ElderlyCount     *int     `json:"elderly_count,omitempty"`
	DisabledCount    *int     `json:"disabled_count,omitempty"`
	MonthlyIncome    *float64 `json:"monthly_income,omitempty"`
	ClearIncome      bool     `json:"clear_income,omitempty"`
	HousingType      *string  `json:"housing_type,omitempty"`
	SocialStatus     *string  `json:"social_status,omitempty"`
	SocialSituation  *string  `json:"social_situation,omitempty"`
	HealthConditions *string  `json:"health_conditions,omitempty"`
	MigrationStatus  *string  `json:"migration_status,omitempty"`
}

// Apply copies the set fields onto rec and returns the names of changed fields.
func (req UpdateRequest) Apply(rec *Record) []string {
	var changed []string
	setString := func(name string, dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = append(changed, name)
		}
	}
	setInt := func(name string, dst *int, src *int) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = append(changed, name)
		}
	}

	setString("phone", &rec.Phone, req.Phone)
	setInt("member_count", &rec.MemberCount, req.MemberCount)
	setInt("child_count", &rec.ChildCount, req.ChildCount)
	setInt("elderly_count", &rec.ElderlyCount, req.ElderlyCount)
	setInt("disabled_count", &rec.DisabledCount, req.DisabledCount)
	setString("housing_type", &rec.HousingType, req.HousingType)
	setString("social_status", &rec.SocialStatus, req.SocialStatus)
	setString("social_situation", &rec.SocialSituation, req.SocialSituation)
	setString("health_conditions", &rec.HealthConditions, req.HealthConditions)
	setString("migration_status", &rec.MigrationStatus, req.MigrationStatus)

	switch {
	case req.ClearIncome && rec.MonthlyIncome != nil:
		rec.MonthlyIncome = nil
		changed = append(changed, "monthly_income")
	case req.MonthlyIncome != nil:
		income := *req.MonthlyIncome
		rec.MonthlyIncome = &income
		changed = append(changed, "monthly_income")
	}

	return changed
}

// ListFilter defines filters for listing families
type ListFilter struct {
	ActiveOnly bool   `json:"active_only"`
	Search     string `json:"search,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}
