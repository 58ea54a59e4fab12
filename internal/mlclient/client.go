// Package mlclient talks to the external vulnerability scoring service.
package mlclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/omnia-aid/platform/internal/scoring"
	"go.uber.org/zap"
)

// Payload is the flattened family features the service scores.
type Payload struct {
	ID                      string     `json:"id"`
	MemberCount             int        `json:"nbMembres"`
	ChildCount              int        `json:"nbEnfants"`
	ElderlyCount            int        `json:"nbPersonnesAgees"`
	DisabledCount           int        `json:"nbHandicapes"`
	MonthlyIncome           *float64   `json:"revenuMensuel"`
	HousingType             *string    `json:"typeLogement"`
	SocialStatus            *string    `json:"statutSocial"`
	MigrationStatus         *string    `json:"migrationStatus"`
	HealthConditions        *string    `json:"healthConditions"`
	MedicalVisitsCount      int        `json:"medicalVisitsCount"`
	MedicationRecordsCount  int        `json:"medicationRecordsCount"`
	LastAidDistributionDate *time.Time `json:"lastAidDistributionDate"`
}

// NewPayload flattens a subject. A zero member count is sent as 1, a zero
// income and empty strings as null.
func NewPayload(s scoring.Subject) Payload {
	rec := s.Record
	p := Payload{
		ID:                      rec.ID.String(),
		MemberCount:             rec.MemberCount,
		ChildCount:              rec.ChildCount,
		ElderlyCount:            rec.ElderlyCount,
		DisabledCount:           rec.DisabledCount,
		HousingType:             optional(rec.HousingType),
		SocialStatus:            optional(rec.SocialStatus),
		MigrationStatus:         optional(rec.MigrationStatus),
		HealthConditions:        optional(rec.HealthConditions),
		MedicalVisitsCount:      len(s.History),
		MedicationRecordsCount:  len(s.History),
		LastAidDistributionDate: rec.LastAidDate,
	}
	if p.ID == "" {
		p.ID = "temp-id"
	}
	if p.MemberCount == 0 {
		p.MemberCount = 1
	}
	if rec.MonthlyIncome != nil && *rec.MonthlyIncome != 0 {
		income := *rec.MonthlyIncome
		p.MonthlyIncome = &income
	}
	return p
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

type batchRequest struct {
	Beneficiaries []Payload `json:"beneficiaries"`
}

type batchResponse struct {
	TotalProcessed int              `json:"total_processed"`
	Successful     int              `json:"successful"`
	Failed         int              `json:"failed"`
	Results        []scoring.Result `json:"results"`
	Errors         []map[string]any `json:"errors"`
}

// Client is the ML service client. It never retries; the caller decides what
// a failure means.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

// New creates a client for the service at baseURL.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: rc, log: log.Named("mlclient")}
}

var _ scoring.ExternalScorer = (*Client)(nil)

// Score scores a single family via POST /score.
func (c *Client) Score(ctx context.Context, s scoring.Subject) (*scoring.Result, error) {
	var res scoring.Result
	if err := c.postDecode(ctx, "/score", NewPayload(s), &res); err != nil {
		return nil, err
	}
	normalize(&res)
	return &res, nil
}

// ScoreBatch scores several families via POST /score/batch. Families the
// service reports as failed are absent from the result.
func (c *Client) ScoreBatch(ctx context.Context, subjects []scoring.Subject) ([]scoring.Result, error) {
	req := batchRequest{Beneficiaries: make([]Payload, len(subjects))}
	for i, s := range subjects {
		req.Beneficiaries[i] = NewPayload(s)
	}

	var out batchResponse
	if err := c.postDecode(ctx, "/score/batch", req, &out); err != nil {
		return nil, err
	}
	if out.Failed > 0 {
		c.log.Warn("ML batch scoring reported failures",
			zap.Int("processed", out.TotalProcessed),
			zap.Int("failed", out.Failed),
			zap.Any("errors", out.Errors))
	}
	for i := range out.Results {
		normalize(&out.Results[i])
	}
	return out.Results, nil
}

// Health returns the service health document.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	return c.getDocument(ctx, "/health")
}

// Info returns the service model information.
func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	return c.getDocument(ctx, "/info")
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("failed to call ML service %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ML service %s returned %d: %s", path, resp.StatusCode(), truncate(resp.String(), 200))
	}
	return resp.Body(), nil
}

func (c *Client) getDocument(ctx context.Context, path string) (map[string]any, error) {
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("failed to call ML service %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ML service %s returned %d", path, resp.StatusCode())
	}

	var doc map[string]any
	if err := json.Unmarshal(resp.Body(), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", scoring.ErrMalformed, err)
	}
	return doc, nil
}

// normalize maps the service's risk vocabulary onto ours.
func normalize(res *scoring.Result) {
	level := scoring.RiskLevel(strings.ToUpper(strings.TrimSpace(string(res.RiskLevel))))
	if level == "MEDIUM" {
		level = scoring.RiskModerate
	}
	res.RiskLevel = level
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
