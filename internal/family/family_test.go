package family

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/omnia-aid/platform/internal/shared/auth"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ptr[T any](v T) *T { return &v }

// --- Model Tests ---

func TestRecordValidate(t *testing.T) {
	valid := Record{Code: "FAM-001", MemberCount: 4}

	tests := []struct {
		name    string
		mutate  func(r *Record)
		wantErr bool
		field   string
	}{
		{"valid", func(r *Record) {}, false, ""},
		{"missing code", func(r *Record) { r.Code = "  " }, true, "code"},
		{"zero members", func(r *Record) { r.MemberCount = 0 }, true, "member_count"},
		{"negative children", func(r *Record) { r.ChildCount = -1 }, true, "child_count"},
		{"negative income", func(r *Record) { r.MonthlyIncome = ptr(-10.0) }, true, "monthly_income"},
		{"zero income is fine", func(r *Record) { r.MonthlyIncome = ptr(0.0) }, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid
			tt.mutate(&rec)
			err := rec.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			appErr, ok := errors.As(err)
			require.True(t, ok)
			assert.Contains(t, appErr.Details, tt.field)
		})
	}
}

func TestIncomePerCapita(t *testing.T) {
	assert.Equal(t, 0.0, Record{MemberCount: 3}.IncomePerCapita())
	assert.Equal(t, 100.0, Record{MemberCount: 3, MonthlyIncome: ptr(300.0)}.IncomePerCapita())
	assert.Equal(t, 300.0, Record{MemberCount: 0, MonthlyIncome: ptr(300.0)}.IncomePerCapita())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Famille Diallo", Record{SocialSituation: "Famille Diallo, mère célibataire"}.DisplayName())
	assert.Equal(t, "Unknown", Record{SocialSituation: ""}.DisplayName())
	assert.Equal(t, "Unknown", Record{SocialSituation: " , veuve"}.DisplayName())
}

func TestCreateRequestDefaults(t *testing.T) {
	rec := CreateRequest{Code: " FAM-9 "}.ToRecord()
	assert.Equal(t, "FAM-9", rec.Code)
	assert.Equal(t, 1, rec.MemberCount)
	assert.True(t, rec.Active)
	assert.False(t, rec.ID.IsZero())
}

func TestUpdateRequestApply(t *testing.T) {
	rec := &Record{Code: "FAM-1", MemberCount: 2, HousingType: "locataire", MonthlyIncome: ptr(200.0)}

	changed := UpdateRequest{
		MemberCount: ptr(5),
		HousingType: ptr("locataire"),
		ClearIncome: true,
	}.Apply(rec)

	assert.ElementsMatch(t, []string{"member_count", "monthly_income"}, changed)
	assert.Equal(t, 5, rec.MemberCount)
	assert.Nil(t, rec.MonthlyIncome)
}

// --- Handler Tests ---

type memStore struct {
	mu      sync.Mutex
	records map[types.ID]*Record
}

func newMemStore() *memStore {
	return &memStore{records: map[types.ID]*Record{}}
}

func (m *memStore) Create(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.Code == rec.Code {
			return errors.Conflict("family with this code already exists")
		}
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memStore) Get(ctx context.Context, id types.ID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, errors.NotFound("family", id.String())
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) GetMany(ctx context.Context, ids []types.ID) ([]Record, error) {
	var out []Record
	for _, id := range ids {
		if rec, err := m.Get(ctx, id); err == nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memStore) List(ctx context.Context, filter ListFilter) ([]Record, int, error) {
	recs, _ := m.ListActive(ctx)
	return recs, len(recs), nil
}

func (m *memStore) ListActive(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.records {
		if rec.Active {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memStore) Update(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; !ok {
		return errors.NotFound("family", rec.ID.String())
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memStore) Deactivate(ctx context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return errors.NotFound("family", id.String())
	}
	rec.Active = false
	return nil
}

func serve(t *testing.T, h http.Handler, method, path string, body any, roles ...auth.Role) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: types.NewID(), Roles: roles}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerLifecycle(t *testing.T) {
	store := newMemStore()
	h := NewHandler(store, nil, zap.NewNop()).Routes()

	res := serve(t, h, http.MethodPost, "/", map[string]any{
		"code":         "FAM-042",
		"member_count": 5,
		"child_count":  3,
		"housing_type": "précaire",
	}, auth.RoleVolunteer)
	require.Equal(t, http.StatusCreated, res.Code)

	var created Record
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	assert.Equal(t, "FAM-042", created.Code)

	res = serve(t, h, http.MethodPost, "/", map[string]any{"code": "FAM-042"}, auth.RoleVolunteer)
	assert.Equal(t, http.StatusConflict, res.Code)

	res = serve(t, h, http.MethodPatch, "/"+created.ID.String(), map[string]any{"member_count": 6}, auth.RoleFieldManager)
	require.Equal(t, http.StatusOK, res.Code)
	stored, _ := store.Get(context.Background(), created.ID)
	assert.Equal(t, 6, stored.MemberCount)

	res = serve(t, h, http.MethodPatch, "/"+created.ID.String(), map[string]any{"member_count": 0}, auth.RoleFieldManager)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = serve(t, h, http.MethodDelete, "/"+created.ID.String(), nil, auth.RoleVolunteer)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = serve(t, h, http.MethodDelete, "/"+created.ID.String(), nil, auth.RoleAdmin)
	assert.Equal(t, http.StatusNoContent, res.Code)
	stored, _ = store.Get(context.Background(), created.ID)
	assert.False(t, stored.Active)
}

func TestHandlerRoleGuards(t *testing.T) {
	h := NewHandler(newMemStore(), nil, zap.NewNop()).Routes()

	res := serve(t, h, http.MethodPost, "/", map[string]any{"code": "FAM-1"}, auth.RoleFieldManager)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = serve(t, h, http.MethodGet, "/", nil, auth.RoleCoordinator)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestHandlerGetInvalidID(t *testing.T) {
	h := NewHandler(newMemStore(), nil, zap.NewNop()).Routes()

	res := serve(t, h, http.MethodGet, "/not-a-uuid", nil, auth.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = serve(t, h, http.MethodGet, "/"+types.NewID().String(), nil, auth.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, res.Code)
}
