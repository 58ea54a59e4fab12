package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/omnia-aid/platform/internal/shared/auth"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStockPredicates(t *testing.T) {
	tests := []struct {
		name      string
		quantity  float64
		threshold float64
		low       bool
		out       bool
	}{
		{"empty", 0, 10, true, true},
		{"at threshold", 10, 10, true, false},
		{"above threshold", 11, 10, false, false},
		{"negative correction", -2, 0, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := Item{Quantity: tt.quantity, MinThreshold: tt.threshold}
			assert.Equal(t, tt.low, item.IsLowStock())
			assert.Equal(t, tt.out, item.IsOutOfStock())
		})
	}
}

func TestItemValidate(t *testing.T) {
	assert.NoError(t, Item{Name: "Riz", Category: "Alimentaire"}.Validate())
	assert.Error(t, Item{Category: "Alimentaire"}.Validate())
	assert.Error(t, Item{Name: "Riz"}.Validate())
	assert.Error(t, Item{Name: "Riz", Category: "Alimentaire", MinThreshold: -1}.Validate())
}

type memStore struct {
	items map[types.ID]*Item
}

func (m *memStore) Create(ctx context.Context, item *Item) error {
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memStore) Get(ctx context.Context, id types.ID) (*Item, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, errors.NotFound("resource", id.String())
	}
	cp := *item
	return &cp, nil
}

func (m *memStore) List(ctx context.Context, filter ListFilter) ([]Item, int, error) {
	items, _ := m.ListAll(ctx)
	return items, len(items), nil
}

func (m *memStore) ListAll(ctx context.Context) ([]Item, error) {
	var out []Item
	for _, item := range m.items {
		out = append(out, *item)
	}
	return out, nil
}

func (m *memStore) ListLowStock(ctx context.Context) ([]Item, error) {
	var out []Item
	for _, item := range m.items {
		if item.IsLowStock() {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (m *memStore) Update(ctx context.Context, item *Item) error {
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memStore) Delete(ctx context.Context, id types.ID) error {
	if _, ok := m.items[id]; !ok {
		return errors.NotFound("resource", id.String())
	}
	delete(m.items, id)
	return nil
}

func do(t *testing.T, h http.Handler, method, path string, body any, role auth.Role) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: types.NewID(), Roles: []auth.Role{role}}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler(t *testing.T) {
	store := &memStore{items: map[types.ID]*Item{}}
	h := NewHandler(store, nil, zap.NewNop()).Routes()

	res := do(t, h, http.MethodPost, "/", map[string]any{"name": "Riz", "category": "Alimentaire", "quantity": 50, "min_threshold": 10}, auth.RoleVolunteer)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = do(t, h, http.MethodPost, "/", map[string]any{"name": "Riz", "category": "Alimentaire", "quantity": 50, "min_threshold": 10}, auth.RoleCoordinator)
	require.Equal(t, http.StatusCreated, res.Code)
	var item Item
	require.NoError(t, json.NewDecoder(res.Body).Decode(&item))

	res = do(t, h, http.MethodGet, "/low-stock", nil, auth.RoleVolunteer)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"total":0`)

	res = do(t, h, http.MethodPatch, "/"+item.ID.String(), map[string]any{"quantity": 10}, auth.RoleCoordinator)
	require.Equal(t, http.StatusOK, res.Code)

	res = do(t, h, http.MethodGet, "/low-stock", nil, auth.RoleVolunteer)
	assert.Contains(t, res.Body.String(), `"total":1`)

	res = do(t, h, http.MethodDelete, "/"+item.ID.String(), nil, auth.RoleCoordinator)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = do(t, h, http.MethodDelete, "/"+item.ID.String(), nil, auth.RoleAdmin)
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Empty(t, store.items)
}
