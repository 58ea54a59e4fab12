package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/omnia-aid/platform/internal/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, roles ...string) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "4d2f3c3e-0d7a-4b8e-9d8c-2f5a6b7c8d9e",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:  "Amina",
		Roles: roles,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func guarded(roles ...Role) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return Middleware(config.AuthConfig{JWTSecret: testSecret})(RequireRoles(roles...)(ok))
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"allowed role", "Bearer " + signToken(t, "benevole"), http.StatusNoContent},
		{"forbidden role", "Bearer " + signToken(t, "COORDINATOR"), http.StatusForbidden},
		{"unknown role dropped", "Bearer " + signToken(t, "superuser"), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			guarded(RoleVolunteer, RoleAdmin).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestDevUser(t *testing.T) {
	var seen *User
	h := DevUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUser(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, seen)
	assert.True(t, seen.HasRole(RoleAdmin))
}

func TestParseRoles(t *testing.T) {
	assert.Equal(t, []Role{RoleFieldManager, RoleAdmin}, ParseRoles([]string{" responsable_terrain", "ADMIN", "guest"}))
}
