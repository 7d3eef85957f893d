package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkarkhanis/splitex/internal/auth"
	"github.com/vkarkhanis/splitex/internal/models"
)

func authedHandler(t *testing.T) (http.Handler, *string, *string) {
	t.Helper()
	var gotUserID, gotEmail string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
		gotEmail = GetEmail(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return h, &gotUserID, &gotEmail
}

func TestRequireAuthValidToken(t *testing.T) {
	mgr := auth.NewJWTManager("test-secret", time.Hour)
	token, err := mgr.Generate(&models.User{ID: "user-1", Email: "alice@example.com"})
	require.NoError(t, err)

	next, userID, email := authedHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	RequireAuth(mgr)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", *userID)
	assert.Equal(t, "alice@example.com", *email)
}

func TestRequireAuthMissingHeader(t *testing.T) {
	mgr := auth.NewJWTManager("test-secret", time.Hour)
	next, userID, _ := authedHandler(t)

	rec := httptest.NewRecorder()
	RequireAuth(mgr)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, *userID)
}

func TestRequireAuthMalformedHeader(t *testing.T) {
	mgr := auth.NewJWTManager("test-secret", time.Hour)
	next, _, _ := authedHandler(t)

	for _, header := range []string{"Bearer", "Basic abc123", "Bearer too many parts"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()

		RequireAuth(mgr)(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestRequireAuthBadToken(t *testing.T) {
	mgr := auth.NewJWTManager("test-secret", time.Hour)
	other := auth.NewJWTManager("other-secret", time.Hour)
	token, err := other.Generate(&models.User{ID: "user-1", Email: "alice@example.com"})
	require.NoError(t, err)

	next, _, _ := authedHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	RequireAuth(mgr)(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWithUserID(t *testing.T) {
	ctx := WithUserID(t.Context(), "user-9")
	assert.Equal(t, "user-9", GetUserID(ctx))
	assert.Empty(t, GetEmail(ctx))
}
