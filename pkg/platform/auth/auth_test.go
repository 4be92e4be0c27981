package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "fittrack.test"}

func TestIssueAndParse(t *testing.T) {
	token, err := Issue(testConfig, "user-1", "tenant-a", []string{"workouts:write", "workouts:read"}, time.Minute)
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "tenant-a", claims.TenantID)
	require.True(t, claims.HasScope("workouts:write"))
	require.True(t, claims.HasScope("workouts:read"))
	require.False(t, claims.HasScope("admin"))
}

func TestParseDefaultsTenant(t *testing.T) {
	token, err := Issue(testConfig, "user-1", "", nil, time.Minute)
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, DefaultTenant, claims.TenantID)
}

func TestParseRejects(t *testing.T) {
	expired, err := Issue(testConfig, "user-1", "t", nil, -time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := Issue(Config{Secret: testConfig.Secret, Issuer: "elsewhere"}, "user-1", "t", nil, time.Minute)
	require.NoError(t, err)
	wrongSecret, err := Issue(Config{Secret: "other", Issuer: testConfig.Issuer}, "user-1", "t", nil, time.Minute)
	require.NoError(t, err)
	noSubject, err := Issue(testConfig, "", "t", nil, time.Minute)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"wrong secret": wrongSecret,
		"no subject":   noSubject,
		"garbage":      "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig, func(r *http.Request) bool { return r.URL.Path == "/healthz" }).Wrap(next)

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/workouts/sync", nil))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "unauthorized", body["type"])
		require.Equal(t, ErrMissingToken.Error(), body["detail"])
	})

	t.Run("skipped path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := Issue(testConfig, "user-9", "tenant-z", []string{"workouts:write"}, time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/v1/workouts/sync", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		require.Equal(t, "user-9", seen.Subject)
		require.Equal(t, "tenant-z", seen.TenantID)
	})
}
