package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"goaltrack/application/services"
	"goaltrack/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	registry := services.NewRegistry(t.TempDir(), nil, time.Minute, []string{"pro"}, zap.NewNop())
	t.Cleanup(registry.CloseAll)

	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: testSecret,
		Issuer:    "goaltrack",
	})
	require.NoError(t, err)

	return NewRouter(registry, validator, false, zap.NewNop()).Setup()
}

func testToken(t *testing.T, plan string) string {
	t.Helper()

	generator, err := auth.NewJWTGenerator(auth.JWTGeneratorConfig{
		SecretKey: testSecret,
		Issuer:    "goaltrack",
	})
	require.NoError(t, err)

	token, err := generator.GenerateToken("user-1", "user@example.com", plan)
	require.NoError(t, err)
	return token
}

func doRequest(handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointsNeedNoAuth(t *testing.T) {
	handler := newTestHandler(t)

	rec := doRequest(handler, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGoalsRequireAuthentication(t *testing.T) {
	handler := newTestHandler(t)

	rec := doRequest(handler, http.MethodGet, "/api/v1/goals", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/api/v1/goals", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGoalLifecycleOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	token := testToken(t, "free")

	body := `{"title":"Learn Go","description":"The language","timeline":"3 months","milestones":[{"week":1,"task":"tour"},{"week":2,"task":"book"}]}`
	rec := doRequest(handler, http.MethodPost, "/api/v1/goals", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Success bool `json:"success"`
		Data    struct {
			ID     int64  `json:"id"`
			Title  string `json:"title"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Success)
	assert.Equal(t, int64(1), created.Data.ID)
	assert.Equal(t, "in-progress", created.Data.Status)

	// Duplicate content returns the existing goal.
	rec = doRequest(handler, http.MethodPost, "/api/v1/goals", token, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/api/v1/goals", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, 1, listed.Data.Count)

	rec = doRequest(handler, http.MethodPost, "/api/v1/goals/1/milestones/0/complete", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var updated struct {
		Data struct {
			Progress int    `json:"progress"`
			Status   string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 50, updated.Data.Progress)
	assert.Equal(t, "on-track", updated.Data.Status)

	rec = doRequest(handler, http.MethodDelete, "/api/v1/goals/1", token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/api/v1/goals/1", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateGoalRejectsEmptyTitle(t *testing.T) {
	handler := newTestHandler(t)
	token := testToken(t, "free")

	rec := doRequest(handler, http.MethodPost, "/api/v1/goals", token, `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncEndpointsGateOnEligibility(t *testing.T) {
	handler := newTestHandler(t)

	// No remote store is configured, so even a pro plan is not eligible.
	token := testToken(t, "pro")

	rec := doRequest(handler, http.MethodPost, "/api/v1/sync/migrate", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/api/v1/sync/status", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Data struct {
			AutoSyncRunning bool        `json:"autoSyncRunning"`
			LastSyncedAt    interface{} `json:"lastSyncedAt"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Data.AutoSyncRunning)
	assert.Nil(t, status.Data.LastSyncedAt)
}
