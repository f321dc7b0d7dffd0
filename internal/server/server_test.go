package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/config"
	"github.com/synchub/api/internal/handler"
	"github.com/synchub/api/internal/health"
	"github.com/synchub/api/internal/idempotency"
	"github.com/synchub/api/internal/service"
	"github.com/synchub/api/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zap.NewNop()

	tables := store.NewMemoryTables(logger)
	t.Cleanup(tables.Close)

	settings := service.NewSettingService(tables.Settings, logger)
	bookmarks := service.NewBookmarkService(tables.Bookmarks, logger)
	groups := service.NewGroupService(tables.Groups, tables.GroupMembers, logger)
	devices := service.NewDeviceService(tables.Sessions, 0, logger)

	handlers := handler.NewHandlers(settings, bookmarks, groups, devices, apierrors.NewWriter(logger), logger)

	healthCheck := health.NewHealthCheck(tables, logger)
	t.Cleanup(healthCheck.Close)

	cache := idempotency.NewMemoryCache()
	t.Cleanup(func() { cache.Close() })

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080},
		RateLimiter: config.RateLimiterConfig{
			Enabled:           true,
			RequestsPerSecond: 10000,
			BurstSize:         10000,
		},
	}

	srv := NewServer(cfg, handlers, healthCheck, logger, Options{
		Idempotency: idempotency.NewMiddleware(cache, time.Minute, logger),
	})
	srv.SetupRoutes()
	return srv
}

func bearerToken(t *testing.T, tenantID, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"custom:tenant_id": tenantID,
		"sub":              userID,
		"email":            userID + "@example.com",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(rr, req)
	return rr
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}

func TestHealthEndpointsBypassAuth(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodGet, "/_health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok": true}`, rr.Body.String())

	rr = doJSON(t, srv, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	for _, probe := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/settings"},
		{http.MethodPost, "/settings"},
		{http.MethodGet, "/bookmarks"},
		{http.MethodGet, "/groups"},
		{http.MethodPost, "/auth/device/start"},
		{http.MethodPost, "/sessions/abc/emoji"},
	} {
		rr := doJSON(t, srv, probe.method, probe.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", probe.method, probe.path)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "t1", "u1")

	rr := doJSON(t, srv, http.MethodGet, "/nope", token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error": "not found"}`, rr.Body.String())

	rr = doJSON(t, srv, http.MethodPatch, "/settings", token, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.JSONEq(t, `{"error": "method not allowed"}`, rr.Body.String())
}

func TestSettingLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "t1", "u1")

	// Create
	rr := doJSON(t, srv, http.MethodPost, "/settings", token, map[string]any{
		"name":      "theme",
		"value":     "dark",
		"is_public": true,
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var created struct {
		SettingID string `json:"setting_id"`
		Version   int64  `json:"version"`
	}
	decodeInto(t, rr, &created)
	assert.Equal(t, int64(1), created.Version)

	// Update
	rr = doJSON(t, srv, http.MethodPut, "/settings/"+created.SettingID, token, map[string]any{
		"value": "light",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var updated struct {
		Version int64  `json:"version"`
		Value   string `json:"value"`
	}
	decodeInto(t, rr, &updated)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "light", updated.Value)

	// History holds the superseded version.
	rr = doJSON(t, srv, http.MethodGet, "/settings/"+created.SettingID+"/history", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var history struct {
		History []struct {
			Version int64  `json:"version"`
			Value   string `json:"value"`
		} `json:"history"`
	}
	decodeInto(t, rr, &history)
	require.Len(t, history.History, 1)
	assert.Equal(t, int64(1), history.History[0].Version)
	assert.Equal(t, "dark", history.History[0].Value)

	// Rollback to v1.
	rr = doJSON(t, srv, http.MethodPost, "/settings/"+created.SettingID+"/rollback", token, map[string]any{
		"version": 1,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var restored struct {
		Version int64  `json:"version"`
		Value   string `json:"value"`
	}
	decodeInto(t, rr, &restored)
	assert.Equal(t, int64(3), restored.Version)
	assert.Equal(t, "dark", restored.Value)

	// Delete
	rr = doJSON(t, srv, http.MethodDelete, "/settings/"+created.SettingID, token, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, srv, http.MethodGet, "/settings/"+created.SettingID, token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSettingRollbackRequiresVersion(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "t1", "u1")

	rr := doJSON(t, srv, http.MethodPost, "/settings", token, map[string]any{"name": "a", "value": "b"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		SettingID string `json:"setting_id"`
	}
	decodeInto(t, rr, &created)

	rr = doJSON(t, srv, http.MethodPost, "/settings/"+created.SettingID+"/rollback", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error": "version required"}`, rr.Body.String())
}

func TestSettingsTenantIsolationOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	tokenA := bearerToken(t, "t1", "u1")
	tokenB := bearerToken(t, "t2", "u2")

	rr := doJSON(t, srv, http.MethodPost, "/settings", tokenA, map[string]any{"name": "secret", "value": "x"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		SettingID string `json:"setting_id"`
	}
	decodeInto(t, rr, &created)

	rr = doJSON(t, srv, http.MethodGet, "/settings/"+created.SettingID, tokenB, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, srv, http.MethodGet, "/settings", tokenB, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var listing struct {
		Settings []json.RawMessage `json:"settings"`
	}
	decodeInto(t, rr, &listing)
	assert.Empty(t, listing.Settings)
}

func TestPublicSettingsCrossTenantWithoutAuth(t *testing.T) {
	srv := newTestServer(t)
	tokenA := bearerToken(t, "t1", "u1")
	tokenB := bearerToken(t, "t2", "u2")

	rr := doJSON(t, srv, http.MethodPost, "/settings", tokenA, map[string]any{
		"name": "banner", "value": "hello", "is_public": true,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = doJSON(t, srv, http.MethodPost, "/settings", tokenB, map[string]any{
		"name": "hidden", "value": "x", "is_public": false,
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, srv, http.MethodGet, "/settings/public", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var listing struct {
		Settings []struct {
			Name     string `json:"name"`
			IsPublic bool   `json:"is_public"`
		} `json:"settings"`
	}
	decodeInto(t, rr, &listing)
	require.Len(t, listing.Settings, 1)
	assert.Equal(t, "banner", listing.Settings[0].Name)
}

func TestSettingVisibilityEndpoint(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "t1", "u1")

	rr := doJSON(t, srv, http.MethodPost, "/settings", token, map[string]any{"name": "a", "value": "b"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		SettingID string `json:"setting_id"`
	}
	decodeInto(t, rr, &created)

	rr = doJSON(t, srv, http.MethodPut, "/settings/"+created.SettingID+"/visibility", token, map[string]any{
		"is_public": true,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"is_public": true}`, rr.Body.String())

	// Visible publicly, version unchanged.
	rr = doJSON(t, srv, http.MethodGet, "/settings/"+created.SettingID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var setting struct {
		IsPublic bool  `json:"is_public"`
		Version  int64 `json:"version"`
	}
	decodeInto(t, rr, &setting)
	assert.True(t, setting.IsPublic)
	assert.Equal(t, int64(1), setting.Version)
}

func TestBookmarkLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "t1", "u1")

	rr := doJSON(t, srv, http.MethodPost, "/bookmarks", token, map[string]any{
		"title": "docs",
		"url":   "https://example.com/docs",
		"tags":  []string{"work"},
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		BookmarkID string `json:"bookmark_id"`
	}
	decodeInto(t, rr, &created)

	rr = doJSON(t, srv, http.MethodPut, "/bookmarks/"+created.BookmarkID, token, map[string]any{
		"title": "handbook",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var updated struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	decodeInto(t, rr, &updated)
	assert.Equal(t, "handbook", updated.Title)
	assert.Equal(t, "https://example.com/docs", updated.URL)

	rr = doJSON(t, srv, http.MethodDelete, "/bookmarks/"+created.BookmarkID, token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestGroupLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "t1", "u1")

	rr := doJSON(t, srv, http.MethodPost, "/groups", token, map[string]any{
		"name":        "engineering",
		"description": "the builders",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		GroupID string `json:"group_id"`
	}
	decodeInto(t, rr, &created)

	// Invite requires user_id.
	rr = doJSON(t, srv, http.MethodPost, "/groups/"+created.GroupID+"/invite", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error": "user_id required"}`, rr.Body.String())

	rr = doJSON(t, srv, http.MethodPost, "/groups/"+created.GroupID+"/invite", token, map[string]any{
		"user_id": "u2",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, srv, http.MethodGet, "/groups/"+created.GroupID+"/members", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var members struct {
		Members []struct {
			UserID string `json:"user_id"`
			Role   string `json:"role"`
		} `json:"members"`
	}
	decodeInto(t, rr, &members)
	assert.Len(t, members.Members, 2)

	rr = doJSON(t, srv, http.MethodDelete, "/groups/"+created.GroupID, token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, srv, http.MethodGet, "/groups/"+created.GroupID+"/members", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	members.Members = nil
	decodeInto(t, rr, &members)
	assert.Empty(t, members.Members)
}

func TestDeviceFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "t1", "u1")

	rr := doJSON(t, srv, http.MethodPost, "/auth/device/start", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var started struct {
		DeviceCode string `json:"device_code"`
		SessionID  string `json:"session_id"`
		ExpiresIn  int64  `json:"expires_in"`
	}
	decodeInto(t, rr, &started)
	assert.Len(t, started.DeviceCode, 8)
	assert.Equal(t, int64(600), started.ExpiresIn)

	// Confirm is public.
	rr = doJSON(t, srv, http.MethodPost, "/auth/device/confirm", "", map[string]any{
		"device_code": started.DeviceCode,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status": "confirmed"}`, rr.Body.String())

	// Missing code is a 400, unknown code a 404.
	rr = doJSON(t, srv, http.MethodPost, "/auth/device/confirm", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, srv, http.MethodPost, "/auth/device/confirm", "", map[string]any{
		"device_code": started.DeviceCode,
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error": "invalid device code"}`, rr.Body.String())

	// Emoji feedback on the session.
	rr = doJSON(t, srv, http.MethodPost, "/sessions/"+started.SessionID+"/emoji", token, map[string]any{
		"emoji": "🎉",
	})
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestIdempotentCreateReplayed(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "t1", "u1")

	body := map[string]any{"name": "theme", "value": "dark"}

	send := func() *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		req := httptest.NewRequest(http.MethodPost, "/settings", &buf)
		req.Header.Set("Authorization", token)
		req.Header.Set("Idempotency-Key", "create-theme")
		rr := httptest.NewRecorder()
		srv.GetHandler().ServeHTTP(rr, req)
		return rr
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code)
	second := send()
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotency-Replayed"))

	// Only one setting was minted.
	rr := doJSON(t, srv, http.MethodGet, "/settings", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var listing struct {
		Settings []json.RawMessage `json:"settings"`
	}
	decodeInto(t, rr, &listing)
	assert.Len(t, listing.Settings, 1)
}

func TestInvalidJSONBody(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "t1", "u1")

	req := httptest.NewRequest(http.MethodPost, "/settings", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", token)
	rr := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error": "invalid JSON body"}`, rr.Body.String())
}
