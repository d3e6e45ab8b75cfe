package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/vmtrack/internal/adapters/storage"
	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
)

func newTestServer(t *testing.T) (*Server, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewServer(":0", store), store
}

func seedAsset(t *testing.T, store *storage.SQLiteStore) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := store.AddAsset(ctx, domain.AssetObservation{
		UID: "SCANNER1|42|10.0.0.5", ExternalID: 42,
		IP: "10.0.0.5", Hostname: "h1", MAC: "aa:bb:cc:00:00:01",
	})
	require.NoError(t, err)
	require.NoError(t, store.UpsertFinding(ctx, id, domain.Finding{
		VulnExternalID: 100, Title: "v1", CVSS: 9.0, AgeDays: 10,
		Detected: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}, "default"))
	return id
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func TestHandleAssets(t *testing.T) {
	srv, store := newTestServer(t)

	t.Run("empty store", func(t *testing.T) {
		rec, body := doJSON(t, srv, http.MethodGet, "/api/assets", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, body["assets"])
	})

	seedAsset(t, store)

	rec, body := doJSON(t, srv, http.MethodGet, "/api/assets", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assets := body["assets"].([]any)
	require.Len(t, assets, 1)
	first := assets[0].(map[string]any)
	assert.Equal(t, "SCANNER1|42|10.0.0.5", first["uid"])
	assert.Equal(t, "10.0.0.5", first["ip"])
}

func TestHandleWorkflow(t *testing.T) {
	srv, store := newTestServer(t)
	id := seedAsset(t, store)

	rec, body := doJSON(t, srv, http.MethodGet, "/api/assets/1/workflow", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	entries := body["workflow"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "new", entry["status_label"])
	assert.Equal(t, float64(id), entry["asset_id"])

	t.Run("unknown asset yields empty list", func(t *testing.T) {
		rec, body := doJSON(t, srv, http.MethodGet, "/api/assets/999/workflow", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["workflow"].([]any), 0)
	})
}

func TestHandleCompliance(t *testing.T) {
	srv, store := newTestServer(t)
	seedAsset(t, store)

	rec, body := doJSON(t, srv, http.MethodGet, "/api/assets/1/compliance", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	compliance := body["compliance"].(map[string]any)
	assert.Equal(t, false, compliance["failed"])

	t.Run("untracked asset yields null", func(t *testing.T) {
		rec, body := doJSON(t, srv, http.MethodGet, "/api/assets/999/compliance", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, body["compliance"])
	})
}

func TestHandleSetStatus(t *testing.T) {
	srv, store := newTestServer(t)
	id := seedAsset(t, store)

	rec, _ := doJSON(t, srv, http.MethodPost, "/api/workflow/1/status",
		`{"status":"acknowledged","contact":"ops@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	entries, err := store.WorkflowForAsset(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StatusAcknowledged, entries[0].Status)
	assert.Equal(t, "ops@example.com", entries[0].Contact)

	t.Run("scanner-owned statuses are rejected", func(t *testing.T) {
		for _, status := range []string{"new", "resolved", "bogus"} {
			rec, _ := doJSON(t, srv, http.MethodPost, "/api/workflow/1/status",
				`{"status":"`+status+`"}`)
			assert.Equal(t, http.StatusBadRequest, rec.Code, status)
		}
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		rec, _ := doJSON(t, srv, http.MethodPost, "/api/workflow/1/status", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
