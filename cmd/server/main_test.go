package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidhive/vidhive/internal/store"
)

// --- test doubles ---

type testStore struct {
	*store.MemoryStore
	pingErr error
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }

type testCache struct {
	pingErr error
}

func (c *testCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *testCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *testCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *testCache) Ping(_ context.Context) error                                     { return c.pingErr }
func (c *testCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

type testGateway struct {
	pingErr error
}

func (g *testGateway) Put(_ context.Context, _ string, _ io.Reader, _ int64, _ string) error {
	return nil
}
func (g *testGateway) Get(_ context.Context, _ string) (io.ReadCloser, error) { return nil, nil }
func (g *testGateway) Delete(_ context.Context, _ string) error               { return nil }
func (g *testGateway) URL(path string) string                                 { return "http://example/" + path }
func (g *testGateway) Ping(_ context.Context) error                           { return g.pingErr }

func healthStore(pingErr error) *testStore {
	return &testStore{MemoryStore: store.NewMemoryStore(), pingErr: pingErr}
}

// --- health handler ---

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(healthStore(nil), &testCache{}, &testGateway{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])

	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
	assert.Equal(t, "ok", services["storage"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	h := healthHandler(healthStore(errors.New("connection refused")), &testCache{}, &testGateway{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])

	details := errObj["details"].(map[string]any)
	assert.Equal(t, "degraded", details["database"])
	assert.Equal(t, "ok", details["cache"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	h := healthHandler(healthStore(nil), &testCache{pingErr: errors.New("timeout")}, &testGateway{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthHandler_StorageDegraded(t *testing.T) {
	h := healthHandler(healthStore(nil), &testCache{}, &testGateway{pingErr: errors.New("no bucket")})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// healthStore embeds a MemoryStore, so the Store contract stays satisfied
// even as the interface grows.
func TestHealthStore_ImplementsStore(t *testing.T) {
	var s store.Store = healthStore(nil)
	_, err := s.GetVideo(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
