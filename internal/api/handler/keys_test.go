package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidhive/vidhive/internal/api/handler"
	"golang.org/x/crypto/bcrypt"
)

func withKeyID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("keyID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateKeyHandler_MintsKey(t *testing.T) {
	e := newEnv(t)
	h := handler.NewCreateKeyHandler(e.store)

	body := strings.NewReader(`{"name": "ci uploader", "scopes": ["upload", "read"]}`)
	req := httptest.NewRequest("POST", "/api/v1/admin/keys", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, e.authed(req))

	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)

	rawKey := data["raw_key"].(string)
	assert.True(t, strings.HasPrefix(rawKey, "vh_"))
	assert.Equal(t, rawKey[:8], data["key_prefix"])
	assert.Equal(t, "ci uploader", data["name"])

	// The stored hash verifies the raw key; the raw key itself is not stored.
	keys, err := e.store.GetAPIKeyByPrefix(context.Background(), rawKey[:8])
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(keys[0].KeyHash), []byte(rawKey)))
	assert.NotContains(t, keys[0].KeyHash, rawKey)
}

func TestCreateKeyHandler_RejectsUnknownScope(t *testing.T) {
	e := newEnv(t)
	h := handler.NewCreateKeyHandler(e.store)

	body := strings.NewReader(`{"name": "bad", "scopes": ["superuser"]}`)
	req := httptest.NewRequest("POST", "/api/v1/admin/keys", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, e.authed(req))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateKeyHandler_RequiresName(t *testing.T) {
	e := newEnv(t)
	h := handler.NewCreateKeyHandler(e.store)

	body := strings.NewReader(`{"scopes": ["read"]}`)
	req := httptest.NewRequest("POST", "/api/v1/admin/keys", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, e.authed(req))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListKeysHandler(t *testing.T) {
	e := newEnv(t)

	create := handler.NewCreateKeyHandler(e.store)
	for _, name := range []string{"alpha", "beta"} {
		body := strings.NewReader(`{"name": "` + name + `", "scopes": ["read"]}`)
		req := httptest.NewRequest("POST", "/api/v1/admin/keys", body)
		w := httptest.NewRecorder()
		create.ServeHTTP(w, e.authed(req))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	h := handler.NewListKeysHandler(e.store)
	req := httptest.NewRequest("GET", "/api/v1/admin/keys", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, e.authed(req))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Len(t, body["data"].([]any), 2)
}

func TestRevokeKeyHandler(t *testing.T) {
	e := newEnv(t)

	create := handler.NewCreateKeyHandler(e.store)
	req := httptest.NewRequest("POST", "/api/v1/admin/keys",
		strings.NewReader(`{"name": "doomed", "scopes": ["read"]}`))
	w := httptest.NewRecorder()
	create.ServeHTTP(w, e.authed(req))
	require.Equal(t, http.StatusCreated, w.Code)
	keyID := decodeBody(t, w)["data"].(map[string]any)["id"].(string)

	h := handler.NewRevokeKeyHandler(e.store)
	req = httptest.NewRequest("DELETE", "/api/v1/admin/keys/"+keyID, nil)
	req = withKeyID(e.authed(req), keyID)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Revoking again reports not found.
	req = httptest.NewRequest("DELETE", "/api/v1/admin/keys/"+keyID, nil)
	req = withKeyID(e.authed(req), keyID)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRevokeKeyHandler_BadID(t *testing.T) {
	e := newEnv(t)
	h := handler.NewRevokeKeyHandler(e.store)

	req := httptest.NewRequest("DELETE", "/api/v1/admin/keys/nope", nil)
	req = withKeyID(e.authed(req), "nope")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
