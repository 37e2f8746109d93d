package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"versionedkv/internal/engine"
	"versionedkv/internal/idalloc"
	"versionedkv/internal/trash"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	e := engine.New(idalloc.New(), trash.NewWorkerCleaner(1, 8))
	require.NoError(t, e.VersionCreate("v1"))
	return NewServer(e, nil, nil, nil), e
}

func b64(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

func TestHealthCheck(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPutAndGetKey(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	body, _ := json.Marshal(putKeyRequest{Value: b64("bar")})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/branches/main/kv/"+b64("foo"), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/branches/main/kv/"+b64("foo"), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Value string `json:"value"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	decoded, err := base64.URLEncoding.DecodeString(resp.Value)
	require.NoError(t, err)
	assert.Equal(t, "bar", string(decoded))
}

func TestGetKey_UnknownBranch404(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/branches/ghost/kv/"+b64("foo"), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveKey(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	body, _ := json.Marshal(putKeyRequest{Value: b64("bar")})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/branches/main/kv/"+b64("foo"), bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/branches/main/kv/"+b64("foo"), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/branches/main/kv/"+b64("foo"), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAndListBranches(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	body, _ := json.Marshal(createBranchRequest{Name: "dev", BaseVersion: "v1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/branches", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/branches", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Branches []string `json:"branches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Branches, "dev")
	assert.Contains(t, resp.Branches, "main")
}

func TestCreateVersionAndRange(t *testing.T) {
	s, e := newTestServer(t)
	router := s.Router()

	brID, ok := e.BranchIDByName("main")
	require.True(t, ok)
	_, err := e.InsertByBranch([]byte("a"), []byte("1"), brID)
	require.NoError(t, err)
	_, err = e.InsertByBranch([]byte("b"), []byte("2"), brID)
	require.NoError(t, err)

	body, _ := json.Marshal(createVersionRequest{Name: "v2"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/branches/main/versions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/branches/main/range", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Entries, 2)
}

func TestPrune(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/prune", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
