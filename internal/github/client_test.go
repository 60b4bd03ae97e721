package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesign/signdeck/internal/config"
	"github.com/vantagesign/signdeck/internal/errors"
	"github.com/vantagesign/signdeck/internal/logging"
)

func testClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.GitHubConfig{Owner: "vantagesign", Repo: "billboard-cdn", Branch: "main"}
	return NewClient(cfg, "test-token", logging.Discard()).WithBaseURL(srv.URL)
}

func TestGetFileDecodesContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/vantagesign/billboard-cdn/contents/manifest.json",
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "main", r.URL.Query().Get("ref"))
			json.NewEncoder(w).Encode(map[string]any{
				"type":     "file",
				"path":     "manifest.json",
				"sha":      "abc123",
				"encoding": "base64",
				"content":  base64.StdEncoding.EncodeToString([]byte(`{"logos": []}`)),
			})
		})

	file, err := testClient(t, mux).GetFile(context.Background(), "manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "abc123", file.SHA)
	assert.JSONEq(t, `{"logos": []}`, string(file.Content))
}

func TestGetFileNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})

	_, err := testClient(t, mux).GetFile(context.Background(), "missing.json")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestPutFileSendsSHAAndReturnsNewSHA(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/v3/repos/vantagesign/billboard-cdn/contents/logos/acme.png",
		func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "old-sha", body["sha"])
			assert.Equal(t, "main", body["branch"])
			assert.Equal(t, "upload logo acme", body["message"])

			json.NewEncoder(w).Encode(map[string]any{
				"content": map[string]any{"sha": "new-sha"},
			})
		})

	sha, err := testClient(t, mux).PutFile(context.Background(),
		"logos/acme.png", []byte("png-bytes"), "old-sha", "upload logo acme")
	require.NoError(t, err)
	assert.Equal(t, "new-sha", sha)
}

func TestPutFileConflict(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"message": "is at abc but expected def"}`)
	})

	_, err := testClient(t, mux).PutFile(context.Background(),
		"manifest.json", []byte("{}"), "stale", "update manifest")
	require.Error(t, err)
	assert.Equal(t, errors.TypeConflict, errors.TypeOf(err))
}

func TestPutFileAuthError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	})

	_, err := testClient(t, mux).PutFile(context.Background(),
		"manifest.json", []byte("{}"), "", "update manifest")
	require.Error(t, err)
	assert.Equal(t, errors.TypeAuth, errors.TypeOf(err))
}

func TestDeleteFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/v3/repos/vantagesign/billboard-cdn/contents/logos/old.png",
		func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "blob-sha", body["sha"])
			json.NewEncoder(w).Encode(map[string]any{"content": nil})
		})

	err := testClient(t, mux).DeleteFile(context.Background(),
		"logos/old.png", "blob-sha", "remove logo old")
	assert.NoError(t, err)
}

func TestBranchHead(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/vantagesign/billboard-cdn/branches/main",
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"name":   "main",
				"commit": map[string]any{"sha": "head-sha"},
			})
		})

	sha, err := testClient(t, mux).BranchHead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "head-sha", sha)
}

func TestDispatchWorkflow(t *testing.T) {
	mux := http.NewServeMux()
	var dispatched bool
	mux.HandleFunc("POST /api/v3/repos/vantagesign/billboard-cdn/actions/workflows/publish.yml/dispatches",
		func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "main", body["ref"])
			dispatched = true
			w.WriteHeader(http.StatusNoContent)
		})

	err := testClient(t, mux).DispatchWorkflow(context.Background(), "publish.yml",
		map[string]any{"reason": "manifest update"})
	require.NoError(t, err)
	assert.True(t, dispatched)
}

func TestDispatchWorkflowMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})

	err := testClient(t, mux).DispatchWorkflow(context.Background(), "ghost.yml", nil)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
