package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/server"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"yomu"}, "yomu"},
		{"multiple words", []string{"vector", "store"}, "vector store"},
		{"single quoted phrase", []string{"vector store"}, "vector store"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args); got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\nembedding:\n  provider: mock\n"), 0600))

		cfg, resolved, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, path, resolved)
		assert.Equal(t, 9191, cfg.Server.Port)
	})

	t.Run("cwd config.yaml wins over default path", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9292\nembedding:\n  provider: mock\n"), 0600))
		t.Chdir(dir)

		cfg, resolved, err := loadConfig(defaultConfigPath)
		require.NoError(t, err)
		assert.Equal(t, 9292, cfg.Server.Port)
		assert.Equal(t, "config.yaml", filepath.Base(resolved))
	})

	t.Run("missing explicit path is an error", func(t *testing.T) {
		_, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

type cliEnv struct {
	configPath string
	docs       string
}

func newCLIEnv(t *testing.T, answerURL string) cliEnv {
	t.Helper()
	t.Setenv(envServerURL, "")
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "fox.txt"), []byte("the quick brown fox jumps"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "db.md"), []byte("database indexing strategies for sqlite"), 0600))

	cfg := fmt.Sprintf(`storage:
  index_path: %s
  database_path: %s
  compression: none
embedding:
  provider: mock
  dimensions: 32
ingest:
  chunk_size: 50
  chunk_overlap: 5
answer:
  base_url: %s
`, filepath.Join(dir, "data", "index.yvec"), filepath.Join(dir, "data", "ledger.db"), answerURL)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return cliEnv{configPath: path, docs: docs}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fakeChatServer(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCLI_DirectMode(t *testing.T) {
	chat := fakeChatServer(t, "A fox jumps.")
	env := newCLIEnv(t, chat.URL)
	cfgFlag := "--config=" + env.configPath

	out, err := runCLI(t, cfgFlag, "-o", "json", "ingest", env.docs)
	require.NoError(t, err)
	var ingestResp models.IngestResponse
	require.NoError(t, json.Unmarshal([]byte(out), &ingestResp))
	assert.Equal(t, 2, ingestResp.FilesIndexed)
	assert.Equal(t, 2, ingestResp.ChunksAdded)
	assert.Equal(t, 2, ingestResp.TotalChunks)

	out, err = runCLI(t, cfgFlag, "ingest", env.docs)
	require.NoError(t, err)
	assert.Contains(t, out, "(2 unchanged, 0 failed)")

	out, err = runCLI(t, cfgFlag, "-o", "json", "search", "the", "quick", "brown", "fox", "jumps")
	require.NoError(t, err)
	var searchResp models.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &searchResp))
	require.NotEmpty(t, searchResp.Results)
	assert.Equal(t, "fox.txt", filepath.Base(searchResp.Results[0].SourcePath))
	assert.InDelta(t, 1.0, searchResp.Results[0].Score, 1e-5)

	out, err = runCLI(t, cfgFlag, "ask", "the quick brown fox jumps")
	require.NoError(t, err)
	assert.Contains(t, out, "A fox jumps.")
	assert.Contains(t, out, "Sources:")

	out, err = runCLI(t, cfgFlag, "-o", "json", "status")
	require.NoError(t, err)
	var status models.StatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 2, status.Chunks)
	assert.Equal(t, 2, status.Sources)
	assert.Equal(t, 32, status.Dimension)
	assert.Equal(t, "mock-hash-32", status.StoreModelID)
	assert.Equal(t, "loaded", status.LastLoad)
	assert.Positive(t, status.DiskUsageBytes)

	out, err = runCLI(t, cfgFlag, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "fox.txt")
	assert.Contains(t, out, "db.md")

	_, err = runCLI(t, cfgFlag, "reset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out, err = runCLI(t, cfgFlag, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Store reset")

	out, err = runCLI(t, cfgFlag, "search", "the quick brown fox jumps")
	require.NoError(t, err)
	assert.Contains(t, out, "No confident match")
}

func TestCLI_Errors(t *testing.T) {
	env := newCLIEnv(t, "http://127.0.0.1:1/v1")
	cfgFlag := "--config=" + env.configPath

	_, err := runCLI(t, cfgFlag, "search", "  ")
	assert.Error(t, err)

	_, err = runCLI(t, cfgFlag, "-o", "yaml", "status")
	assert.Error(t, err)

	_, err = runCLI(t, cfgFlag, "ingest", filepath.Join(env.docs, "missing.txt"))
	assert.Error(t, err)

	_, err = runCLI(t, cfgFlag, "watch", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--server")

	_, err = runCLI(t, cfgFlag, "reload")
	assert.Error(t, err)
}

func TestCLI_ServerMode(t *testing.T) {
	env := newCLIEnv(t, "http://127.0.0.1:1/v1")
	cfg, _, err := loadConfig(env.configPath)
	require.NoError(t, err)
	c, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	srv := server.NewServer(c.Retriever, c.Pipeline, cfg, zap.NewNop(), server.WithLedger(c.Ledger))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	serverFlag := "--server=" + ts.URL

	out, err := runCLI(t, serverFlag, "ingest", env.docs)
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 2 files")

	out, err = runCLI(t, serverFlag, "-o", "json", "search", "database indexing strategies for sqlite")
	require.NoError(t, err)
	var searchResp models.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &searchResp))
	require.NotEmpty(t, searchResp.Results)
	assert.Equal(t, "db.md", filepath.Base(searchResp.Results[0].SourcePath))

	out, err = runCLI(t, serverFlag, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "mock-hash-32")

	out, err = runCLI(t, serverFlag, "reload")
	require.NoError(t, err)
	assert.Contains(t, out, "Reloaded: loaded, 2 chunks")

	_, err = runCLI(t, serverFlag, "watch", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch not enabled")

	_, err = runCLI(t, serverFlag, "ask", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "501")

	out, err = runCLI(t, serverFlag, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Store reset")
	assert.Equal(t, 0, c.Store.Count())
}

func TestAPIClient_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"model mismatch"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom\n"))
		}
	}))
	defer ts.Close()

	client := newAPIClient(ts.URL + "/")
	err := client.do(context.Background(), http.MethodGet, "/json", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "server returned 409: model mismatch", err.Error())

	err = client.do(context.Background(), http.MethodGet, "/plain", nil, nil)
	require.Error(t, err)
	assert.True(t, strings.HasSuffix(err.Error(), "500: boom"), err.Error())
}
