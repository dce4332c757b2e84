package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingsServer answers /embeddings with vectors whose first component is the input length.
func fakeEmbeddingsServer(t *testing.T, dim int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req embeddingsRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-test", req.Model)

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		var data []item
		// Reverse order to check results are placed by index.
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := make([]float32, dim)
			v[0] = float32(len(req.Input[i]))
			v[1] = 1
			data = append(data, item{Index: i, Embedding: v})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
	}))
}

func newTestHTTPEmbedder(t *testing.T, url string, dim, batch int) *HTTPEmbedder {
	t.Helper()
	e, err := NewHTTPEmbedder(HTTPConfig{
		BaseURL:    url + "/",
		APIKey:     "secret",
		Model:      "text-embedding-test",
		Dimensions: dim,
		BatchSize:  batch,
		CacheSize:  16,
	}, nil)
	require.NoError(t, err)
	return e
}

func TestHTTPEmbedder_EmbedBatch(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddingsServer(t, 4, &calls)
	defer srv.Close()

	e := newTestHTTPEmbedder(t, srv.URL, 4, 2)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, int32(2), calls.Load(), "three texts with batch size 2 need two requests")

	// Normalized (len, 1, 0, 0): the first component grows with text length.
	assert.Less(t, vecs[0][0], vecs[2][0])
	assert.Less(t, vecs[2][0], vecs[1][0])
	for _, v := range vecs {
		assert.InDelta(t, 1.0, float64(v[0]*v[0]+v[1]*v[1]), 1e-5)
	}
	assert.Equal(t, "text-embedding-test", e.ModelID())
	assert.Equal(t, 4, e.Dimensions())
}

func TestHTTPEmbedder_UsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddingsServer(t, 3, &calls)
	defer srv.Close()

	e := newTestHTTPEmbedder(t, srv.URL, 3, 8)
	first, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPEmbedder_DimensionMismatch(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddingsServer(t, 3, &calls)
	defer srv.Close()

	e := newTestHTTPEmbedder(t, srv.URL, 5, 8)
	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 3 dimensions")
}

func TestHTTPEmbedder_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := newTestHTTPEmbedder(t, srv.URL, 3, 8)
	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestHTTPEmbedder_CancelledContext(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddingsServer(t, 3, &calls)
	defer srv.Close()

	e := newTestHTTPEmbedder(t, srv.URL, 3, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, "hello")
	assert.Error(t, err)
	assert.Equal(t, int32(0), calls.Load())
}

func TestNewHTTPEmbedder_Validation(t *testing.T) {
	_, err := NewHTTPEmbedder(HTTPConfig{Model: "m", Dimensions: 3}, nil)
	assert.Error(t, err)
	_, err = NewHTTPEmbedder(HTTPConfig{BaseURL: "http://x", Dimensions: 3}, nil)
	assert.Error(t, err)
	_, err = NewHTTPEmbedder(HTTPConfig{BaseURL: "http://x", Model: "m"}, nil)
	assert.Error(t, err)
}
