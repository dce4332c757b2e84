package retriever

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/internal/store"
)

func seeded(t *testing.T, emb *embedding.MockEmbedder, texts ...string) *store.Store {
	t.Helper()
	st, err := store.New(emb.Dimensions())
	require.NoError(t, err)
	vecs, err := emb.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	_, err = st.Add(vecs, texts, "notes.md", emb.ModelID())
	require.NoError(t, err)
	return st
}

func TestRetriever_SearchFindsExactText(t *testing.T) {
	emb := embedding.NewMockEmbedder(32)
	st := seeded(t, emb, "the cat sat on the mat", "quarterly revenue grew", "rust ownership rules")
	r, err := New(st, emb, search.GateConfig{MinScore: 0.99, MinMargin: 0})
	require.NoError(t, err)

	res, err := r.Search(context.Background(), "quarterly revenue grew", 3)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "quarterly revenue grew", res[0].Text)
	assert.Equal(t, "notes.md", res[0].SourcePath)
	assert.InDelta(t, 1.0, res[0].Score, 1e-5)
}

func TestRetriever_EmptyQuery(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	r, err := New(seeded(t, emb, "x"), emb, search.DefaultGate())
	require.NoError(t, err)
	_, err = r.Search(context.Background(), "   ", 3)
	assert.True(t, errors.Is(err, ErrEmptyQuery))
}

func TestRetriever_EmptyStore(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	st, err := store.New(8)
	require.NoError(t, err)
	r, err := New(st, emb, search.DefaultGate())
	require.NoError(t, err)
	res, err := r.Search(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestRetriever_DimensionMismatch(t *testing.T) {
	st, err := store.New(16)
	require.NoError(t, err)
	r, err := New(st, embedding.NewMockEmbedder(8), search.DefaultGate())
	require.NoError(t, err)
	_, err = r.Search(context.Background(), "query", 1)
	var dm *store.DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 16, dm.Expected)
	assert.Equal(t, 8, dm.Actual)
}

func TestRetriever_ModelMismatch(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	st := seeded(t, emb, "x")
	r, err := New(st, emb.WithModelID("another-model"), search.DefaultGate())
	require.NoError(t, err)
	_, err = r.Search(context.Background(), "x", 1)
	assert.True(t, errors.Is(err, store.ErrModelMismatch))
}

func TestRetriever_DefaultTopK(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	r, err := New(seeded(t, emb, "x"), emb, search.DefaultGate(), WithTopK(7))
	require.NoError(t, err)
	assert.Equal(t, 7, r.TopK())
}

func TestRetriever_ReloadAfterExternalReset(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	path := filepath.Join(t.TempDir(), "index.yvec")

	writer, _, err := store.Load(path, 8)
	require.NoError(t, err)
	vecs, _ := emb.EmbedBatch(context.Background(), []string{"hello world"})
	_, err = writer.Add(vecs, []string{"hello world"}, "", emb.ModelID())
	require.NoError(t, err)
	require.NoError(t, writer.Save())

	reader, _, err := store.Load(path, 8)
	require.NoError(t, err)
	r, err := New(reader, emb, search.DefaultGate())
	require.NoError(t, err)

	res, err := r.Search(context.Background(), "hello world", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)

	require.NoError(t, writer.Reset())
	report, err := r.Reload()
	require.NoError(t, err)
	assert.Equal(t, store.StateLoaded, report.State)

	res, err = r.Search(context.Background(), "hello world", 1)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, embedding.NewMockEmbedder(8), search.DefaultGate())
	assert.Error(t, err)
}
