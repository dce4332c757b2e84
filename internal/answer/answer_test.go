package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/models"
)

type fakeSearcher struct {
	chunks []models.ScoredChunk
	err    error
}

func (f fakeSearcher) Search(ctx context.Context, text string, k int) ([]models.ScoredChunk, error) {
	return f.chunks, f.err
}

type fakeGenerator struct {
	calls  int
	answer string
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, question string, chunks []models.ScoredChunk) (string, error) {
	f.calls++
	return f.answer, f.err
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("  What is X? ", []models.ScoredChunk{
		{Text: "X is a letter.\nIt follows W."},
		{Text: "Y comes after X."},
	})
	assert.Contains(t, prompt, "[1] X is a letter. It follows W.")
	assert.Contains(t, prompt, "[2] Y comes after X.")
	assert.Contains(t, prompt, "### QUESTION ###\nWhat is X?\n")
	assert.Contains(t, prompt, NoAnswer)
	assert.True(t, strings.HasSuffix(prompt, "### ANSWER ###\n"))
}

func TestAsk_NoChunksSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{answer: "should not be used"}
	text, chunks, err := Ask(context.Background(), fakeSearcher{chunks: []models.ScoredChunk{}}, gen, "q", 5)
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, text)
	assert.Empty(t, chunks)
	assert.Equal(t, 0, gen.calls)
}

func TestAsk_Generates(t *testing.T) {
	gen := &fakeGenerator{answer: "  forty-two \n"}
	hits := []models.ScoredChunk{{ID: 3, Text: "the answer is forty-two", Score: 0.8}}
	text, chunks, err := Ask(context.Background(), fakeSearcher{chunks: hits}, gen, "q", 5)
	require.NoError(t, err)
	assert.Equal(t, "forty-two", text)
	assert.Equal(t, hits, chunks)
	assert.Equal(t, 1, gen.calls)
}

func TestAsk_EmptyGenerationIsNoAnswer(t *testing.T) {
	gen := &fakeGenerator{answer: " "}
	text, _, err := Ask(context.Background(), fakeSearcher{chunks: []models.ScoredChunk{{Text: "x"}}}, gen, "q", 1)
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, text)
}

func TestAsk_Errors(t *testing.T) {
	searchErr := errors.New("store unavailable")
	_, _, err := Ask(context.Background(), fakeSearcher{err: searchErr}, &fakeGenerator{}, "q", 1)
	assert.ErrorIs(t, err, searchErr)

	genErr := errors.New("model down")
	_, chunks, err := Ask(context.Background(), fakeSearcher{chunks: []models.ScoredChunk{{Text: "x"}}}, &fakeGenerator{err: genErr}, "q", 1)
	assert.ErrorIs(t, err, genErr)
	assert.Len(t, chunks, 1)
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "local-model", req.Model)
		assert.Equal(t, 64, req.MaxTokens)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Contains(t, req.Messages[1].Content, "[1] context text")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" grounded answer "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(config.AnswerConfig{
		BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "local-model", MaxTokens: 64,
	}, nil)
	require.NoError(t, err)

	text, err := g.Generate(context.Background(), "q", []models.ScoredChunk{{Text: "context text"}})
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", text)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIGenerator_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(config.AnswerConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()
	g, err = NewOpenAIGenerator(config.AnswerConfig{BaseURL: empty.URL}, nil)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "q", nil)
	assert.Error(t, err)

	_, err = NewOpenAIGenerator(config.AnswerConfig{}, nil)
	assert.Error(t, err)
}
