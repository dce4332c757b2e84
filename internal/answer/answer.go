// Package answer generates grounded answers from retrieved chunks.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/yomu/internal/models"
)

// NoAnswer is returned when nothing relevant was retrieved, and is what the
// model is told to say when the context does not contain the answer.
const NoAnswer = "I don't know."

// Generator produces an answer to question from the retrieved chunks.
type Generator interface {
	Generate(ctx context.Context, question string, chunks []models.ScoredChunk) (string, error)
}

// Searcher is the retrieval side of Ask.
type Searcher interface {
	Search(ctx context.Context, text string, k int) ([]models.ScoredChunk, error)
}

// BuildPrompt numbers the chunks as context and asks for an answer restricted to them.
func BuildPrompt(question string, chunks []models.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Use ONLY the context below to answer the question.\n")
	fmt.Fprintf(&b, "If the answer is not in the context, say '%s'\n\n", NoAnswer)
	b.WriteString("### CONTEXT ###\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, strings.ReplaceAll(c.Text, "\n", " "))
	}
	fmt.Fprintf(&b, "### QUESTION ###\n%s\n", strings.TrimSpace(question))
	b.WriteString("### ANSWER ###\n")
	return b.String()
}

// Ask retrieves up to k chunks for question and generates an answer from them.
// When retrieval returns nothing the generator is not called and the answer is NoAnswer.
func Ask(ctx context.Context, s Searcher, g Generator, question string, k int) (string, []models.ScoredChunk, error) {
	chunks, err := s.Search(ctx, question, k)
	if err != nil {
		return "", nil, err
	}
	if len(chunks) == 0 {
		return NoAnswer, chunks, nil
	}
	text, err := g.Generate(ctx, question, chunks)
	if err != nil {
		return "", chunks, fmt.Errorf("generate answer: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = NoAnswer
	}
	return text, chunks, nil
}
