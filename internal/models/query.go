package models

import (
	"fmt"
	"strings"
)

// MaxK caps how many chunks a single request may ask for.
const MaxK = 100

// SearchRequest is the input for a retrieval request.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"` // 0 means the configured top_k
}

// Validate trims the query and rejects empty or out-of-range requests.
func (r *SearchRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.K < 0 {
		return fmt.Errorf("k must not be negative, got %d", r.K)
	}
	if r.K > MaxK {
		r.K = MaxK
	}
	return nil
}

// AskRequest is the input for a question-answering request.
type AskRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

// Validate trims the question and rejects empty or out-of-range requests.
func (r *AskRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if r.K < 0 {
		return fmt.Errorf("k must not be negative, got %d", r.K)
	}
	if r.K > MaxK {
		r.K = MaxK
	}
	return nil
}
