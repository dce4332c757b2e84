package models

// ScoredChunk is a single gated search hit.
type ScoredChunk struct {
	ID         int     `json:"id"`
	Text       string  `json:"text"`
	SourcePath string  `json:"source_path,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// SearchResponse is the response for a search request. An empty Results slice
// means no chunk passed the confidence gates.
type SearchResponse struct {
	Query     string        `json:"query"`
	Results   []ScoredChunk `json:"results"`
	Total     int           `json:"total"`
	QueryTime int64         `json:"query_time_ms"`
}

// AskResponse is the response for a question-answering request.
type AskResponse struct {
	Question  string        `json:"question"`
	Answer    string        `json:"answer"`
	Sources   []ScoredChunk `json:"sources"`
	QueryTime int64         `json:"query_time_ms"`
}

// IngestResponse summarizes an ingestion run.
type IngestResponse struct {
	RunID        string `json:"run_id"`
	FilesIndexed int    `json:"files_indexed"`
	FilesSkipped int    `json:"files_skipped"`
	FilesFailed  int    `json:"files_failed"`
	ChunksAdded  int    `json:"chunks_added"`
	TotalChunks  int    `json:"total_chunks"`
}

// StatusResponse reports the state of the store and ledger.
type StatusResponse struct {
	Dimension        int    `json:"dimension"`
	EmbeddingModelID string `json:"embedding_model_id"`
	StoreModelID     string `json:"store_model_id,omitempty"`
	Chunks           int    `json:"chunks"`
	Sources          int    `json:"sources"`
	TopK             int    `json:"top_k"`
	DiskUsageBytes   int64  `json:"disk_usage_bytes"`
	LastLoad         string `json:"last_load,omitempty"`
}
