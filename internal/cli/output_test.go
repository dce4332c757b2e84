package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	resp := &models.SearchResponse{
		Query:     "test query",
		QueryTime: 42,
		Total:     1,
		Results: []models.ScoredChunk{
			{ID: 7, Text: "Content here", SourcePath: "/docs/a.md", ChunkIndex: 2, Score: 0.91},
		},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, resp, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Query != resp.Query || decoded.QueryTime != resp.QueryTime {
		t.Errorf("decoded %+v", decoded)
	}
	if len(decoded.Results) != 1 || decoded.Results[0].ID != 7 || decoded.Results[0].SourcePath != "/docs/a.md" {
		t.Errorf("decoded results: %+v", decoded.Results)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	resp := &models.SearchResponse{
		Query: "q",
		Total: 1,
		Results: []models.ScoredChunk{
			{ID: 3, Text: strings.Repeat("a", 300), SourcePath: "/docs/a.md", ChunkIndex: 1, Score: 0.5},
		},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 1 results", "Score: 0.5000", "/docs/a.md#1", strings.Repeat("a", 200) + "..."} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_NoMatch(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, &models.SearchResponse{Query: "nothing", Results: []models.ScoredChunk{}}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `No confident match for "nothing"`) {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteAnswer(t *testing.T) {
	resp := &models.AskResponse{
		Question: "q",
		Answer:   "forty-two",
		Sources:  []models.ScoredChunk{{ID: 1, SourcePath: "/docs/h.txt", Score: 0.8}, {ID: 2, Score: 0.7}},
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"forty-two", "[1] /docs/h.txt", "[2] chunk 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("answer output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteIngestResultAndStatus(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteIngestResult(&buf, &models.IngestResponse{RunID: "r1", FilesIndexed: 2, ChunksAdded: 5, TotalChunks: 9}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Ingested 2 files") || !strings.Contains(buf.String(), "r1") {
		t.Errorf("ingest output: %q", buf.String())
	}

	buf.Reset()
	if err := WriteStatus(&buf, &models.StatusResponse{Chunks: 3, Dimension: 384, TopK: 5, DiskUsageBytes: 2048}, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "(none)") || !strings.Contains(out, "2.0 KiB") || !strings.Contains(out, "Default top k:    5") {
		t.Errorf("status output: %q", out)
	}

	buf.Reset()
	if err := WriteStatus(&buf, &models.StatusResponse{Chunks: 3}, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.StatusResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded.Chunks != 3 {
		t.Errorf("status json: %v %+v", err, decoded)
	}
}

func TestWriteSources(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSources(&buf, nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No sources") {
		t.Errorf("empty sources: %q", buf.String())
	}

	buf.Reset()
	srcs := []*storage.Source{{Path: "/docs/a.md", ChunkCount: 4}}
	if err := WriteSources(&buf, srcs, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "/docs/a.md\t4 chunks") {
		t.Errorf("sources text: %q", buf.String())
	}

	buf.Reset()
	if err := WriteSources(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "{\n  \"sources\": []\n}" {
		t.Errorf("sources json: %q", buf.String())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:           "0 B",
		1023:        "1023 B",
		1024:        "1.0 KiB",
		1536:        "1.5 KiB",
		1 << 20:     "1.0 MiB",
		5 * 1 << 30: "5.0 GiB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
