// Package cli formats command results for the yomu CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/pkg/utils"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const snippetLen = 200

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("invalid output format %q (use text or json)", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintf(w, "No confident match for %q (%dms)\n", resp.Query, resp.QueryTime)
		return nil
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", resp.Total, resp.QueryTime)
	for i, r := range resp.Results {
		writeChunk(w, i+1, r)
	}
	return nil
}

func writeChunk(w io.Writer, rank int, r models.ScoredChunk) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%d] Score: %.4f | Chunk: %d", rank, r.Score, r.ID)
	if r.SourcePath != "" {
		fmt.Fprintf(w, " | %s#%d", r.SourcePath, r.ChunkIndex)
	}
	fmt.Fprintf(w, "\n\n%s\n\n", utils.Truncate(r.Text, snippetLen))
}

// WriteAnswer writes a generated answer and the chunks it was grounded on.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n", resp.Answer)
	if len(resp.Sources) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nSources:\n")
	for i, r := range resp.Sources {
		src := r.SourcePath
		if src == "" {
			src = fmt.Sprintf("chunk %d", r.ID)
		}
		fmt.Fprintf(w, "  [%d] %s (score %.4f)\n", i+1, src, r.Score)
	}
	return nil
}

// WriteIngestResult writes an ingestion run summary.
func WriteIngestResult(w io.Writer, resp *models.IngestResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Ingested %d files (%d unchanged, %d failed), %d chunks added, %d total\n",
		resp.FilesIndexed, resp.FilesSkipped, resp.FilesFailed, resp.ChunksAdded, resp.TotalChunks)
	fmt.Fprintf(w, "Run: %s\n", resp.RunID)
	return nil
}

// WriteStatus writes store status.
func WriteStatus(w io.Writer, resp *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	storeModel := resp.StoreModelID
	if storeModel == "" {
		storeModel = "(none)"
	}
	fmt.Fprintf(w, "Chunks:           %d\n", resp.Chunks)
	fmt.Fprintf(w, "Sources:          %d\n", resp.Sources)
	fmt.Fprintf(w, "Dimension:        %d\n", resp.Dimension)
	fmt.Fprintf(w, "Embedding model:  %s\n", resp.EmbeddingModelID)
	fmt.Fprintf(w, "Store model:      %s\n", storeModel)
	if resp.TopK > 0 {
		fmt.Fprintf(w, "Default top k:    %d\n", resp.TopK)
	}
	fmt.Fprintf(w, "Disk usage:       %s\n", FormatBytes(resp.DiskUsageBytes))
	if resp.LastLoad != "" {
		fmt.Fprintf(w, "Last load:        %s\n", resp.LastLoad)
	}
	return nil
}

// WriteSources writes ledger entries, one source per line in text mode.
func WriteSources(w io.Writer, sources []*storage.Source, format OutputFormat) error {
	if format == OutputJSON {
		if sources == nil {
			sources = []*storage.Source{}
		}
		return writeJSON(w, map[string]any{"sources": sources})
	}
	if len(sources) == 0 {
		fmt.Fprintln(w, "No sources ingested")
		return nil
	}
	for _, src := range sources {
		fmt.Fprintf(w, "%s\t%d chunks\t%s\n", src.Path, src.ChunkCount, src.IngestedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
