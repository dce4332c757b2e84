package e2e

import (
	"strings"
	"testing"

	"github.com/hyperjump/yomu/internal/extract"
)

func TestFixtureBytes_AllExtensionsExtractable(t *testing.T) {
	e := extract.NewExtractor()
	sample := "E2E searchable content & more"
	for _, ext := range FixtureExtensions {
		t.Run(ext, func(t *testing.T) {
			content, err := FixtureBytes(ext, sample)
			if err != nil {
				t.Fatalf("FixtureBytes: %v", err)
			}
			if len(content) == 0 {
				t.Fatal("empty content")
			}
			got, err := e.ExtractBytes(content, ext)
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if !strings.Contains(got, sample) {
				t.Errorf("extracted text %q does not contain %q", got, sample)
			}
		})
	}
}

func TestBuildCorpus_UniqueTexts(t *testing.T) {
	docs := BuildCorpus(len(topics) + 5)
	seen := make(map[string]string)
	for _, d := range docs {
		if prev, ok := seen[d.Text()]; ok {
			t.Fatalf("%s repeats the text of %s", d.Name, prev)
		}
		seen[d.Text()] = d.Name
	}
}
