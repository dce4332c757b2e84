package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// FixtureExtensions are the file types the corpus is written as.
// PDF is covered by the extractor's own tests; generating one with extractable
// text is out of reach here.
var FixtureExtensions = []string{".txt", ".md", ".rst", ".docx", ".xlsx"}

// FixtureBytes returns the bytes of a minimal file of type ext holding text.
func FixtureBytes(ext, text string) ([]byte, error) {
	switch ext {
	case ".txt", ".md", ".rst":
		return []byte(text), nil
	case ".docx":
		return minimalDocx(text)
	case ".xlsx":
		return minimalXlsx(text)
	default:
		return nil, fmt.Errorf("no fixture for %s", ext)
	}
}

// WriteFixture writes d into dir as a file of type ext and returns its path.
func WriteFixture(dir string, d Document, ext string) (string, error) {
	content, err := FixtureBytes(ext, d.Text())
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, d.Name+ext)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func minimalDocx(text string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("word/document.xml")
	if err != nil {
		return nil, err
	}
	body := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` +
		html.EscapeString(text) + `</w:t></w:r></w:p></w:body></w:document>`
	if _, err := fw.Write([]byte(body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minimalXlsx(text string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetCellValue("Sheet1", "A1", text); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
