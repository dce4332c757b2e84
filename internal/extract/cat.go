package extract

import (
	"fmt"
	"os"

	"github.com/lu4p/cat"
)

func isCatFormat(ext string) bool {
	return ext == ".odt" || ext == ".rtf"
}

// extractWithCat handles OpenDocument text and RTF, which cat detects from the file.
func extractWithCat(path string) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", path, err)
	}
	return text, nil
}

// extractCatBytes spools content to a temporary file because cat reads from disk.
func extractCatBytes(content []byte, ext string) (string, error) {
	f, err := os.CreateTemp("", "yomu-extract-*"+ext)
	if err != nil {
		return "", fmt.Errorf("spool %s: %w", ext, err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("spool %s: %w", ext, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("spool %s: %w", ext, err)
	}
	return extractWithCat(f.Name())
}
