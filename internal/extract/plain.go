package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as string. Invalid UTF-8 sequences are replaced
// with the replacement character.
func extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\ufffd"), nil
	}
	return string(content), nil
}
