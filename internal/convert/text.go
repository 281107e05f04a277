package convert

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/structex/structex/internal/domain"
)

// convertText passes plain-text payloads through unchanged.
func (c *Converter) convertText(name string, data []byte) ([]Part, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file %q is not valid UTF-8 text", name)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("file %q is empty", name)
	}
	return []Part{{
		Name: name,
		Text: text,
		Meta: domain.JSONMap{"source_format": "text"},
	}}, nil
}
