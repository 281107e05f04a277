package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lu4p/cat"
	"github.com/structex/structex/internal/domain"
)

// convertOffice extracts text from docx, odt and rtf payloads. The extractor
// works on paths, so the payload goes through a temp file.
func (c *Converter) convertOffice(name string, data []byte, ext string) ([]Part, error) {
	tmp, err := os.CreateTemp("", "convert-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	text, err := cat.File(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s content: %w", ext, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document %q yielded no text", name)
	}

	return []Part{{
		Name: name,
		Text: text,
		Meta: domain.JSONMap{
			"source_format": strings.TrimPrefix(filepath.Ext(tmpPath), "."),
		},
	}}, nil
}
