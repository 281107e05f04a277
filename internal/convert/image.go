package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/structex/structex/internal/domain"
)

// convertImage transcribes an image through the vision model. The payload is
// sniffed first so corrupt uploads fail before an API call is spent.
func (c *Converter) convertImage(ctx context.Context, name string, data []byte, ext string, cfg *domain.PreprocessingConfig) ([]Part, error) {
	conf, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %q: %w", name, err)
	}

	if c.llm == nil {
		return nil, fmt.Errorf("image %q requires OCR but no vision model is configured", name)
	}

	model := c.visionModel
	if cfg != nil && cfg.OCRModel != "" {
		model = cfg.OCRModel
	}

	text, err := c.llm.TranscribeImage(ctx, model, data, mimeTypeFor(format))
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe image %q: %w", name, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("image %q yielded no text", name)
	}

	return []Part{{
		Name: name,
		Text: text,
		Meta: domain.JSONMap{
			"source_format": format,
			"width":         conf.Width,
			"height":        conf.Height,
			"ocr_model":     model,
		},
	}}, nil
}

func mimeTypeFor(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
