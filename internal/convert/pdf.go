package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dslipak/pdf"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/logger"
)

// errPageTimeout marks a page whose text extraction hung.
var errPageTimeout = errors.New("page extraction timed out")

func (c *Converter) convertPDF(ctx context.Context, name string, data []byte, cfg *domain.PreprocessingConfig) ([]Part, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := reader.NumPage()
	var sb strings.Builder
	extracted := 0
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := c.extractPage(ctx, page)
		if err != nil {
			// A single broken page should not sink the whole file
			c.log.WithFields(logger.Fields{
				"page": i,
				"file": name,
			}).WithError(err).Warn("Failed to extract pdf page, skipping")
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(content)
		extracted++
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("pdf %q yielded no extractable text (scanned documents need OCR on the image pages)", name)
	}

	return []Part{{
		Name: name,
		Text: text,
		Meta: domain.JSONMap{
			"pages":           numPages,
			"pages_extracted": extracted,
			"source_format":   "pdf",
		},
	}}, nil
}

// extractPage guards GetPlainText with a timeout. Malformed PDFs can send
// the parser into an unbounded loop.
func (c *Converter) extractPage(ctx context.Context, page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resChan <- result{"", fmt.Errorf("pdf parser panic: %v", r)}
			}
		}()
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()

	timer := time.NewTimer(c.pageTimeout)
	defer timer.Stop()
	select {
	case r := <-resChan:
		return r.content, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", errPageTimeout
	}
}
