package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/llm"
	"github.com/structex/structex/internal/logger"
)

// Part is one document produced from an input file. Most formats yield a
// single part; spreadsheets in row-by-row mode yield one per row.
type Part struct {
	Name string
	Text string
	Meta domain.JSONMap
}

// Converter turns stored file payloads into plain-text document parts.
type Converter struct {
	llm         *llm.Client
	visionModel string
	pageTimeout time.Duration
	maxRows     int
	log         *logger.Logger
}

// ConverterConfig holds conversion tuning knobs.
type ConverterConfig struct {
	VisionModel string
	PageTimeout time.Duration
	MaxRows     int
}

// NewConverter creates a Converter.
// Parameters:
//   - client: LLM client used for image transcription; may be nil when OCR
//     is disabled.
//   - cfg: conversion tuning knobs.
//   - log: logger instance.
// Returns:
//   - *Converter: initialized converter.
func NewConverter(client *llm.Client, cfg *ConverterConfig, log *logger.Logger) *Converter {
	pageTimeout := cfg.PageTimeout
	if pageTimeout == 0 {
		pageTimeout = 60 * time.Second
	}
	maxRows := cfg.MaxRows
	if maxRows == 0 {
		maxRows = 10000
	}
	return &Converter{
		llm:         client,
		visionModel: cfg.VisionModel,
		pageTimeout: pageTimeout,
		maxRows:     maxRows,
		log:         log,
	}
}

// Convert dispatches on the file extension and returns the extracted parts.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fileName: original file name, used for dispatch and part naming.
//   - data: raw file payload.
//   - cfg: preprocessing options in effect for this run.
// Returns:
//   - []Part: extracted document parts, at least one on success.
//   - error: non-nil if the format is unsupported or extraction fails.
func (c *Converter) Convert(ctx context.Context, fileName string, data []byte, cfg *domain.PreprocessingConfig) ([]Part, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))

	switch ext {
	case ".pdf":
		return c.convertPDF(ctx, base, data, cfg)
	case ".docx", ".odt", ".rtf":
		return c.convertOffice(base, data, ext)
	case ".txt", ".md", ".text":
		return c.convertText(base, data)
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return c.convertImage(ctx, base, data, ext, cfg)
	case ".csv":
		return c.convertCSV(base, data, cfg)
	case ".xlsx", ".xls":
		return c.convertXLSX(base, data, cfg)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}
}
