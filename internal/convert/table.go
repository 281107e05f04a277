package convert

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/structex/structex/internal/domain"
	"github.com/xuri/excelize/v2"
)

// tableSettings are the options honored for spreadsheet conversion. They
// come from the preprocessing config's table_settings map.
type tableSettings struct {
	TextColumns  []string
	CaseIDColumn string
}

func settingsFrom(cfg *domain.PreprocessingConfig) tableSettings {
	var ts tableSettings
	if cfg == nil || cfg.TableSettings == nil {
		return ts
	}
	if raw, ok := cfg.TableSettings["text_columns"].([]interface{}); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				ts.TextColumns = append(ts.TextColumns, s)
			}
		}
	}
	if s, ok := cfg.TableSettings["case_id_column"].(string); ok {
		ts.CaseIDColumn = s
	}
	return ts
}

func (c *Converter) convertCSV(name string, data []byte, cfg *domain.PreprocessingConfig) ([]Part, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %q is empty", name)
	}

	headers := records[0]
	rows := records[1:]
	return c.tableParts(name, "", headers, rows, cfg, "csv")
}

func (c *Converter) convertXLSX(name string, data []byte, cfg *domain.PreprocessingConfig) ([]Part, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	var parts []Part
	for _, sheet := range sheets {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}

		// Only qualify part names with the sheet when there is more than one
		sheetLabel := ""
		if len(sheets) > 1 {
			sheetLabel = sheet
		}
		sheetParts, err := c.tableParts(name, sheetLabel, rows[0], rows[1:], cfg, "xlsx")
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		parts = append(parts, sheetParts...)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("workbook %q has no data", name)
	}
	return parts, nil
}

func (c *Converter) tableParts(name, sheet string, headers []string, rows [][]string, cfg *domain.PreprocessingConfig, format string) ([]Part, error) {
	if len(rows) > c.maxRows {
		return nil, fmt.Errorf("table has %d rows, limit is %d", len(rows), c.maxRows)
	}

	strategy := domain.StrategyFullDocument
	if cfg != nil && cfg.TableStrategy != "" {
		strategy = cfg.TableStrategy
	}

	baseName := name
	if sheet != "" {
		baseName = name + ":" + sheet
	}

	switch strategy {
	case domain.StrategyRowByRow:
		return c.rowParts(baseName, headers, rows, settingsFrom(cfg), format)
	default:
		return []Part{{
			Name: baseName,
			Text: renderTable(headers, rows),
			Meta: domain.JSONMap{
				"source_format": format,
				"rows":          len(rows),
				"columns":       len(headers),
			},
		}}, nil
	}
}

// rowParts emits one document per data row. Each row document lists the
// selected columns as "header: value" lines, and is keyed by the case ID
// column when one is configured.
func (c *Converter) rowParts(baseName string, headers []string, rows [][]string, ts tableSettings, format string) ([]Part, error) {
	caseIdx := -1
	if ts.CaseIDColumn != "" {
		for i, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), ts.CaseIDColumn) {
				caseIdx = i
				break
			}
		}
		if caseIdx < 0 {
			return nil, fmt.Errorf("case ID column %q not found in headers", ts.CaseIDColumn)
		}
	}

	include := make(map[string]bool, len(ts.TextColumns))
	for _, col := range ts.TextColumns {
		include[strings.ToLower(strings.TrimSpace(col))] = true
	}

	seen := make(map[string]bool, len(rows))
	parts := make([]Part, 0, len(rows))
	for i, row := range rows {
		var sb strings.Builder
		for j, header := range headers {
			if len(include) > 0 && !include[strings.ToLower(strings.TrimSpace(header))] {
				continue
			}
			val := ""
			if j < len(row) {
				val = strings.TrimSpace(row[j])
			}
			if val == "" {
				continue
			}
			sb.WriteString(header)
			sb.WriteString(": ")
			sb.WriteString(val)
			sb.WriteString("\n")
		}
		if sb.Len() == 0 {
			continue
		}

		caseID := ""
		if caseIdx >= 0 && caseIdx < len(row) {
			caseID = strings.TrimSpace(row[caseIdx])
		}
		partName := fmt.Sprintf("%s:row:%d", baseName, i+1)
		if caseID != "" {
			if seen[caseID] {
				return nil, fmt.Errorf("duplicate case ID %q in column %q", caseID, ts.CaseIDColumn)
			}
			seen[caseID] = true
			partName = fmt.Sprintf("%s:%s", baseName, caseID)
		}

		parts = append(parts, Part{
			Name: partName,
			Text: sb.String(),
			Meta: domain.JSONMap{
				"source_format": format,
				"row_index":     i + 1,
				"case_id":       caseID,
			},
		})
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no non-empty rows in table")
	}
	return parts, nil
}

// renderTable produces a pipe-delimited text rendition of the whole table.
func renderTable(headers []string, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(headers, " | "))
	sb.WriteString("\n")
	for _, row := range rows {
		cells := make([]string, len(headers))
		for i := range headers {
			if i < len(row) {
				cells[i] = strings.TrimSpace(row[i])
			}
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	return sb.String()
}
