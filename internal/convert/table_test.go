package convert

import (
	"strings"
	"testing"

	"github.com/structex/structex/internal/domain"
)

func testConverter() *Converter {
	return NewConverter(nil, &ConverterConfig{MaxRows: 100}, nil)
}

func TestConvertCSV_FullDocument(t *testing.T) {
	c := testConverter()
	data := []byte("id,name,amount\n1,alpha,100\n2,beta,200\n")

	parts, err := c.convertCSV("cases.csv", data, &domain.PreprocessingConfig{
		TableStrategy: domain.StrategyFullDocument,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}

	p := parts[0]
	if p.Name != "cases.csv" {
		t.Errorf("part name = %q", p.Name)
	}
	if !strings.Contains(p.Text, "id | name | amount") {
		t.Errorf("missing header line: %q", p.Text)
	}
	if !strings.Contains(p.Text, "1 | alpha | 100") {
		t.Errorf("missing data line: %q", p.Text)
	}
	if p.Meta["rows"] != 2 || p.Meta["columns"] != 3 {
		t.Errorf("meta = %v", p.Meta)
	}
}

func TestConvertCSV_RowByRow(t *testing.T) {
	c := testConverter()
	data := []byte("id,name,amount\n1,alpha,100\n2,beta,200\n")

	parts, err := c.convertCSV("cases.csv", data, &domain.PreprocessingConfig{
		TableStrategy: domain.StrategyRowByRow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}

	if parts[0].Name != "cases.csv:row:1" {
		t.Errorf("part name = %q", parts[0].Name)
	}
	if !strings.Contains(parts[0].Text, "name: alpha") {
		t.Errorf("part text = %q", parts[0].Text)
	}
}

func TestConvertCSV_RowByRowCaseID(t *testing.T) {
	c := testConverter()
	data := []byte("case,name\nC1,alpha\nC2,beta\n")
	cfg := &domain.PreprocessingConfig{
		TableStrategy: domain.StrategyRowByRow,
		TableSettings: domain.JSONMap{"case_id_column": "case"},
	}

	parts, err := c.convertCSV("cases.csv", data, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parts[0].Name != "cases.csv:C1" || parts[1].Name != "cases.csv:C2" {
		t.Errorf("part names = %q, %q", parts[0].Name, parts[1].Name)
	}
	if parts[0].Meta["case_id"] != "C1" {
		t.Errorf("meta = %v", parts[0].Meta)
	}
}

func TestConvertCSV_DuplicateCaseID(t *testing.T) {
	c := testConverter()
	data := []byte("case,name\nC1,alpha\nC1,beta\n")
	cfg := &domain.PreprocessingConfig{
		TableStrategy: domain.StrategyRowByRow,
		TableSettings: domain.JSONMap{"case_id_column": "case"},
	}

	if _, err := c.convertCSV("cases.csv", data, cfg); err == nil {
		t.Error("expected duplicate case ID error")
	}
}

func TestConvertCSV_MissingCaseIDColumn(t *testing.T) {
	c := testConverter()
	data := []byte("id,name\n1,alpha\n")
	cfg := &domain.PreprocessingConfig{
		TableStrategy: domain.StrategyRowByRow,
		TableSettings: domain.JSONMap{"case_id_column": "nope"},
	}

	if _, err := c.convertCSV("cases.csv", data, cfg); err == nil {
		t.Error("expected missing column error")
	}
}

func TestConvertCSV_TextColumnsFilter(t *testing.T) {
	c := testConverter()
	data := []byte("id,name,notes\n1,alpha,keep this\n")
	cfg := &domain.PreprocessingConfig{
		TableStrategy: domain.StrategyRowByRow,
		TableSettings: domain.JSONMap{
			"text_columns": []interface{}{"name", "notes"},
		},
	}

	parts, err := c.convertCSV("cases.csv", data, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := parts[0].Text
	if strings.Contains(text, "id:") {
		t.Errorf("id column should be excluded: %q", text)
	}
	if !strings.Contains(text, "name: alpha") || !strings.Contains(text, "notes: keep this") {
		t.Errorf("selected columns missing: %q", text)
	}
}

func TestConvertCSV_RowLimit(t *testing.T) {
	c := NewConverter(nil, &ConverterConfig{MaxRows: 1}, nil)
	data := []byte("id\n1\n2\n")

	if _, err := c.convertCSV("cases.csv", data, nil); err == nil {
		t.Error("expected row limit error")
	}
}

func TestConvertCSV_SkipsEmptyRows(t *testing.T) {
	c := testConverter()
	data := []byte("id,name\n1,alpha\n,\n")

	parts, err := c.convertCSV("cases.csv", data, &domain.PreprocessingConfig{
		TableStrategy: domain.StrategyRowByRow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 1 {
		t.Errorf("expected empty row to be skipped, got %d parts", len(parts))
	}
}

func TestRenderTable_RaggedRows(t *testing.T) {
	got := renderTable([]string{"a", "b", "c"}, [][]string{{"1", "2"}})
	if !strings.Contains(got, "1 | 2 | ") {
		t.Errorf("short rows should pad to header width: %q", got)
	}
}

func TestSettingsFrom(t *testing.T) {
	cfg := &domain.PreprocessingConfig{
		TableSettings: domain.JSONMap{
			"text_columns":   []interface{}{"a", "b"},
			"case_id_column": "id",
		},
	}
	ts := settingsFrom(cfg)
	if len(ts.TextColumns) != 2 || ts.CaseIDColumn != "id" {
		t.Errorf("settings = %+v", ts)
	}

	if ts := settingsFrom(nil); ts.CaseIDColumn != "" || ts.TextColumns != nil {
		t.Errorf("nil config should yield zero settings: %+v", ts)
	}
}
