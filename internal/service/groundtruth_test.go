package service

import (
	"archive/zip"
	"bytes"
	"testing"
)

func TestParseJSONGroundTruth_List(t *testing.T) {
	data := []byte(`[
		{"id": "doc1", "total": 100},
		{"patient_id": "p42", "total": 200},
		{"total": 300}
	]`)

	records, err := parseJSONGroundTruth(data, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	if _, ok := records["doc1"]; !ok {
		t.Error("expected record keyed by id")
	}
	if _, ok := records["p42"]; !ok {
		t.Error("expected record keyed by patient_id")
	}
	if _, ok := records["_index:2"]; !ok {
		t.Error("expected index fallback key for record without identity")
	}
}

func TestParseJSONGroundTruth_MapOfRecords(t *testing.T) {
	data := []byte(`{
		"invoice_a.pdf": {"total": 100},
		"invoice_b.pdf": {"id": "real-id", "total": 200}
	}`)

	records, err := parseJSONGroundTruth(data, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if _, ok := records["invoice_a.pdf"]; !ok {
		t.Error("expected record keyed by outer key")
	}
	// The record's own id wins over the outer key
	if _, ok := records["real-id"]; !ok {
		t.Error("expected record keyed by its own id field")
	}
	if _, ok := records["invoice_b.pdf"]; ok {
		t.Error("outer key should be superseded by the record id")
	}
}

func TestParseJSONGroundTruth_SingleRecord(t *testing.T) {
	data := []byte(`{"id": "only", "total": 5, "paid": true}`)

	records, err := parseJSONGroundTruth(data, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec, ok := records["only"]
	if !ok {
		t.Fatal("expected record keyed by id")
	}
	if rec["total"] != float64(5) {
		t.Errorf("total = %v, want 5", rec["total"])
	}
}

func TestParseJSONGroundTruth_Invalid(t *testing.T) {
	for _, data := range []string{"", "42", "[1,2,3]", "not json"} {
		if _, err := parseJSONGroundTruth([]byte(data), ""); err == nil {
			t.Errorf("expected error for payload %q", data)
		}
	}
}

func TestParseZIPGroundTruth(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	entries := map[string]string{
		"doc1.json":           `{"total": 100}`,
		"nested/doc2.json":    `{"id": "custom", "total": 200}`,
		"__MACOSX/doc3.json":  `{"total": 999}`,
		"nested/._doc4.json":  `{"total": 999}`,
		"readme.txt":          "not json",
	}
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	records, err := parseZIPGroundTruth(buf.Bytes(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %v", len(records), records)
	}
	if _, ok := records["doc1"]; !ok {
		t.Error("expected record keyed by filename stem")
	}
	if _, ok := records["custom"]; !ok {
		t.Error("expected record keyed by its id field")
	}
}

func TestParseCSVGroundTruth(t *testing.T) {
	data := []byte("document_id,total,medication.name,medication.dose\n" +
		"doc1,100,aspirin,50mg\n" +
		"doc2,200,,\n")

	records, err := parseCSVGroundTruth(data, "", 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	rec := records["doc1"]
	if rec == nil {
		t.Fatal("missing doc1 record")
	}
	med, ok := rec["medication"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected dotted columns to nest, got %v", rec["medication"])
	}
	if med["name"] != "aspirin" || med["dose"] != "50mg" {
		t.Errorf("unexpected nested values: %v", med)
	}

	// Empty cells are dropped
	if _, ok := records["doc2"]["medication"]; ok {
		t.Error("expected empty cells to be omitted")
	}
}

func TestParseCSVGroundTruth_IDColumnPriority(t *testing.T) {
	// doc_id outranks filename in the default priority order
	data := []byte("filename,doc_id,total\na.pdf,doc1,100\n")
	records, err := parseCSVGroundTruth(data, "", 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := records["doc1"]; !ok {
		t.Errorf("expected doc_id to win, got keys %v", keysOf(records))
	}

	// An explicit column beats the defaults
	records, err = parseCSVGroundTruth(data, "filename", 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := records["a.pdf"]; !ok {
		t.Errorf("expected explicit id column to win, got keys %v", keysOf(records))
	}
}

func TestParseCSVGroundTruth_RowLimit(t *testing.T) {
	data := []byte("id,total\na,1\nb,2\nc,3\n")
	if _, err := parseCSVGroundTruth(data, "", 2); err == nil {
		t.Error("expected row limit error")
	}
}

func TestRecordKey_IndexFallback(t *testing.T) {
	rec := map[string]interface{}{"total": "5"}
	if got := recordKey(rec, "", tabularIDColumns, 7); got != "_index:7" {
		t.Errorf("recordKey = %q, want %q", got, "_index:7")
	}
}

func TestSetNested(t *testing.T) {
	rec := make(map[string]interface{})
	setNested(rec, "a.b.c", "v")
	setNested(rec, "a.b.d", "w")
	setNested(rec, "top", "x")

	a := rec["a"].(map[string]interface{})
	b := a["b"].(map[string]interface{})
	if b["c"] != "v" || b["d"] != "w" {
		t.Errorf("unexpected nested structure: %v", rec)
	}
	if rec["top"] != "x" {
		t.Errorf("top = %v, want x", rec["top"])
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]interface{}{
		"name": "doc",
		"labs": map[string]interface{}{"glucose": "90"},
	}
	src := map[string]interface{}{
		"name": "other",
		"labs": map[string]interface{}{"hba1c": "5.4"},
		"age":  "40",
	}

	deepMerge(dst, src)

	// Existing scalar wins
	if dst["name"] != "doc" {
		t.Errorf("name = %v, want doc", dst["name"])
	}
	// New keys are added
	if dst["age"] != "40" {
		t.Errorf("age = %v, want 40", dst["age"])
	}
	// Shared maps merge recursively
	labs := dst["labs"].(map[string]interface{})
	if labs["glucose"] != "90" || labs["hba1c"] != "5.4" {
		t.Errorf("labs = %v", labs)
	}
}

func TestInferFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"gt.json", "json", false},
		{"GT.CSV", "csv", false},
		{"data.xlsx", "xlsx", false},
		{"data.xls", "xlsx", false},
		{"bundle.zip", "zip", false},
		{"notes.txt", "", true},
	}

	for _, tt := range tests {
		got, err := inferFormat(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("inferFormat(%q): expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("inferFormat(%q): %v", tt.name, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("inferFormat(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func keysOf(records map[string]map[string]interface{}) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	return keys
}
