package service

import (
	"math"
	"testing"

	"github.com/structex/structex/internal/domain"
)

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestNormalizeFieldName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Patient ID", "patient_id"},
		{"patient-id", "patient_id"},
		{"patient.id", "patient_id"},
		{"  Total Amount  ", "total_amount"},
		{"a__b", "a_b"},
		{"_leading_", "leading"},
	}

	for _, tt := range tests {
		if got := normalizeFieldName(tt.in); got != tt.want {
			t.Errorf("normalizeFieldName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSuggestMappings(t *testing.T) {
	schemaDef := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"patient_name": map[string]interface{}{"type": "string"},
			"total_amount": map[string]interface{}{"type": "number"},
			"is_paid":      map[string]interface{}{"type": "boolean"},
			"unrelated":    map[string]interface{}{"type": "string"},
		},
	}
	records := map[string]map[string]interface{}{
		"doc1": {
			"Patient Name": "Ada",
			"details": map[string]interface{}{
				"total_amount": 100,
			},
			"is_paid": true,
		},
	}

	suggestions := SuggestMappings(schemaDef, records)

	byField := make(map[string]Suggestion, len(suggestions))
	for _, s := range suggestions {
		byField[s.SchemaField] = s
	}

	// Exact normalized name (1.0) weighted with string value compatibility (0.8)
	if s, ok := byField["patient_name"]; !ok || s.GroundTruthField != "Patient Name" || !approx(s.Confidence, 0.6+0.4*0.8) {
		t.Errorf("patient_name suggestion = %+v", s)
	}
	// Last-segment name match (0.95) on a nested path, fully numeric samples
	if s, ok := byField["total_amount"]; !ok || s.GroundTruthField != "details.total_amount" || !approx(s.Confidence, 0.6*0.95+0.4) {
		t.Errorf("total_amount suggestion = %+v", s)
	}
	// Method and options follow the field type
	if s := byField["total_amount"]; s.ComparisonMethod != domain.CompareNumeric || s.Options["tolerance"] != 0.001 {
		t.Errorf("total_amount method = %v, options = %v", s.ComparisonMethod, s.Options)
	}
	if s := byField["is_paid"]; s.ComparisonMethod != domain.CompareBoolean || !approx(s.Confidence, 1) {
		t.Errorf("is_paid suggestion = %+v", s)
	}
	// No counterpart scores above the threshold
	if _, ok := byField["unrelated"]; ok {
		t.Error("unrelated field should have no suggestion")
	}

	// Highest confidence first
	for i := 1; i < len(suggestions); i++ {
		if suggestions[i].Confidence > suggestions[i-1].Confidence {
			t.Errorf("suggestions out of order: %+v", suggestions)
		}
	}
}

func TestSuggestMappings_SynonymGroups(t *testing.T) {
	schemaDef := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{"type": "string"},
		},
	}
	records := map[string]map[string]interface{}{
		"doc1": {"document_id": "doc-001"},
		"doc2": {"document_id": "doc-002"},
	}

	suggestions := SuggestMappings(schemaDef, records)
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d: %+v", len(suggestions), suggestions)
	}
	s := suggestions[0]
	if s.SchemaField != "id" || s.GroundTruthField != "document_id" {
		t.Errorf("suggestion = %+v", s)
	}
	// Synonym name score (0.9) weighted with string value compatibility (0.8)
	if !approx(s.Confidence, 0.6*0.9+0.4*0.8) {
		t.Errorf("confidence = %v, want %v", s.Confidence, 0.6*0.9+0.4*0.8)
	}
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"exact normalized", "Patient Name", "patient_name", 1},
		{"last segment of nested path", "total_amount", "details.total_amount", 0.95},
		{"synonym group", "id", "document_id", 0.9},
		{"synonym group reversed", "total", "amount", 0.9},
		{"synonym with spacing", "description", "Notes", 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nameSimilarity(tt.a, tt.b); !approx(got, tt.want) {
				t.Errorf("nameSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}

	// Unrelated names fall through to fuzzy ratios well below the threshold
	if got := nameSimilarity("unrelated", "patient_name"); got >= 0.7 {
		t.Errorf("nameSimilarity for unrelated names = %v, want < 0.7", got)
	}
}

func TestValueCompatibility(t *testing.T) {
	longText := "a reasonably long free-text value here"

	tests := []struct {
		name   string
		ft     domain.FieldType
		values []interface{}
		want   float64
	}{
		{"no samples is neutral", domain.FieldTypeNumber, nil, 0.5},
		{"boolean tokens", domain.FieldTypeBoolean, []interface{}{"yes", "no", true, "0"}, 1},
		{"boolean half match", domain.FieldTypeBoolean, []interface{}{"yes", "maybe"}, 0.5},
		{"numeric with formatting", domain.FieldTypeNumber, []interface{}{"1,234.5", 10, "$99"}, 1},
		{"numeric text", domain.FieldTypeNumber, []interface{}{"abc", "def"}, 0},
		{"date patterns", domain.FieldTypeDate, []interface{}{"2024-01-31", "31/01/2024"}, 1},
		{"category few uniques", domain.FieldTypeCategory, []interface{}{"a", "a", "b", "b"}, 0.9},
		{"category mostly distinct", domain.FieldTypeCategory, []interface{}{"a", "b", "c"}, 0.3},
		{"string accepts anything", domain.FieldTypeString, []interface{}{longText}, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := valueCompatibility(tt.ft, tt.values); !approx(got, tt.want) {
				t.Errorf("valueCompatibility(%v, %v) = %v, want %v", tt.ft, tt.values, got, tt.want)
			}
		})
	}
}

func TestSuggestMethod(t *testing.T) {
	longText := "this value is long enough to prefer fuzzy text matching"

	tests := []struct {
		name   string
		ft     domain.FieldType
		values []interface{}
		want   domain.ComparisonMethod
	}{
		{"boolean", domain.FieldTypeBoolean, nil, domain.CompareBoolean},
		{"number", domain.FieldTypeNumber, nil, domain.CompareNumeric},
		{"date", domain.FieldTypeDate, nil, domain.CompareDate},
		{"categorical values", domain.FieldTypeCategory, []interface{}{"a", "a", "b", "b"}, domain.CompareCategory},
		{"distinct values degrade to exact", domain.FieldTypeCategory, []interface{}{"a", "b", "c"}, domain.CompareExact},
		{"short strings", domain.FieldTypeString, []interface{}{"short"}, domain.CompareExact},
		{"long text", domain.FieldTypeString, []interface{}{longText}, domain.CompareFuzzy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := suggestMethod(tt.ft, tt.values); got != tt.want {
				t.Errorf("suggestMethod(%v, %v) = %v, want %v", tt.ft, tt.values, got, tt.want)
			}
		})
	}
}

func TestSuggestOptions(t *testing.T) {
	if opts := suggestOptions(domain.CompareFuzzy); opts["threshold"] != 85.0 {
		t.Errorf("fuzzy options = %v", opts)
	}
	if opts := suggestOptions(domain.CompareNumeric); opts["tolerance"] != 0.001 || opts["relative"] != false {
		t.Errorf("numeric options = %v", opts)
	}
	if opts := suggestOptions(domain.CompareExact); opts["case_sensitive"] != false {
		t.Errorf("exact options = %v", opts)
	}
	if opts := suggestOptions(domain.CompareBoolean); opts != nil {
		t.Errorf("boolean options = %v, want nil", opts)
	}
}

func TestDefaultMethod(t *testing.T) {
	tests := []struct {
		ft   domain.FieldType
		want domain.ComparisonMethod
	}{
		{domain.FieldTypeNumber, domain.CompareNumeric},
		{domain.FieldTypeBoolean, domain.CompareBoolean},
		{domain.FieldTypeCategory, domain.CompareCategory},
		{domain.FieldTypeDate, domain.CompareDate},
		{domain.FieldTypeString, domain.CompareFuzzy},
		{domain.FieldTypeArray, domain.CompareExact},
	}

	for _, tt := range tests {
		if got := defaultMethod(tt.ft); got != tt.want {
			t.Errorf("defaultMethod(%v) = %v, want %v", tt.ft, got, tt.want)
		}
	}
}

func TestFlatten(t *testing.T) {
	m := map[string]interface{}{
		"a": "1",
		"b": map[string]interface{}{
			"c": "2",
			"d": map[string]interface{}{
				"e": "3",
			},
		},
		"list": []interface{}{"x", "y"},
	}

	flat := Flatten(m)

	if flat["a"] != "1" || flat["b.c"] != "2" || flat["b.d.e"] != "3" {
		t.Errorf("unexpected flatten result: %v", flat)
	}
	// Arrays stay as leaves
	if _, ok := flat["list"].([]interface{}); !ok {
		t.Errorf("list should stay a leaf, got %v", flat["list"])
	}
	if len(flat) != 4 {
		t.Errorf("expected 4 leaves, got %d", len(flat))
	}
}
