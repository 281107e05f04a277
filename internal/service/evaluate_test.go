package service

import (
	"testing"

	"github.com/structex/structex/internal/domain"
)

func TestResolveGTKey(t *testing.T) {
	keyIndex := buildKeyIndex(map[string]map[string]interface{}{
		"invoice_a.pdf": nil,
		"invoice_b":     nil,
		"doc_123":       nil,
		"Report C":      nil,
	})

	tests := []struct {
		name string
		info docInfo
		want string
	}{
		{
			name: "document name exact",
			info: docInfo{DocumentID: "x", DocumentName: "invoice_a.pdf"},
			want: "invoice_a.pdf",
		},
		{
			name: "document name without extension",
			info: docInfo{DocumentID: "x", DocumentName: "invoice_b.pdf"},
			want: "invoice_b",
		},
		{
			name: "file name base without extension",
			info: docInfo{DocumentID: "x", FileName: "uploads/invoice_b.pdf"},
			want: "invoice_b",
		},
		{
			name: "doc underscore id prefix",
			info: docInfo{DocumentID: "123"},
			want: "doc_123",
		},
		{
			name: "case insensitive",
			info: docInfo{DocumentID: "x", DocumentName: "report c"},
			want: "Report C",
		},
		{
			name: "no match",
			info: docInfo{DocumentID: "zzz", DocumentName: "unknown.pdf"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveGTKey(tt.info, keyIndex); got != tt.want {
				t.Errorf("resolveGTKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	m := map[string]interface{}{
		"patient": map[string]interface{}{
			"name": "Ada",
			"meds": []interface{}{
				map[string]interface{}{"dose": "50mg"},
				map[string]interface{}{"dose": "100mg"},
			},
		},
		"total": 42.0,
	}

	tests := []struct {
		path      string
		want      interface{}
		wantFound bool
	}{
		{"total", 42.0, true},
		{"patient.name", "Ada", true},
		{"patient.meds.0.dose", "50mg", true},
		{"patient.meds.1.dose", "100mg", true},
		{"patient.meds[].dose", "50mg", true},
		{"patient.meds.5.dose", nil, false},
		{"patient.missing", nil, false},
		{"total.deeper", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, found := resolvePath(m, tt.path)
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if found && got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasNestedValues(t *testing.T) {
	if hasNestedValues(map[string]interface{}{"a": "1", "b": 2.0}) {
		t.Error("flat record reported as nested")
	}
	if !hasNestedValues(map[string]interface{}{"a": map[string]interface{}{"b": "1"}}) {
		t.Error("nested record reported as flat")
	}
}

func TestEvaluateOne_SkipsAbsentGroundTruth(t *testing.T) {
	svc := &EvaluateService{comparator: NewComparator(0, 0)}

	mappings := []domain.FieldMapping{
		{SchemaField: "total", GroundTruthField: "total", FieldType: domain.FieldTypeNumber, ComparisonMethod: domain.CompareNumeric},
		{SchemaField: "vendor", GroundTruthField: "vendor", FieldType: domain.FieldTypeString, ComparisonMethod: domain.CompareExact},
	}

	verdict := svc.evaluateOne(docJob{
		DocumentID: "d1",
		GTKey:      "d1",
		GTRecord:   map[string]interface{}{"total": 100.0},
		Prediction: map[string]interface{}{"total": 100.0, "vendor": "Acme"},
	}, mappings)

	if !verdict.Matched {
		t.Fatal("expected verdict to be matched")
	}
	// vendor has no ground truth value, so only total is scored
	if len(verdict.Fields) != 1 {
		t.Fatalf("expected 1 field verdict, got %d", len(verdict.Fields))
	}
	if verdict.Fields[0].Field != "total" || !verdict.Fields[0].IsCorrect {
		t.Errorf("unexpected verdict: %+v", verdict.Fields[0])
	}
}

func TestEvaluateOne_UnmatchedDocument(t *testing.T) {
	svc := &EvaluateService{comparator: NewComparator(0, 0)}

	verdict := svc.evaluateOne(docJob{
		DocumentID: "d1",
		Prediction: map[string]interface{}{"total": 100.0},
	}, nil)

	if verdict.Matched {
		t.Error("expected unmatched verdict")
	}
	if len(verdict.Fields) != 0 {
		t.Errorf("expected no field verdicts, got %d", len(verdict.Fields))
	}
}

func TestEvaluateOne_FlatModeUsesFlattenedPrediction(t *testing.T) {
	svc := &EvaluateService{comparator: NewComparator(0, 0)}

	mappings := []domain.FieldMapping{
		{SchemaField: "patient.name", GroundTruthField: "patient_name", FieldType: domain.FieldTypeString, ComparisonMethod: domain.CompareExact},
	}

	verdict := svc.evaluateOne(docJob{
		DocumentID: "d1",
		GTKey:      "d1",
		GTRecord:   map[string]interface{}{"patient_name": "Ada"},
		Prediction: map[string]interface{}{"patient": map[string]interface{}{"name": "Ada"}},
	}, mappings)

	if len(verdict.Fields) != 1 {
		t.Fatalf("expected 1 field verdict, got %d", len(verdict.Fields))
	}
	if !verdict.Fields[0].IsCorrect {
		t.Errorf("expected correct verdict, got %+v", verdict.Fields[0])
	}
}

func TestAggregate(t *testing.T) {
	svc := &EvaluateService{}
	trial := &domain.Trial{ID: "t1", ProjectID: "p1"}
	gt := &domain.GroundTruth{ID: "g1"}

	verdicts := []docVerdict{
		{
			DocumentID: "d1",
			Matched:    true,
			Fields: []fieldVerdict{
				{Field: "total", GTStr: "100", PredStr: "100", IsCorrect: true},
				{Field: "vendor", GTStr: "Acme", PredStr: "", ErrorType: ErrMissing},
			},
		},
		{
			DocumentID: "d2",
			Matched:    true,
			Fields: []fieldVerdict{
				{Field: "total", GTStr: "200", PredStr: "250", ErrorType: ErrNumericDiff},
			},
		},
		{DocumentID: "d3"},
	}

	eval := svc.aggregate(trial, gt, verdicts, nil, 3, 2)

	if eval.TrialID != "t1" || eval.GroundTruthID != "g1" || eval.ProjectID != "p1" {
		t.Errorf("unexpected identity: %+v", eval)
	}
	if eval.TotalDocuments != 3 || eval.MatchedDocuments != 2 {
		t.Errorf("documents = %d/%d, want 2/3 matched", eval.MatchedDocuments, eval.TotalDocuments)
	}

	overall := eval.OverallMetrics
	if overall["total_fields"] != 3 || overall["correct_fields"] != 1 {
		t.Errorf("overall = %v", overall)
	}
	wantAccuracy := 1.0 / 3.0
	if acc := overall["accuracy"].(float64); acc < wantAccuracy-1e-9 || acc > wantAccuracy+1e-9 {
		t.Errorf("accuracy = %v, want %v", acc, wantAccuracy)
	}

	totalMetrics := eval.FieldMetrics["total"].(map[string]interface{})
	if totalMetrics["total_count"] != 2 || totalMetrics["correct_count"] != 1 {
		t.Errorf("field metrics for total = %v", totalMetrics)
	}
	errDist := totalMetrics["error_distribution"].(map[string]interface{})
	if errDist[ErrNumericDiff] != 1 {
		t.Errorf("error distribution = %v", errDist)
	}

	d1 := eval.DocumentMetrics["d1"].(map[string]interface{})
	if d1["accuracy"].(float64) != 0.5 {
		t.Errorf("d1 accuracy = %v, want 0.5", d1["accuracy"])
	}
	missing := d1["missing_fields"].([]string)
	if len(missing) != 1 || missing[0] != "vendor" {
		t.Errorf("d1 missing fields = %v", missing)
	}

	d3 := eval.DocumentMetrics["d3"].(map[string]interface{})
	if d3["has_error"] != true {
		t.Errorf("d3 should carry has_error, got %v", d3)
	}

	cm := eval.ConfusionMatrices["total"].(map[string]interface{})
	row := cm["200"].(map[string]interface{})
	if row["250"] != 1 {
		t.Errorf("confusion cell = %v, want 1", row["250"])
	}
}

func TestBuildMetricRows(t *testing.T) {
	verdicts := []docVerdict{
		{
			DocumentID: "d1",
			Matched:    true,
			Fields: []fieldVerdict{
				{Field: "total", GTStr: "100", PredStr: "100", IsCorrect: true, Confidence: 1},
				{Field: "vendor", GTStr: "Acme", PredStr: "Acme Inc", ErrorType: ErrFuzzyBelow, Confidence: 0.6},
			},
		},
	}

	rows := buildMetricRows("e1", verdicts)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Outcome != "correct" {
		t.Errorf("outcome = %q, want correct", rows[0].Outcome)
	}
	if rows[1].Outcome != ErrFuzzyBelow {
		t.Errorf("outcome = %q, want %q", rows[1].Outcome, ErrFuzzyBelow)
	}
	if rows[1].EvaluationID != "e1" || rows[1].DocumentID != "d1" {
		t.Errorf("row identity = %+v", rows[1])
	}
}

func TestSampleList(t *testing.T) {
	if got := sampleList(nil, 3); got != "(none)" {
		t.Errorf("sampleList(nil) = %q", got)
	}
	got := sampleList([]string{"c", "a", "b", "d"}, 3)
	if got != "a, b, c" {
		t.Errorf("sampleList = %q, want %q", got, "a, b, c")
	}
}
