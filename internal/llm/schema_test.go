package llm

import "testing"

func TestFieldTypes(t *testing.T) {
	schemaDef := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"vendor":     map[string]interface{}{"type": "string"},
			"total":      map[string]interface{}{"type": "number"},
			"item_count": map[string]interface{}{"type": "integer"},
			"paid":       map[string]interface{}{"type": "boolean"},
			"tags":       map[string]interface{}{"type": "array"},
			"status": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{"open", "closed"},
			},
			"invoice_date": map[string]interface{}{"type": "string"},
			"created_at":   map[string]interface{}{"type": "string"},
			"issued": map[string]interface{}{
				"type":   "string",
				"format": "date",
			},
			"notes": map[string]interface{}{
				"type": []interface{}{"string", "null"},
			},
			"patient": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{"type": "string"},
					"dob":  map[string]interface{}{"type": "string"},
				},
			},
		},
	}

	got := FieldTypes(schemaDef)

	want := map[string]string{
		"vendor":       "string",
		"total":        "number",
		"item_count":   "number",
		"paid":         "boolean",
		"tags":         "array",
		"status":       "category",
		"invoice_date": "date",
		"created_at":   "date",
		"issued":       "date",
		"notes":        "string",
		"patient":      "object",
		"patient.name": "string",
		"patient.dob":  "date",
	}

	if len(got) != len(want) {
		t.Errorf("got %d fields, want %d: %v", len(got), len(want), got)
	}
	for path, typ := range want {
		if got[path] != typ {
			t.Errorf("FieldTypes[%q] = %q, want %q", path, got[path], typ)
		}
	}
}

func TestFieldTypes_NoProperties(t *testing.T) {
	if got := FieldTypes(map[string]interface{}{"type": "object"}); len(got) != 0 {
		t.Errorf("expected no fields, got %v", got)
	}
}
