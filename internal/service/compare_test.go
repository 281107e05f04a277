package service

import (
	"testing"

	"github.com/structex/structex/internal/domain"
)

func TestComparator_Absence(t *testing.T) {
	c := NewComparator(0, 0)

	tests := []struct {
		name          string
		gt            interface{}
		pred          interface{}
		wantCorrect   bool
		wantErrorType string
	}{
		{"both nil", nil, nil, true, ""},
		{"both none strings", "None", "null", true, ""},
		{"empty strings count as absent", "", "  ", true, ""},
		{"prediction missing", "value", nil, false, ErrMissing},
		{"prediction extra", nil, "value", false, ErrExtra},
		{"nan is absent", "expected", "NaN", false, ErrMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Compare(tt.gt, tt.pred, domain.FieldTypeString, domain.CompareExact, nil)
			if got.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v", got.IsCorrect, tt.wantCorrect)
			}
			if got.ErrorType != tt.wantErrorType {
				t.Errorf("ErrorType = %q, want %q", got.ErrorType, tt.wantErrorType)
			}
		})
	}
}

func TestComparator_Exact(t *testing.T) {
	c := NewComparator(0, 0)

	tests := []struct {
		name        string
		gt          interface{}
		pred        interface{}
		options     domain.JSONMap
		wantCorrect bool
	}{
		{"identical strings", "Invoice", "Invoice", nil, true},
		{"case insensitive by default", "INVOICE", "invoice", nil, true},
		{"case sensitive option", "INVOICE", "invoice", domain.JSONMap{"case_sensitive": true}, false},
		{"whitespace trimmed", "  abc  ", "abc", nil, true},
		{"whole float matches int string", 5.0, "5", nil, true},
		{"different values", "abc", "abd", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Compare(tt.gt, tt.pred, domain.FieldTypeString, domain.CompareExact, tt.options)
			if got.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v", got.IsCorrect, tt.wantCorrect)
			}
			if !tt.wantCorrect && got.ErrorType != ErrStringMismatch {
				t.Errorf("ErrorType = %q, want %q", got.ErrorType, ErrStringMismatch)
			}
		})
	}
}

func TestComparator_Fuzzy(t *testing.T) {
	c := NewComparator(85, 0)

	tests := []struct {
		name        string
		gt          string
		pred        string
		options     domain.JSONMap
		wantCorrect bool
	}{
		{"identical", "Acme Corporation", "Acme Corporation", nil, true},
		{"token order differs", "Corporation Acme", "Acme Corporation", nil, true},
		{"minor typo", "Acme Corporation", "Acme Corporaton", nil, true},
		{"unrelated strings", "Acme Corporation", "Globex Industries", nil, false},
		{"lower custom threshold", "kitten", "sitting", domain.JSONMap{"threshold": float64(50)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Compare(tt.gt, tt.pred, domain.FieldTypeString, domain.CompareFuzzy, tt.options)
			if got.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v (detail: %s)", got.IsCorrect, tt.wantCorrect, got.Detail)
			}
			if !tt.wantCorrect && got.ErrorType != ErrFuzzyBelow {
				t.Errorf("ErrorType = %q, want %q", got.ErrorType, ErrFuzzyBelow)
			}
		})
	}
}

func TestComparator_Numeric(t *testing.T) {
	c := NewComparator(0, 0.001)

	tests := []struct {
		name        string
		gt          interface{}
		pred        interface{}
		options     domain.JSONMap
		wantCorrect bool
	}{
		{"equal floats", 10.5, 10.5, nil, true},
		{"within absolute tolerance", 10.0, 10.0005, nil, true},
		{"within relative tolerance", 10000.0, 10005.0, nil, true},
		{"outside tolerance", 10.0, 11.0, nil, false},
		{"currency string parses", "$1,234.56", 1234.56, nil, true},
		{"percent string parses", "50%", 50.0, nil, true},
		{"custom tolerance", 10.0, 10.5, domain.JSONMap{"tolerance": 0.1}, true},
		{"unparseable falls back to exact", "ten", "ten", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Compare(tt.gt, tt.pred, domain.FieldTypeNumber, domain.CompareNumeric, tt.options)
			if got.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v (detail: %s)", got.IsCorrect, tt.wantCorrect, got.Detail)
			}
		})
	}
}

func TestComparator_NumericConfidence(t *testing.T) {
	c := NewComparator(0, 0)

	got := c.Compare(10.0, 10.2, domain.FieldTypeNumber, domain.CompareNumeric, nil)
	if got.IsCorrect {
		t.Fatal("expected mismatch")
	}
	want := 1 - 0.2
	if diff := got.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Confidence = %v, want %v", got.Confidence, want)
	}

	// Differences beyond 1 clamp confidence to zero
	got = c.Compare(10.0, 100.0, domain.FieldTypeNumber, domain.CompareNumeric, nil)
	if got.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", got.Confidence)
	}
}

func TestComparator_Boolean(t *testing.T) {
	c := NewComparator(0, 0)

	tests := []struct {
		name        string
		gt          interface{}
		pred        interface{}
		wantCorrect bool
	}{
		{"true bool vs yes", true, "yes", true},
		{"1 vs on", "1", "on", true},
		{"y vs t", "y", "t", true},
		{"false vs no token", false, "maybe", true},
		{"true vs unknown token", true, "maybe", false},
		{"nonzero float is true", 1.0, "true", true},
		{"zero float is false", 0.0, "false", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Compare(tt.gt, tt.pred, domain.FieldTypeBoolean, domain.CompareBoolean, nil)
			if got.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v", got.IsCorrect, tt.wantCorrect)
			}
			if !tt.wantCorrect && got.ErrorType != ErrBooleanDiff {
				t.Errorf("ErrorType = %q, want %q", got.ErrorType, ErrBooleanDiff)
			}
		})
	}
}

func TestComparator_Category(t *testing.T) {
	c := NewComparator(0, 0)

	options := domain.JSONMap{
		"mappings": map[string]interface{}{
			"Invoice": []interface{}{"bill", "receipt"},
			"report":  "summary",
		},
	}

	tests := []struct {
		name        string
		gt          string
		pred        string
		options     domain.JSONMap
		wantCorrect bool
	}{
		{"direct match", "invoice", "Invoice", nil, true},
		{"mapped list value", "Invoice", "bill", options, true},
		{"mapped scalar value", "Report", "Summary", options, true},
		{"not in mapping", "Invoice", "memo", options, false},
		{"no mapping options", "invoice", "bill", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Compare(tt.gt, tt.pred, domain.FieldTypeCategory, domain.CompareCategory, tt.options)
			if got.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v", got.IsCorrect, tt.wantCorrect)
			}
			if !tt.wantCorrect && got.ErrorType != ErrCategoryDiff {
				t.Errorf("ErrorType = %q, want %q", got.ErrorType, ErrCategoryDiff)
			}
		})
	}
}

func TestComparator_Date(t *testing.T) {
	c := NewComparator(0, 0)

	tests := []struct {
		name          string
		gt            string
		pred          string
		wantCorrect   bool
		wantErrorType string
	}{
		{"same layout", "2024-03-15", "2024-03-15", true, ""},
		{"different layouts same day", "2024-03-15", "2024/03/15", true, ""},
		{"compact layout", "20240315", "2024-03-15", true, ""},
		{"dotted layout", "15.03.2024", "2024-03-15", true, ""},
		{"textual month via fallback", "March 15, 2024", "2024-03-15", true, ""},
		{"different days", "2024-03-15", "2024-03-16", false, ErrDateDiff},
		{"unparseable", "not a date", "2024-03-15", false, ErrDateParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Compare(tt.gt, tt.pred, domain.FieldTypeDate, domain.CompareDate, nil)
			if got.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v (detail: %s)", got.IsCorrect, tt.wantCorrect, got.Detail)
			}
			if got.ErrorType != tt.wantErrorType {
				t.Errorf("ErrorType = %q, want %q", got.ErrorType, tt.wantErrorType)
			}
		})
	}
}

func TestAsString(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{5.0, "5"},
		{5.5, "5.5"},
		{int64(7), "7"},
		{true, "true"},
		{"abc", "abc"},
	}

	for _, tt := range tests {
		if got := asString(tt.in); got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
