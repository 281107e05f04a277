package domain

import "testing"

func TestJSONMapRoundTrip(t *testing.T) {
	m := JSONMap{"a": "1", "b": float64(2), "nested": map[string]interface{}{"c": true}}

	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var got JSONMap
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got["a"] != "1" || got["b"] != float64(2) {
		t.Errorf("round trip lost values: %v", got)
	}
	nested, ok := got["nested"].(map[string]interface{})
	if !ok || nested["c"] != true {
		t.Errorf("nested value lost: %v", got["nested"])
	}
}

func TestJSONMapNil(t *testing.T) {
	var m JSONMap
	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != "{}" {
		t.Errorf("nil map Value = %v, want {}", v)
	}

	var got JSONMap
	if err := got.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Scan(nil) = %v, want empty map", got)
	}
}

func TestStringArrayRoundTrip(t *testing.T) {
	a := StringArray{"x", "y"}
	v, err := a.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var got StringArray
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Errorf("round trip = %v", got)
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	terminal := []TaskStatus{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []TaskStatus{StatusPending, StatusInProgress} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestPromptValidate(t *testing.T) {
	tests := []struct {
		name    string
		prompt  Prompt
		wantErr error
	}{
		{
			name:    "both empty",
			prompt:  Prompt{},
			wantErr: ErrEmptyPrompt,
		},
		{
			name:    "no content token",
			prompt:  Prompt{UserPrompt: "extract the fields"},
			wantErr: ErrMissingContentToken,
		},
		{
			name:   "token in user prompt",
			prompt: Prompt{UserPrompt: "extract from: " + DocumentContentToken},
		},
		{
			name:   "token in system prompt",
			prompt: Prompt{SystemPrompt: "doc: " + DocumentContentToken, UserPrompt: "go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prompt.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
