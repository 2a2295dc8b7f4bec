package intent

import (
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "bare object",
			raw:  `{"intent":"find code hosting"}`,
			want: `{"intent":"find code hosting"}`,
		},
		{
			name: "markdown fence",
			raw:  "```json\n{\"intent\":\"x\"}\n```",
			want: `{"intent":"x"}`,
		},
		{
			name: "prose before and after",
			raw:  `Sure! Here is the analysis: {"intent":"x","keywords":["a"]} Hope that helps.`,
			want: `{"intent":"x","keywords":["a"]}`,
		},
		{
			name: "nested objects",
			raw:  `{"a":{"b":{"c":1}},"d":2}`,
			want: `{"a":{"b":{"c":1}},"d":2}`,
		},
		{
			name: "braces inside strings",
			raw:  `{"reason":"uses {braces} and \"quotes\" inside"}`,
			want: `{"reason":"uses {braces} and \"quotes\" inside"}`,
		},
		{
			name: "stops at first balanced object",
			raw:  `{"a":1} trailing {"b":2}`,
			want: `{"a":1}`,
		},
		{
			name:    "refusal text without JSON",
			raw:     "I'm sorry, I can't help with that.",
			wantErr: true,
		},
		{
			name:    "truncated object",
			raw:     `{"recommendations":[{"website_id":1,"relevance_sco`,
			wantErr: true,
		},
		{
			name:    "empty string",
			raw:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseInto_InvalidJSONInsideObject(t *testing.T) {
	var v struct {
		Intent string `json:"intent"`
	}
	if err := parseInto(`{"intent": }`, &v); err == nil {
		t.Fatal("expected unmarshal error")
	}
}
