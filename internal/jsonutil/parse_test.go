package jsonutil

import "testing"

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `{"a":1}`, `{"a":1}`},
		{"json fence multiline", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence multiline", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json fence inline", "```json{\"a\":1}```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```\n ", `{"a":1}`},
		{"missing closing fence", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdownFences(tt.in); got != tt.want {
				t.Errorf("StripMarkdownFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractObject(t *testing.T) {
	got, err := ExtractObject(`Here you go: {"risk_level":"LOW","labs":{"a1c":"7.2%"}} hope that helps`)
	if err != nil {
		t.Fatalf("ExtractObject error: %v", err)
	}
	if got != `{"risk_level":"LOW","labs":{"a1c":"7.2%"}}` {
		t.Errorf("ExtractObject = %q", got)
	}

	for _, in := range []string{"no json here", "} backwards {", "[1,2]"} {
		if _, err := ExtractObject(in); err == nil {
			t.Errorf("ExtractObject(%q) expected error", in)
		}
	}
}

func TestObjectBytes(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, false},
		{"fenced object", "```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`, false},
		{"prose around object", `Summary: {"a":1} done.`, `{"a":1}`, false},
		{"prose only", "I cannot summarize this document.", "", true},
		{"broken object", `{"a": }`, "", true},
		{"array is not an object", `[1,2]`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ObjectBytes(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ObjectBytes(%q) expected error, got %q", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ObjectBytes(%q) error: %v", tt.in, err)
			}
			if string(got) != tt.want {
				t.Errorf("ObjectBytes(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
