package chat

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRouterSelect(t *testing.T) {
	tests := []struct {
		name   string
		router Router
		text   string
		want   string
	}{
		{"short goes fast", Router{}, strings.Repeat("a", 100), ModelClaude35Haiku},
		{"long goes capable", Router{}, strings.Repeat("a", DefaultTokenThreshold*4), ModelClaude35SonnetV2},
		{"just under threshold", Router{TokenThreshold: 10}, strings.Repeat("a", 39), ModelClaude35Haiku},
		{"at threshold", Router{TokenThreshold: 10}, strings.Repeat("a", 40), ModelClaude35SonnetV2},
		{"fixed wins", Router{FixedModel: "custom", TokenThreshold: 1}, strings.Repeat("a", 1000), "custom"},
		{"configured tiers", Router{FastModel: "fast", CapableModel: "big", TokenThreshold: 2}, "abcdefgh", "big"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.router.Select(tt.text); got != tt.want {
				t.Errorf("Select() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveModel(t *testing.T) {
	tests := map[string]string{
		"sonnet":  ModelClaude35SonnetV2,
		"haiku":   ModelClaude35Haiku,
		"haiku-3": ModelClaude3Haiku,
		"legacy":  ModelClaude3Haiku,
		"":        "",
	}
	for in, want := range tests {
		if got := ResolveModel(in); got != want {
			t.Errorf("ResolveModel(%q) = %q, want %q", in, got, want)
		}
	}

	const opus = "anthropic.claude-3-opus-20240229-v1:0"
	if got := ResolveModel(opus); got != opus {
		t.Errorf("ResolveModel(%q) = %q, full ids pass through", opus, got)
	}
}

func TestRouterMonotonic(t *testing.T) {
	r := Router{TokenThreshold: 50}
	sawCapable := false
	for n := 0; n < 400; n += 7 {
		model := r.Select(strings.Repeat("x", n))
		if model == ModelClaude35SonnetV2 {
			sawCapable = true
		} else if sawCapable {
			t.Fatalf("length %d routed back to %s", n, model)
		}
	}
	if !sawCapable {
		t.Fatal("never routed to the capable model")
	}
}

func TestEstimateTokensCountsRunes(t *testing.T) {
	if got := EstimateTokens("éééé"); got != 1 {
		t.Errorf("EstimateTokens = %d, want 1", got)
	}
}

func TestTruncate(t *testing.T) {
	short := "short report"
	if got, cut := Truncate(short, 100); got != short || cut {
		t.Errorf("short text changed: %q %v", got, cut)
	}

	text := strings.Repeat("H", 60) + strings.Repeat("m", 100) + strings.Repeat("T", 60)
	got, cut := Truncate(text, 100)
	if !cut {
		t.Fatal("expected truncation")
	}
	if !strings.HasPrefix(got, strings.Repeat("H", 50)) || !strings.HasSuffix(got, strings.Repeat("T", 50)) {
		t.Errorf("head or tail not preserved: %q", got)
	}
	if !strings.Contains(got, TruncationMarker) {
		t.Error("missing truncation marker")
	}

	multi := strings.Repeat("日本語", 50)
	got, _ = Truncate(multi, 20)
	if !utf8.ValidString(got) {
		t.Error("truncation split a rune")
	}
}
