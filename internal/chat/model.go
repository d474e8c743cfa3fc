package chat

import "unicode/utf8"

// Bedrock Model IDs
//
// | Model Name          | Bedrock Model ID                             | Use Case                          |
// |---------------------|----------------------------------------------|-----------------------------------|
// | Claude 3.5 Sonnet v2| anthropic.claude-3-5-sonnet-20241022-v2:0    | Long, complex medical histories   |
// | Claude 3.5 Haiku    | anthropic.claude-3-5-haiku-20241022-v1:0     | Short reports, lowest latency     |
// | Claude 3 Haiku      | anthropic.claude-3-haiku-20240307-v1:0       | Legacy fast tier                  |
const (
	// ModelClaude35SonnetV2 is the capable tier for long documents.
	ModelClaude35SonnetV2 = "anthropic.claude-3-5-sonnet-20241022-v2:0"

	// ModelClaude35Haiku is the fast tier and the single-model POC default.
	ModelClaude35Haiku = "anthropic.claude-3-5-haiku-20241022-v1:0"

	// ModelClaude3Haiku is the previous fast tier.
	ModelClaude3Haiku = "anthropic.claude-3-haiku-20240307-v1:0"
)

// modelAliases are the short names accepted wherever a model id is configured.
var modelAliases = map[string]string{
	"sonnet":  ModelClaude35SonnetV2,
	"haiku":   ModelClaude35Haiku,
	"haiku-3": ModelClaude3Haiku,
	"capable": ModelClaude35SonnetV2,
	"fast":    ModelClaude35Haiku,
	"legacy":  ModelClaude3Haiku,
}

// ResolveModel maps a short alias onto its Bedrock model id. Anything else,
// including full ids and inference-profile ARNs, is returned unchanged.
func ResolveModel(name string) string {
	if id, ok := modelAliases[name]; ok {
		return id
	}
	return name
}

// Routing defaults. These are unvalidated heuristics kept as tunable
// configuration, not correctness boundaries.
const (
	// DefaultTokenThreshold routes documents estimated below it to the fast model.
	DefaultTokenThreshold = 8000

	// DefaultInputCharCap is the hard input cap before truncation (~37.5k tokens).
	DefaultInputCharCap = 150000

	// DefaultMaxOutputTokens bounds the model response.
	DefaultMaxOutputTokens = 4096

	// charsPerToken is the rough English characters-per-token ratio.
	charsPerToken = 4
)

// TruncationMarker is inserted between the kept head and tail of a document
// that exceeds the input cap.
const TruncationMarker = "[...DOCUMENT TRUNCATED...]"

// Router picks a model for a document. FixedModel, when set, wins
// unconditionally (single-model deployments); otherwise documents estimated
// below TokenThreshold go to FastModel and the rest to CapableModel.
type Router struct {
	FixedModel     string
	FastModel      string
	CapableModel   string
	TokenThreshold int
}

// EstimateTokens is the chars/4 heuristic.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / charsPerToken
}

// Select returns the model id for text. Routing is monotonic in text length.
func (r Router) Select(text string) string {
	if r.FixedModel != "" {
		return r.FixedModel
	}
	threshold := r.TokenThreshold
	if threshold <= 0 {
		threshold = DefaultTokenThreshold
	}
	if EstimateTokens(text) < threshold {
		return orDefault(r.FastModel, ModelClaude35Haiku)
	}
	return orDefault(r.CapableModel, ModelClaude35SonnetV2)
}

// Truncate keeps the first and last capChars/2 characters of text with the
// truncation marker between them. Medical reports front-load identity and
// history and back-load labs and assessment, so both ends are preserved.
// It reports whether truncation happened.
func Truncate(text string, capChars int) (string, bool) {
	if capChars <= 0 {
		capChars = DefaultInputCharCap
	}
	if utf8.RuneCountInString(text) <= capChars {
		return text, false
	}
	runes := []rune(text)
	half := capChars / 2
	return string(runes[:half]) + "\n\n" + TruncationMarker + "\n\n" + string(runes[len(runes)-half:]), true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
