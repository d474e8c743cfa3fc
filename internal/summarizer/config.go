package summarizer

import (
	"github.com/lifeproof/docsum/internal/chat"
)

// Config is passed to the Worker at construction. Nothing is read from the
// environment at processing time.
//
// TokenThreshold and InputCharCap are unvalidated heuristics: they are
// tunable defaults, not correctness boundaries.
type Config struct {
	// FixedModelOverride, when set, is used for every document.
	FixedModelOverride string `yaml:"fixed_model_override"`
	FastModelID        string `yaml:"fast_model_id"`
	CapableModelID     string `yaml:"capable_model_id"`
	TokenThreshold     int    `yaml:"token_threshold"`
	InputCharCap       int    `yaml:"input_char_cap"`
	MaxOutputTokens    int    `yaml:"max_output_tokens"`

	// SummaryBucket and FailedBucket fall back to the input document's
	// bucket when empty (single-bucket deployments).
	SummaryBucket string `yaml:"summary_bucket"`
	FailedBucket  string `yaml:"failed_bucket"`
}

// DefaultConfig returns the two-tier routing defaults.
func DefaultConfig() Config {
	return Config{
		FastModelID:     chat.ModelClaude35Haiku,
		CapableModelID:  chat.ModelClaude35SonnetV2,
		TokenThreshold:  chat.DefaultTokenThreshold,
		InputCharCap:    chat.DefaultInputCharCap,
		MaxOutputTokens: chat.DefaultMaxOutputTokens,
	}
}

// withDefaults fills zero fields from DefaultConfig and resolves model
// aliases.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	c.FixedModelOverride = chat.ResolveModel(c.FixedModelOverride)
	c.FastModelID = chat.ResolveModel(c.FastModelID)
	c.CapableModelID = chat.ResolveModel(c.CapableModelID)
	if c.FastModelID == "" {
		c.FastModelID = d.FastModelID
	}
	if c.CapableModelID == "" {
		c.CapableModelID = d.CapableModelID
	}
	if c.TokenThreshold <= 0 {
		c.TokenThreshold = d.TokenThreshold
	}
	if c.InputCharCap <= 0 {
		c.InputCharCap = d.InputCharCap
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = d.MaxOutputTokens
	}
	return c
}

// Router returns the model router for c.
func (c Config) Router() chat.Router {
	return chat.Router{
		FixedModel:     c.FixedModelOverride,
		FastModel:      c.FastModelID,
		CapableModel:   c.CapableModelID,
		TokenThreshold: c.TokenThreshold,
	}
}

func (c Config) summaryBucket(inputBucket string) string {
	if c.SummaryBucket != "" {
		return c.SummaryBucket
	}
	return inputBucket
}

func (c Config) failedBucket(inputBucket string) string {
	if c.FailedBucket != "" {
		return c.FailedBucket
	}
	return inputBucket
}
