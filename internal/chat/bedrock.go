package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

// anthropicVersion is the Messages API version Bedrock expects in the body.
const anthropicVersion = "bedrock-2023-05-31"

// InvokeRequest is a single-turn model call.
type InvokeRequest struct {
	ModelID     string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Invoker is the black-box model service: text in, raw text out. Errors
// should be (or wrap) a *ModelError so callers can tell throttling apart
// from other failures.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (string, error)
}

// ModelError classifies a failed model call. Throttled covers rate limits,
// quota exhaustion and model timeouts; everything else is a service error.
type ModelError struct {
	ModelID   string
	Code      string
	Throttled bool
	Err       error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("invoke %s: %s: %v", e.ModelID, e.Code, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// IsThrottled reports whether err is a throttling or timeout model error.
func IsThrottled(err error) bool {
	var me *ModelError
	return errors.As(err, &me) && me.Throttled
}

// BedrockAPI is the subset of the Bedrock runtime client used here.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

var _ BedrockAPI = (*bedrockruntime.Client)(nil)

// BedrockClient invokes Anthropic models through Bedrock InvokeModel.
type BedrockClient struct {
	api BedrockAPI
}

var _ Invoker = (*BedrockClient)(nil)

// NewBedrockClient wraps a Bedrock runtime client.
func NewBedrockClient(api BedrockAPI) *BedrockClient {
	return &BedrockClient{api: api}
}

type messageContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type message struct {
	Role    string           `json:"role"`
	Content []messageContent `json:"content"`
}

type messagesRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	System           string    `json:"system,omitempty"`
	Messages         []message `json:"messages"`
}

type messagesResponse struct {
	Content    []messageContent `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Invoke sends the prompt and returns the concatenated text blocks.
func (c *BedrockClient) Invoke(ctx context.Context, req InvokeRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens
	}
	body, err := json.Marshal(messagesRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Temperature:      req.Temperature,
		System:           req.System,
		Messages: []message{{
			Role:    "user",
			Content: []messageContent{{Type: "text", Text: req.Prompt}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	log.Debug().Str("model", req.ModelID).Int("promptChars", len(req.Prompt)).Msg("Invoking Bedrock model")
	start := time.Now()
	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", classify(req.ModelID, err)
	}

	var resp messagesResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", &ModelError{ModelID: req.ModelID, Code: "InvalidResponseBody", Err: err}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" || block.Type == "" {
			text.WriteString(block.Text)
		}
	}

	log.Debug().
		Str("model", req.ModelID).
		Str("stopReason", resp.StopReason).
		Int("inputTokens", resp.Usage.InputTokens).
		Int("outputTokens", resp.Usage.OutputTokens).
		Dur("duration", time.Since(start)).
		Msg("Bedrock response received")
	return text.String(), nil
}

// classify maps SDK errors onto ModelError.
func classify(modelID string, err error) error {
	me := &ModelError{ModelID: modelID, Code: "ServiceError", Err: err}

	var throttling *brtypes.ThrottlingException
	var quota *brtypes.ServiceQuotaExceededException
	var timeout *brtypes.ModelTimeoutException
	var unavailable *brtypes.ServiceUnavailableException
	var apiErr smithy.APIError
	switch {
	case errors.As(err, &throttling):
		me.Code, me.Throttled = "ThrottlingException", true
	case errors.As(err, &quota):
		me.Code, me.Throttled = "ServiceQuotaExceededException", true
	case errors.As(err, &timeout):
		me.Code, me.Throttled = "ModelTimeoutException", true
	case errors.As(err, &unavailable):
		me.Code, me.Throttled = "ServiceUnavailableException", true
	case errors.Is(err, context.DeadlineExceeded):
		me.Code, me.Throttled = "Timeout", true
	case errors.As(err, &apiErr):
		me.Code = apiErr.ErrorCode()
		if me.Code == "TooManyRequestsException" {
			me.Throttled = true
		}
	}
	return me
}
