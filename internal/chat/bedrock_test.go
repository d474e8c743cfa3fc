package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

type fakeBedrock struct {
	got  *bedrockruntime.InvokeModelInput
	body string
	err  error
}

func (f *fakeBedrock) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestBedrockInvoke(t *testing.T) {
	api := &fakeBedrock{body: `{"content":[{"type":"text","text":"{\"risk_level\":"},{"type":"text","text":"\"LOW\"}"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`}
	client := NewBedrockClient(api)

	text, err := client.Invoke(context.Background(), InvokeRequest{
		ModelID: ModelClaude35Haiku,
		System:  "rubric",
		Prompt:  "document",
	})
	require.NoError(t, err)
	require.Equal(t, `{"risk_level":"LOW"}`, text)
	require.Equal(t, ModelClaude35Haiku, aws.ToString(api.got.ModelId))

	var sent messagesRequest
	require.NoError(t, json.Unmarshal(api.got.Body, &sent))
	require.Equal(t, anthropicVersion, sent.AnthropicVersion)
	require.Equal(t, DefaultMaxOutputTokens, sent.MaxTokens)
	require.Equal(t, "rubric", sent.System)
	require.Len(t, sent.Messages, 1)
	require.Equal(t, "user", sent.Messages[0].Role)
	require.Equal(t, "document", sent.Messages[0].Content[0].Text)
}

func TestBedrockInvokeBadBody(t *testing.T) {
	_, err := NewBedrockClient(&fakeBedrock{body: "not json"}).Invoke(context.Background(), InvokeRequest{ModelID: "m"})
	var me *ModelError
	require.ErrorAs(t, err, &me)
	require.Equal(t, "InvalidResponseBody", me.Code)
	require.False(t, me.Throttled)
}

func TestBedrockErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      string
		throttled bool
	}{
		{"throttling", &brtypes.ThrottlingException{Message: aws.String("slow down")}, "ThrottlingException", true},
		{"quota", &brtypes.ServiceQuotaExceededException{}, "ServiceQuotaExceededException", true},
		{"model timeout", &brtypes.ModelTimeoutException{}, "ModelTimeoutException", true},
		{"unavailable", &brtypes.ServiceUnavailableException{}, "ServiceUnavailableException", true},
		{"deadline", context.DeadlineExceeded, "Timeout", true},
		{"validation", &brtypes.ValidationException{}, "ValidationException", false},
		{"generic throttle code", &smithy.GenericAPIError{Code: "TooManyRequestsException"}, "TooManyRequestsException", true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDeniedException"}, "AccessDeniedException", false},
		{"unknown", errors.New("boom"), "ServiceError", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBedrockClient(&fakeBedrock{err: tt.err}).Invoke(context.Background(), InvokeRequest{ModelID: "m"})
			var me *ModelError
			require.ErrorAs(t, err, &me)
			require.Equal(t, tt.code, me.Code)
			require.Equal(t, tt.throttled, IsThrottled(err))
			require.ErrorIs(t, err, tt.err)
		})
	}
}
