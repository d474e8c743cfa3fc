package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog/log"

	"github.com/lifeproof/docsum/internal/document"
	"github.com/lifeproof/docsum/internal/summarizer"
)

// LambdaAPI is the subset of the Lambda client used by LambdaWorker.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

var _ LambdaAPI = (*lambda.Client)(nil)

// LambdaWorker runs the Summarizer Worker remotely by synchronously
// invoking the summarizer Lambda. Typed failures come back as the function
// error's errorType and are mapped onto the same kinds the in-process
// Worker returns, so retry tiers behave identically.
type LambdaWorker struct {
	client       LambdaAPI
	functionName string
}

var _ Worker = (*LambdaWorker)(nil)

// NewLambdaWorker invokes functionName (name or ARN) once per document.
func NewLambdaWorker(client LambdaAPI, functionName string) *LambdaWorker {
	return &LambdaWorker{client: client, functionName: functionName}
}

func (w *LambdaWorker) Process(ctx context.Context, ref document.Reference) summarizer.Outcome {
	payload, err := json.Marshal(ref)
	if err != nil {
		return summarizer.Failure(ref, "", "", &summarizer.ProcessingError{Kind: summarizer.KindInternal, Message: "marshal payload", Err: err})
	}

	out, err := w.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(w.functionName),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return summarizer.Failure(ref, "", "", classifyInvokeError(w.functionName, err))
	}

	if out.FunctionError != nil {
		var fnErr messages.InvokeResponse_Error
		if jerr := json.Unmarshal(out.Payload, &fnErr); jerr != nil || fnErr.Type == "" {
			fnErr.Type = aws.ToString(out.FunctionError)
			fnErr.Message = string(out.Payload)
		}
		log.Debug().
			Str("key", ref.Key).
			Str("errorType", fnErr.Type).
			Str("errorMessage", fnErr.Message).
			Str("functionError", aws.ToString(out.FunctionError)).
			Msg("Summarizer Lambda returned function error")
		processingID, msg := summarizer.UntagMessage(fnErr.Message)
		return summarizer.Failure(ref, processingID, "", &summarizer.ProcessingError{
			Kind:    summarizer.KindFromName(fnErr.Type),
			Message: msg,
		})
	}

	var resp summarizer.Response
	if err := json.Unmarshal(out.Payload, &resp); err != nil {
		return summarizer.Failure(ref, "", "", &summarizer.ProcessingError{Kind: summarizer.KindInternal, Message: "decode summarizer response", Err: err})
	}
	if resp.Status == summarizer.ResponseSkipped {
		return summarizer.Failure(ref, "", "", &summarizer.ProcessingError{Kind: summarizer.KindUnsupportedType, Message: resp.Reason})
	}
	return summarizer.OutcomeFromResponse(ref, resp)
}

func classifyInvokeError(functionName string, err error) *summarizer.ProcessingError {
	var tooMany *lambdatypes.TooManyRequestsException
	if errors.As(err, &tooMany) {
		return &summarizer.ProcessingError{Kind: summarizer.KindModelThrottled, Message: "lambda invoke throttled", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &summarizer.ProcessingError{Kind: summarizer.KindTimeout, Message: "lambda invoke timed out", Err: err}
	}
	return &summarizer.ProcessingError{Kind: summarizer.KindInternal, Message: fmt.Sprintf("invoke %s", functionName), Err: err}
}
