// Package handler holds the Lambda entry-point logic, kept apart from the
// cmd/ mains so it can be exercised without cold-start wiring.
package handler

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/rs/zerolog/log"

	"github.com/lifeproof/docsum/internal/orchestrator"
	"github.com/lifeproof/docsum/internal/summarizer"
	"github.com/lifeproof/docsum/internal/trigger"
)

// Summarize handles one summarizer Lambda invocation. Unsupported keys are
// answered with a SKIPPED response. Failures are returned as function errors
// whose type is the failure kind name.
func Summarize(ctx context.Context, worker orchestrator.Worker, event json.RawMessage) (*summarizer.Response, error) {
	req, err := trigger.Normalize(event)
	if err != nil || len(req.Documents) != 1 {
		log.Error().Err(err).Str("source", string(req.Source)).Int("documents", len(req.Documents)).Msg("Event does not name exactly one document")
		return nil, FunctionError("", &summarizer.ProcessingError{
			Kind:    summarizer.KindNotFound,
			Message: "event must name exactly one document",
			Err:     err,
		})
	}

	ref := req.Documents[0]
	if ref.Valid() && !ref.Supported() {
		log.Info().Str("key", ref.Key).Msg("Skipping non-document key")
		resp := summarizer.SkippedResponse(ref)
		return &resp, nil
	}

	out := worker.Process(ctx, ref)
	if !out.Succeeded() {
		perr := out.Err
		if perr == nil {
			perr = summarizer.AsProcessingError(out.Error())
		}
		return nil, FunctionError(out.ProcessingID, perr)
	}
	resp := out.Response()
	return &resp, nil
}

// FunctionError carries the kind name as the Lambda errorType and the
// processing id in the message.
func FunctionError(processingID string, perr *summarizer.ProcessingError) error {
	return messages.InvokeResponse_Error{
		Type:    perr.Kind.String(),
		Message: summarizer.TagMessage(processingID, perr.Error()),
	}
}
