package handler

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lifeproof/docsum/internal/orchestrator"
	"github.com/lifeproof/docsum/internal/trigger"
)

// Ingest processes an SQS batch of S3 notifications. A message is reported
// as a batch item failure when it cannot be decoded or when any of its
// documents failed with a retryable kind, so SQS redelivers it and
// eventually moves it to the ingest dead-letter queue. Terminal failures are
// already recorded by the Worker and are not redelivered.
func Ingest(ctx context.Context, worker orchestrator.Worker, concurrency int, ev events.SQSEvent) events.SQSEventResponse {
	if concurrency <= 0 {
		concurrency = 1
	}
	var (
		mu       sync.Mutex
		failures []events.SQSBatchItemFailure
	)
	fail := func(id string) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: id})
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, msg := range ev.Records {
		msg := msg
		g.Go(func() error {
			logger := log.With().Str("messageId", msg.MessageId).Logger()
			refs, err := trigger.FromSQSMessage(msg)
			if err != nil {
				logger.Error().Err(err).Msg("Undecodable ingest message")
				fail(msg.MessageId)
				return nil
			}
			for _, ref := range refs {
				if !ref.Valid() || !ref.Supported() {
					logger.Debug().Str("key", ref.Key).Msg("Skipping non-document key")
					continue
				}
				out := worker.Process(ctx, ref)
				if out.Succeeded() || out.Err == nil {
					continue
				}
				if out.Err.Kind.Retryable() {
					logger.Warn().Err(out.Err).Str("key", ref.Key).Msg("Retryable failure, message will be redelivered")
					fail(msg.MessageId)
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int("messages", len(ev.Records)).
		Int("failed", len(failures)).
		Msg("Ingest batch processed")
	return events.SQSEventResponse{BatchItemFailures: failures}
}
