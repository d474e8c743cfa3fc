// Package main provides the Ingest Lambda entry point.
//
// The Lambda consumes S3 object-created notifications from an SQS queue and
// summarizes each uploaded document as it arrives. Retryable failures are
// reported as batch item failures so SQS redelivers the message; terminal
// failures are recorded in the audit log and acknowledged.
package main

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/lifeproof/docsum/internal/handler"
	"github.com/lifeproof/docsum/internal/lambdaboot"
	"github.com/lifeproof/docsum/internal/logging"
	"github.com/lifeproof/docsum/internal/summarizer"
)

// Set at build time via -ldflags.
var (
	commitHash = "dev"
	buildTime  = ""
)

var coldStart = true

var (
	worker      *summarizer.Worker
	concurrency int
)

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig()
	lambdaboot.ApplyModelOverride(clients, &cfg)

	worker = lambdaboot.InitWorker(clients, cfg)

	n, err := strconv.Atoi(logging.EnvOrDefault("INGEST_CONCURRENCY", "4"))
	if err != nil || n <= 0 {
		log.Warn().Err(err).Msg("Invalid INGEST_CONCURRENCY, using 4")
		n = 4
	}
	concurrency = n

	wc := worker.Config()
	lambdaboot.StartupLog("ingest-lambda", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		S3Bucket("summaries", wc.SummaryBucket).
		S3Bucket("failed", wc.FailedBucket).
		DynamoTable("tracking", cfg.Resources.TrackingTable).
		SSMParam("modelId", cfg.Resources.ModelParam).
		Model("override", wc.FixedModelOverride).
		Model("fast", wc.FastModelID).
		Model("capable", wc.CapableModelID).
		Config("concurrency", strconv.Itoa(concurrency)).
		Log()
}

func main() {
	lambda.Start(func(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
		if coldStart {
			coldStart = false
			log.Info().Str("function", "ingest-lambda").Msg("Cold start, first invocation")
		}
		return handler.Ingest(ctx, worker, concurrency, ev), nil
	})
}
