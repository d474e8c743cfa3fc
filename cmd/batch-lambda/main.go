// Package main provides the Batch Lambda entry point.
//
// The Lambda runs the in-process batch orchestrator. It is the target of the
// nightly EventBridge rule when the Step Functions state machine is not
// deployed, and it also accepts an explicit document list:
//
//	{"trigger": "scheduled", "timestamp": "2024-06-01T22:00:00Z"}
//	{"documents": [{"bucket": "lifeproof-documents", "key": "uploads/doc1.txt"}]}
//
// When SUMMARIZER_FUNCTION_NAME is set each document is summarized by
// invoking the summarizer Lambda; otherwise documents are summarized in
// this process. The response is the batch completion summary.
package main

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/lifeproof/docsum/internal/handler"
	"github.com/lifeproof/docsum/internal/lambdaboot"
	"github.com/lifeproof/docsum/internal/logging"
	"github.com/lifeproof/docsum/internal/orchestrator"
	"github.com/lifeproof/docsum/internal/scheduler"
)

// Set at build time via -ldflags.
var (
	commitHash = "dev"
	buildTime  = ""
)

var coldStart = true

var sched *scheduler.Scheduler

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig()

	var worker orchestrator.Worker
	if fn := cfg.Resources.SummarizerFunction; fn != "" {
		worker = lambdaboot.InitLambdaWorker(clients.Config, fn)
	} else {
		lambdaboot.ApplyModelOverride(clients, &cfg)
		worker = lambdaboot.InitWorker(clients, cfg)
	}

	var opts []orchestrator.Option
	if dl := lambdaboot.InitDeadLetter(clients.Config, cfg.Resources.DeadLetterQueueURL); dl != nil {
		opts = append(opts, orchestrator.WithDeadLetter(dl))
	}
	if n := lambdaboot.InitNotifier(clients.Config, cfg.Resources.EventBusName); n != nil {
		opts = append(opts, orchestrator.WithNotifier(n))
	}
	orch := orchestrator.New(worker, cfg.Batch, opts...)

	var err error
	sched, err = scheduler.New(cfg.Schedule, lambdaboot.InitDocStore(clients.Config), orch)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid schedule configuration")
	}

	policy := orch.Policy()
	lambdaboot.StartupLog("batch-lambda", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		S3Bucket("documents", cfg.Resources.DocumentBucket).
		DynamoTable("tracking", cfg.Resources.TrackingTable).
		LambdaFunc("summarizer", cfg.Resources.SummarizerFunction).
		SQSQueue("deadLetter", cfg.Resources.DeadLetterQueueURL).
		EventBus("completion", cfg.Resources.EventBusName).
		Feature("remoteWorker", cfg.Resources.SummarizerFunction != "").
		Config("prefix", sched.Config().Prefix).
		Config("maxConcurrency", strconv.Itoa(policy.MaxConcurrency)).
		Config("timeout", policy.Timeout.String()).
		Log()
}

func main() {
	lambda.Start(func(ctx context.Context, event json.RawMessage) (*orchestrator.BatchCompletedEvent, error) {
		if coldStart {
			coldStart = false
			log.Info().Str("function", "batch-lambda").Msg("Cold start, first invocation")
		}
		return handler.Batch(ctx, sched, event)
	})
}
