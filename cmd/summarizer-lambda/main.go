// Package main provides the Summarizer Lambda entry point.
//
// The Lambda is the per-document task of the batch state machine and the
// remote Worker of the in-process orchestrator. It summarizes exactly one
// document per invocation.
//
// Event format (any casing accepted by trigger.Normalize):
//
//	{"bucket": "lifeproof-documents", "key": "uploads/doc1.txt"}
//
// A successful or degraded run returns a summarizer.Response. Keys without a
// supported suffix return status SKIPPED. Every other failure is returned as
// a Lambda function error whose errorType is the failure kind name (e.g.
// "ModelThrottledError"), which is what the state machine retriers match.
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
	"github.com/lifeproof/docsum/internal/summarizer"
)

// Set at build time via -ldflags.
var (
	commitHash = "dev"
	buildTime  = ""
)

var coldStart = true

var worker *summarizer.Worker

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig()
	lambdaboot.ApplyModelOverride(clients, &cfg)

	worker = lambdaboot.InitWorker(clients, cfg)

	wc := worker.Config()
	lambdaboot.StartupLog("summarizer-lambda", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		S3Bucket("summaries", wc.SummaryBucket).
		S3Bucket("failed", wc.FailedBucket).
		DynamoTable("tracking", cfg.Resources.TrackingTable).
		SSMParam("modelId", cfg.Resources.ModelParam).
		Model("override", wc.FixedModelOverride).
		Model("fast", wc.FastModelID).
		Model("capable", wc.CapableModelID).
		Config("tokenThreshold", strconv.Itoa(wc.TokenThreshold)).
		Config("inputCharCap", strconv.Itoa(wc.InputCharCap)).
		Log()
}

func main() {
	lambda.Start(func(ctx context.Context, event json.RawMessage) (*summarizer.Response, error) {
		if coldStart {
			coldStart = false
			log.Info().Str("function", "summarizer-lambda").Msg("Cold start, first invocation")
		}
		return handler.Summarize(ctx, worker, event)
	})
}
