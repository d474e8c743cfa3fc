// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Every Lambda in the project needs some subset of: AWS config, the document
// store, the audit log, Bedrock, SSM parameter fetch, and startup logging.
// This package extracts the common init patterns so each Lambda's init() is
// a short composition of helpers.
package lambdaboot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/lifeproof/docsum/internal/chat"
	"github.com/lifeproof/docsum/internal/config"
	"github.com/lifeproof/docsum/internal/docstore"
	"github.com/lifeproof/docsum/internal/logging"
	"github.com/lifeproof/docsum/internal/orchestrator"
	"github.com/lifeproof/docsum/internal/store"
	"github.com/lifeproof/docsum/internal/summarizer"
)

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// LoadConfig reads the pipeline configuration from the environment. Fatals
// on malformed values.
func LoadConfig() config.Config {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg
}

// InitDocStore creates the S3-backed document store.
func InitDocStore(cfg aws.Config) *docstore.S3Store {
	return docstore.NewS3Store(s3.NewFromConfig(cfg))
}

// InitAuditLog creates the DynamoDB audit log. Fatals if no table is configured.
func InitAuditLog(cfg aws.Config, tableName string) *store.DynamoAuditLog {
	if tableName == "" {
		log.Fatal().Str("envVar", config.EnvTrackingTable).Msg("Tracking table environment variable is required")
	}
	return store.NewDynamoAuditLog(dynamodb.NewFromConfig(cfg), tableName)
}

// InitBedrock creates the model client. SDK-level retries are disabled so
// throttling surfaces to the orchestrator's retry tiers instead of being
// retried twice.
func InitBedrock(cfg aws.Config) *chat.BedrockClient {
	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		o.RetryMaxAttempts = 1
	})
	return chat.NewBedrockClient(client)
}

// InitWorker composes a Summarizer Worker from the configuration.
func InitWorker(clients AWSClients, cfg config.Config) *summarizer.Worker {
	return summarizer.New(
		cfg.Worker,
		InitDocStore(clients.Config),
		InitAuditLog(clients.Config, cfg.Resources.TrackingTable),
		InitBedrock(clients.Config),
	)
}

// InitDeadLetter returns the SQS dead-letter destination, or nil (with a
// warning) when no queue is configured.
func InitDeadLetter(cfg aws.Config, queueURL string) orchestrator.DeadLetter {
	if queueURL == "" {
		log.Warn().Str("envVar", config.EnvDeadLetterQueueURL).Msg("Dead-letter queue not set, exhausted items are only logged")
		return nil
	}
	return orchestrator.NewSQSDeadLetter(sqs.NewFromConfig(cfg), queueURL)
}

// InitNotifier returns the EventBridge completion notifier, or nil when no
// bus is configured.
func InitNotifier(cfg aws.Config, busName string) orchestrator.Notifier {
	if busName == "" {
		log.Debug().Str("envVar", config.EnvEventBusName).Msg("Event bus not set, completion events disabled")
		return nil
	}
	return orchestrator.NewEventBridgeNotifier(eventbridge.NewFromConfig(cfg), busName)
}

// InitLambdaWorker returns a Worker that invokes the summarizer Lambda.
func InitLambdaWorker(cfg aws.Config, functionName string) *orchestrator.LambdaWorker {
	return orchestrator.NewLambdaWorker(lambda.NewFromConfig(cfg), functionName)
}

// SSMAPI is the subset of the SSM client used here.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

var _ SSMAPI = (*ssm.Client)(nil)

// LoadModelOverride resolves a fixed model id from SSM Parameter Store. An
// empty paramName means no override.
func LoadModelOverride(ctx context.Context, client SSMAPI, paramName string) (string, error) {
	if paramName == "" {
		return "", nil
	}
	ssmStart := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("read model id from SSM %s: %w", paramName, err)
	}
	if result.Parameter == nil {
		return "", fmt.Errorf("SSM parameter %s has no value", paramName)
	}
	modelID := aws.ToString(result.Parameter.Value)
	log.Debug().Str("param", paramName).Str("model", modelID).Dur("elapsed", time.Since(ssmStart)).Msg("Model override loaded from SSM")
	return modelID, nil
}

// ApplyModelOverride sets cfg.Worker.FixedModelOverride from SSM when a
// parameter is configured and no override is already set. Fatals on error.
func ApplyModelOverride(clients AWSClients, cfg *config.Config) {
	if cfg.Worker.FixedModelOverride != "" || cfg.Resources.ModelParam == "" {
		return
	}
	modelID, err := LoadModelOverride(context.Background(), clients.SSM, cfg.Resources.ModelParam)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load model override")
	}
	cfg.Worker.FixedModelOverride = modelID
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
