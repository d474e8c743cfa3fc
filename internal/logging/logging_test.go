package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := log.Logger
	var buf bytes.Buffer
	SetOutput(&buf, false)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"DEBUG": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"info":  zerolog.InfoLevel,
		"":      zerolog.InfoLevel,
		"loud":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("DOCSUM_TEST_VALUE", "")
	if got := EnvOrDefault("DOCSUM_TEST_VALUE", "fallback"); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}
	t.Setenv("DOCSUM_TEST_VALUE", "set")
	if got := EnvOrDefault("DOCSUM_TEST_VALUE", "fallback"); got != "set" {
		t.Errorf("got %q, want set", got)
	}
}

func TestStartupLoggerEmitsResources(t *testing.T) {
	buf := captureLog(t)
	t.Setenv(LevelEnv, "debug")

	NewStartupLogger("summarizer-lambda").
		CommitHash("abc123").
		S3Bucket("documents", "lifeproof-documents").
		DynamoTable("tracking", "document-tracking").
		SQSQueue("deadLetter", "https://sqs.example/dlq").
		EventBus("events", "default").
		Model("fast", "anthropic.claude-3-5-haiku-20241022-v1:0").
		Model("override", "").
		Feature("deadLetter", true).
		Config("tokenThreshold", "8000").
		InitDuration(42 * time.Millisecond).
		Log()

	var evt map[string]any
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("startup log is not JSON: %v: %s", err, buf.String())
	}
	if evt["message"] != "Lambda cold start complete" {
		t.Errorf("message = %v", evt["message"])
	}

	lambda := evt["lambda"].(map[string]any)
	if lambda["name"] != "summarizer-lambda" || lambda["commitHash"] != "abc123" || lambda["logLevel"] != "debug" {
		t.Errorf("lambda identity = %v", lambda)
	}

	resources := evt["resources"].(map[string]any)
	for _, key := range []string{"s3Buckets", "dynamoTables", "sqsQueues", "eventBuses"} {
		if _, ok := resources[key]; !ok {
			t.Errorf("resources missing %s: %v", key, resources)
		}
	}
	if _, ok := resources["stateMachines"]; ok {
		t.Error("empty resource maps must be omitted")
	}

	models := evt["models"].(map[string]any)
	if len(models) != 1 || models["fast"] == nil {
		t.Errorf("models = %v, want only fast", models)
	}
	if evt["features"].(map[string]any)["deadLetter"] != true {
		t.Errorf("features = %v", evt["features"])
	}
	if evt["initDuration"] == nil {
		t.Error("initDuration missing")
	}
}
