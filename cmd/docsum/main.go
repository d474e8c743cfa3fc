// Package main provides the docsum command-line tool.
//
// docsum runs the summarization pipeline from a workstation: summarize one
// document, run a batch in-process, drive the Step Functions state machine,
// install or run the nightly schedule, and inspect the audit log.
package main

import (
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lifeproof/docsum/internal/chat"
	"github.com/lifeproof/docsum/internal/config"
	"github.com/lifeproof/docsum/internal/logging"
	"github.com/lifeproof/docsum/internal/metrics"
)

// Global flags
var (
	configFlag string
	localFlag  string
	modelFlag  string
	bucketFlag string
)

// rootCmd is the main Cobra command for the docsum CLI.
var rootCmd = &cobra.Command{
	Use:   "docsum",
	Short: "Underwriting document summarization pipeline",
	Long: `docsum summarizes inbound underwriting documents (.txt, .pdf) into
structured risk summaries and records every attempt in the audit log.

Configuration comes from environment variables (BUCKET_NAME, TRACKING_TABLE,
MODEL_ID, ...), optionally overlaid on a YAML file given with --config.
With --local DIR documents and summaries are read from and written to
DIR/<bucket>/<key> and the audit log is kept in memory.

Examples:
  docsum process uploads/doc1.txt
  docsum run --local ./testdata --bucket documents
  docsum start --wait
  docsum definition --mode interactive
  docsum schedule install --target arn:aws:states:...:stateMachine:docsum
  docsum audit uploads/doc1.txt`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
		metrics.SetOutput(io.Discard)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&localFlag, "local", "", "Use a local directory as the document store and an in-memory audit log")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Force a Bedrock model id or alias (sonnet, haiku, haiku-3) for every document")
	rootCmd.PersistentFlags().StringVarP(&bucketFlag, "bucket", "b", "", "Document bucket (defaults to BUCKET_NAME)")

	rootCmd.AddCommand(processCmd, runCmd, startCmd, statusCmd, definitionCmd, deployCmd, scheduleCmd, auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the global flags. Fatals
// on invalid configuration.
func loadConfig() config.Config {
	var (
		cfg config.Config
		err error
	)
	if configFlag != "" {
		cfg, err = config.LoadFile(configFlag)
	} else {
		cfg, err = config.Load()
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if bucketFlag != "" {
		cfg.Resources.DocumentBucket = bucketFlag
		cfg.Schedule.Bucket = bucketFlag
	}
	if localFlag != "" && cfg.Resources.DocumentBucket == "" {
		cfg.Resources.DocumentBucket = defaultLocalBucket
		cfg.Schedule.Bucket = defaultLocalBucket
	}
	if modelFlag != "" {
		cfg.Worker.FixedModelOverride = chat.ResolveModel(modelFlag)
	}
	return cfg
}
