package main

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lifeproof/docsum/internal/cli"
	"github.com/lifeproof/docsum/internal/config"
	"github.com/lifeproof/docsum/internal/document"
	"github.com/lifeproof/docsum/internal/lambdaboot"
	"github.com/lifeproof/docsum/internal/orchestrator"
	"github.com/lifeproof/docsum/internal/scheduler"
)

var (
	interactiveFlag bool
	remoteFlag      bool
	jsonFlag        bool
)

var processCmd = &cobra.Command{
	Use:   "process KEY",
	Short: "Summarize a single document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ref := document.Reference{Bucket: cfg.Resources.DocumentBucket, Key: args[0]}
		if !ref.Valid() {
			log.Fatal().Str("key", args[0]).Msg("Document bucket is required (--bucket or BUCKET_NAME)")
		}
		if !ref.Supported() {
			log.Fatal().Str("key", ref.Key).Msg("Only .txt and .pdf documents are summarized")
		}

		worker := newWorker(&cfg, docStore())
		out := worker.Process(cmd.Context(), ref)
		cli.PrintOutcome(os.Stdout, out)
		if !out.Succeeded() {
			os.Exit(1)
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run [KEY...]",
	Short: "Run a batch in-process over the given keys or the inbound prefix",
	Long: `Run fans the documents out to the Summarizer Worker with the production
retry policy (--interactive for the 5-wide POC policy). With no keys every
object under the inbound prefix is processed. With --remote each document is
summarized by invoking the summarizer Lambda.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		docs := docStore()

		policy := cfg.Batch
		if interactiveFlag {
			policy = orchestrator.InteractivePolicy()
		}

		var worker orchestrator.Worker
		if remoteFlag {
			if cfg.Resources.SummarizerFunction == "" {
				log.Fatal().Str("envVar", config.EnvSummarizerFunction).Msg("--remote needs the summarizer function name")
			}
			worker = lambdaboot.InitLambdaWorker(clients().Config, cfg.Resources.SummarizerFunction)
		} else {
			worker = newWorker(&cfg, docs)
		}

		sched, err := scheduler.New(cfg.Schedule, docs, newOrchestrator(cfg, worker, policy))
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid schedule configuration")
		}

		var result *orchestrator.BatchResult
		if len(args) == 0 {
			result, err = sched.Fire(cmd.Context())
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to list inbound documents")
			}
		} else {
			refs := make([]document.Reference, 0, len(args))
			for _, key := range args {
				refs = append(refs, document.Reference{Bucket: cfg.Resources.DocumentBucket, Key: key})
			}
			result = sched.FireWith(cmd.Context(), refs)
		}
		printResult(result)
		if result.Failed > 0 || result.TimedOut > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().BoolVar(&interactiveFlag, "interactive", false, "Use the interactive retry and concurrency policy")
	runCmd.Flags().BoolVar(&remoteFlag, "remote", false, "Invoke the summarizer Lambda for each document")
	runCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the full batch result as JSON")
}

func printResult(result *orchestrator.BatchResult) {
	if !jsonFlag {
		cli.PrintBatchReport(os.Stdout, result)
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode batch result")
	}
}
