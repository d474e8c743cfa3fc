package main

import (
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lifeproof/docsum/internal/cli"
	"github.com/lifeproof/docsum/internal/config"
	"github.com/lifeproof/docsum/internal/document"
	"github.com/lifeproof/docsum/internal/orchestrator"
	"github.com/lifeproof/docsum/internal/statemachine"
	"github.com/lifeproof/docsum/internal/trigger"
)

var (
	waitFlag     bool
	intervalFlag time.Duration
	execNameFlag string
	smNameFlag   string
	modeFlag     string
	yesFlag      bool
)

var startCmd = &cobra.Command{
	Use:   "start [KEY...]",
	Short: "Start a state machine execution",
	Long: `Start begins an execution of the batch state machine. With keys the input
is an explicit document list (interactive variant); without keys the input
is a scheduled trigger stamped with the current time.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		smARN := requireStateMachine(cfg)

		var input any = trigger.NewScheduledPayload(time.Now())
		if len(args) > 0 {
			payload := trigger.DocumentsPayload{}
			for _, key := range args {
				payload.Documents = append(payload.Documents, document.Reference{Bucket: cfg.Resources.DocumentBucket, Key: key})
			}
			input = payload
		}

		client := sfnClient()
		execARN, err := client.Start(cmd.Context(), smARN, execNameFlag, input)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start execution")
		}
		fmt.Println(execARN)
		if waitFlag {
			waitAndPrint(cmd, client, execARN)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status EXECUTION_ARN",
	Short: "Show the status of a state machine execution",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := sfnClient()
		if waitFlag {
			waitAndPrint(cmd, client, args[0])
			return
		}
		exec, err := client.Status(cmd.Context(), args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to describe execution")
		}
		cli.PrintExecution(os.Stdout, exec)
	},
}

var definitionCmd = &cobra.Command{
	Use:   "definition",
	Short: "Print the state machine definition (Amazon States Language)",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		def := buildDefinition(cfg)
		out, err := def.JSON()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to render definition")
		}
		fmt.Println(out)
	},
}

var deployCmd = &cobra.Command{
	Use:   "deploy-definition",
	Short: "Create or update the state machine",
	Long: `deploy-definition renders the definition and updates STATE_MACHINE_ARN, or
creates a new STANDARD state machine named --name with STATE_MACHINE_ROLE_ARN
when no ARN is configured.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		def := buildDefinition(cfg)

		target := cfg.Resources.StateMachineARN
		if target == "" {
			target = "new state machine " + smNameFlag
		}
		if !yesFlag && !cli.Confirm(os.Stdin, os.Stdout, fmt.Sprintf("Deploy %s definition to %s?", modeFlag, target)) {
			fmt.Println("Aborted. Nothing was deployed.")
			return
		}

		arn, err := sfnClient().Deploy(cmd.Context(), statemachine.DeployInput{
			StateMachineARN: cfg.Resources.StateMachineARN,
			Name:            smNameFlag,
			RoleARN:         cfg.Resources.StateMachineRoleARN,
		}, def)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to deploy state machine")
		}
		fmt.Println(arn)
	},
}

func init() {
	for _, c := range []*cobra.Command{startCmd, statusCmd} {
		c.Flags().BoolVarP(&waitFlag, "wait", "w", false, "Poll until the execution finishes")
		c.Flags().DurationVar(&intervalFlag, "interval", 10*time.Second, "Polling interval for --wait")
	}
	startCmd.Flags().StringVar(&execNameFlag, "name", "", "Execution name (defaults to a generated id)")

	for _, c := range []*cobra.Command{definitionCmd, deployCmd} {
		c.Flags().StringVar(&modeFlag, "mode", string(statemachine.ModeProduction), "Definition variant: production or interactive")
	}
	deployCmd.Flags().StringVar(&smNameFlag, "name", "docsum-batch", "State machine name when creating")
	deployCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip the confirmation prompt")
}

func sfnClient() *statemachine.Client {
	return statemachine.NewClient(sfn.NewFromConfig(clients().Config))
}

func requireStateMachine(cfg config.Config) string {
	if cfg.Resources.StateMachineARN == "" {
		log.Fatal().Str("envVar", config.EnvStateMachineARN).Msg("State machine ARN is required")
	}
	return cfg.Resources.StateMachineARN
}

func buildDefinition(cfg config.Config) *statemachine.Definition {
	fn := cfg.Resources.SummarizerFunction
	if fn == "" {
		log.Fatal().Str("envVar", config.EnvSummarizerFunction).Msg("Summarizer function is required")
	}
	mode := statemachine.Mode(modeFlag)
	policy := cfg.Batch
	if mode == statemachine.ModeInteractive {
		policy = orchestrator.InteractivePolicy()
	}
	def, err := statemachine.Build(statemachine.Options{
		Mode:                  mode,
		Policy:                policy,
		SummarizerFunctionARN: fn,
		DocumentBucket:        cfg.Resources.DocumentBucket,
		InboundPrefix:         cfg.Resources.InboundPrefix,
		DeadLetterQueueURL:    cfg.Resources.DeadLetterQueueURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build definition")
	}
	return def
}

func waitAndPrint(cmd *cobra.Command, client *statemachine.Client, execARN string) {
	exec, err := client.Wait(cmd.Context(), execARN, intervalFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed while waiting for execution")
	}
	cli.PrintExecution(os.Stdout, exec)
	if exec.Status != "SUCCEEDED" {
		os.Exit(1)
	}
}
