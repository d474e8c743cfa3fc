package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lifeproof/docsum/internal/cli"
	"github.com/lifeproof/docsum/internal/document"
	"github.com/lifeproof/docsum/internal/orchestrator"
	"github.com/lifeproof/docsum/internal/scheduler"
)

var (
	targetFlag   string
	ruleRoleFlag string
	ruleNameFlag string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run or install the nightly batch schedule",
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Fire the batch in-process every night until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		docs := docStore()
		worker := newWorker(&cfg, docs)
		orch := newOrchestrator(cfg, worker, cfg.Batch)

		runner := reportingRunner{orch: orch}
		sched, err := scheduler.New(cfg.Schedule, docs, runner)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid schedule configuration")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info().
			Str("bucket", sched.Config().Bucket).
			Str("prefix", sched.Config().Prefix).
			Time("nextFire", sched.NextFire(time.Now())).
			Msg("Scheduler started")
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("Scheduler stopped")
		}
		log.Info().Msg("Scheduler stopped")
	},
}

var scheduleInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Create or update the EventBridge rule for the nightly batch",
	Long: `install points a cron rule at --target (the state machine or the batch
Lambda). Each firing sends {"trigger":"scheduled","timestamp":<event time>}.
Targeting a state machine requires --role.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if targetFlag == "" {
			targetFlag = cfg.Resources.StateMachineARN
		}
		if ruleRoleFlag == "" {
			ruleRoleFlag = cfg.Resources.StateMachineRoleARN
		}

		sched, err := scheduler.New(cfg.Schedule, nil, nil)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid schedule configuration")
		}
		question := fmt.Sprintf("Install %s (%s) targeting %s?", ruleNameOrDefault(), sched.CronExpression(), targetFlag)
		if !yesFlag && !cli.Confirm(os.Stdin, os.Stdout, question) {
			fmt.Println("Aborted. No rule was changed.")
			return
		}

		arn, err := sched.Install(cmd.Context(), eventbridge.NewFromConfig(clients().Config), scheduler.InstallInput{
			RuleName:  ruleNameFlag,
			TargetARN: targetFlag,
			RoleARN:   ruleRoleFlag,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to install schedule")
		}
		fmt.Println(arn)
	},
}

func init() {
	scheduleInstallCmd.Flags().StringVar(&targetFlag, "target", "", "ARN the rule starts (defaults to STATE_MACHINE_ARN)")
	scheduleInstallCmd.Flags().StringVar(&ruleRoleFlag, "role", "", "IAM role EventBridge assumes (defaults to STATE_MACHINE_ROLE_ARN)")
	scheduleInstallCmd.Flags().StringVar(&ruleNameFlag, "rule", scheduler.RuleName, "EventBridge rule name")
	scheduleInstallCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip the confirmation prompt")

	scheduleCmd.AddCommand(scheduleRunCmd, scheduleInstallCmd)
}

func ruleNameOrDefault() string {
	if ruleNameFlag == "" {
		return scheduler.RuleName
	}
	return ruleNameFlag
}

// reportingRunner prints each nightly batch report as it completes.
type reportingRunner struct {
	orch *orchestrator.Orchestrator
}

func (r reportingRunner) Run(ctx context.Context, refs []document.Reference) *orchestrator.BatchResult {
	result := r.orch.Run(ctx, refs)
	cli.PrintBatchReport(os.Stdout, result)
	return result
}
