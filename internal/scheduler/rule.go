package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// RuleName is the default EventBridge rule for the nightly batch.
const RuleName = "docsum-nightly-batch"

// scheduledInputTemplate stamps each firing with the rule's event time.
const scheduledInputTemplate = `{"trigger":"scheduled","timestamp":<time>}`

// CronExpression renders the schedule as an EventBridge cron. Rules run in
// UTC, so a non-UTC location is converted with its offset on the date of now.
func (s *Scheduler) CronExpression() string {
	local := s.now().In(s.loc)
	fire := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.Hour, s.cfg.Minute, 0, 0, s.loc).UTC()
	return fmt.Sprintf("cron(%d %d * * ? *)", fire.Minute(), fire.Hour())
}

// RuleAPI is the subset of the EventBridge client used to install the rule.
type RuleAPI interface {
	PutRule(ctx context.Context, params *eventbridge.PutRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutRuleOutput, error)
	PutTargets(ctx context.Context, params *eventbridge.PutTargetsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutTargetsOutput, error)
}

var _ RuleAPI = (*eventbridge.Client)(nil)

// InstallInput names the rule and what it starts.
type InstallInput struct {
	RuleName  string
	TargetARN string
	RoleARN   string
}

// Install creates or updates the nightly rule and points it at TargetARN
// (the state machine or the batch Lambda). It returns the rule ARN.
func (s *Scheduler) Install(ctx context.Context, api RuleAPI, in InstallInput) (string, error) {
	if in.RuleName == "" {
		in.RuleName = RuleName
	}
	if in.TargetARN == "" {
		return "", fmt.Errorf("install rule %s: target ARN is required", in.RuleName)
	}
	expr := s.CronExpression()

	rule, err := api.PutRule(ctx, &eventbridge.PutRuleInput{
		Name:               aws.String(in.RuleName),
		ScheduleExpression: aws.String(expr),
		State:              eventbridgetypes.RuleStateEnabled,
		Description:        aws.String("Nightly underwriting document summarization batch"),
	})
	if err != nil {
		return "", fmt.Errorf("put rule %s: %w", in.RuleName, err)
	}

	target := eventbridgetypes.Target{
		Id:  aws.String("docsum-batch"),
		Arn: aws.String(in.TargetARN),
		InputTransformer: &eventbridgetypes.InputTransformer{
			InputPathsMap: map[string]string{"time": "$.time"},
			InputTemplate: aws.String(scheduledInputTemplate),
		},
	}
	if in.RoleARN != "" {
		target.RoleArn = aws.String(in.RoleARN)
	}
	out, err := api.PutTargets(ctx, &eventbridge.PutTargetsInput{
		Rule:    aws.String(in.RuleName),
		Targets: []eventbridgetypes.Target{target},
	})
	if err != nil {
		return "", fmt.Errorf("put targets on %s: %w", in.RuleName, err)
	}
	if out.FailedEntryCount > 0 {
		entry := out.FailedEntries[0]
		return "", fmt.Errorf("put targets on %s: %s: %s", in.RuleName, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
	}

	arn := aws.ToString(rule.RuleArn)
	log.Info().
		Str("rule", in.RuleName).
		Str("ruleArn", arn).
		Str("schedule", expr).
		Str("target", in.TargetARN).
		Msg("Nightly schedule installed")
	return arn, nil
}
