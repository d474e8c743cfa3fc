package statemachine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	sfntypes "github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/rs/zerolog/log"
)

// SFNAPI is the subset of the Step Functions client used here.
type SFNAPI interface {
	CreateStateMachine(ctx context.Context, params *sfn.CreateStateMachineInput, optFns ...func(*sfn.Options)) (*sfn.CreateStateMachineOutput, error)
	UpdateStateMachine(ctx context.Context, params *sfn.UpdateStateMachineInput, optFns ...func(*sfn.Options)) (*sfn.UpdateStateMachineOutput, error)
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
	DescribeExecution(ctx context.Context, params *sfn.DescribeExecutionInput, optFns ...func(*sfn.Options)) (*sfn.DescribeExecutionOutput, error)
}

var _ SFNAPI = (*sfn.Client)(nil)

// Client deploys and runs the state machine.
type Client struct {
	api SFNAPI
}

// NewClient wraps a Step Functions client.
func NewClient(api SFNAPI) *Client {
	return &Client{api: api}
}

// DeployInput names the state machine to create or update.
type DeployInput struct {
	// StateMachineARN updates an existing machine when set; otherwise a new
	// STANDARD machine called Name is created.
	StateMachineARN string
	Name            string
	RoleARN         string
}

// Deploy creates or updates the state machine and returns its ARN.
func (c *Client) Deploy(ctx context.Context, in DeployInput, def *Definition) (string, error) {
	body, err := def.JSON()
	if err != nil {
		return "", err
	}

	if in.StateMachineARN != "" {
		upd := &sfn.UpdateStateMachineInput{
			StateMachineArn: aws.String(in.StateMachineARN),
			Definition:      aws.String(body),
		}
		if in.RoleARN != "" {
			upd.RoleArn = aws.String(in.RoleARN)
		}
		if _, err := c.api.UpdateStateMachine(ctx, upd); err != nil {
			return "", fmt.Errorf("update state machine %s: %w", in.StateMachineARN, err)
		}
		log.Info().Str("stateMachineArn", in.StateMachineARN).Msg("State machine updated")
		return in.StateMachineARN, nil
	}

	if in.Name == "" || in.RoleARN == "" {
		return "", errors.New("name and role ARN are required to create a state machine")
	}
	out, err := c.api.CreateStateMachine(ctx, &sfn.CreateStateMachineInput{
		Name:       aws.String(in.Name),
		Definition: aws.String(body),
		RoleArn:    aws.String(in.RoleARN),
		Type:       sfntypes.StateMachineTypeStandard,
	})
	if err != nil {
		return "", fmt.Errorf("create state machine %s: %w", in.Name, err)
	}
	arn := aws.ToString(out.StateMachineArn)
	log.Info().Str("stateMachineArn", arn).Msg("State machine created")
	return arn, nil
}

// Start begins an execution with input marshalled as JSON. name may be
// empty, in which case Step Functions generates one.
func (c *Client) Start(ctx context.Context, stateMachineARN, name string, input any) (string, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshal execution input: %w", err)
	}
	in := &sfn.StartExecutionInput{
		StateMachineArn: aws.String(stateMachineARN),
		Input:           aws.String(string(payload)),
	}
	if name != "" {
		in.Name = aws.String(name)
	}
	out, err := c.api.StartExecution(ctx, in)
	if err != nil {
		return "", fmt.Errorf("start execution of %s: %w", stateMachineARN, err)
	}
	arn := aws.ToString(out.ExecutionArn)
	log.Info().Str("executionArn", arn).Str("name", name).Msg("Execution started")
	return arn, nil
}

// Execution is a snapshot of one execution.
type Execution struct {
	ARN       string     `json:"execution_arn"`
	Name      string     `json:"name,omitempty"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Output    string     `json:"output,omitempty"`
	Error     string     `json:"error,omitempty"`
	Cause     string     `json:"cause,omitempty"`
}

// Running reports whether the execution has not reached a final status.
func (e *Execution) Running() bool {
	return e.Status == string(sfntypes.ExecutionStatusRunning) ||
		e.Status == string(sfntypes.ExecutionStatusPendingRedrive)
}

// Status describes an execution.
func (c *Client) Status(ctx context.Context, executionARN string) (*Execution, error) {
	out, err := c.api.DescribeExecution(ctx, &sfn.DescribeExecutionInput{
		ExecutionArn: aws.String(executionARN),
	})
	if err != nil {
		return nil, fmt.Errorf("describe execution %s: %w", executionARN, err)
	}
	return &Execution{
		ARN:       executionARN,
		Name:      aws.ToString(out.Name),
		Status:    string(out.Status),
		StartedAt: aws.ToTime(out.StartDate),
		StoppedAt: out.StopDate,
		Output:    aws.ToString(out.Output),
		Error:     aws.ToString(out.Error),
		Cause:     aws.ToString(out.Cause),
	}, nil
}

// Wait polls Status every interval until the execution stops or ctx ends.
func (c *Client) Wait(ctx context.Context, executionARN string, interval time.Duration) (*Execution, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		exec, err := c.Status(ctx, executionARN)
		if err != nil {
			return nil, err
		}
		if !exec.Running() {
			return exec, nil
		}
		log.Debug().Str("executionArn", executionARN).Str("status", exec.Status).Msg("Execution still running")
		select {
		case <-ctx.Done():
			return exec, ctx.Err()
		case <-ticker.C:
		}
	}
}
