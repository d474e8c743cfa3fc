package statemachine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	sfntypes "github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/stretchr/testify/require"
)

type fakeSFN struct {
	created  []*sfn.CreateStateMachineInput
	updated  []*sfn.UpdateStateMachineInput
	started  []*sfn.StartExecutionInput
	statuses []sfntypes.ExecutionStatus
	polls    int
	err      error
}

func (f *fakeSFN) CreateStateMachine(_ context.Context, in *sfn.CreateStateMachineInput, _ ...func(*sfn.Options)) (*sfn.CreateStateMachineOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	return &sfn.CreateStateMachineOutput{
		StateMachineArn: aws.String("arn:aws:states:us-east-1:123456789012:stateMachine:" + aws.ToString(in.Name)),
	}, nil
}

func (f *fakeSFN) UpdateStateMachine(_ context.Context, in *sfn.UpdateStateMachineInput, _ ...func(*sfn.Options)) (*sfn.UpdateStateMachineOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updated = append(f.updated, in)
	return &sfn.UpdateStateMachineOutput{}, nil
}

func (f *fakeSFN) StartExecution(_ context.Context, in *sfn.StartExecutionInput, _ ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, in)
	return &sfn.StartExecutionOutput{ExecutionArn: aws.String("arn:aws:states:us-east-1:123456789012:execution:docsum:run-1")}, nil
}

func (f *fakeSFN) DescribeExecution(_ context.Context, in *sfn.DescribeExecutionInput, _ ...func(*sfn.Options)) (*sfn.DescribeExecutionOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	status := f.statuses[min(f.polls, len(f.statuses)-1)]
	f.polls++
	start := time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC)
	out := &sfn.DescribeExecutionOutput{
		ExecutionArn: in.ExecutionArn,
		Name:         aws.String("run-1"),
		Status:       status,
		StartDate:    &start,
	}
	if status == sfntypes.ExecutionStatusSucceeded {
		stop := start.Add(time.Minute)
		out.StopDate = &stop
		out.Output = aws.String(`{"status":"NO_DOCUMENTS"}`)
	}
	return out, nil
}

func TestDeployCreatesThenUpdates(t *testing.T) {
	api := &fakeSFN{}
	c := NewClient(api)
	def, err := Build(productionOptions())
	require.NoError(t, err)

	arn, err := c.Deploy(context.Background(), DeployInput{Name: "docsum-batch", RoleARN: "arn:aws:iam::123456789012:role/sfn"}, def)
	require.NoError(t, err)
	require.Contains(t, arn, "stateMachine:docsum-batch")
	require.Len(t, api.created, 1)
	require.Equal(t, sfntypes.StateMachineTypeStandard, api.created[0].Type)
	require.Contains(t, aws.ToString(api.created[0].Definition), StateListDocuments)

	again, err := c.Deploy(context.Background(), DeployInput{StateMachineARN: arn}, def)
	require.NoError(t, err)
	require.Equal(t, arn, again)
	require.Len(t, api.updated, 1)
	require.Nil(t, api.updated[0].RoleArn)
}

func TestDeployRequiresNameAndRole(t *testing.T) {
	c := NewClient(&fakeSFN{})
	def, err := Build(productionOptions())
	require.NoError(t, err)

	_, err = c.Deploy(context.Background(), DeployInput{Name: "docsum-batch"}, def)
	require.Error(t, err)
}

func TestStartMarshalsInput(t *testing.T) {
	api := &fakeSFN{}
	c := NewClient(api)

	arn, err := c.Start(context.Background(), "arn:sm", "run-1", map[string]any{
		"documents": []map[string]string{{"bucket": "b", "key": "uploads/doc1.txt"}},
	})
	require.NoError(t, err)
	require.Contains(t, arn, "execution:docsum:run-1")

	require.Len(t, api.started, 1)
	require.Equal(t, "run-1", aws.ToString(api.started[0].Name))
	var input map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(api.started[0].Input)), &input))
	require.Contains(t, input, "documents")

	_, err = c.Start(context.Background(), "arn:sm", "", struct{}{})
	require.NoError(t, err)
	require.Nil(t, api.started[1].Name)
}

func TestStartError(t *testing.T) {
	c := NewClient(&fakeSFN{err: errors.New("ExecutionAlreadyExists")})
	_, err := c.Start(context.Background(), "arn:sm", "run-1", nil)
	require.ErrorContains(t, err, "ExecutionAlreadyExists")
}

func TestWaitPollsUntilStopped(t *testing.T) {
	api := &fakeSFN{statuses: []sfntypes.ExecutionStatus{
		sfntypes.ExecutionStatusRunning,
		sfntypes.ExecutionStatusRunning,
		sfntypes.ExecutionStatusSucceeded,
	}}
	c := NewClient(api)

	exec, err := c.Wait(context.Background(), "arn:exec", time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 3, api.polls)
	require.Equal(t, "SUCCEEDED", exec.Status)
	require.False(t, exec.Running())
	require.NotNil(t, exec.StoppedAt)
	require.Contains(t, exec.Output, "NO_DOCUMENTS")
}

func TestWaitHonoursContext(t *testing.T) {
	api := &fakeSFN{statuses: []sfntypes.ExecutionStatus{sfntypes.ExecutionStatusRunning}}
	c := NewClient(api)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	exec, err := c.Wait(ctx, "arn:exec", 5*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, exec.Running())
}
