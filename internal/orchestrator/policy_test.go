package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lifeproof/docsum/internal/summarizer"
)

func TestRetryTierDelay(t *testing.T) {
	p := ProductionPolicy()
	require.Equal(t, 2*time.Second, p.Throttle.Delay(1))
	require.Equal(t, 4*time.Second, p.Throttle.Delay(2))
	require.Equal(t, 16*time.Second, p.Throttle.Delay(4))
	require.Equal(t, 5*time.Second, p.Transient.Delay(1))
	require.Equal(t, 7500*time.Millisecond, p.Transient.Delay(2))
	require.Equal(t, 2*time.Second, p.Throttle.Delay(0))
	require.Equal(t, 4, p.Throttle.Retries())
	require.Equal(t, 1, p.Transient.Retries())
}

func TestPolicies(t *testing.T) {
	require.Equal(t, 50, ProductionPolicy().MaxConcurrency)
	require.Equal(t, 6*time.Hour, ProductionPolicy().Timeout)
	require.Equal(t, 5, InteractivePolicy().MaxConcurrency)
	require.Equal(t, ProductionPolicy().Throttle, InteractivePolicy().Throttle)
}

func TestTierFor(t *testing.T) {
	p := ProductionPolicy()

	tier, ok := p.TierFor(summarizer.KindModelThrottled)
	require.True(t, ok)
	require.Equal(t, "throttle", tier.Name)

	tier, ok = p.TierFor(summarizer.KindTimeout)
	require.True(t, ok)
	require.Equal(t, "throttle", tier.Name)

	tier, ok = p.TierFor(summarizer.KindStorage)
	require.True(t, ok)
	require.Equal(t, "transient", tier.Name)

	_, ok = p.TierFor(summarizer.KindEmptyDocument)
	require.False(t, ok)
}

func TestPolicyDefaults(t *testing.T) {
	p := Policy{MaxConcurrency: 7}.WithDefaults()
	require.Equal(t, 7, p.MaxConcurrency)
	require.Equal(t, ProductionPolicy().Throttle, p.Throttle)
	require.Equal(t, ProductionPolicy().Timeout, p.Timeout)
}

func TestItemStateTransitions(t *testing.T) {
	legal := [][2]ItemState{
		{StatePending, StateInProgress},
		{StateInProgress, StateSucceeded},
		{StateInProgress, StateFailedRetrying},
		{StateFailedRetrying, StateInProgress},
		{StateInProgress, StateFailedTerminal},
		{StatePending, StateTimedOut},
		{StateFailedRetrying, StateTimedOut},
	}
	for _, tr := range legal {
		s := tr[0]
		require.NoError(t, s.Transition(tr[1]), "%s -> %s", tr[0], tr[1])
		require.Equal(t, tr[1], s)
	}

	illegal := [][2]ItemState{
		{StatePending, StateSucceeded},
		{StateSucceeded, StateInProgress},
		{StateFailedTerminal, StateInProgress},
		{StateTimedOut, StateSucceeded},
		{StateFailedRetrying, StateSucceeded},
	}
	for _, tr := range illegal {
		s := tr[0]
		require.Error(t, s.Transition(tr[1]), "%s -> %s", tr[0], tr[1])
		require.Equal(t, tr[0], s)
	}

	for _, s := range []ItemState{StateSucceeded, StateFailedTerminal, StateTimedOut} {
		require.True(t, s.Terminal())
	}
	for _, s := range []ItemState{StatePending, StateInProgress, StateFailedRetrying} {
		require.False(t, s.Terminal())
	}
}
