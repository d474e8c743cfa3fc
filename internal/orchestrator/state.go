package orchestrator

import "fmt"

// ItemState is the lifecycle of one document inside a batch.
type ItemState string

const (
	StatePending        ItemState = "PENDING"
	StateInProgress     ItemState = "IN_PROGRESS"
	StateSucceeded      ItemState = "SUCCEEDED"
	StateFailedRetrying ItemState = "FAILED_RETRYING"
	StateFailedTerminal ItemState = "FAILED_TERMINAL"
	StateTimedOut       ItemState = "TIMED_OUT"
)

var transitions = map[ItemState][]ItemState{
	StatePending:        {StateInProgress, StateTimedOut},
	StateInProgress:     {StateSucceeded, StateFailedRetrying, StateFailedTerminal, StateTimedOut},
	StateFailedRetrying: {StateInProgress, StateTimedOut},
}

// Terminal reports whether no further transition is possible.
func (s ItemState) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether s may move to next.
func (s ItemState) CanTransition(next ItemState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates and performs s -> next.
func (s *ItemState) Transition(next ItemState) error {
	if !s.CanTransition(next) {
		return fmt.Errorf("illegal item transition %s -> %s", *s, next)
	}
	*s = next
	return nil
}
