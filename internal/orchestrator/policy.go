package orchestrator

import (
	"math"
	"time"

	"github.com/lifeproof/docsum/internal/summarizer"
)

// RetryTier is one retrier: an error class with its own attempt limit and
// exponential backoff. MaxAttempts counts total invocations, first one
// included, so MaxAttempts 2 means one retry.
type RetryTier struct {
	Name        string        `yaml:"name" json:"name"`
	Interval    time.Duration `yaml:"interval" json:"interval"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BackoffRate float64       `yaml:"backoff_rate" json:"backoff_rate"`
}

// Retries is the number of retries after the first invocation.
func (t RetryTier) Retries() int {
	if t.MaxAttempts <= 1 {
		return 0
	}
	return t.MaxAttempts - 1
}

// Delay returns the wait before retry n (1-based): Interval * BackoffRate^(n-1).
func (t RetryTier) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	rate := t.BackoffRate
	if rate < 1 {
		rate = 1
	}
	return time.Duration(float64(t.Interval) * math.Pow(rate, float64(n-1)))
}

// Policy is the fan-out and retry configuration of a batch. The same values
// render the Step Functions definition, so in-process and managed runs
// retry identically.
type Policy struct {
	MaxConcurrency int           `yaml:"max_concurrency" json:"max_concurrency"`
	Throttle       RetryTier     `yaml:"throttle" json:"throttle"`
	Transient      RetryTier     `yaml:"transient" json:"transient"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
}

// ProductionPolicy is the nightly batch: 50 in flight, 6 hour ceiling.
func ProductionPolicy() Policy {
	return Policy{
		MaxConcurrency: 50,
		Throttle: RetryTier{
			Name:        "throttle",
			Interval:    2 * time.Second,
			MaxAttempts: 5,
			BackoffRate: 2.0,
		},
		Transient: RetryTier{
			Name:        "transient",
			Interval:    5 * time.Second,
			MaxAttempts: 2,
			BackoffRate: 1.5,
		},
		Timeout: 6 * time.Hour,
	}
}

// InteractivePolicy is the small on-demand mode: 5 in flight, 1 hour ceiling.
func InteractivePolicy() Policy {
	p := ProductionPolicy()
	p.MaxConcurrency = 5
	p.Timeout = time.Hour
	return p
}

// TierFor returns the retrier for a failure kind. Terminal kinds have none.
func (p Policy) TierFor(kind summarizer.Kind) (RetryTier, bool) {
	switch kind.Class() {
	case summarizer.ClassThrottle:
		return p.Throttle, true
	case summarizer.ClassTransient:
		return p.Transient, true
	}
	return RetryTier{}, false
}

// WithDefaults fills zero fields from ProductionPolicy.
func (p Policy) WithDefaults() Policy {
	d := ProductionPolicy()
	if p.MaxConcurrency <= 0 {
		p.MaxConcurrency = d.MaxConcurrency
	}
	if p.Throttle.MaxAttempts <= 0 {
		p.Throttle = d.Throttle
	}
	if p.Transient.MaxAttempts <= 0 {
		p.Transient = d.Transient
	}
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	return p
}
