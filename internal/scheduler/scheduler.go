// Package scheduler fires the batch orchestrator once a day over everything
// listed under the inbound prefix, or on demand over an explicit list.
//
// The only state kept is the time of the last firing. Firing twice simply
// reprocesses whatever is listed; the audit log records the repeat.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lifeproof/docsum/internal/docstore"
	"github.com/lifeproof/docsum/internal/document"
	"github.com/lifeproof/docsum/internal/orchestrator"
)

// Defaults for the nightly run.
const (
	DefaultHour     = 22
	DefaultMinute   = 0
	DefaultLocation = "UTC"
)

// Config is the daily cadence and the listing it fires over.
type Config struct {
	Hour     int    `yaml:"hour"`
	Minute   int    `yaml:"minute"`
	Location string `yaml:"location"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
}

// DefaultConfig fires at 22:00 UTC over uploads/.
func DefaultConfig() Config {
	return Config{
		Hour:     DefaultHour,
		Minute:   DefaultMinute,
		Location: DefaultLocation,
		Prefix:   document.InboundPrefix,
	}
}

// Runner runs one batch. *orchestrator.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, refs []document.Reference) *orchestrator.BatchResult
}

// Scheduler fires Runner on a daily cadence.
type Scheduler struct {
	cfg    Config
	loc    *time.Location
	docs   docstore.Store
	runner Runner
	now    func() time.Time

	mu        sync.Mutex
	lastFired time.Time
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New validates cfg and creates a Scheduler. An empty Location means UTC
// and an empty Prefix means uploads/.
func New(cfg Config, docs docstore.Store, runner Runner, opts ...Option) (*Scheduler, error) {
	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, fmt.Errorf("invalid schedule time %02d:%02d", cfg.Hour, cfg.Minute)
	}
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}
	if cfg.Prefix == "" {
		cfg.Prefix = document.InboundPrefix
	}
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("load schedule location: %w", err)
	}
	s := &Scheduler{
		cfg:    cfg,
		loc:    loc,
		docs:   docs,
		runner: runner,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// NextFire returns the first firing time strictly after now.
func (s *Scheduler) NextFire(now time.Time) time.Time {
	local := now.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.Hour, s.cfg.Minute, 0, 0, s.loc)
	if !next.After(now) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.cfg.Hour, s.cfg.Minute, 0, 0, s.loc)
	}
	return next
}

// LastFiredAt is the start time of the most recent firing, zero if none.
func (s *Scheduler) LastFiredAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFired
}

// Run fires at every scheduled time until ctx is cancelled. A failed listing
// is logged and the loop waits for the next firing.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := s.NextFire(s.now())
		wait := next.Sub(s.now())
		log.Info().Time("nextFire", next).Dur("wait", wait).Msg("Scheduler waiting")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		if _, err := s.Fire(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Error().Err(err).Msg("Scheduled batch failed to start")
		}
	}
}

// Fire lists the inbound prefix and runs one batch over every listed key.
// Keys with unsupported suffixes are skipped and counted by the orchestrator.
func (s *Scheduler) Fire(ctx context.Context) (*orchestrator.BatchResult, error) {
	if s.cfg.Bucket == "" {
		return nil, errors.New("scheduler has no bucket to list")
	}
	keys, err := s.docs.List(ctx, s.cfg.Bucket, s.cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", s.cfg.Bucket, s.cfg.Prefix, err)
	}
	refs := make([]document.Reference, 0, len(keys))
	for _, key := range keys {
		refs = append(refs, document.Reference{Bucket: s.cfg.Bucket, Key: key})
	}
	log.Info().
		Str("bucket", s.cfg.Bucket).
		Str("prefix", s.cfg.Prefix).
		Int("listed", len(refs)).
		Msg("Scheduled batch firing")
	return s.FireWith(ctx, refs), nil
}

// FireWith runs one batch over an externally supplied list.
func (s *Scheduler) FireWith(ctx context.Context, refs []document.Reference) *orchestrator.BatchResult {
	s.mu.Lock()
	s.lastFired = s.now()
	s.mu.Unlock()
	return s.runner.Run(ctx, refs)
}
