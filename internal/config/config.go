// Package config assembles the pipeline configuration from defaults, an
// optional YAML file and environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lifeproof/docsum/internal/document"
	"github.com/lifeproof/docsum/internal/logging"
	"github.com/lifeproof/docsum/internal/orchestrator"
	"github.com/lifeproof/docsum/internal/scheduler"
	"github.com/lifeproof/docsum/internal/summarizer"
)

// Environment variables.
const (
	EnvDocumentBucket     = "BUCKET_NAME"
	EnvSummaryBucket      = "SUMMARY_BUCKET"
	EnvFailedBucket       = "FAILED_BUCKET"
	EnvInboundPrefix      = "INBOUND_PREFIX"
	EnvTrackingTable      = "TRACKING_TABLE"
	EnvModelID            = "MODEL_ID"
	EnvFastModel          = "FAST_MODEL"
	EnvCapableModel       = "DEFAULT_MODEL"
	EnvModelParam         = "SSM_MODEL_ID_PARAM"
	EnvTokenThreshold     = "TOKEN_THRESHOLD"
	EnvInputCharCap       = "INPUT_CHAR_CAP"
	EnvMaxOutputTokens    = "MAX_OUTPUT_TOKENS"
	EnvMaxConcurrency     = "BATCH_MAX_CONCURRENCY"
	EnvBatchTimeout       = "BATCH_TIMEOUT"
	EnvDeadLetterQueueURL = "DEAD_LETTER_QUEUE_URL"
	EnvStateMachineARN    = "STATE_MACHINE_ARN"
	EnvStateMachineRole   = "STATE_MACHINE_ROLE_ARN"
	EnvEventBusName       = "EVENT_BUS_NAME"
	EnvSummarizerFunction = "SUMMARIZER_FUNCTION_NAME"
	EnvScheduleHour       = "SCHEDULE_HOUR"
	EnvScheduleMinute     = "SCHEDULE_MINUTE"
	EnvScheduleLocation   = "SCHEDULE_LOCATION"
)

// Config is the whole pipeline configuration.
type Config struct {
	Worker    summarizer.Config   `yaml:"worker"`
	Batch     orchestrator.Policy `yaml:"batch"`
	Schedule  scheduler.Config    `yaml:"schedule"`
	Resources Resources           `yaml:"resources"`
}

// Resources names the cloud resources the pipeline talks to. Empty values
// disable the corresponding integration where that is meaningful.
type Resources struct {
	DocumentBucket      string `yaml:"document_bucket"`
	InboundPrefix       string `yaml:"inbound_prefix"`
	TrackingTable       string `yaml:"tracking_table"`
	DeadLetterQueueURL  string `yaml:"dead_letter_queue_url"`
	StateMachineARN     string `yaml:"state_machine_arn"`
	StateMachineRoleARN string `yaml:"state_machine_role_arn"`
	EventBusName        string `yaml:"event_bus_name"`
	SummarizerFunction  string `yaml:"summarizer_function"`
	ModelParam          string `yaml:"model_param"`
}

// Default is the production configuration with no resources bound.
func Default() Config {
	return Config{
		Worker:    summarizer.DefaultConfig(),
		Batch:     orchestrator.ProductionPolicy(),
		Schedule:  scheduler.DefaultConfig(),
		Resources: Resources{InboundPrefix: document.InboundPrefix},
	}
}

// Load returns Default overlaid with the environment.
func Load() (Config, error) {
	c := Default()
	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	c.link()
	return c, nil
}

// LoadFile returns Default overlaid with the YAML file at path, then with
// the environment.
func LoadFile(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	c.link()
	return c, nil
}

// Validate checks what every deployment needs.
func (c Config) Validate() error {
	var errs []error
	if c.Batch.MaxConcurrency < 0 {
		errs = append(errs, errors.New("batch max_concurrency must not be negative"))
	}
	if c.Worker.TokenThreshold < 0 || c.Worker.InputCharCap < 0 || c.Worker.MaxOutputTokens < 0 {
		errs = append(errs, errors.New("worker limits must not be negative"))
	}
	if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 || c.Schedule.Minute < 0 || c.Schedule.Minute > 59 {
		errs = append(errs, fmt.Errorf("invalid schedule time %02d:%02d", c.Schedule.Hour, c.Schedule.Minute))
	}
	return errors.Join(errs...)
}

// link fills values derived from other fields.
func (c *Config) link() {
	if c.Resources.InboundPrefix == "" {
		c.Resources.InboundPrefix = document.InboundPrefix
	}
	if c.Schedule.Bucket == "" {
		c.Schedule.Bucket = c.Resources.DocumentBucket
	}
	if c.Schedule.Prefix == "" || c.Schedule.Prefix == document.InboundPrefix {
		c.Schedule.Prefix = c.Resources.InboundPrefix
	}
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		*dst = logging.EnvOrDefault(name, *dst)
	}
	str(EnvDocumentBucket, &c.Resources.DocumentBucket)
	str(EnvInboundPrefix, &c.Resources.InboundPrefix)
	str(EnvTrackingTable, &c.Resources.TrackingTable)
	str(EnvDeadLetterQueueURL, &c.Resources.DeadLetterQueueURL)
	str(EnvStateMachineARN, &c.Resources.StateMachineARN)
	str(EnvStateMachineRole, &c.Resources.StateMachineRoleARN)
	str(EnvEventBusName, &c.Resources.EventBusName)
	str(EnvSummarizerFunction, &c.Resources.SummarizerFunction)
	str(EnvModelParam, &c.Resources.ModelParam)

	str(EnvSummaryBucket, &c.Worker.SummaryBucket)
	str(EnvFailedBucket, &c.Worker.FailedBucket)
	str(EnvModelID, &c.Worker.FixedModelOverride)
	str(EnvFastModel, &c.Worker.FastModelID)
	str(EnvCapableModel, &c.Worker.CapableModelID)
	str(EnvScheduleLocation, &c.Schedule.Location)

	var errs []error
	for name, dst := range map[string]*int{
		EnvTokenThreshold:  &c.Worker.TokenThreshold,
		EnvInputCharCap:    &c.Worker.InputCharCap,
		EnvMaxOutputTokens: &c.Worker.MaxOutputTokens,
		EnvMaxConcurrency:  &c.Batch.MaxConcurrency,
		EnvScheduleHour:    &c.Schedule.Hour,
		EnvScheduleMinute:  &c.Schedule.Minute,
	} {
		if err := envInt(name, dst); err != nil {
			errs = append(errs, err)
		}
	}
	if v := os.Getenv(EnvBatchTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvBatchTimeout, err))
		} else {
			c.Batch.Timeout = d
		}
	}
	return errors.Join(errs...)
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}
