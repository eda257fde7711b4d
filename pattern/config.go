package pattern

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Pattern identifiers accepted in Config.Pattern.
const (
	PatternSequential = "sequential"
	PatternConcurrent = "concurrent"
	PatternHandoff    = "handoff"
	PatternGroupChat  = "group_chat"
)

// Aggregation strategies for the Concurrent pattern.
const (
	AggregateMerge = "merge"
	AggregateFirst = "first"
	AggregateAll   = "all"
)

// GroupChat manager strategies.
const (
	ManagerRoundRobin = "round_robin"
	ManagerPriority   = "priority"
)

// Defaults applied by Config.WithDefaults.
const (
	DefaultMaxConcurrent      = 1
	DefaultMaxHandoffs        = 10
	DefaultMaxIterations      = 8
	DefaultTerminationKeyword = "TERMINATE"
	DefaultMaxContextBytes    = 16 * 1024
	DefaultGracePeriod        = 30 * time.Second
)

// Config carries the pattern selection plus all per-run tuning knobs. It is
// YAML-serializable so plan configurations can live in documents or files.
type Config struct {
	// Pattern selects the orchestration policy (see Pattern* constants).
	Pattern string `yaml:"pattern" json:"pattern"`

	// MaxConcurrent bounds simultaneously running steps (Concurrent).
	// Sequential, Handoff and GroupChat always run one step at a time.
	MaxConcurrent int `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`

	// FailFast cancels all non-started descendants on the first failure.
	// When false, dependents proceed with the upstream-failure sentinel.
	FailFast bool `yaml:"fail_fast,omitempty" json:"fail_fast,omitempty"`

	// Aggregation selects the Concurrent result strategy (merge/first/all).
	Aggregation string `yaml:"aggregation,omitempty" json:"aggregation,omitempty"`

	// InitialAgent names the first agent of a Handoff chain.
	InitialAgent string `yaml:"initial_agent,omitempty" json:"initial_agent,omitempty"`

	// MaxHandoffs is the hard ceiling on dynamically created handoff steps.
	MaxHandoffs int `yaml:"max_handoffs,omitempty" json:"max_handoffs,omitempty"`

	// Agents lists the GroupChat participants.
	Agents []string `yaml:"agents,omitempty" json:"agents,omitempty"`

	// Manager selects the GroupChat speaker strategy (round_robin/priority).
	Manager string `yaml:"manager,omitempty" json:"manager,omitempty"`

	// MaxIterations bounds GroupChat rounds.
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`

	// TerminationKeyword ends a GroupChat early when it appears in a turn's
	// output.
	TerminationKeyword string `yaml:"termination_keyword,omitempty" json:"termination_keyword,omitempty"`

	// MaxContextBytes bounds the prior-output context passed to a step
	// (oldest outputs dropped first).
	MaxContextBytes int `yaml:"max_context_bytes,omitempty" json:"max_context_bytes,omitempty"`

	// TimeoutPerAgent bounds each executor call; expiry fails the step with
	// a timeout error, never retried.
	TimeoutPerAgent time.Duration `yaml:"timeout_per_agent,omitempty" json:"timeout_per_agent,omitempty"`

	// MaxRetries bounds retries of idempotent capabilities on execution errors.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// RetryBackoff is the fixed delay between retry attempts.
	RetryBackoff time.Duration `yaml:"retry_backoff,omitempty" json:"retry_backoff,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler. Duration fields accept Go
// duration strings ("30s", "500ms"), which yaml.v3 does not decode natively.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var aux struct {
		Pattern            string   `yaml:"pattern"`
		MaxConcurrent      int      `yaml:"max_concurrent"`
		FailFast           bool     `yaml:"fail_fast"`
		Aggregation        string   `yaml:"aggregation"`
		InitialAgent       string   `yaml:"initial_agent"`
		MaxHandoffs        int      `yaml:"max_handoffs"`
		Agents             []string `yaml:"agents"`
		Manager            string   `yaml:"manager"`
		MaxIterations      int      `yaml:"max_iterations"`
		TerminationKeyword string   `yaml:"termination_keyword"`
		MaxContextBytes    int      `yaml:"max_context_bytes"`
		TimeoutPerAgent    string   `yaml:"timeout_per_agent"`
		MaxRetries         int      `yaml:"max_retries"`
		RetryBackoff       string   `yaml:"retry_backoff"`
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}

	c.Pattern = aux.Pattern
	c.MaxConcurrent = aux.MaxConcurrent
	c.FailFast = aux.FailFast
	c.Aggregation = aux.Aggregation
	c.InitialAgent = aux.InitialAgent
	c.MaxHandoffs = aux.MaxHandoffs
	c.Agents = aux.Agents
	c.Manager = aux.Manager
	c.MaxIterations = aux.MaxIterations
	c.TerminationKeyword = aux.TerminationKeyword
	c.MaxContextBytes = aux.MaxContextBytes
	c.MaxRetries = aux.MaxRetries

	if aux.TimeoutPerAgent != "" {
		d, err := time.ParseDuration(aux.TimeoutPerAgent)
		if err != nil {
			return fmt.Errorf("invalid timeout_per_agent: %w", err)
		}
		c.TimeoutPerAgent = d
	}
	if aux.RetryBackoff != "" {
		d, err := time.ParseDuration(aux.RetryBackoff)
		if err != nil {
			return fmt.Errorf("invalid retry_backoff: %w", err)
		}
		c.RetryBackoff = d
	}
	return nil
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Pattern == "" {
		c.Pattern = PatternSequential
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Aggregation == "" {
		c.Aggregation = AggregateAll
	}
	if c.MaxHandoffs <= 0 {
		c.MaxHandoffs = DefaultMaxHandoffs
	}
	if c.Manager == "" {
		c.Manager = ManagerRoundRobin
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.TerminationKeyword == "" {
		c.TerminationKeyword = DefaultTerminationKeyword
	}
	if c.MaxContextBytes <= 0 {
		c.MaxContextBytes = DefaultMaxContextBytes
	}
	return c
}

// Validate checks pattern-specific requirements.
func (c Config) Validate() error {
	switch c.Pattern {
	case PatternSequential, PatternConcurrent:
	case PatternHandoff:
		if c.InitialAgent == "" {
			return fmt.Errorf("handoff pattern requires initial_agent")
		}
	case PatternGroupChat:
		if len(c.Agents) == 0 {
			return fmt.Errorf("group_chat pattern requires agents")
		}
	default:
		return fmt.Errorf("unknown pattern %q", c.Pattern)
	}
	switch c.Aggregation {
	case "", AggregateMerge, AggregateFirst, AggregateAll:
	default:
		return fmt.Errorf("unknown aggregation %q", c.Aggregation)
	}
	switch c.Manager {
	case "", ManagerRoundRobin, ManagerPriority:
	default:
		return fmt.Errorf("unknown manager %q", c.Manager)
	}
	return nil
}

// ParseConfig unmarshals a YAML pattern configuration.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse pattern config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfig reads and parses a YAML pattern configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read pattern config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// New constructs the pattern instance for one plan run. The config should
// already carry defaults (WithDefaults) and pass Validate.
func New(cfg Config) (Pattern, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Pattern {
	case PatternSequential:
		return NewSequential(cfg), nil
	case PatternConcurrent:
		return NewConcurrent(cfg), nil
	case PatternHandoff:
		return NewHandoff(cfg), nil
	case PatternGroupChat:
		return NewGroupChat(cfg), nil
	default:
		return nil, fmt.Errorf("unknown pattern %q", cfg.Pattern)
	}
}
