package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/ccollicutt/tracediff/pkg/trace"
)

// Default values for configuration.
const (
	DefaultActual         = "output.log"
	DefaultExpected       = "nestest.log"
	DefaultRuleType       = RuleTypeTail
	DefaultWebhookTimeout = 10 * time.Second

	// DefaultActualField is the token compared by positional rules.
	DefaultActualField = 3
)

// DefaultExpectedColumns is the nestest.log column range holding the
// accumulator register ("A:00").
var DefaultExpectedColumns = trace.ColumnRange{Start: 48, End: 52}

// Default diagnostic tokens per rule type.
var (
	defaultTailDiagnostics             = []int{-2}
	defaultPositionalActualDiagnostics = []int{2, 3}
	defaultPositionalExpectedDiags     = []int{0}
)

// EnvPrefix is the prefix of all environment overrides, e.g. TRACEDIFF_ACTUAL.
const EnvPrefix = "tracediff"

// Env holds the environment overrides.
type Env struct {
	Actual      string `envconfig:"ACTUAL"`
	Expected    string `envconfig:"EXPECTED"`
	Rule        string `envconfig:"RULE"`
	OnMalformed string `envconfig:"ON_MALFORMED"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	LogFormat   string `envconfig:"LOG_FORMAT"`
}

// LoadEnv reads TRACEDIFF_* environment variables.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &env, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Actual:      DefaultActual,
		Expected:    DefaultExpected,
		OnMalformed: MalformedReport,
		Rule: RuleConfig{
			Type: string(DefaultRuleType),
		},
	}
}

// ApplyEnvironmentOverrides applies TRACEDIFF_* environment variables to the config.
func (c *Config) ApplyEnvironmentOverrides() error {
	env, err := LoadEnv()
	if err != nil {
		return err
	}
	c.applyEnv(env)
	return nil
}

func (c *Config) applyEnv(env *Env) {
	if env.Actual != "" {
		c.Actual = env.Actual
	}
	if env.Expected != "" {
		c.Expected = env.Expected
	}
	if env.Rule != "" {
		c.Rule.Type = env.Rule
	}
	if env.OnMalformed != "" {
		c.OnMalformed = MalformedPolicy(env.OnMalformed)
	}
}
