// Package config provides configuration loading and validation for tracediff.
package config

import (
	"time"

	"github.com/ccollicutt/tracediff/pkg/trace"
)

// Config is the root configuration structure loaded from YAML or TOML.
type Config struct {
	// Actual is the path of the trace under test (e.g. an emulator's output.log).
	Actual string `yaml:"actual" toml:"actual" json:"actual"`

	// Expected is the path of the reference trace (e.g. nestest.log).
	Expected string `yaml:"expected" toml:"expected" json:"expected"`

	Rule RuleConfig `yaml:"rule" toml:"rule" json:"rule"`

	// OnMalformed decides what happens to a line pair with too few tokens.
	OnMalformed MalformedPolicy `yaml:"on_malformed,omitempty" toml:"on_malformed,omitempty" json:"on_malformed,omitempty"`

	// CheckLength reports streams of different lengths instead of silently
	// ignoring the trailing lines of the longer one.
	CheckLength bool `yaml:"check_length,omitempty" toml:"check_length,omitempty" json:"check_length,omitempty"`

	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" toml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

// RuleType represents the comparison rule variant.
type RuleType string

const (
	// RuleTypeTail compares only one tail token, the last by default.
	RuleTypeTail RuleType = "tail"
	// RuleTypePositional compares a key token plus one designated field.
	RuleTypePositional RuleType = "positional"
	// RuleTypeFields compares a list of token indices on both sides.
	RuleTypeFields RuleType = "fields"
)

// RuleConfig defines the comparison rule.
// Token indices may be negative to count from the end of the line.
type RuleConfig struct {
	Name        string `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`
	Type        string `yaml:"type" toml:"type" json:"type"` // tail, positional, fields
	Description string `yaml:"description,omitempty" toml:"description,omitempty" json:"description,omitempty"`

	// KeyField is the token identifying the line (usually the address).
	KeyField int `yaml:"key_field,omitempty" toml:"key_field,omitempty" json:"key_field,omitempty"`

	// Fields are the compared token indices (tail and fields rules).
	Fields []int `yaml:"fields,omitempty" toml:"fields,omitempty" json:"fields,omitempty"`

	// Positional rule fields
	ActualField     *int               `yaml:"actual_field,omitempty" toml:"actual_field,omitempty" json:"actual_field,omitempty"`
	ExpectedField   *int               `yaml:"expected_field,omitempty" toml:"expected_field,omitempty" json:"expected_field,omitempty"`
	ExpectedColumns *trace.ColumnRange `yaml:"expected_columns,omitempty" toml:"expected_columns,omitempty" json:"expected_columns,omitempty"`

	// Diagnostic tokens printed for a mismatch (tail and positional rules).
	ActualDiagnostics   []int `yaml:"actual_diagnostics,omitempty" toml:"actual_diagnostics,omitempty" json:"actual_diagnostics,omitempty"`
	ExpectedDiagnostics []int `yaml:"expected_diagnostics,omitempty" toml:"expected_diagnostics,omitempty" json:"expected_diagnostics,omitempty"`
}

// RuleTypeEnum returns the rule type as a RuleType enum.
func (r *RuleConfig) RuleTypeEnum() RuleType {
	return RuleType(r.Type)
}

// UsesColumns reports whether the expected trace must be loaded with
// fixed-column extraction.
func (r *RuleConfig) UsesColumns() bool {
	return r.RuleTypeEnum() == RuleTypePositional && r.ExpectedColumns != nil
}

// ExpectedLoadOptions returns the trace options the expected stream must be
// loaded with for this rule.
func (r *RuleConfig) ExpectedLoadOptions() []trace.Option {
	if r.UsesColumns() {
		return []trace.Option{trace.WithColumn(*r.ExpectedColumns)}
	}
	return nil
}

// MalformedPolicy decides how lines with too few tokens are handled.
type MalformedPolicy string

const (
	// MalformedReport emits a malformed-line mismatch and continues (default).
	MalformedReport MalformedPolicy = "report"
	// MalformedSkip ignores the line pair.
	MalformedSkip MalformedPolicy = "skip"
	// MalformedFail aborts the comparison.
	MalformedFail MalformedPolicy = "fail"
)

// WebhookTrigger determines when a webhook fires.
type WebhookTrigger string

const (
	// WebhookTriggerOnMismatch fires only when mismatches are found (default).
	WebhookTriggerOnMismatch WebhookTrigger = "on_mismatch"
	// WebhookTriggerAlways fires after every comparison.
	WebhookTriggerAlways WebhookTrigger = "always"
	// WebhookTriggerNever disables the webhook.
	WebhookTriggerNever WebhookTrigger = "never"
)

// WebhookConfig defines a webhook endpoint for sending comparison reports.
type WebhookConfig struct {
	// Name is an optional identifier for the webhook.
	Name string `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`

	// URL is the webhook endpoint (required).
	URL string `yaml:"url" toml:"url" json:"url"`

	// Token is an optional bearer token for authentication.
	// ${VAR} and $VAR are expanded from the environment.
	Token string `yaml:"token,omitempty" toml:"token,omitempty" json:"-"`

	// Trigger determines when the webhook fires.
	// Defaults to "on_mismatch" if not specified.
	Trigger WebhookTrigger `yaml:"trigger,omitempty" toml:"trigger,omitempty" json:"trigger,omitempty"`

	// Timeout is the HTTP request timeout.
	// Defaults to 10s if not specified.
	Timeout Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Duration is a time.Duration that decodes from strings such as "10s" in
// both YAML and TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
