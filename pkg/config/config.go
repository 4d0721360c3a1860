package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file, applies environment overrides and
// validates the result.
func Load(_ context.Context, path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := Decode(path, cfg); err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Decode reads the file at path into cfg. Files ending in .toml are decoded
// as TOML; everything else as YAML. Fields absent from the file keep their
// current values.
func Decode(path string, cfg *Config) error {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided config path is expected
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	}

	return nil
}

// Validate checks a configuration for errors and fills in rule defaults.
func Validate(cfg *Config) error {
	if cfg.Actual == "" {
		return errors.New("actual: path is required")
	}
	if cfg.Expected == "" {
		return errors.New("expected: path is required")
	}

	switch cfg.OnMalformed {
	case "":
		cfg.OnMalformed = MalformedReport
	case MalformedReport, MalformedSkip, MalformedFail:
		// Valid
	default:
		return fmt.Errorf("on_malformed: invalid policy %q (must be report, skip, or fail)", cfg.OnMalformed)
	}

	if err := ValidateRule(&cfg.Rule); err != nil {
		return fmt.Errorf("rule (%s): %w", cfg.Rule.Name, err)
	}

	// Webhooks are optional, but validate if present
	for i := range cfg.Webhooks {
		if err := validateWebhook(&cfg.Webhooks[i]); err != nil {
			name := cfg.Webhooks[i].Name
			if name == "" {
				name = cfg.Webhooks[i].URL
			}
			return fmt.Errorf("webhooks[%d] (%s): %w", i, name, err)
		}
	}

	return nil
}

// ValidateRule checks a rule and fills in the defaults of its type.
func ValidateRule(rule *RuleConfig) error {
	if rule.Type == "" {
		rule.Type = string(DefaultRuleType)
	}
	if rule.Name == "" {
		rule.Name = rule.Type
	}

	switch rule.RuleTypeEnum() {
	case RuleTypeTail:
		return validateTailRule(rule)
	case RuleTypePositional:
		return validatePositionalRule(rule)
	case RuleTypeFields:
		return validateFieldsRule(rule)
	default:
		return fmt.Errorf("invalid type %q (must be tail, positional, or fields)", rule.Type)
	}
}

func validateTailRule(rule *RuleConfig) error {
	if len(rule.Fields) == 0 {
		rule.Fields = []int{-1}
	}
	if len(rule.Fields) != 1 {
		return fmt.Errorf("tail rules compare exactly one field, got %d", len(rule.Fields))
	}

	if len(rule.ActualDiagnostics) == 0 {
		rule.ActualDiagnostics = cloneInts(defaultTailDiagnostics)
	}
	if len(rule.ExpectedDiagnostics) == 0 {
		rule.ExpectedDiagnostics = cloneInts(defaultTailDiagnostics)
	}

	return nil
}

func validatePositionalRule(rule *RuleConfig) error {
	if rule.ActualField == nil {
		v := DefaultActualField
		rule.ActualField = &v
	}

	switch {
	case rule.ExpectedField != nil && rule.ExpectedColumns != nil:
		return errors.New("expected_field and expected_columns are mutually exclusive")
	case rule.ExpectedField == nil && rule.ExpectedColumns == nil:
		cr := DefaultExpectedColumns
		rule.ExpectedColumns = &cr
	}

	if rule.ExpectedColumns != nil {
		if err := rule.ExpectedColumns.Validate(); err != nil {
			return fmt.Errorf("expected_columns: %w", err)
		}
	}

	if len(rule.ActualDiagnostics) == 0 {
		rule.ActualDiagnostics = cloneInts(defaultPositionalActualDiagnostics)
	}
	if len(rule.ExpectedDiagnostics) == 0 {
		rule.ExpectedDiagnostics = cloneInts(defaultPositionalExpectedDiags)
	}

	return nil
}

func validateFieldsRule(rule *RuleConfig) error {
	if len(rule.Fields) == 0 {
		return errors.New("fields is required for fields rules")
	}

	seen := make(map[int]bool, len(rule.Fields))
	for _, f := range rule.Fields {
		if seen[f] {
			return fmt.Errorf("field %d listed more than once", f)
		}
		seen[f] = true
	}

	return nil
}

func validateWebhook(wh *WebhookConfig) error {
	if wh.URL == "" {
		return errors.New("url is required")
	}

	u, err := url.Parse(wh.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("url must have a host")
	}

	wh.Token = expandEnvVar(wh.Token)

	switch wh.Trigger {
	case "":
		wh.Trigger = WebhookTriggerOnMismatch
	case WebhookTriggerOnMismatch, WebhookTriggerAlways, WebhookTriggerNever:
		// Valid
	default:
		return fmt.Errorf("invalid trigger %q (must be on_mismatch, always, or never)", wh.Trigger)
	}

	if wh.Timeout <= 0 {
		wh.Timeout = Duration(DefaultWebhookTimeout)
	}

	return nil
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}

	if strings.HasPrefix(s, "$") && !strings.HasPrefix(s, "${") {
		return os.Getenv(s[1:])
	}

	return s
}

func cloneInts(v []int) []int {
	out := make([]int, len(v))
	copy(out, v)
	return out
}
