package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ccollicutt/tracediff/internal/logging"
	"github.com/ccollicutt/tracediff/pkg/config"
	"github.com/ccollicutt/tracediff/pkg/differ"
	"github.com/ccollicutt/tracediff/pkg/output"
	"github.com/ccollicutt/tracediff/pkg/trace"
	"github.com/ccollicutt/tracediff/pkg/webhook"
)

// ExitCode is set by commands to indicate the result
var ExitCode = 0

// CompareOptions holds command-line options for the compare command.
type CompareOptions struct {
	ConfigFile string

	// Rule overrides
	Rule                string
	KeyField            int
	Fields              []int
	ActualField         int
	ExpectedField       int
	ExpectedColumns     string
	ActualDiagnostics   []int
	ExpectedDiagnostics []int

	OnMalformed string
	CheckLength bool

	Output         string
	Summary        bool
	Quiet          bool
	FailOnMismatch bool

	// Webhook options
	WebhookURL     string
	WebhookToken   string
	WebhookTrigger string
}

// NewCompareCommand creates the compare command.
func NewCompareCommand() *cobra.Command {
	opts := &CompareOptions{}

	cmd := &cobra.Command{
		Use:   "compare [actual] [expected]",
		Short: "Compare an execution trace against a reference trace",
		Long: `Compare two line-oriented traces pair by pair and print every mismatch.

Line i of the actual trace is compared with line i of the expected trace.
Lines past the end of the shorter trace are not compared unless --check-length
is given.

Rules:
  tail        compare one token, the last by default (nestest status column)
  positional  compare the key token and one field against a fixed column range
  fields      compare a list of token indices on both sides

Paths default to output.log and nestest.log.

Exit codes:
  0 - Comparison completed (mismatches are only fatal with --fail-on-mismatch)
  1 - Mismatches found and --fail-on-mismatch set
  2 - Configuration or I/O error

Example:
  tracediff compare
  tracediff compare output.log nestest.log --rule positional --expected-columns 48:52
  tracediff compare --config tracediff.yaml -o json`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "Configuration file (YAML or TOML)")

	// Rule flags
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "Comparison rule (tail|positional|fields)")
	cmd.Flags().IntVar(&opts.KeyField, "key-field", 0, "Token index of the line key")
	cmd.Flags().IntSliceVar(&opts.Fields, "field", nil, "Compared token index (can be repeated; negative counts from the end)")
	cmd.Flags().IntVar(&opts.ActualField, "actual-field", config.DefaultActualField, "Actual token compared by the positional rule")
	cmd.Flags().IntVar(&opts.ExpectedField, "expected-field", 0, "Expected token compared by the positional rule (instead of columns)")
	cmd.Flags().StringVar(&opts.ExpectedColumns, "expected-columns", "", "Expected byte columns compared by the positional rule (e.g. 48:52)")
	cmd.Flags().IntSliceVar(&opts.ActualDiagnostics, "actual-diag", nil, "Actual token printed with a mismatch (can be repeated)")
	cmd.Flags().IntSliceVar(&opts.ExpectedDiagnostics, "expected-diag", nil, "Expected token printed with a mismatch (can be repeated)")

	cmd.Flags().StringVar(&opts.OnMalformed, "on-malformed", "", "Short line handling (report|skip|fail)")
	cmd.Flags().BoolVar(&opts.CheckLength, "check-length", false, "Report traces of different lengths")

	// Output flags
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "Print a summary line after the mismatches")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Summary only, no details")
	cmd.Flags().BoolVar(&opts.FailOnMismatch, "fail-on-mismatch", false, "Exit with code 1 when mismatches are found")

	// Webhook flags
	cmd.Flags().StringVar(&opts.WebhookURL, "webhook-url", "", "Webhook endpoint URL")
	cmd.Flags().StringVar(&opts.WebhookToken, "webhook-token", "", "Bearer token for webhook auth")
	cmd.Flags().StringVar(&opts.WebhookTrigger, "webhook-trigger", string(config.WebhookTriggerOnMismatch), "When to fire webhook (on_mismatch|always|never)")

	return cmd
}

func runCompare(cmd *cobra.Command, args []string, opts *CompareOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.FromContext(ctx)
	ExitCode = 0

	formatter, ok := output.NewFormatter(opts.Output, output.FormatOptions{
		Summary: opts.Summary,
		Quiet:   opts.Quiet,
	})
	if !ok {
		return fmt.Errorf("unknown output format %q (use text or json)", opts.Output)
	}

	cfg, err := resolveConfig(cmd, args, opts)
	if err != nil {
		return err
	}

	log.Debug("resolved configuration",
		zap.String("actual", cfg.Actual),
		zap.String("expected", cfg.Expected),
		zap.String("rule", cfg.Rule.Type),
		zap.String("on_malformed", string(cfg.OnMalformed)),
	)

	actual, err := trace.Load(ctx, cfg.Actual)
	if err != nil {
		return fmt.Errorf("loading actual trace: %w", err)
	}
	expected, err := trace.Load(ctx, cfg.Expected, cfg.Rule.ExpectedLoadOptions()...)
	if err != nil {
		return fmt.Errorf("loading expected trace: %w", err)
	}

	comparator, err := differ.NewComparator(&cfg.Rule)
	if err != nil {
		return fmt.Errorf("creating comparator: %w", err)
	}

	result, err := differ.Compare(ctx, actual, expected, comparator,
		differ.WithMalformedPolicy(cfg.OnMalformed),
		differ.WithLengthCheck(cfg.CheckLength),
	)
	if err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}

	report := output.NewReport(result, cfg.Actual, cfg.Expected, opts.ConfigFile)

	if err := formatter.Format(ctx, report, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	// Send webhooks (errors logged but don't fail the comparison)
	sendWebhooks(ctx, cmd, cfg, report)

	if opts.FailOnMismatch && report.HasMismatches() {
		ExitCode = 1
	}

	return nil
}

// resolveConfig layers defaults, the config file, TRACEDIFF_* variables,
// positional arguments and explicitly set flags, then validates the result.
func resolveConfig(cmd *cobra.Command, args []string, opts *CompareOptions) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if opts.ConfigFile != "" {
		if err := config.Decode(opts.ConfigFile, cfg); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}

	if err := cfg.ApplyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.Actual = args[0]
	}
	if len(args) > 1 {
		cfg.Expected = args[1]
	}

	if err := applyRuleFlags(cmd, cfg, opts); err != nil {
		return nil, err
	}

	if opts.WebhookURL != "" {
		cfg.Webhooks = append(cfg.Webhooks, cliWebhook(opts))
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyRuleFlags(cmd *cobra.Command, cfg *config.Config, opts *CompareOptions) error {
	flags := cmd.Flags()
	rule := &cfg.Rule

	if flags.Changed("rule") && opts.Rule != rule.Type {
		// Switching variants drops the settings of the old one.
		*rule = config.RuleConfig{Type: opts.Rule}
	}
	if flags.Changed("key-field") {
		rule.KeyField = opts.KeyField
	}
	if flags.Changed("field") {
		rule.Fields = opts.Fields
	}
	if flags.Changed("actual-field") {
		v := opts.ActualField
		rule.ActualField = &v
	}
	if flags.Changed("expected-field") {
		v := opts.ExpectedField
		rule.ExpectedField = &v
		if !flags.Changed("expected-columns") {
			rule.ExpectedColumns = nil
		}
	}
	if flags.Changed("expected-columns") {
		cr, err := trace.ParseColumnRange(opts.ExpectedColumns)
		if err != nil {
			return fmt.Errorf("invalid --expected-columns %q: %w", opts.ExpectedColumns, err)
		}
		rule.ExpectedColumns = &cr
		if !flags.Changed("expected-field") {
			rule.ExpectedField = nil
		}
	}
	if flags.Changed("actual-diag") {
		rule.ActualDiagnostics = opts.ActualDiagnostics
	}
	if flags.Changed("expected-diag") {
		rule.ExpectedDiagnostics = opts.ExpectedDiagnostics
	}

	if flags.Changed("on-malformed") {
		cfg.OnMalformed = config.MalformedPolicy(opts.OnMalformed)
	}
	if flags.Changed("check-length") {
		cfg.CheckLength = opts.CheckLength
	}

	return nil
}

// sendWebhooks sends the report to all configured webhooks.
// Errors are logged to stderr but don't fail the comparison.
func sendWebhooks(ctx context.Context, cmd *cobra.Command, cfg *config.Config, report *output.Report) {
	if len(cfg.Webhooks) == 0 {
		return
	}

	log := logging.FromContext(ctx)
	client := webhook.NewClient(webhook.WithLogger(log))
	stderr := cmd.ErrOrStderr()

	for _, wh := range cfg.Webhooks {
		if !shouldFireWebhook(wh.Trigger, report.HasMismatches()) {
			continue
		}

		resp := client.Send(ctx, report, webhook.SendOptions{
			URL:     wh.URL,
			Token:   wh.Token,
			Timeout: wh.Timeout.Std(),
		})

		name := wh.Name
		if name == "" {
			name = wh.URL
		}

		if resp.Success() {
			log.Debug("webhook sent", zap.String("webhook", name), zap.Int("status", resp.StatusCode), zap.Duration("duration", resp.Duration))
			_, _ = fmt.Fprintf(stderr, "Webhook %s: sent (%d, %s)\n", name, resp.StatusCode, resp.Duration)
		} else {
			log.Warn("webhook failed", zap.String("webhook", name), zap.Error(resp.Error))
			_, _ = fmt.Fprintf(stderr, "Webhook %s: failed (%v)\n", name, resp.Error)
		}
	}
}

// cliWebhook builds the webhook given by --webhook-url. It is validated
// together with the config file webhooks.
func cliWebhook(opts *CompareOptions) config.WebhookConfig {
	return config.WebhookConfig{
		Name:    "cli",
		URL:     opts.WebhookURL,
		Token:   opts.WebhookToken,
		Trigger: config.WebhookTrigger(opts.WebhookTrigger),
		Timeout: config.Duration(config.DefaultWebhookTimeout),
	}
}

// shouldFireWebhook determines if a webhook should fire based on trigger and mismatches.
func shouldFireWebhook(trigger config.WebhookTrigger, hasMismatches bool) bool {
	switch trigger {
	case config.WebhookTriggerAlways:
		return true
	case config.WebhookTriggerNever:
		return false
	default:
		return hasMismatches
	}
}
