package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/tracediff/pkg/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a tracediff configuration file without running a comparison.

Checks:
  - YAML or TOML syntax
  - Rule type and type-specific requirements
  - Column range validity
  - Webhook URLs and triggers
  - Trace file existence (warning only)

Prints the rule with all defaults filled in.`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintf(out, "Validating %s...\n", configPath)

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	rule := cfg.Rule
	_, _ = fmt.Fprintf(out, "\nConfiguration valid!\n")
	_, _ = fmt.Fprintf(out, "  Actual:       %s\n", cfg.Actual)
	_, _ = fmt.Fprintf(out, "  Expected:     %s\n", cfg.Expected)
	_, _ = fmt.Fprintf(out, "  On malformed: %s\n", cfg.OnMalformed)
	_, _ = fmt.Fprintf(out, "  Check length: %t\n", cfg.CheckLength)
	_, _ = fmt.Fprintf(out, "  Webhooks:     %d\n", len(cfg.Webhooks))

	_, _ = fmt.Fprintf(out, "\nRule: [%s] %s\n", rule.Type, rule.Name)
	if rule.Description != "" {
		_, _ = fmt.Fprintf(out, "  %s\n", rule.Description)
	}
	_, _ = fmt.Fprintf(out, "  key field:            %d\n", rule.KeyField)

	switch rule.RuleTypeEnum() {
	case config.RuleTypePositional:
		_, _ = fmt.Fprintf(out, "  actual field:         %d\n", *rule.ActualField)
		if rule.ExpectedColumns != nil {
			_, _ = fmt.Fprintf(out, "  expected columns:     %s\n", rule.ExpectedColumns)
		} else {
			_, _ = fmt.Fprintf(out, "  expected field:       %d\n", *rule.ExpectedField)
		}
	default:
		_, _ = fmt.Fprintf(out, "  fields:               %s\n", joinInts(rule.Fields))
	}
	if len(rule.ActualDiagnostics) > 0 || len(rule.ExpectedDiagnostics) > 0 {
		_, _ = fmt.Fprintf(out, "  actual diagnostics:   %s\n", joinInts(rule.ActualDiagnostics))
		_, _ = fmt.Fprintf(out, "  expected diagnostics: %s\n", joinInts(rule.ExpectedDiagnostics))
	}

	// Check if trace files exist (warnings only)
	for _, path := range []string{cfg.Actual, cfg.Expected} {
		if _, err := os.Stat(path); err != nil {
			_, _ = fmt.Fprintf(out, "\nWarning: trace file %s: %v\n", path, err)
		}
	}

	return nil
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
