package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/tracediff/pkg/config"
	"github.com/ccollicutt/tracediff/pkg/differ"
	"github.com/ccollicutt/tracediff/pkg/layout"
	"github.com/ccollicutt/tracediff/pkg/trace"
	"github.com/ccollicutt/tracediff/pkg/webhook"
)

// diagnoseSamplePairs is the number of leading line pairs the rule is tried on.
const diagnoseSamplePairs = 10

// DiagnoseOptions holds options for the diagnose command
type DiagnoseOptions struct {
	Verbose bool
}

// DiagnosticResult represents the result of a single diagnostic check
type DiagnosticResult struct {
	Check    string
	Status   string // "ok", "warning", "error"
	Message  string
	Details  []string
	Suggests []string
}

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand() *cobra.Command {
	opts := &DiagnoseOptions{}

	cmd := &cobra.Command{
		Use:   "diagnose <config-file>",
		Short: "Diagnose common configuration issues",
		Long: `Diagnose common configuration issues.

This command checks your configuration file for common problems:
- Config file syntax and structure
- Trace file existence and accessibility
- Whether the rule's token indices and columns fit the traces
- Whether the traces line up (same key on the first line, same length)
- Webhook configuration (and reachability with -v)

Example:
  tracediff diagnose tracediff.yaml
  tracediff diagnose -v tracediff.yaml  # verbose output`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runDiagnose(ctx, cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Show detailed diagnostic output")

	return cmd
}

func runDiagnose(ctx context.Context, w io.Writer, configPath string, opts *DiagnoseOptions) error {
	results := []DiagnosticResult{}

	// 1. Check config file existence
	result := checkConfigExists(configPath)
	results = append(results, result)
	if result.Status == "error" {
		printDiagnostics(w, results, opts)
		return nil
	}

	// 2. Parse config file
	cfg, result := checkConfigParseable(ctx, configPath)
	results = append(results, result)
	if result.Status == "error" {
		printDiagnostics(w, results, opts)
		return nil
	}

	// 3. Check trace files
	results = append(results, checkTraceFiles(cfg)...)

	// 4. Try the rule on the first line pairs
	results = append(results, checkRuleFit(ctx, cfg)...)

	// 5. Check webhooks configuration
	results = append(results, checkWebhooks(ctx, cfg, opts)...)

	printDiagnostics(w, results, opts)
	return nil
}

func checkConfigExists(path string) DiagnosticResult {
	result := DiagnosticResult{
		Check: "Config File",
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		result.Status = "error"
		result.Message = fmt.Sprintf("Config file not found: %s", path)
		result.Suggests = []string{
			"Check the file path is correct",
			"Use 'tracediff detect <trace-file> --write-config tracediff.yaml' to generate a starter config",
		}
		return result
	}
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot access config file: %v", err)
		result.Suggests = []string{"Check file permissions"}
		return result
	}
	if info.IsDir() {
		result.Status = "error"
		result.Message = "Path is a directory, not a file"
		return result
	}
	if info.Size() == 0 {
		result.Status = "error"
		result.Message = "Config file is empty"
		result.Suggests = []string{
			"Use 'tracediff detect <trace-file> --write-config tracediff.yaml' to generate a starter config",
		}
		return result
	}

	result.Status = "ok"
	result.Message = fmt.Sprintf("Found: %s (%d bytes)", path, info.Size())
	return result
}

func checkConfigParseable(ctx context.Context, path string) (*config.Config, DiagnosticResult) {
	result := DiagnosticResult{
		Check: "Config Syntax",
	}

	cfg, err := config.Load(ctx, path)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Failed to parse config: %v", err)
		switch {
		case strings.Contains(err.Error(), "yaml"):
			result.Suggests = []string{
				"Check YAML syntax - ensure proper indentation (use spaces, not tabs)",
			}
		case strings.Contains(err.Error(), "toml"):
			result.Suggests = []string{
				"Check TOML syntax - tables such as [rule] must come after top-level keys",
			}
		}
		return nil, result
	}

	result.Status = "ok"
	result.Message = "Config file parsed successfully"
	result.Details = []string{
		fmt.Sprintf("Actual: %s", cfg.Actual),
		fmt.Sprintf("Expected: %s", cfg.Expected),
		fmt.Sprintf("Rule: [%s] %s", cfg.Rule.Type, cfg.Rule.Name),
	}
	return cfg, result
}

func checkTraceFiles(cfg *config.Config) []DiagnosticResult {
	results := []DiagnosticResult{}

	for _, f := range []struct{ role, path string }{
		{"Actual", cfg.Actual},
		{"Expected", cfg.Expected},
	} {
		result := DiagnosticResult{
			Check: fmt.Sprintf("%s Trace: %s", f.role, f.path),
		}

		info, err := os.Stat(f.path)
		switch {
		case os.IsNotExist(err):
			result.Status = "error"
			result.Message = "File does not exist"
			result.Suggests = []string{
				"Check if the trace file path is correct",
				"Paths are relative to the working directory, not the config file",
			}
		case err != nil:
			result.Status = "error"
			result.Message = fmt.Sprintf("Cannot access file: %v", err)
			result.Suggests = []string{"Check file permissions"}
		case info.IsDir():
			result.Status = "error"
			result.Message = "Path is a directory, not a file"
		case info.Size() == 0:
			result.Status = "warning"
			result.Message = "File is empty (0 bytes)"
		default:
			result.Status = "ok"
			result.Message = fmt.Sprintf("File exists (%d bytes)", info.Size())
		}

		results = append(results, result)
	}

	return results
}

func checkRuleFit(ctx context.Context, cfg *config.Config) []DiagnosticResult {
	results := []DiagnosticResult{}

	actual, err := trace.Load(ctx, cfg.Actual)
	if err != nil {
		return results
	}
	expected, err := trace.Load(ctx, cfg.Expected, cfg.Rule.ExpectedLoadOptions()...)
	if err != nil {
		return results
	}

	result := DiagnosticResult{
		Check: fmt.Sprintf("Rule: %s", cfg.Rule.Name),
	}

	comparator, err := differ.NewComparator(&cfg.Rule)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot build comparator: %v", err)
		return append(results, result)
	}

	n := min(diagnoseSamplePairs, actual.Len(), expected.Len())
	if n == 0 {
		result.Status = "warning"
		result.Message = "No line pairs to compare"
		return append(results, result)
	}

	malformed, matched := 0, 0
	var firstErr *differ.FieldIndexError
	for i := 0; i < n; i++ {
		m, err := comparator.Compare(&actual.Records[i], &expected.Records[i])
		var fie *differ.FieldIndexError
		switch {
		case errors.As(err, &fie):
			fie.Index = i
			malformed++
			if firstErr == nil {
				firstErr = fie
			}
		case err != nil:
			result.Status = "error"
			result.Message = fmt.Sprintf("Comparison failed: %v", err)
			return append(results, result)
		case m == nil:
			matched++
		}
	}

	switch {
	case malformed == n:
		result.Status = "error"
		result.Message = fmt.Sprintf("Rule reads tokens the traces do not have (%d/%d sample pairs)", malformed, n)
		result.Details = []string{firstErr.Error()}
		result.Suggests = []string{
			"Negative indices count from the end of the line",
			"Use 'tracediff detect " + cfg.Expected + "' to inspect the trace layout",
		}
	case malformed > 0:
		result.Status = "warning"
		result.Message = fmt.Sprintf("%d/%d sample pairs have too few tokens", malformed, n)
		result.Details = []string{firstErr.Error()}
	default:
		result.Status = "ok"
		result.Message = fmt.Sprintf("%d/%d sample pairs comparable, %d matched", n, n, matched)
	}
	results = append(results, result)

	if cfg.Rule.UsesColumns() {
		results = append(results, checkColumns(ctx, cfg, expected.Records[:n]))
	}

	results = append(results, checkAlignment(cfg, actual, expected))

	return results
}

// checkColumns verifies the expected column range holds text on the sampled lines.
func checkColumns(ctx context.Context, cfg *config.Config, sample []trace.Record) DiagnosticResult {
	cr := cfg.Rule.ExpectedColumns
	result := DiagnosticResult{
		Check: fmt.Sprintf("Expected Columns: %s", cr),
	}

	empty := 0
	for _, rec := range sample {
		if rec.Column == "" {
			empty++
		}
	}

	if empty == 0 {
		result.Status = "ok"
		result.Message = fmt.Sprintf("Columns hold %q on the first line", sample[0].Column)
		return result
	}

	result.Status = "warning"
	if empty == len(sample) {
		result.Status = "error"
	}
	result.Message = fmt.Sprintf("Columns are blank on %d/%d sample lines", empty, len(sample))

	d := layout.New(layout.WithSampleSize(diagnoseSamplePairs))
	detected, err := d.DetectFromFile(ctx, cfg.Expected)
	if err == nil && detected.HasColumns() {
		for _, c := range detected.Columns {
			result.Suggests = append(result.Suggests,
				fmt.Sprintf("Detected %s at columns %s (e.g. %s)", c.Tag, c.Range, c.Sample))
		}
	}
	return result
}

// checkAlignment reports traces that start at different keys or differ in length.
func checkAlignment(cfg *config.Config, actual, expected *trace.Stream) DiagnosticResult {
	result := DiagnosticResult{
		Check:  "Trace Alignment",
		Status: "ok",
	}

	key := cfg.Rule.KeyField
	a, aok := actual.Records[0].Token(key)
	e, eok := expected.Records[0].Token(key)
	if aok && eok && a != e {
		result.Status = "warning"
		result.Details = append(result.Details,
			fmt.Sprintf("First line keys differ: %s vs %s", a, e))
		result.Suggests = append(result.Suggests,
			"Both traces must start at the same instruction for line-by-line comparison")
	}

	if actual.Len() != expected.Len() {
		result.Details = append(result.Details,
			fmt.Sprintf("Line counts differ: actual %d, expected %d", actual.Len(), expected.Len()))
		if !cfg.CheckLength {
			result.Suggests = append(result.Suggests,
				"Only the first min(actual, expected) lines are compared; set check_length to report the difference")
		}
	}

	if result.Status == "ok" {
		result.Message = fmt.Sprintf("Actual %d lines, expected %d lines", actual.Len(), expected.Len())
	} else {
		result.Message = "Traces may not line up"
	}
	return result
}

func printDiagnostics(w io.Writer, results []DiagnosticResult, opts *DiagnoseOptions) {
	p := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	p("=== tracediff Configuration Diagnostics ===\n\n")

	okCount := 0
	warnCount := 0
	errCount := 0

	for _, r := range results {
		var icon string
		switch r.Status {
		case "ok":
			icon = "PASS"
			okCount++
		case "warning":
			icon = "WARN"
			warnCount++
		case "error":
			icon = "FAIL"
			errCount++
		}

		p("[%s] %s\n", icon, r.Check)
		p("    %s\n", r.Message)

		if opts.Verbose || r.Status != "ok" {
			for _, d := range r.Details {
				p("      - %s\n", truncate(d, 120))
			}
		}

		for _, s := range r.Suggests {
			p("      Hint: %s\n", s)
		}

		p("\n")
	}

	p("---\n")
	p("Summary: %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)

	switch {
	case errCount > 0:
		p("\nFix the errors above before running a comparison.\n")
	case warnCount > 0:
		p("\nConfiguration is usable but has warnings.\n")
	default:
		p("\nConfiguration looks good!\n")
	}
}

func checkWebhooks(ctx context.Context, cfg *config.Config, opts *DiagnoseOptions) []DiagnosticResult {
	results := []DiagnosticResult{}

	if len(cfg.Webhooks) == 0 {
		// Webhooks are optional, just note they're not configured
		if opts.Verbose {
			results = append(results, DiagnosticResult{
				Check:   "Webhooks",
				Status:  "ok",
				Message: "No webhooks configured (optional)",
			})
		}
		return results
	}

	var client *webhook.Client
	if opts.Verbose {
		client = webhook.NewClient()
	}

	for _, wh := range cfg.Webhooks {
		name := wh.Name
		if name == "" {
			name = wh.URL
		}

		result := DiagnosticResult{
			Check:   fmt.Sprintf("Webhook: %s", name),
			Status:  "ok",
			Message: fmt.Sprintf("Trigger: %s", wh.Trigger),
		}
		if opts.Verbose {
			result.Details = []string{
				fmt.Sprintf("URL: %s", wh.URL),
				fmt.Sprintf("Timeout: %s", wh.Timeout.Std()),
			}
			if wh.Token != "" {
				result.Details = append(result.Details, "Token: configured")
			}
		}
		results = append(results, result)

		// Optionally test webhook connectivity
		if client != nil {
			conn := checkWebhookConnectivity(ctx, client, wh)
			conn.Check = fmt.Sprintf("Webhook Connectivity: %s", name)
			results = append(results, conn)
		}
	}

	return results
}

func checkWebhookConnectivity(ctx context.Context, client *webhook.Client, wh config.WebhookConfig) DiagnosticResult {
	result := DiagnosticResult{}

	resp := client.Ping(ctx, webhook.SendOptions{
		URL:     wh.URL,
		Token:   wh.Token,
		Timeout: wh.Timeout.Std(),
	})
	if resp.Error != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot connect: %v", resp.Error)
		result.Suggests = []string{
			"Check if the webhook URL is correct",
			"Verify network connectivity",
		}
		return result
	}

	// Any response (even 4xx/5xx) means the server is reachable
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		result.Status = "ok"
		result.Message = fmt.Sprintf("Reachable (status %d)", resp.StatusCode)
	} else {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Reachable but returned status %d", resp.StatusCode)
		result.Suggests = []string{
			"The endpoint may require POST method (will work during actual webhook send)",
			"Check authentication if using a token",
		}
	}

	return result
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
