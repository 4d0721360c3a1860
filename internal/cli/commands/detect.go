package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ccollicutt/tracediff/pkg/config"
	"github.com/ccollicutt/tracediff/pkg/layout"
)

// DetectOptions holds command-line options for the detect command.
type DetectOptions struct {
	Output      string
	SampleSize  int
	Tag         string
	WriteConfig string
}

// NewDetectCommand creates the detect command.
func NewDetectCommand() *cobra.Command {
	opts := &DetectOptions{}

	cmd := &cobra.Command{
		Use:   "detect <trace-file>",
		Short: "Detect the column layout of a reference trace",
		Long: `Sample a trace file and report its layout.

Finds NAME:VALUE fields (A:00, SP:FD, CYC:7, ...) that sit at a stable byte
offset, the token index they usually appear at, and the token count
distribution. Prints a ready-to-use rule snippet comparing the field given
by --tag through a fixed column range.

Optionally generates a starter config file with --write-config.

Example:
  tracediff detect nestest.log
  tracediff detect --tag SP nestest.log
  tracediff detect -w tracediff.yaml nestest.log`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().IntVarP(&opts.SampleSize, "sample", "n", 100, "Number of lines to sample")
	cmd.Flags().StringVar(&opts.Tag, "tag", "A", "Field used for the suggested positional rule")
	cmd.Flags().StringVarP(&opts.WriteConfig, "write-config", "w", "", "Write starter config to file (will not overwrite)")

	return cmd
}

func runDetect(cmd *cobra.Command, args []string, opts *DetectOptions) error {
	traceFile := args[0]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	d := layout.New(layout.WithSampleSize(opts.SampleSize))

	result, err := d.DetectFromFile(ctx, traceFile)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	cfg := suggestConfig(result, traceFile, opts.Tag)

	if opts.WriteConfig != "" {
		if err := writeStarterConfig(cmd.OutOrStdout(), cfg, opts.WriteConfig); err != nil {
			return err
		}
	}

	switch opts.Output {
	case "json":
		return outputDetectJSON(cmd.OutOrStdout(), result, traceFile, cfg)
	case "text":
		return outputDetectText(cmd.OutOrStdout(), result, traceFile, cfg, opts.Tag)
	default:
		return fmt.Errorf("unknown output format %q (use text or json)", opts.Output)
	}
}

// suggestConfig returns a positional rule on the tagged column when one was
// found, and the default tail rule otherwise.
func suggestConfig(result *layout.DetectionResult, traceFile, tag string) *config.Config {
	cfg := &config.Config{
		Actual:   config.DefaultActual,
		Expected: traceFile,
		Rule: config.RuleConfig{
			Name:   string(config.RuleTypeTail),
			Type:   string(config.RuleTypeTail),
			Fields: []int{-1},
		},
	}

	col := result.Column(tag)
	if col == nil {
		return cfg
	}

	actualField := config.DefaultActualField
	columns := col.Range
	cfg.Rule = config.RuleConfig{
		Name:            "register-" + col.Tag,
		Type:            string(config.RuleTypePositional),
		Description:     fmt.Sprintf("Compare %s against columns %s of the reference", col.Tag, col.Range),
		ActualField:     &actualField,
		ExpectedColumns: &columns,
	}
	return cfg
}

func marshalYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func outputDetectText(w io.Writer, result *layout.DetectionResult, traceFile string, cfg *config.Config, tag string) error {
	p := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	p("=== Trace Layout Detection ===\n\n")
	p("File: %s\n", traceFile)
	p("Lines sampled: %d\n", result.SampledLines)

	if result.SampledLines == 0 {
		p("\nNo non-blank lines found.\n")
		return nil
	}

	p("Tokens per line: min %d, max %d, mode %d\n", result.Tokens.Min, result.Tokens.Max, result.Tokens.Mode)
	if !result.Tokens.Uniform() {
		p("Note: token counts vary; negative field indices count from the end of the line.\n")
	}
	p("\nSample line:\n  %s\n\n", result.SampleLine)

	if !result.HasColumns() {
		p("No stable NAME:VALUE columns detected.\n\n")
	} else {
		p("%-6s %-9s %-9s %-6s %-11s %s\n", "TAG", "COLUMNS", "VALUE", "TOKEN", "CONFIDENCE", "SAMPLE")
		for _, c := range result.Columns {
			p("%-6s %-9s %-9s %-6d %-11s %s\n",
				c.Tag, c.Range, c.ValueRange, c.TokenIndex,
				fmt.Sprintf("%.1f%%", c.Confidence*100), c.Sample)
		}
		p("\n")
	}

	if result.Column(tag) == nil {
		p("Tag %q not found; suggesting the default tail rule.\n\n", tag)
	}

	snippet, err := marshalYAML(struct {
		Rule config.RuleConfig `yaml:"rule"`
	}{cfg.Rule})
	if err != nil {
		return fmt.Errorf("rendering rule snippet: %w", err)
	}

	p("--- Configuration snippet (copy to your config file) ---\n\n")
	p("%s\n", snippet)

	return nil
}

// JSONColumn represents a tagged column in JSON output.
type JSONColumn struct {
	Tag        string  `json:"tag"`
	Columns    string  `json:"columns"`
	Value      string  `json:"value"`
	TokenIndex int     `json:"token_index"`
	Confidence float64 `json:"confidence"`
	MatchCount int     `json:"match_count"`
	Sample     string  `json:"sample"`
}

// JSONOutput represents the full JSON output.
type JSONOutput struct {
	File          string            `json:"file"`
	SampledLines  int               `json:"sampled_lines"`
	MinTokens     int               `json:"min_tokens"`
	MaxTokens     int               `json:"max_tokens"`
	ModeTokens    int               `json:"mode_tokens"`
	Columns       []JSONColumn      `json:"columns"`
	SuggestedRule config.RuleConfig `json:"suggested_rule"`
}

func outputDetectJSON(w io.Writer, result *layout.DetectionResult, traceFile string, cfg *config.Config) error {
	out := JSONOutput{
		File:          traceFile,
		SampledLines:  result.SampledLines,
		MinTokens:     result.Tokens.Min,
		MaxTokens:     result.Tokens.Max,
		ModeTokens:    result.Tokens.Mode,
		Columns:       make([]JSONColumn, 0, len(result.Columns)),
		SuggestedRule: cfg.Rule,
	}

	for _, c := range result.Columns {
		out.Columns = append(out.Columns, JSONColumn{
			Tag:        c.Tag,
			Columns:    c.Range.String(),
			Value:      c.ValueRange.String(),
			TokenIndex: c.TokenIndex,
			Confidence: c.Confidence,
			MatchCount: c.MatchCount,
			Sample:     c.Sample,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// writeStarterConfig writes cfg as a YAML config file.
func writeStarterConfig(w io.Writer, cfg *config.Config, configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s (will not overwrite)", configPath)
	}

	content, err := generateStarterConfig(cfg)
	if err != nil {
		return err
	}

	// #nosec G306 - config file doesn't need restrictive permissions
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	_, _ = fmt.Fprintf(w, "Wrote starter config to: %s\n\n", configPath)
	return nil
}

// generateStarterConfig renders a commented YAML config.
func generateStarterConfig(cfg *config.Config) ([]byte, error) {
	out := *cfg
	if abs, err := filepath.Abs(cfg.Expected); err == nil {
		out.Expected = abs
	}
	out.OnMalformed = config.MalformedReport

	body, err := marshalYAML(&out)
	if err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}

	header := `# tracediff configuration
# Generated by: tracediff detect
#
# rule.type is one of:
#   tail        compare one token (fields: [-1] is the last)
#   positional  compare key_field plus actual_field against expected_columns
#   fields      compare every index in fields on both sides
#
# Webhooks receive the JSON report:
# webhooks:
#   - name: ci
#     url: https://example.com/hooks/tracediff
#     token: ${TRACEDIFF_WEBHOOK_TOKEN}
#     trigger: on_mismatch

`
	return append([]byte(header), body...), nil
}
