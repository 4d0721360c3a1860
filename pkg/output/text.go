package output

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ccollicutt/tracediff/pkg/differ"
)

// TextFormatter renders one line per mismatch:
//
//	KEY ACTUAL_FIELDS | EXPECTED_FIELDS
type TextFormatter struct {
	opts FormatOptions
}

// NewTextFormatter creates a new text formatter with the given options.
func NewTextFormatter(opts FormatOptions) *TextFormatter {
	return &TextFormatter{opts: opts}
}

// Name returns the format name.
func (f *TextFormatter) Name() string {
	return "text"
}

// Format renders the report as text.
func (f *TextFormatter) Format(ctx context.Context, report *Report, w io.Writer) error {
	if !f.opts.Quiet {
		for i := range report.Mismatches {
			if _, err := fmt.Fprintln(w, FormatMismatch(&report.Mismatches[i])); err != nil {
				return err
			}
		}
	}

	if f.opts.Summary || f.opts.Quiet {
		return f.formatSummary(report, w)
	}
	return nil
}

func (f *TextFormatter) formatSummary(report *Report, w io.Writer) error {
	s := report.Summary
	_, err := fmt.Fprintf(w, "tracediff: %d lines compared, %d matched, %d mismatched, %d malformed (actual %d lines, expected %d lines)\n",
		s.Compared, s.Matched, s.Mismatched, s.Malformed, s.ActualLines, s.ExpectedLines)
	return err
}

// FormatMismatch renders a single mismatch record.
func FormatMismatch(m *differ.Mismatch) string {
	switch m.Kind {
	case differ.KindMalformed:
		return strings.TrimSpace(fmt.Sprintf("%s malformed pair %d: %s", m.Key, m.Index, m.Reason))
	case differ.KindLength:
		return fmt.Sprintf("length: actual has %s lines | expected has %s lines",
			strings.Join(m.Actual, " "), strings.Join(m.Expected, " "))
	default:
		left := m.Key
		if len(m.Actual) > 0 {
			left += " " + strings.Join(m.Actual, " ")
		}
		return left + " | " + strings.Join(m.Expected, " ")
	}
}
