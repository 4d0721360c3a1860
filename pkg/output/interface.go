package output

import (
	"context"
	"io"
)

// Formatter renders comparison reports in a specific format.
type Formatter interface {
	// Format renders the report to the given writer.
	Format(ctx context.Context, report *Report, w io.Writer) error

	// Name returns the format name (text, json).
	Name() string
}

// FormatOptions controls formatter behavior.
type FormatOptions struct {
	// Summary appends a one-line count after the mismatches.
	Summary bool

	// Quiet prints only the summary.
	Quiet bool
}
