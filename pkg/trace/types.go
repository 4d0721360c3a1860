// Package trace loads line-oriented execution traces into memory.
package trace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Record is a single trace line split into whitespace-delimited tokens.
type Record struct {
	// Raw is the original line content.
	Raw string

	// Tokens are the whitespace-delimited fields of Raw.
	Tokens []string

	// Column is the trimmed fixed-column slice of Raw, if a column range was
	// requested when loading.
	Column string

	// LineNum is the 1-based line number in the source file.
	LineNum int
}

// Token returns the token at index i. Negative indices count from the end,
// so -1 is the last token. The second return is false when i is out of range.
func (r *Record) Token(i int) (string, bool) {
	if i < 0 {
		i += len(r.Tokens)
	}
	if i < 0 || i >= len(r.Tokens) {
		return "", false
	}
	return r.Tokens[i], true
}

// Stream is an ordered sequence of records read from one source.
type Stream struct {
	// Source is the file path the stream was read from.
	Source string

	// Records are the lines of the source, in file order.
	Records []Record
}

// Len returns the number of records in the stream.
func (s *Stream) Len() int {
	return len(s.Records)
}

// ColumnRange is a half-open byte range [Start, End) within a raw line.
type ColumnRange struct {
	Start int `yaml:"start" toml:"start" json:"start"`
	End   int `yaml:"end" toml:"end" json:"end"`
}

// Extract returns the trimmed slice of line covered by the range.
// Bounds past the end of the line are clamped, so a short line yields a
// shorter (possibly empty) value rather than an error.
func (c ColumnRange) Extract(line string) string {
	start, end := c.Start, c.End
	if start > len(line) {
		start = len(line)
	}
	if end > len(line) {
		end = len(line)
	}
	if start >= end {
		return ""
	}
	return strings.TrimSpace(line[start:end])
}

// String renders the range in START:END form.
func (c ColumnRange) String() string {
	return fmt.Sprintf("%d:%d", c.Start, c.End)
}

// Validate reports whether the range is usable.
func (c ColumnRange) Validate() error {
	if c.Start < 0 {
		return fmt.Errorf("start must be >= 0, got %d", c.Start)
	}
	if c.End <= c.Start {
		return fmt.Errorf("end (%d) must be greater than start (%d)", c.End, c.Start)
	}
	return nil
}

// ParseColumnRange parses a range in START:END form, e.g. "48:52".
func ParseColumnRange(s string) (ColumnRange, error) {
	before, after, ok := strings.Cut(s, ":")
	if !ok {
		return ColumnRange{}, errors.New("column range must be in START:END form")
	}

	start, err := strconv.Atoi(strings.TrimSpace(before))
	if err != nil {
		return ColumnRange{}, fmt.Errorf("invalid start %q: %w", before, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(after))
	if err != nil {
		return ColumnRange{}, fmt.Errorf("invalid end %q: %w", after, err)
	}

	cr := ColumnRange{Start: start, End: end}
	if err := cr.Validate(); err != nil {
		return ColumnRange{}, err
	}
	return cr, nil
}

// Tokenize splits a line on runs of whitespace.
func Tokenize(line string) []string {
	return strings.Fields(line)
}
