// Package differ compares two trace streams line by line.
package differ

import (
	"fmt"
	"time"

	"github.com/ccollicutt/tracediff/pkg/config"
)

// RuleType enumerates comparison strategies.
type RuleType = config.RuleType

// Kind categorizes mismatch records.
type Kind string

const (
	// KindField indicates the compared fields of a line pair disagree.
	KindField Kind = "field"

	// KindMalformed indicates a line has fewer tokens than the rule needs.
	KindMalformed Kind = "malformed"

	// KindLength indicates the two streams have a different number of lines.
	KindLength Kind = "length"
)

// Side names which stream a record came from.
type Side string

const (
	SideActual   Side = "actual"
	SideExpected Side = "expected"
)

// Mismatch is a single discrepancy between the two traces.
type Mismatch struct {
	// Kind categorizes the mismatch.
	Kind Kind `json:"kind"`

	// Index is the 0-based position of the line pair.
	Index int `json:"index"`

	// ActualLine and ExpectedLine are 1-based source line numbers.
	ActualLine   int `json:"actual_line,omitempty"`
	ExpectedLine int `json:"expected_line,omitempty"`

	// Key is the identifying token of the actual line.
	Key string `json:"key"`

	// Actual and Expected are the diagnostic fields of each side.
	Actual   []string `json:"actual"`
	Expected []string `json:"expected"`

	// Reason explains malformed and length records.
	Reason string `json:"reason,omitempty"`
}

// Stats contains execution statistics for a comparison.
type Stats struct {
	// ActualLines and ExpectedLines are the stream lengths.
	ActualLines   int `json:"actual_lines"`
	ExpectedLines int `json:"expected_lines"`

	// Compared is the number of line pairs examined.
	Compared int `json:"compared"`

	// Matched is the number of line pairs whose fields agreed.
	Matched int `json:"matched"`

	// Malformed is the number of line pairs with too few tokens.
	Malformed int `json:"malformed"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Result contains the findings of one comparison run.
type Result struct {
	// Rule is the name of the rule that produced these results.
	Rule string

	// RuleType indicates the comparison strategy used.
	RuleType RuleType

	// Description is the rule's description, if any.
	Description string

	// Mismatches are in line order, with a length record (if any) last.
	Mismatches []Mismatch

	Stats Stats
}

// HasMismatches returns true if any mismatch was recorded.
func (r *Result) HasMismatches() bool {
	return len(r.Mismatches) > 0
}

// CountKind returns the number of mismatches of kind k.
func (r *Result) CountKind(k Kind) int {
	n := 0
	for i := range r.Mismatches {
		if r.Mismatches[i].Kind == k {
			n++
		}
	}
	return n
}

// FieldIndexError reports a line with fewer tokens than the rule requires.
type FieldIndexError struct {
	Index int
	Line  int
	Side  Side
	Need  int
	Have  int
}

func (e *FieldIndexError) Error() string {
	return fmt.Sprintf("%s line %d (pair %d): need %d fields, have %d",
		e.Side, e.Line, e.Index, e.Need, e.Have)
}
