// Package output provides formatting and output generation for comparison results.
package output

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ccollicutt/tracediff/pkg/differ"
)

// Report is the complete comparison output.
type Report struct {
	// Summary provides aggregate counts.
	Summary Summary `json:"summary"`

	// Mismatches are the discrepancies in line order.
	Mismatches []differ.Mismatch `json:"mismatches"`

	// Metadata provides context about the run.
	Metadata Metadata `json:"metadata"`
}

// Summary provides aggregate counts.
type Summary struct {
	Rule          string `json:"rule"`
	RuleType      string `json:"rule_type"`
	ActualLines   int    `json:"actual_lines"`
	ExpectedLines int    `json:"expected_lines"`
	Compared      int    `json:"compared"`
	Matched       int    `json:"matched"`
	Mismatched    int    `json:"mismatched"`
	Malformed     int    `json:"malformed"`
	LengthDiffers bool   `json:"length_differs"`
}

// Metadata provides context about the comparison run.
type Metadata struct {
	// RunID uniquely identifies this run; it sorts by creation time.
	RunID string `json:"run_id"`

	// ConfigFile is the configuration file used, if any.
	ConfigFile string `json:"config_file,omitempty"`

	Actual   string `json:"actual"`
	Expected string `json:"expected"`

	// ComparedAt is when the comparison finished.
	ComparedAt time.Time `json:"compared_at"`

	// Duration is how long the comparison took.
	Duration time.Duration `json:"duration"`
}

// NewReport creates a Report from comparison results.
func NewReport(result *differ.Result, actual, expected, configFile string) *Report {
	stats := result.Stats

	return &Report{
		Mismatches: result.Mismatches,
		Summary: Summary{
			Rule:          result.Rule,
			RuleType:      string(result.RuleType),
			ActualLines:   stats.ActualLines,
			ExpectedLines: stats.ExpectedLines,
			Compared:      stats.Compared,
			Matched:       stats.Matched,
			Mismatched:    result.CountKind(differ.KindField),
			Malformed:     stats.Malformed,
			LengthDiffers: stats.ActualLines != stats.ExpectedLines,
		},
		Metadata: Metadata{
			RunID:      ulid.Make().String(),
			ConfigFile: configFile,
			Actual:     actual,
			Expected:   expected,
			ComparedAt: stats.EndTime,
			Duration:   stats.EndTime.Sub(stats.StartTime),
		},
	}
}

// HasMismatches returns true if any mismatch record was produced.
func (r *Report) HasMismatches() bool {
	return len(r.Mismatches) > 0
}
