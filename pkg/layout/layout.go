// Package layout samples a trace file and suggests how to compare it:
// which tagged fields (e.g. "A:00", "SP:FD") sit at stable byte columns and
// at which token index they usually appear.
package layout

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ccollicutt/tracediff/pkg/trace"
)

// tagPattern matches NAME:VALUE tokens such as A:00, SP:FD or CYC:7.
var tagPattern = regexp.MustCompile(`^([A-Za-z]+):(\S+)$`)

// DetectionResult holds the result of sampling a trace.
type DetectionResult struct {
	SampledLines int            // Number of non-blank lines sampled
	Tokens       TokenStats     // Token count distribution
	Columns      []TaggedColumn // Stable tagged columns, ordered by start column
	SampleLine   string         // First sampled line
}

// TokenStats summarizes how many tokens the sampled lines have.
type TokenStats struct {
	Min  int
	Max  int
	Mode int
}

// Uniform reports whether every sampled line has the same token count.
func (s TokenStats) Uniform() bool {
	return s.Min == s.Max
}

// TaggedColumn is a NAME:VALUE field found at a stable byte offset.
type TaggedColumn struct {
	Tag        string            // Field name, e.g. "A"
	Range      trace.ColumnRange // Whole token, e.g. "A:00" at 48:52
	ValueRange trace.ColumnRange // Value only, e.g. "00" at 50:52
	TokenIndex int               // Most common whitespace token index
	Confidence float64           // 0.0 to 1.0 (share of sampled lines agreeing)
	MatchCount int               // Lines with the tag at Range
	Sample     string            // Example token
}

// Detector samples trace files.
type Detector struct {
	sampleSize    int
	minConfidence float64
}

// Option configures the Detector.
type Option func(*Detector)

// WithSampleSize sets the number of lines to sample (default 100).
func WithSampleSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.sampleSize = n
		}
	}
}

// WithMinConfidence drops tagged columns seen at the same offset in fewer
// than the given share of sampled lines (default 0.5).
func WithMinConfidence(c float64) Option {
	return func(d *Detector) {
		if c > 0 && c <= 1 {
			d.minConfidence = c
		}
	}
}

// New creates a new Detector.
func New(opts ...Option) *Detector {
	d := &Detector{
		sampleSize:    100,
		minConfidence: 0.5,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectFromFile samples a trace file and analyzes it.
func (d *Detector) DetectFromFile(ctx context.Context, path string) (*DetectionResult, error) {
	stream, err := trace.Load(ctx, path, trace.WithLimit(d.sampleSize))
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, d.sampleSize)
	for _, rec := range stream.Records {
		if len(lines) >= d.sampleSize {
			break
		}
		if len(rec.Tokens) > 0 {
			lines = append(lines, rec.Raw)
		}
	}

	return d.DetectFromLines(lines), nil
}

// DetectFromLines analyzes a slice of raw trace lines.
func (d *Detector) DetectFromLines(lines []string) *DetectionResult {
	result := &DetectionResult{}

	type position struct {
		start, end, valueStart int
	}
	type tagStats struct {
		positions map[position]int
		indices   map[int]int
		sample    string
	}

	tags := make(map[string]*tagStats)
	counts := make(map[int]int)

	for _, line := range lines {
		fields := fieldsWithOffsets(line)
		if len(fields) == 0 {
			continue
		}
		if result.SampledLines == 0 {
			result.SampleLine = line
			result.Tokens.Min = len(fields)
		}
		result.SampledLines++
		counts[len(fields)]++
		result.Tokens.Min = min(result.Tokens.Min, len(fields))
		result.Tokens.Max = max(result.Tokens.Max, len(fields))

		for i, f := range fields {
			m := tagPattern.FindStringSubmatch(f.text)
			if m == nil {
				continue
			}
			tag := m[1]
			s := tags[tag]
			if s == nil {
				s = &tagStats{
					positions: make(map[position]int),
					indices:   make(map[int]int),
					sample:    f.text,
				}
				tags[tag] = s
			}
			s.positions[position{
				start:      f.start,
				end:        f.start + len(f.text),
				valueStart: f.start + len(tag) + 1,
			}]++
			s.indices[i]++
		}
	}

	if result.SampledLines == 0 {
		return result
	}
	result.Tokens.Mode = modeKey(counts)

	for tag, s := range tags {
		var best position
		bestCount := 0
		for p, n := range s.positions {
			if n > bestCount || (n == bestCount && p.start < best.start) {
				best, bestCount = p, n
			}
		}

		confidence := float64(bestCount) / float64(result.SampledLines)
		if confidence < d.minConfidence {
			continue
		}

		result.Columns = append(result.Columns, TaggedColumn{
			Tag:        tag,
			Range:      trace.ColumnRange{Start: best.start, End: best.end},
			ValueRange: trace.ColumnRange{Start: best.valueStart, End: best.end},
			TokenIndex: modeKey(s.indices),
			Confidence: confidence,
			MatchCount: bestCount,
			Sample:     s.sample,
		})
	}

	sort.Slice(result.Columns, func(i, j int) bool {
		return result.Columns[i].Range.Start < result.Columns[j].Range.Start
	})

	return result
}

// Column returns the tagged column with the given tag, or nil.
func (r *DetectionResult) Column(tag string) *TaggedColumn {
	for i := range r.Columns {
		if strings.EqualFold(r.Columns[i].Tag, tag) {
			return &r.Columns[i]
		}
	}
	return nil
}

// HasColumns returns true if at least one stable tagged column was found.
func (r *DetectionResult) HasColumns() bool {
	return len(r.Columns) > 0
}

type field struct {
	text  string
	start int
}

// fieldsWithOffsets splits line like strings.Fields but keeps byte offsets.
func fieldsWithOffsets(line string) []field {
	var out []field
	start := -1
	for i, r := range line {
		space := unicode.IsSpace(r)
		switch {
		case space && start >= 0:
			out = append(out, field{text: line[start:i], start: start})
			start = -1
		case !space && start < 0:
			start = i
		}
	}
	if start >= 0 {
		out = append(out, field{text: line[start:], start: start})
	}
	return out
}

// modeKey returns the most frequent key, preferring the smallest on ties.
func modeKey(m map[int]int) int {
	best, bestCount := 0, -1
	for k, n := range m {
		if n > bestCount || (n == bestCount && k < best) {
			best, bestCount = k, n
		}
	}
	return best
}
