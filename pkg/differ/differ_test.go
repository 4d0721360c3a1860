package differ

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ccollicutt/tracediff/pkg/config"
	"github.com/ccollicutt/tracediff/pkg/trace"
)

// ignoreLines drops line numbers so expectations can focus on content.
var ignoreLines = cmpopts.IgnoreFields(Mismatch{}, "ActualLine", "ExpectedLine")

func TestCompare_TailEndToEnd(t *testing.T) {
	actual := newStream(t, "1 2 3 4 SP:FD")
	expected := newStream(t, "1 2 3 4 SP:FE")

	result := runCompare(t, actual, expected, tailRule(t))

	want := []Mismatch{{
		Kind:         KindField,
		Index:        0,
		ActualLine:   1,
		ExpectedLine: 1,
		Key:          "1",
		Actual:       []string{"4"},
		Expected:     []string{"4"},
	}}
	if diff := cmp.Diff(want, result.Mismatches); diff != "" {
		t.Errorf("Mismatches mismatch (-want +got):\n%s", diff)
	}
}

func TestCompare_PositionalEndToEnd(t *testing.T) {
	expectedLine := padTo("C000", 48) + "25  "
	actual := newStream(t, "C000 . . 24")
	expected := newColumnStream(t, expectedLine)

	result := runCompare(t, actual, expected, positionalRule(t))

	want := []Mismatch{{
		Kind:     KindField,
		Key:      "C000",
		Actual:   []string{".", "24"},
		Expected: []string{"C000", "25"},
	}}
	if diff := cmp.Diff(want, result.Mismatches, ignoreLines); diff != "" {
		t.Errorf("Mismatches mismatch (-want +got):\n%s", diff)
	}
}

func TestCompare_PositionalMatch(t *testing.T) {
	actual := newStream(t, "C000 4C F5 A:00")
	expected := newColumnStream(t, "C000  4C F5 C5  JMP $C5F5                       A:00 X:00 Y:00 P:24 SP:FD")

	result := runCompare(t, actual, expected, positionalRule(t))

	if result.HasMismatches() {
		t.Errorf("Mismatches = %+v, want none", result.Mismatches)
	}
	if result.Stats.Matched != 1 {
		t.Errorf("Matched = %d, want 1", result.Stats.Matched)
	}
}

func TestCompare_PositionalKeyMismatch(t *testing.T) {
	actual := newStream(t, "C001 . . 24")
	expected := newColumnStream(t, padTo("C000", 48)+"24")

	result := runCompare(t, actual, expected, positionalRule(t))

	want := []Mismatch{{
		Kind:     KindField,
		Key:      "C001",
		Actual:   []string{".", "24"},
		Expected: []string{"C000", "24"},
	}}
	if diff := cmp.Diff(want, result.Mismatches, ignoreLines); diff != "" {
		t.Errorf("Mismatches mismatch (-want +got):\n%s", diff)
	}
}

func TestCompare_PositionalExpectedField(t *testing.T) {
	field := 1
	rule := &config.RuleConfig{Type: "positional", ExpectedField: &field}
	if err := config.ValidateRule(rule); err != nil {
		t.Fatalf("ValidateRule() error = %v", err)
	}
	c, err := NewComparator(rule)
	if err != nil {
		t.Fatalf("NewComparator() error = %v", err)
	}

	actual := newStream(t, "C000 . . 24", "C002 . . 30")
	expected := newStream(t, "C000 24", "C002 31")

	result, err := Compare(context.Background(), actual, expected, c)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	want := []Mismatch{{
		Kind:     KindField,
		Index:    1,
		Key:      "C002",
		Actual:   []string{".", "30"},
		Expected: []string{"C002", "31"},
	}}
	if diff := cmp.Diff(want, result.Mismatches, ignoreLines); diff != "" {
		t.Errorf("Mismatches mismatch (-want +got):\n%s", diff)
	}
}

func TestCompare_Fields(t *testing.T) {
	rule := &config.RuleConfig{Type: "fields", Fields: []int{1, 2, 3}}
	if err := config.ValidateRule(rule); err != nil {
		t.Fatalf("ValidateRule() error = %v", err)
	}
	c, err := NewComparator(rule)
	if err != nil {
		t.Fatalf("NewComparator() error = %v", err)
	}

	actual := newStream(t, "C000 A:00 X:00 Y:00", "C5F5 A:01 X:00 Y:02")
	expected := newStream(t, "C000 A:00 X:00 Y:00", "C5F5 A:00 X:00 Y:00")

	result, err := Compare(context.Background(), actual, expected, c)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	want := []Mismatch{{
		Kind:     KindField,
		Index:    1,
		Key:      "C5F5",
		Actual:   []string{"A:01", "Y:02"},
		Expected: []string{"A:00", "Y:00"},
	}}
	if diff := cmp.Diff(want, result.Mismatches, ignoreLines); diff != "" {
		t.Errorf("Mismatches mismatch (-want +got):\n%s", diff)
	}
}

func TestCompare_OrderPreserved(t *testing.T) {
	actual := newStream(t, "a 1 X", "b 2 Y", "c 3 Z", "d 4 W", "e 5 V")
	expected := newStream(t, "a 1 X", "b 9 Q", "c 3 Z", "d 9 Q", "e 9 Q")

	result := runCompare(t, actual, expected, tailRule(t))

	var keys []string
	prev := -1
	for _, m := range result.Mismatches {
		if m.Index <= prev {
			t.Errorf("mismatch index %d not after %d", m.Index, prev)
		}
		prev = m.Index
		keys = append(keys, m.Key)
	}
	if diff := cmp.Diff([]string{"b", "d", "e"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestCompare_EqualityImpliesSilence(t *testing.T) {
	lines := []string{
		"C000  JMP ($C5F5) = C5F5  A:00 X:00 Y:00 P:24 SP:FD",
		"C5F5  LDX #$00  A:00 X:00 Y:00 P:24 SP:FD",
		"C5F7  STX $00 = 00  A:00 X:00 Y:00 P:26 SP:FD",
	}

	result := runCompare(t, newStream(t, lines...), newStream(t, lines...), tailRule(t))

	if result.HasMismatches() {
		t.Errorf("Mismatches = %+v, want none", result.Mismatches)
	}
	if result.Stats.Compared != 3 || result.Stats.Matched != 3 {
		t.Errorf("Stats = %+v, want 3 compared and matched", result.Stats)
	}
}

func TestCompare_LengthBound(t *testing.T) {
	tests := []struct {
		name     string
		actual   []string
		expected []string
	}{
		{"actual longer", []string{"a x", "b y", "c z"}, []string{"a x"}},
		{"expected longer", []string{"a x"}, []string{"a x", "b y", "", "junk"}},
		{"actual empty", nil, []string{"a x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runCompare(t, newStream(t, tt.actual...), newStream(t, tt.expected...), tailRule(t))

			if result.HasMismatches() {
				t.Errorf("Mismatches = %+v, want none", result.Mismatches)
			}
			want := min(len(tt.actual), len(tt.expected))
			if result.Stats.Compared != want {
				t.Errorf("Compared = %d, want %d", result.Stats.Compared, want)
			}
		})
	}
}

func TestCompare_LengthCheck(t *testing.T) {
	actual := newStream(t, "a x", "b y", "c z")
	expected := newStream(t, "a x")

	c := mustComparator(t, tailRule(t))
	result, err := Compare(context.Background(), actual, expected, c, WithLengthCheck(true))
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if len(result.Mismatches) != 1 {
		t.Fatalf("Mismatches = %d, want 1", len(result.Mismatches))
	}
	m := result.Mismatches[0]
	if m.Kind != KindLength {
		t.Errorf("Kind = %v, want %v", m.Kind, KindLength)
	}
	if diff := cmp.Diff([]string{"3"}, m.Actual); diff != "" {
		t.Errorf("Actual (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1"}, m.Expected); diff != "" {
		t.Errorf("Expected (-want +got):\n%s", diff)
	}
	if result.CountKind(KindLength) != 1 {
		t.Errorf("CountKind(length) = %d, want 1", result.CountKind(KindLength))
	}
}

func TestCompare_LengthCheckEqualStreams(t *testing.T) {
	actual := newStream(t, "a x")
	expected := newStream(t, "a x")

	c := mustComparator(t, tailRule(t))
	result, err := Compare(context.Background(), actual, expected, c, WithLengthCheck(true))
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if result.HasMismatches() {
		t.Errorf("Mismatches = %+v, want none", result.Mismatches)
	}
}

func TestCompare_Idempotent(t *testing.T) {
	actual := newStream(t, "a 1 X", "", "c 3 Z", "d 4 W")
	expected := newStream(t, "a 2 Y", "b 2 Y", "c 3 Z", "d 5 V")
	c := mustComparator(t, tailRule(t))

	first, err := Compare(context.Background(), actual, expected, c)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	second, err := Compare(context.Background(), actual, expected, c)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if diff := cmp.Diff(first.Mismatches, second.Mismatches); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
}

func TestCompare_MalformedReport(t *testing.T) {
	actual := newStream(t, "a 1 X", "", "c 3 Z")
	expected := newStream(t, "a 1 X", "b 2 Y", "c 9 Q")

	result := runCompare(t, actual, expected, tailRule(t))

	if len(result.Mismatches) != 2 {
		t.Fatalf("Mismatches = %d, want 2: %+v", len(result.Mismatches), result.Mismatches)
	}

	m := result.Mismatches[0]
	if m.Kind != KindMalformed || m.Index != 1 {
		t.Errorf("first mismatch = %+v, want malformed at index 1", m)
	}
	if !strings.Contains(m.Reason, "actual line 2") {
		t.Errorf("Reason = %q, want it to name actual line 2", m.Reason)
	}
	if result.Mismatches[1].Kind != KindField || result.Mismatches[1].Key != "c" {
		t.Errorf("second mismatch = %+v, want field mismatch for c", result.Mismatches[1])
	}
	if result.Stats.Malformed != 1 {
		t.Errorf("Malformed = %d, want 1", result.Stats.Malformed)
	}
}

func TestCompare_MalformedUsesKeyField(t *testing.T) {
	rule := &config.RuleConfig{Type: "fields", KeyField: 1, Fields: []int{2, 3}}
	if err := config.ValidateRule(rule); err != nil {
		t.Fatalf("ValidateRule() error = %v", err)
	}

	actual := newStream(t, "0 C000 A:01 X:00", "1 C002 A:00 X:00")
	expected := newStream(t, "0 C000 A:00 X:00", "1 C002 A:00")

	result := runCompare(t, actual, expected, rule)

	if len(result.Mismatches) != 2 {
		t.Fatalf("Mismatches = %d, want 2: %+v", len(result.Mismatches), result.Mismatches)
	}
	if got := result.Mismatches[0]; got.Kind != KindField || got.Key != "C000" {
		t.Errorf("first mismatch = %+v, want field mismatch keyed C000", got)
	}
	if got := result.Mismatches[1]; got.Kind != KindMalformed || got.Key != "C002" {
		t.Errorf("second mismatch = %+v, want malformed keyed C002", got)
	}
}

func TestCompare_MalformedSkip(t *testing.T) {
	actual := newStream(t, "a 1 X", "", "c 3 Z")
	expected := newStream(t, "a 1 X", "b 2 Y", "c 3 Z")

	c := mustComparator(t, tailRule(t))
	result, err := Compare(context.Background(), actual, expected, c, WithMalformedPolicy(config.MalformedSkip))
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if result.HasMismatches() {
		t.Errorf("Mismatches = %+v, want none", result.Mismatches)
	}
	if result.Stats.Malformed != 1 {
		t.Errorf("Malformed = %d, want 1", result.Stats.Malformed)
	}
}

func TestCompare_MalformedFail(t *testing.T) {
	actual := newStream(t, "a 1 X", "b 2 Y")
	expected := newStream(t, "a 1 X", "")

	c := mustComparator(t, tailRule(t))
	_, err := Compare(context.Background(), actual, expected, c, WithMalformedPolicy(config.MalformedFail))

	var fie *FieldIndexError
	if !errors.As(err, &fie) {
		t.Fatalf("Compare() error = %v, want *FieldIndexError", err)
	}
	if fie.Index != 1 || fie.Side != SideExpected || fie.Need != 1 || fie.Have != 0 {
		t.Errorf("FieldIndexError = %+v", fie)
	}
}

func TestCompare_TailSingleTokenMatch(t *testing.T) {
	// Diagnostics are only read for mismatching pairs.
	result := runCompare(t, newStream(t, "SP:FD"), newStream(t, "SP:FD"), tailRule(t))

	if result.HasMismatches() {
		t.Errorf("Mismatches = %+v, want none", result.Mismatches)
	}
}

func TestCompare_TailSingleTokenMismatch(t *testing.T) {
	result := runCompare(t, newStream(t, "SP:FD"), newStream(t, "SP:FE"), tailRule(t))

	if result.CountKind(KindMalformed) != 1 {
		t.Errorf("Mismatches = %+v, want one malformed record", result.Mismatches)
	}
}

func TestCompare_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := mustComparator(t, tailRule(t))
	_, err := Compare(ctx, newStream(t, "a"), newStream(t, "a"), c)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Compare() error = %v, want context.Canceled", err)
	}
}

func TestNewComparator(t *testing.T) {
	tests := []struct {
		ruleType string
		want     config.RuleType
	}{
		{"tail", config.RuleTypeTail},
		{"positional", config.RuleTypePositional},
		{"fields", config.RuleTypeFields},
	}

	for _, tt := range tests {
		t.Run(tt.ruleType, func(t *testing.T) {
			rule := &config.RuleConfig{Name: "test", Type: tt.ruleType, Fields: []int{-1}}
			if err := config.ValidateRule(rule); err != nil {
				t.Fatalf("ValidateRule() error = %v", err)
			}
			c, err := NewComparator(rule)
			if err != nil {
				t.Fatalf("NewComparator() error = %v", err)
			}
			if c.Type() != tt.want {
				t.Errorf("Type() = %v, want %v", c.Type(), tt.want)
			}
			if c.Name() != "test" {
				t.Errorf("Name() = %q, want %q", c.Name(), "test")
			}
		})
	}
}

func TestNewComparator_UnknownType(t *testing.T) {
	_, err := NewComparator(&config.RuleConfig{Name: "x", Type: "fuzzy"})
	if err == nil {
		t.Error("NewComparator() expected error for unknown type")
	}
}

func TestNewTailComparator_WrongType(t *testing.T) {
	_, err := NewTailComparator(&config.RuleConfig{Name: "x", Type: "positional"})
	if err == nil {
		t.Error("NewTailComparator() expected error for wrong type")
	}
}

func TestNewPositionalComparator_Unvalidated(t *testing.T) {
	_, err := NewPositionalComparator(&config.RuleConfig{Name: "x", Type: "positional"})
	if err == nil {
		t.Error("NewPositionalComparator() expected error for unvalidated rule")
	}
}

func tailRule(t *testing.T) *config.RuleConfig {
	t.Helper()
	rule := &config.RuleConfig{Type: "tail"}
	if err := config.ValidateRule(rule); err != nil {
		t.Fatalf("ValidateRule() error = %v", err)
	}
	return rule
}

func positionalRule(t *testing.T) *config.RuleConfig {
	t.Helper()
	rule := &config.RuleConfig{Type: "positional"}
	if err := config.ValidateRule(rule); err != nil {
		t.Fatalf("ValidateRule() error = %v", err)
	}
	return rule
}

func mustComparator(t *testing.T, rule *config.RuleConfig) Comparator {
	t.Helper()
	c, err := NewComparator(rule)
	if err != nil {
		t.Fatalf("NewComparator() error = %v", err)
	}
	return c
}

func runCompare(t *testing.T, actual, expected *trace.Stream, rule *config.RuleConfig) *Result {
	t.Helper()
	result, err := Compare(context.Background(), actual, expected, mustComparator(t, rule))
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	return result
}

func newStream(t *testing.T, lines ...string) *trace.Stream {
	t.Helper()
	return newStreamOpts(t, lines, nil)
}

// newColumnStream loads lines with the default nestest column extraction.
func newColumnStream(t *testing.T, lines ...string) *trace.Stream {
	t.Helper()
	return newStreamOpts(t, lines, []trace.Option{trace.WithColumn(config.DefaultExpectedColumns)})
}

func newStreamOpts(t *testing.T, lines []string, opts []trace.Option) *trace.Stream {
	t.Helper()
	input := ""
	if len(lines) > 0 {
		input = strings.Join(lines, "\n") + "\n"
	}
	s, err := trace.Parse(context.Background(), strings.NewReader(input), "test.log", opts...)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return s
}

func padTo(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
