package differ

import (
	"fmt"

	"github.com/ccollicutt/tracediff/pkg/config"
	"github.com/ccollicutt/tracediff/pkg/trace"
)

// Comparator checks one line pair under a comparison rule.
// Each rule variant (tail, positional, fields) implements this interface.
type Comparator interface {
	// Name returns the rule name for reporting.
	Name() string

	// Type returns the rule type.
	Type() RuleType

	// Description returns the rule's description, if any.
	Description() string

	// KeyField returns the token index used as the record key.
	KeyField() int

	// Compare returns nil when the pair matches, or a mismatch carrying the
	// key and diagnostic fields. Index and line numbers are filled in by the
	// caller. A line with too few tokens yields a *FieldIndexError.
	Compare(actual, expected *trace.Record) (*Mismatch, error)
}

// NewComparator creates the comparator for a validated rule.
func NewComparator(rule *config.RuleConfig) (Comparator, error) {
	switch rule.RuleTypeEnum() {
	case config.RuleTypeTail:
		return NewTailComparator(rule)
	case config.RuleTypePositional:
		return NewPositionalComparator(rule)
	case config.RuleTypeFields:
		return NewFieldsComparator(rule)
	default:
		return nil, fmt.Errorf("unknown rule type: %s", rule.Type)
	}
}

// ruleInfo holds the identity shared by all comparators.
type ruleInfo struct {
	name        string
	ruleType    RuleType
	description string
	keyField    int
}

func (r ruleInfo) Name() string        { return r.name }
func (r ruleInfo) Type() RuleType      { return r.ruleType }
func (r ruleInfo) Description() string { return r.description }
func (r ruleInfo) KeyField() int        { return r.keyField }

func newRuleInfo(rule *config.RuleConfig, want config.RuleType) (ruleInfo, error) {
	if rule.RuleTypeEnum() != want {
		return ruleInfo{}, fmt.Errorf("rule %q is not a %s rule", rule.Name, want)
	}
	return ruleInfo{
		name:        rule.Name,
		ruleType:    want,
		description: rule.Description,
		keyField:    rule.KeyField,
	}, nil
}

// token returns the token at index i of rec, or a *FieldIndexError.
func token(rec *trace.Record, side Side, i int) (string, error) {
	v, ok := rec.Token(i)
	if !ok {
		return "", &FieldIndexError{
			Line: rec.LineNum,
			Side: side,
			Need: needed(i),
			Have: len(rec.Tokens),
		}
	}
	return v, nil
}

// tokens returns the tokens at each index, in order.
func tokens(rec *trace.Record, side Side, idx []int) ([]string, error) {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		v, err := token(rec, side, i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// needed is the minimum token count that makes index i valid.
func needed(i int) int {
	if i < 0 {
		return -i
	}
	return i + 1
}

// TailComparator compares a single tail token, the last one by default.
type TailComparator struct {
	ruleInfo
	field         int
	actualDiags   []int
	expectedDiags []int
}

// NewTailComparator creates a tail comparator from a validated rule.
func NewTailComparator(rule *config.RuleConfig) (*TailComparator, error) {
	info, err := newRuleInfo(rule, config.RuleTypeTail)
	if err != nil {
		return nil, err
	}
	if len(rule.Fields) != 1 {
		return nil, fmt.Errorf("rule %q has unvalidated fields %v", rule.Name, rule.Fields)
	}

	return &TailComparator{
		ruleInfo:      info,
		field:         rule.Fields[0],
		actualDiags:   rule.ActualDiagnostics,
		expectedDiags: rule.ExpectedDiagnostics,
	}, nil
}

// Compare checks the tail token of both records.
func (c *TailComparator) Compare(actual, expected *trace.Record) (*Mismatch, error) {
	av, err := token(actual, SideActual, c.field)
	if err != nil {
		return nil, err
	}
	ev, err := token(expected, SideExpected, c.field)
	if err != nil {
		return nil, err
	}
	if av == ev {
		return nil, nil
	}

	return c.mismatch(actual, expected)
}

func (c *TailComparator) mismatch(actual, expected *trace.Record) (*Mismatch, error) {
	key, err := token(actual, SideActual, c.keyField)
	if err != nil {
		return nil, err
	}
	a, err := tokens(actual, SideActual, c.actualDiags)
	if err != nil {
		return nil, err
	}
	e, err := tokens(expected, SideExpected, c.expectedDiags)
	if err != nil {
		return nil, err
	}

	return &Mismatch{Kind: KindField, Key: key, Actual: a, Expected: e}, nil
}

// PositionalComparator requires equal key tokens and one designated field
// on each side to agree. The expected value comes either from a token or
// from the fixed-column text extracted at load time.
type PositionalComparator struct {
	ruleInfo
	actualField   int
	expectedField *int
	actualDiags   []int
	expectedDiags []int
}

// NewPositionalComparator creates a positional comparator from a validated rule.
func NewPositionalComparator(rule *config.RuleConfig) (*PositionalComparator, error) {
	info, err := newRuleInfo(rule, config.RuleTypePositional)
	if err != nil {
		return nil, err
	}
	if rule.ActualField == nil {
		return nil, fmt.Errorf("rule %q has no actual_field", rule.Name)
	}
	if rule.ExpectedField == nil && rule.ExpectedColumns == nil {
		return nil, fmt.Errorf("rule %q has neither expected_field nor expected_columns", rule.Name)
	}

	return &PositionalComparator{
		ruleInfo:      info,
		actualField:   *rule.ActualField,
		expectedField: rule.ExpectedField,
		actualDiags:   rule.ActualDiagnostics,
		expectedDiags: rule.ExpectedDiagnostics,
	}, nil
}

// Compare checks the key and the designated field of both records.
func (c *PositionalComparator) Compare(actual, expected *trace.Record) (*Mismatch, error) {
	ak, err := token(actual, SideActual, c.keyField)
	if err != nil {
		return nil, err
	}
	ek, err := token(expected, SideExpected, c.keyField)
	if err != nil {
		return nil, err
	}
	av, err := token(actual, SideActual, c.actualField)
	if err != nil {
		return nil, err
	}
	ev, err := c.expectedValue(expected)
	if err != nil {
		return nil, err
	}

	if ak == ek && av == ev {
		return nil, nil
	}

	a, err := tokens(actual, SideActual, c.actualDiags)
	if err != nil {
		return nil, err
	}
	e, err := tokens(expected, SideExpected, c.expectedDiags)
	if err != nil {
		return nil, err
	}

	return &Mismatch{Kind: KindField, Key: ak, Actual: a, Expected: append(e, ev)}, nil
}

func (c *PositionalComparator) expectedValue(rec *trace.Record) (string, error) {
	if c.expectedField != nil {
		return token(rec, SideExpected, *c.expectedField)
	}
	return rec.Column, nil
}

// FieldsComparator compares a list of token indices on both sides and
// reports only the fields that differ.
type FieldsComparator struct {
	ruleInfo
	fields []int
}

// NewFieldsComparator creates a fields comparator from a validated rule.
func NewFieldsComparator(rule *config.RuleConfig) (*FieldsComparator, error) {
	info, err := newRuleInfo(rule, config.RuleTypeFields)
	if err != nil {
		return nil, err
	}
	if len(rule.Fields) == 0 {
		return nil, fmt.Errorf("rule %q has no fields", rule.Name)
	}

	return &FieldsComparator{ruleInfo: info, fields: rule.Fields}, nil
}

// Compare checks every configured field of both records.
func (c *FieldsComparator) Compare(actual, expected *trace.Record) (*Mismatch, error) {
	var a, e []string
	for _, f := range c.fields {
		av, err := token(actual, SideActual, f)
		if err != nil {
			return nil, err
		}
		ev, err := token(expected, SideExpected, f)
		if err != nil {
			return nil, err
		}
		if av != ev {
			a = append(a, av)
			e = append(e, ev)
		}
	}

	if len(a) == 0 {
		return nil, nil
	}

	key, err := token(actual, SideActual, c.keyField)
	if err != nil {
		return nil, err
	}

	return &Mismatch{Kind: KindField, Key: key, Actual: a, Expected: e}, nil
}
