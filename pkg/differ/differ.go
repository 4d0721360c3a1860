package differ

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ccollicutt/tracediff/internal/logging"
	"github.com/ccollicutt/tracediff/pkg/config"
	"github.com/ccollicutt/tracediff/pkg/trace"
)

// Option configures a comparison run.
type Option func(*options)

type options struct {
	onMalformed config.MalformedPolicy
	checkLength bool
}

// WithMalformedPolicy sets how line pairs with too few tokens are handled.
func WithMalformedPolicy(p config.MalformedPolicy) Option {
	return func(o *options) {
		if p != "" {
			o.onMalformed = p
		}
	}
}

// WithLengthCheck appends a length mismatch when the streams differ in length.
func WithLengthCheck(v bool) Option {
	return func(o *options) {
		o.checkLength = v
	}
}

// Compare walks both streams pairwise up to the length of the shorter one
// and returns every mismatch in line order. It never stops early and never
// mutates the streams, so repeated runs yield the same mismatches.
func Compare(ctx context.Context, actual, expected *trace.Stream, cmp Comparator, opts ...Option) (*Result, error) {
	o := &options{onMalformed: config.MalformedReport}
	for _, opt := range opts {
		opt(o)
	}

	result := &Result{
		Rule:        cmp.Name(),
		RuleType:    cmp.Type(),
		Description: cmp.Description(),
		Mismatches:  make([]Mismatch, 0),
		Stats: Stats{
			ActualLines:   actual.Len(),
			ExpectedLines: expected.Len(),
			StartTime:     time.Now(),
		},
	}

	n := min(actual.Len(), expected.Len())
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		a := &actual.Records[i]
		e := &expected.Records[i]
		result.Stats.Compared++

		m, err := cmp.Compare(a, e)

		var fie *FieldIndexError
		if errors.As(err, &fie) {
			fie.Index = i
			result.Stats.Malformed++

			switch o.onMalformed {
			case config.MalformedSkip:
				continue
			case config.MalformedFail:
				return nil, fie
			default:
				result.Mismatches = append(result.Mismatches, malformed(i, cmp.KeyField(), a, e, fie))
				continue
			}
		}
		if err != nil {
			return nil, fmt.Errorf("comparing line pair %d: %w", i, err)
		}

		if m == nil {
			result.Stats.Matched++
			continue
		}

		m.Index = i
		m.ActualLine = a.LineNum
		m.ExpectedLine = e.LineNum
		result.Mismatches = append(result.Mismatches, *m)
	}

	if o.checkLength && actual.Len() != expected.Len() {
		result.Mismatches = append(result.Mismatches, lengthMismatch(n, actual, expected))
	}

	result.Stats.EndTime = time.Now()

	logging.FromContext(ctx).Debug("comparison finished",
		zap.String("rule", result.Rule),
		zap.Int("compared", result.Stats.Compared),
		zap.Int("matched", result.Stats.Matched),
		zap.Int("malformed", result.Stats.Malformed),
		zap.Int("mismatches", len(result.Mismatches)),
		zap.Duration("duration", result.Stats.EndTime.Sub(result.Stats.StartTime)))

	return result, nil
}

func malformed(i, keyField int, a, e *trace.Record, fie *FieldIndexError) Mismatch {
	key, _ := a.Token(keyField)
	return Mismatch{
		Kind:         KindMalformed,
		Index:        i,
		ActualLine:   a.LineNum,
		ExpectedLine: e.LineNum,
		Key:          key,
		Reason: fmt.Sprintf("%s line %d needs %d fields, has %d",
			fie.Side, fie.Line, fie.Need, fie.Have),
	}
}

func lengthMismatch(n int, actual, expected *trace.Stream) Mismatch {
	return Mismatch{
		Kind:     KindLength,
		Index:    n,
		Key:      "length",
		Actual:   []string{strconv.Itoa(actual.Len())},
		Expected: []string{strconv.Itoa(expected.Len())},
		Reason: fmt.Sprintf("actual has %d lines, expected has %d lines",
			actual.Len(), expected.Len()),
	}
}
