package trace

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/ccollicutt/tracediff/internal/logging"
)

// maxLineSize bounds a single trace line.
const maxLineSize = 1024 * 1024

// Option configures how a trace is loaded.
type Option func(*loadOptions)

type loadOptions struct {
	column *ColumnRange
	limit  int
}

// WithColumn extracts the given fixed-column range of each raw line into
// Record.Column.
func WithColumn(cr ColumnRange) Option {
	return func(o *loadOptions) {
		o.column = &cr
	}
}

// WithLimit stops reading once n non-blank lines have been loaded. Blank
// lines read before that point are kept. n <= 0 reads the whole trace.
func WithLimit(n int) Option {
	return func(o *loadOptions) {
		o.limit = n
	}
}

// Load reads the trace file at path into memory.
// Files ending in .gz or .zst are decompressed transparently.
func Load(ctx context.Context, path string, opts ...Option) (*Stream, error) {
	f, err := os.Open(path) // #nosec G304 -- user-provided trace path is expected
	if err != nil {
		return nil, &FileAccessError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	r, closeFn, err := decompress(path, f)
	if err != nil {
		return nil, &FileAccessError{Path: path, Op: "read", Err: err}
	}
	defer closeFn()

	stream, err := Parse(ctx, r, path, opts...)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("loaded trace",
		zap.String("path", path),
		zap.Int("lines", stream.Len()))

	return stream, nil
}

// Parse reads a trace from r. source is recorded on the stream and used in
// error messages.
func Parse(ctx context.Context, r io.Reader, source string, opts ...Option) (*Stream, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	stream := &Stream{
		Source:  source,
		Records: make([]Record, 0, 1024),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum, nonBlank := 0, 0
	for scanner.Scan() {
		// Check for context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		lineNum++
		line := scanner.Text()

		rec := Record{
			Raw:     line,
			Tokens:  Tokenize(line),
			LineNum: lineNum,
		}
		if o.column != nil {
			rec.Column = o.column.Extract(line)
		}
		stream.Records = append(stream.Records, rec)

		if len(rec.Tokens) > 0 {
			nonBlank++
		}
		if o.limit > 0 && nonBlank >= o.limit {
			return stream, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &FileAccessError{Path: source, Op: "read", Err: err}
	}

	return stream, nil
}

// decompress wraps f in a decoder chosen by the file extension.
func decompress(path string, f *os.File) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return f, func() {}, nil
	}
}
