package trace

import "fmt"

// FileAccessError reports that a trace file could not be opened or read.
// The whole load is aborted; no partial stream is returned.
type FileAccessError struct {
	Path string
	Op   string // "open" or "read"
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("%s trace %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error {
	return e.Err
}
