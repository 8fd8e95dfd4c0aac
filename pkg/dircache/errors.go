package dircache

import (
	"fmt"

	"github.com/paulschiretz/pgl-filediff/pkg/hints"
)

// ErrNotFound is returned when a path has no entry in the cache. It is a
// hint: callers usually fall back to AddCache or ignore it.
var ErrNotFound = hints.New("path not found in cache")

// FormatError reports a malformed cache stream. Offset is the position in
// the decoded stream (header plus decompressed body) where decoding stopped.
type FormatError struct {
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed cache data at offset %d: %s", e.Offset, e.Reason)
}

func formatErrorf(offset int, format string, args ...any) *FormatError {
	return &FormatError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
