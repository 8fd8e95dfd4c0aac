package pathsync

import (
	"fmt"

	"github.com/paulschiretz/pgl-filediff/pkg/hints"
)

// ErrDeclined marks a category that was not confirmed.
var ErrDeclined = hints.New("declined by user")

// PathError records a failed filesystem operation on one relative path. The
// synchronizer logs it and moves on to the next path.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }
