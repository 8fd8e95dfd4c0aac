//go:build !linux && !darwin && !windows

package fsys

import (
	"os"
	"time"
)

// creationTime has no portable source here; the modification time stands in.
func creationTime(_ string, info os.FileInfo) time.Time {
	return info.ModTime()
}
