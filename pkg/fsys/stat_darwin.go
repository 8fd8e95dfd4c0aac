//go:build darwin

package fsys

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func creationTime(absPath string, info os.FileInfo) time.Time {
	var st unix.Stat_t
	if err := unix.Stat(absPath, &st); err != nil {
		return info.ModTime()
	}
	return time.Unix(st.Birthtimespec.Unix())
}
