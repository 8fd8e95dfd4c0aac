//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// checkVolumeExists verifies that the drive or share of path is present,
// e.g. "Z:\" for "Z:\photos".
func checkVolumeExists(path string) error {
	volume := filepath.VolumeName(path)
	if volume == "" {
		return nil
	}
	root := volume
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	if _, err := os.Stat(filepath.Clean(root)); os.IsNotExist(err) {
		return fmt.Errorf("volume %s does not exist. Ensure the drive is connected", root)
	}
	return nil
}

// NTFS is case-insensitive, so "C:\Data" and "c:\data" are the same root.
func foldCase(p string) string { return strings.ToLower(p) }
