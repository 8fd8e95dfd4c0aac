package util

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Permission constants for file and directory modes.
const (
	// PermUserWrite is the user-write permission bit (0200).
	PermUserWrite os.FileMode = 0200

	// UserWritableDirPerms represents the standard permissions for newly created directories (rwxr-xr-x).
	UserWritableDirPerms os.FileMode = 0755
	// UserWritableFilePerms represents the standard permissions for newly created files (rw-r--r--).
	UserWritableFilePerms os.FileMode = 0644
)

// WithUserWritePermission ensures that any directory/file permission has the owner-write
// bit (0200) set. This keeps the sync tree writable on subsequent runs.
func WithUserWritePermission(basePerm os.FileMode) os.FileMode {
	return basePerm | PermUserWrite
}

// ExpandPath expands the tilde (~) prefix in a path to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// InvertMap takes a map[K]V and returns a map[V]K.
// It's a generic helper for creating reverse lookup maps for enums.
func InvertMap[K comparable, V comparable](m map[K]V) map[V]K {
	inv := make(map[V]K, len(m))
	for k, v := range m {
		inv[v] = k
	}
	return inv
}

// NormalizedRelPath converts a platform relative path into the forward-slash
// form used for cache keys and change sets. A leading "./" is dropped.
func NormalizedRelPath(rel string) string {
	p := path.Clean(filepath.ToSlash(rel))
	return strings.TrimPrefix(p, "./")
}

// DenormalizedAbsPath joins a forward-slash relative key onto a platform root.
func DenormalizedAbsPath(root, relKey string) string {
	return filepath.Join(root, filepath.FromSlash(relKey))
}

// IsWithin reports whether relKey equals dirKey or lies below it.
// Both are forward-slash relative keys; the check is segment aware, so
// "ab/c" is not within "a".
func IsWithin(relKey, dirKey string) bool {
	if dirKey == "" || dirKey == "." {
		return true
	}
	return relKey == dirKey || strings.HasPrefix(relKey, dirKey+"/")
}

// SplitRel splits a forward-slash relative key into its parent key and base
// name. The parent of a top-level entry is the empty string.
func SplitRel(relKey string) (dir, name string) {
	i := strings.LastIndexByte(relKey, '/')
	if i < 0 {
		return "", relKey
	}
	return relKey[:i], relKey[i+1:]
}

// ByteCountIEC formats a byte count using binary prefixes (KiB, MiB, ...).
func ByteCountIEC(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
