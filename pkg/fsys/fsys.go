// Package fsys holds the filesystem collaborators used by the cache and the
// change-detection engine: a stat source that includes creation time, an
// 8-byte content fingerprint, and a directory walker producing relative keys.
//
// The cache and the engine only depend on the interfaces, so tests can swap
// in fakes that count calls or return fixed metadata.
package fsys

import (
	"time"
)

// Hash is an 8-byte content fingerprint.
type Hash [8]byte

// FileStat is the subset of file metadata the cache tracks.
type FileStat struct {
	Created  time.Time
	Modified time.Time
	Size     int64
}

// Statter returns the metadata of a single file.
type Statter interface {
	Stat(absPath string) (FileStat, error)
}

// Fingerprinter returns a deterministic fingerprint of a file's contents.
type Fingerprinter interface {
	Fingerprint(absPath string) (Hash, error)
}

// Walker lists every regular file and directory under root as forward-slash
// relative keys. The root itself is not included.
type Walker interface {
	Walk(root string) (files, dirs []string, err error)
}
