package fsys

import (
	"fmt"
	"os"
)

// OSStat reads metadata from the live filesystem.
type OSStat struct{}

// Stat implements Statter.
func (OSStat) Stat(absPath string) (FileStat, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return FileStat{}, err
	}
	if info.IsDir() {
		return FileStat{}, fmt.Errorf("%s is a directory", absPath)
	}
	return FileStat{
		Created:  creationTime(absPath, info),
		Modified: info.ModTime(),
		Size:     info.Size(),
	}, nil
}

var _ Statter = OSStat{}
