package cmd

import (
	"fmt"
	"runtime"

	"github.com/paulschiretz/pgl-filediff/pkg/buildinfo"
)

// RunVersion prints the application version and the platform it was built for.
func RunVersion() error {
	fmt.Printf("%s version %s (%s %s/%s)\n", buildinfo.Name, buildinfo.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}
