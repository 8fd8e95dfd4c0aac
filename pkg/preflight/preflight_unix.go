//go:build !windows

package preflight

// checkVolumeExists is a no-op on Unix; a missing mount surfaces as a missing root.
func checkVolumeExists(string) error { return nil }

func foldCase(p string) string { return p }
