package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-filediff/pkg/config"
	"github.com/paulschiretz/pgl-filediff/pkg/dircache"
	"github.com/paulschiretz/pgl-filediff/pkg/flagparse"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
)

// RunCache prints the cached tree of one root. Unlike a diff run, a
// malformed cache file is reported as an error here.
func RunCache(flagMap map[string]any) error {
	root, ok := flagMap["root"].(string)
	if !ok || root == "" {
		return fmt.Errorf("the -root flag is required for the cache operation")
	}

	loaded, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	runConfig := config.MergeConfigWithFlags(flagparse.Cache, loaded, flagMap)
	if err := runConfig.Validate(false); err != nil {
		return err
	}
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	cachePath := filepath.Join(loaded.SyncRoot, runConfig.Cache.FileName)
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}
	tree, err := dircache.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode cache file %s: %w", cachePath, err)
	}

	out := bufio.NewWriter(os.Stdout)
	if err := dircache.Dump(out, tree); err != nil {
		return fmt.Errorf("failed to print cache: %w", err)
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("failed to print cache: %w", err)
	}

	dirs, files := tree.Count()
	plog.Debug("Cache printed", "path", cachePath, "dirs", dirs, "files", files)
	return nil
}
