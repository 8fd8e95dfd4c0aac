package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-filediff/pkg/buildinfo"
	"github.com/paulschiretz/pgl-filediff/pkg/config"
	"github.com/paulschiretz/pgl-filediff/pkg/flagparse"
	"github.com/paulschiretz/pgl-filediff/pkg/lockfile"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
	"github.com/paulschiretz/pgl-filediff/pkg/preflight"
)

// RunInit writes a configuration file into the sync root. Existing settings
// are kept unless -default is given.
func RunInit(ctx context.Context, flagMap map[string]any) error {
	syncPath, ok := flagMap["sync"].(string)
	if !ok || syncPath == "" {
		return fmt.Errorf("the -sync flag is required for the init operation")
	}
	absSyncPath, err := filepath.Abs(syncPath)
	if err != nil {
		return fmt.Errorf("could not determine absolute sync path for %s: %w", syncPath, err)
	}

	initDefault, _ := flagMap["default"].(bool)
	force, _ := flagMap["force"].(bool)

	var baseConfig config.Config
	if initDefault {
		configPath := filepath.Join(absSyncPath, config.ConfigFileName)
		if _, err := os.Stat(configPath); err == nil && !force {
			fmt.Printf("WARNING: Configuration file already exists at %s.\n", configPath)
			fmt.Printf("Using -default will overwrite it with default values. All custom settings will be lost.\n")
			if !PromptForConfirmation("Are you sure you want to continue?", false) {
				plog.Info(buildinfo.Name + " init operation canceled.")
				return nil
			}
		}
		baseConfig = config.NewDefault()
		baseConfig.SyncRoot = absSyncPath
	} else {
		// config.Load already yields defaults for a missing file, so only a
		// broken file lands here.
		baseConfig, err = config.Load(absSyncPath)
		if err != nil {
			plog.Warn("Could not load existing configuration, starting with defaults.", "reason", err)
			baseConfig = config.NewDefault()
			baseConfig.SyncRoot = absSyncPath
		}
	}

	runConfig := config.MergeConfigWithFlags(flagparse.Init, baseConfig, flagMap)
	runConfig.SyncRoot = absSyncPath
	// The main root is not stored; it is only checked when given.
	requireRoots := runConfig.MainRoot != ""
	if err := runConfig.Validate(requireRoots); err != nil {
		return err
	}
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	startTime := time.Now()
	if err := preflight.CheckRootAccessible("sync", runConfig.SyncRoot); err != nil {
		return fmt.Errorf("initialization preflight failed: %w", err)
	}
	if requireRoots {
		if err := preflight.Run(runConfig.MainRoot, runConfig.SyncRoot, preflight.Plan{RootsAccessible: true, RootsDistinct: true}); err != nil {
			return fmt.Errorf("initialization preflight failed: %w", err)
		}
	}

	if runConfig.Runtime.DryRun {
		plog.Info("[DRY RUN] Initialization complete. No changes made.")
		return nil
	}
	if err := preflight.CheckRootWritable(runConfig.SyncRoot); err != nil {
		return fmt.Errorf("initialization preflight failed: %w", err)
	}

	lock, err := lockfile.Acquire(ctx, runConfig.SyncRoot, flagparse.Init.String())
	if err != nil {
		return fmt.Errorf("failed to acquire lock on sync directory: %w", err)
	}
	defer lock.Release()

	if err := config.Generate(runConfig); err != nil {
		return fmt.Errorf("failed to generate config file: %w", err)
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	plog.Info(buildinfo.Name+" sync directory successfully initialized.", "duration", duration)
	return nil
}
