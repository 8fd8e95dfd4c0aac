package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/paulschiretz/pgl-filediff/pkg/buildinfo"
	"github.com/paulschiretz/pgl-filediff/pkg/flagparse"
	"github.com/paulschiretz/pgl-filediff/pkg/pathsync"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
)

// RunSync detects the changes, asks for each category and applies the
// approved ones to the sync root. ErrIncomplete is returned when anything
// was declined or failed.
func RunSync(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(flagparse.Sync, flagMap)
	if err != nil {
		return err
	}
	runConfig.LogSummary()

	s, err := openSession(ctx, flagparse.Sync, runConfig)
	if err != nil {
		return err
	}
	defer s.close()

	if runConfig.Runtime.CacheOnly {
		err := s.rebuildCaches(ctx)
		exportMetrics(runConfig, s.detect, nil, err == nil)
		return err
	}

	startTime := time.Now()
	cs, err := s.engine.Detect(ctx, s.mainSide, s.syncSide)
	if err != nil {
		exportMetrics(runConfig, s.detect, nil, false)
		return err
	}
	cs.LogSummary()
	s.detect.LogSummary("Detection finished")
	if cs.IsEmpty() {
		s.saveCaches()
		exportMetrics(runConfig, s.detect, nil, true)
		return nil
	}

	var m pathsync.Metrics = &pathsync.NoopMetrics{}
	if runConfig.Engine.Metrics || runConfig.Runtime.MetricsFile != "" {
		m = &pathsync.SyncMetrics{}
	}
	syncer := pathsync.New(pathsync.Options{
		DryRun:     runConfig.Runtime.DryRun,
		UseTrash:   runConfig.Trash.Enabled,
		TrashDir:   runConfig.Trash.Dir,
		Workers:    runConfig.Engine.Workers,
		RetryCount: runConfig.Sync.RetryCount,
		RetryWait:  runConfig.RetryWait(),
		BufferSize: runConfig.Engine.BufferSizeKB * 1024,
	}, newConfirmer(runConfig.Runtime.AutoYes, runConfig.Runtime.DryRun), s.stat, m)

	m.StartProgress("Synchronization progress", 10*time.Second)
	res, err := syncer.Apply(ctx, cs, s.mainSide, s.syncSide)
	m.StopProgress()
	m.LogSummary("Synchronization finished")

	// Both stores reflect what was actually applied, so they are saved even
	// after an interruption.
	s.saveCaches()
	exportMetrics(runConfig, s.detect, m, err == nil && res.Complete())
	if err != nil {
		return err
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	if runConfig.Runtime.DryRun {
		plog.Info("[DRY RUN] "+buildinfo.Name+" sync finished. No changes made.", "duration", duration)
		return nil
	}
	if !res.Complete() {
		plog.Warn(buildinfo.Name+" sync finished with unapplied changes.",
			"applied", res.Applied, "failed", res.Failed, "declined", fmt.Sprint(res.Declined), "duration", duration)
		return ErrIncomplete
	}
	plog.Info(buildinfo.Name+" sync finished successfully.", "applied", res.Applied, "duration", duration)
	return nil
}
