package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/paulschiretz/pgl-filediff/pkg/buildinfo"
	"github.com/paulschiretz/pgl-filediff/pkg/filediff"
	"github.com/paulschiretz/pgl-filediff/pkg/flagparse"
	"github.com/paulschiretz/pgl-filediff/pkg/hints"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
)

// RunDiff detects and reports the changes between both roots, then
// persists the refreshed caches.
func RunDiff(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(flagparse.Diff, flagMap)
	if err != nil {
		return err
	}
	runConfig.LogSummary()

	s, err := openSession(ctx, flagparse.Diff, runConfig)
	if err != nil {
		return err
	}
	defer s.close()

	startTime := time.Now()
	if runConfig.Runtime.CacheOnly {
		err := s.rebuildCaches(ctx)
		exportMetrics(runConfig, s.detect, nil, err == nil)
		return err
	}

	cs, err := s.engine.Detect(ctx, s.mainSide, s.syncSide)
	if err != nil {
		exportMetrics(runConfig, s.detect, nil, false)
		return err
	}
	s.saveCaches()

	out := bufio.NewWriter(os.Stdout)
	if err := cs.WriteReport(out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if runConfig.Runtime.Preview {
		writePreviews(out, cs, s.mainSide.Root, s.syncSide.Root)
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	cs.LogSummary()
	s.detect.LogSummary("Detection finished")
	exportMetrics(runConfig, s.detect, nil, true)
	plog.Info(buildinfo.Name+" diff finished.", "duration", time.Since(startTime).Round(time.Millisecond))
	return nil
}

func writePreviews(out *bufio.Writer, cs *filediff.ChangeSet, mainRoot, syncRoot string) {
	for _, key := range cs.FileModifications {
		fmt.Fprintln(out)
		err := filediff.WritePreview(out, mainRoot, syncRoot, key)
		switch {
		case err == nil:
		case hints.IsHint(err):
			fmt.Fprintf(out, "Binary or large file %s differs\n", key)
		default:
			plog.Warn("Failed to render preview", "path", key, "error", err)
		}
	}
}
