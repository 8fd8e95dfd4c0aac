package cmd_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-filediff/cmd"
	"github.com/paulschiretz/pgl-filediff/pkg/config"
	"github.com/paulschiretz/pgl-filediff/pkg/hints"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", rel, err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}

// captureStdout runs fn with os.Stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	runErr := fn()
	_ = w.Close()
	return <-done, runErr
}

func newRoots(t *testing.T) (string, string) {
	t.Helper()
	mainRoot, syncRoot := t.TempDir(), t.TempDir()
	writeFile(t, mainRoot, "a.txt", "alpha")
	writeFile(t, mainRoot, "x/y.txt", "yy")
	writeFile(t, mainRoot, "w.txt", "same")
	writeFile(t, syncRoot, "w.txt", "same")
	writeFile(t, syncRoot, "z.txt", "zzz")
	writeFile(t, syncRoot, "old/q.txt", "q")
	return mainRoot, syncRoot
}

func TestRunDiff_Report(t *testing.T) {
	mainRoot, syncRoot := newRoots(t)

	out, err := captureStdout(t, func() error {
		return cmd.RunDiff(context.Background(), map[string]any{"main": mainRoot, "sync": syncRoot, "yes": true})
	})
	if err != nil {
		t.Fatalf("expected diff to succeed, got: %v", err)
	}

	expected := "D+ x\nF+ a.txt\nF+ x/y.txt\nF- z.txt\nD- old\n"
	if out != expected {
		t.Errorf("expected report %q, got %q", expected, out)
	}

	// Diff persists both caches and leaves the trees untouched.
	for _, root := range []string{mainRoot, syncRoot} {
		if _, err := os.Stat(filepath.Join(root, ".fdc")); err != nil {
			t.Errorf("expected cache file in %s, got %v", root, err)
		}
	}
	if _, err := os.Stat(filepath.Join(syncRoot, "z.txt")); err != nil {
		t.Errorf("expected z.txt to remain after diff, got %v", err)
	}
}

func TestRunSync_EndToEnd(t *testing.T) {
	mainRoot, syncRoot := newRoots(t)
	metricsFile := filepath.Join(t.TempDir(), "filediff.prom")

	_, err := captureStdout(t, func() error {
		return cmd.RunSync(context.Background(), map[string]any{
			"main": mainRoot, "sync": syncRoot, "yes": true, "metrics-file": metricsFile,
		})
	})
	if err != nil {
		t.Fatalf("expected sync to succeed, got: %v", err)
	}

	if got := readFile(t, syncRoot, "a.txt"); got != "alpha" {
		t.Errorf("expected a.txt to be copied, got %q", got)
	}
	if got := readFile(t, syncRoot, "x/y.txt"); got != "yy" {
		t.Errorf("expected x/y.txt to be copied, got %q", got)
	}
	if got := readFile(t, syncRoot, ".DiffTrash/z.txt"); got != "zzz" {
		t.Errorf("expected z.txt in trash, got %q", got)
	}
	if got := readFile(t, syncRoot, ".DiffTrash/old/q.txt"); got != "q" {
		t.Errorf("expected old/q.txt in trash, got %q", got)
	}
	for _, gone := range []string{"z.txt", "old"} {
		if _, err := os.Stat(filepath.Join(syncRoot, gone)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed from sync root, got %v", gone, err)
		}
	}

	prom, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("expected metrics file, got: %v", err)
	}
	for _, want := range []string{"pgl_filediff_sync_files_copied 2", "pgl_filediff_last_run_success 1"} {
		if !strings.Contains(string(prom), want) {
			t.Errorf("expected metrics to contain %q, got:\n%s", want, prom)
		}
	}

	// A second diff sees nothing to do.
	out, err := captureStdout(t, func() error {
		return cmd.RunDiff(context.Background(), map[string]any{"main": mainRoot, "sync": syncRoot, "yes": true})
	})
	if err != nil {
		t.Fatalf("expected second diff to succeed, got: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty report after sync, got %q", out)
	}

	dump, err := captureStdout(t, func() error {
		return cmd.RunCache(map[string]any{"root": syncRoot})
	})
	if err != nil {
		t.Fatalf("expected cache dump to succeed, got: %v", err)
	}
	for _, want := range []string{"F a.txt ", "F w.txt ", "D x\n", "-F y.txt "} {
		if !strings.Contains(dump, want) {
			t.Errorf("expected dump to contain %q, got:\n%s", want, dump)
		}
	}
}

func TestRunSync_NoTrashKeepsExistingTrash(t *testing.T) {
	mainRoot, syncRoot := newRoots(t)

	// First run trashes z.txt and old/.
	_, err := captureStdout(t, func() error {
		return cmd.RunSync(context.Background(), map[string]any{"main": mainRoot, "sync": syncRoot, "yes": true})
	})
	if err != nil {
		t.Fatalf("expected first sync to succeed, got: %v", err)
	}

	writeFile(t, syncRoot, "extra.txt", "gone")
	_, err = captureStdout(t, func() error {
		return cmd.RunSync(context.Background(), map[string]any{"main": mainRoot, "sync": syncRoot, "yes": true, "no-trash": true})
	})
	if err != nil {
		t.Fatalf("expected second sync to succeed, got: %v", err)
	}

	if _, err := os.Stat(filepath.Join(syncRoot, "extra.txt")); !os.IsNotExist(err) {
		t.Errorf("expected extra.txt to be deleted outright, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(syncRoot, ".DiffTrash", "extra.txt")); !os.IsNotExist(err) {
		t.Errorf("expected extra.txt not to be trashed, got %v", err)
	}
	if got := readFile(t, syncRoot, ".DiffTrash/z.txt"); got != "zzz" {
		t.Errorf("expected earlier trash to survive a -no-trash run, got %q", got)
	}
	if got := readFile(t, syncRoot, ".DiffTrash/old/q.txt"); got != "q" {
		t.Errorf("expected earlier trashed dir to survive a -no-trash run, got %q", got)
	}

	out, err := captureStdout(t, func() error {
		return cmd.RunDiff(context.Background(), map[string]any{"main": mainRoot, "sync": syncRoot, "yes": true, "no-trash": true})
	})
	if err != nil {
		t.Fatalf("expected diff to succeed, got: %v", err)
	}
	if out != "" {
		t.Errorf("expected trash to stay out of the report, got %q", out)
	}
}

func TestRunSync_DryRun(t *testing.T) {
	mainRoot, syncRoot := newRoots(t)

	_, err := captureStdout(t, func() error {
		return cmd.RunSync(context.Background(), map[string]any{"main": mainRoot, "sync": syncRoot, "yes": true, "dry-run": true})
	})
	if err != nil {
		t.Fatalf("expected dry run to succeed, got: %v", err)
	}
	if _, err := os.Stat(filepath.Join(syncRoot, "a.txt")); !os.IsNotExist(err) {
		t.Errorf("expected a.txt not to be copied in dry run, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(syncRoot, ".fdc")); !os.IsNotExist(err) {
		t.Errorf("expected no cache file in dry run, got %v", err)
	}
}

func TestRunSync_Validation(t *testing.T) {
	mainRoot, syncRoot := newRoots(t)

	testCases := []struct {
		name  string
		flags map[string]any
	}{
		{"Missing Main", map[string]any{"sync": syncRoot}},
		{"Missing Sync", map[string]any{"main": mainRoot}},
		{"Same Root", map[string]any{"main": mainRoot, "sync": mainRoot, "yes": true}},
		{"Cache Only Without Cache", map[string]any{"main": mainRoot, "sync": syncRoot, "cache-only": true, "no-cache": true}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := cmd.RunSync(context.Background(), tc.flags); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	t.Run("Config Error Type", func(t *testing.T) {
		err := cmd.RunSync(context.Background(), map[string]any{"main": mainRoot, "sync": syncRoot, "compression": "lz4"})
		var cfgErr *config.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected *config.ConfigError, got %T: %v", err, err)
		}
	})
}

func TestRunDiff_CacheOnly(t *testing.T) {
	mainRoot, syncRoot := newRoots(t)

	out, err := captureStdout(t, func() error {
		return cmd.RunDiff(context.Background(), map[string]any{"main": mainRoot, "sync": syncRoot, "yes": true, "cache-only": true, "compression": "zstd"})
	})
	if err != nil {
		t.Fatalf("expected cache rebuild to succeed, got: %v", err)
	}
	if out != "" {
		t.Errorf("expected no report in cache-only mode, got %q", out)
	}

	dump, err := captureStdout(t, func() error {
		return cmd.RunCache(map[string]any{"root": mainRoot})
	})
	if err != nil {
		t.Fatalf("expected compressed cache to decode, got: %v", err)
	}
	if !strings.Contains(dump, "F a.txt ") {
		t.Errorf("expected rebuilt cache to list a.txt, got:\n%s", dump)
	}
}

func TestRunInit(t *testing.T) {
	syncRoot := t.TempDir()

	err := cmd.RunInit(context.Background(), map[string]any{"sync": syncRoot, "workers": 3, "no-trash": true})
	if err != nil {
		t.Fatalf("expected init to succeed, got: %v", err)
	}
	cfg, err := config.Load(syncRoot)
	if err != nil {
		t.Fatalf("failed to load generated config: %v", err)
	}
	if cfg.Engine.Workers != 3 || cfg.Trash.Enabled {
		t.Errorf("expected workers 3 and trash disabled, got %d and %v", cfg.Engine.Workers, cfg.Trash.Enabled)
	}

	// Re-running without -default keeps existing settings.
	if err := cmd.RunInit(context.Background(), map[string]any{"sync": syncRoot, "retry-count": 4}); err != nil {
		t.Fatalf("expected second init to succeed, got: %v", err)
	}
	cfg, _ = config.Load(syncRoot)
	if cfg.Engine.Workers != 3 || cfg.Sync.RetryCount != 4 {
		t.Errorf("expected preserved workers and new retry count, got %d and %d", cfg.Engine.Workers, cfg.Sync.RetryCount)
	}

	// -default with -force resets without prompting.
	if err := cmd.RunInit(context.Background(), map[string]any{"sync": syncRoot, "default": true, "force": true}); err != nil {
		t.Fatalf("expected forced default init to succeed, got: %v", err)
	}
	cfg, _ = config.Load(syncRoot)
	if cfg.Engine.Workers != 0 || !cfg.Trash.Enabled {
		t.Errorf("expected defaults after -default, got %+v", cfg.Engine)
	}
}

func TestErrCanceledIsHint(t *testing.T) {
	if !hints.IsHint(cmd.ErrCanceled) {
		t.Error("expected ErrCanceled to be a hint")
	}
	if hints.IsHint(cmd.ErrIncomplete) {
		t.Error("expected ErrIncomplete not to be a hint")
	}
}
