package fsys

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestDirWalker(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "top.txt"), "top")
	writeFile(t, filepath.Join(root, "x", "y.txt"), "y")
	writeFile(t, filepath.Join(root, "x", "deep", "z.txt"), "z")
	writeFile(t, filepath.Join(root, ".DiffTrash", "old.txt"), "old")

	t.Run("Lists files and dirs as relative keys", func(t *testing.T) {
		files, dirs, err := DirWalker{}.Walk(root)
		if err != nil {
			t.Fatalf("Walk failed: %v", err)
		}
		slices.Sort(files)
		slices.Sort(dirs)

		expectedFiles := []string{".DiffTrash/old.txt", "top.txt", "x/deep/z.txt", "x/y.txt"}
		expectedDirs := []string{".DiffTrash", "x", "x/deep"}
		if !slices.Equal(files, expectedFiles) {
			t.Errorf("expected files %v, got %v", expectedFiles, files)
		}
		if !slices.Equal(dirs, expectedDirs) {
			t.Errorf("expected dirs %v, got %v", expectedDirs, dirs)
		}
	})

	t.Run("Skips configured directories", func(t *testing.T) {
		files, dirs, err := DirWalker{SkipDirs: []string{".DiffTrash"}}.Walk(root)
		if err != nil {
			t.Fatalf("Walk failed: %v", err)
		}
		if slices.Contains(dirs, ".DiffTrash") || slices.Contains(files, ".DiffTrash/old.txt") {
			t.Errorf("expected trash to be skipped, got files=%v dirs=%v", files, dirs)
		}
	})

	t.Run("Missing root is an error", func(t *testing.T) {
		if _, _, err := (DirWalker{}).Walk(filepath.Join(root, "missing")); err == nil {
			t.Error("expected error for missing root")
		}
	})
}

func TestXXHash(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")
	writeFile(t, a, "same content")
	writeFile(t, b, "same content")
	writeFile(t, c, "other content")

	x := NewXXHash(16) // Small buffer forces several reads.

	ha, err := x.Fingerprint(a)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	hb, _ := x.Fingerprint(b)
	hc, _ := x.Fingerprint(c)

	if ha != hb {
		t.Errorf("expected identical content to produce identical fingerprints, got %x and %x", ha, hb)
	}
	if ha == hc {
		t.Errorf("expected different content to produce different fingerprints, both were %x", ha)
	}

	again, _ := x.Fingerprint(a)
	if again != ha {
		t.Errorf("expected fingerprint to be deterministic, got %x then %x", ha, again)
	}

	if _, err := x.Fingerprint(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOSStat(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	writeFile(t, p, "0123456789")

	st, err := OSStat{}.Stat(p)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if st.Size != 10 {
		t.Errorf("expected size 10, got %d", st.Size)
	}
	if st.Modified.IsZero() || st.Created.IsZero() {
		t.Errorf("expected non-zero timestamps, got %+v", st)
	}

	if _, err := (OSStat{}).Stat(dir); err == nil {
		t.Error("expected error when stating a directory")
	}
}
