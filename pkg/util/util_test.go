package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWithUserWritePermission(t *testing.T) {
	testCases := []struct {
		name     string
		input    os.FileMode
		expected os.FileMode
	}{
		{"Read-only permission", 0444, 0644},
		{"Already has write permission", 0755, 0755},
		{"No permissions", 0000, 0200},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if result := WithUserWritePermission(tc.input); result != tc.expected {
				t.Errorf("expected permission %o, but got %o", tc.expected, result)
			}
		})
	}
}

func TestNormalizedRelPath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"a/b.txt", "a/b.txt"},
		{"./a/b.txt", "a/b.txt"},
		{filepath.Join("x", "y", "z.txt"), "x/y/z.txt"},
		{"a//b/", "a/b"},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := NormalizedRelPath(tc.input); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestIsWithin(t *testing.T) {
	testCases := []struct {
		rel, dir string
		expected bool
	}{
		{"a", "a", true},
		{"a/b", "a", true},
		{"a/b/c", "a/b", true},
		{"ab/c", "a", false},
		{"b", "a", false},
		{"anything", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.rel+"_in_"+tc.dir, func(t *testing.T) {
			if got := IsWithin(tc.rel, tc.dir); got != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestSplitRel(t *testing.T) {
	dir, name := SplitRel("a/b/c.txt")
	if dir != "a/b" || name != "c.txt" {
		t.Errorf("expected (a/b, c.txt), got (%s, %s)", dir, name)
	}
	dir, name = SplitRel("top.txt")
	if dir != "" || name != "top.txt" {
		t.Errorf("expected (\"\", top.txt), got (%q, %s)", dir, name)
	}
}

func TestByteCountIEC(t *testing.T) {
	testCases := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
	}
	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if got := ByteCountIEC(tc.input); got != tc.expected {
				t.Errorf("expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestInvertMap(t *testing.T) {
	inv := InvertMap(map[int]string{1: "one", 2: "two"})
	if inv["one"] != 1 || inv["two"] != 2 || len(inv) != 2 {
		t.Errorf("unexpected inverted map: %v", inv)
	}
}
