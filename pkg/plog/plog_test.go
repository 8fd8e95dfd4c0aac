package plog

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestPlogLevels(t *testing.T) {
	var logBuf bytes.Buffer
	SetOutput(&logBuf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	t.Run("Logs all levels when level is Debug", func(t *testing.T) {
		logBuf.Reset()
		SetLevel(LevelDebug)

		Debug("debug message", "key", "val1")
		Info("info message", "key", "val2")
		Warn("warn message")

		output := logBuf.String()
		if !strings.Contains(output, "level=DEBUG msg=\"debug message\" key=val1") {
			t.Errorf("expected debug message to be logged, got: %s", output)
		}
		if !strings.Contains(output, "level=INFO msg=\"info message\" key=val2") {
			t.Errorf("expected info message to be logged, got: %s", output)
		}
		if !strings.Contains(output, "level=WARN msg=\"warn message\"") {
			t.Errorf("expected warn message to be logged, got: %s", output)
		}
	})

	t.Run("Suppresses lower levels when level is Warn", func(t *testing.T) {
		logBuf.Reset()
		SetLevel(LevelWarn)

		Debug("debug message")
		Notice("notice message")
		Info("info message")

		output := logBuf.String()
		if strings.Contains(output, "level=DEBUG") || strings.Contains(output, "level=NOTICE") || strings.Contains(output, "level=INFO") {
			t.Errorf("expected no output below warn, got: %s", output)
		}
	})

	t.Run("Logs Notice and above, but suppresses Debug", func(t *testing.T) {
		logBuf.Reset()
		SetLevel(LevelNotice)

		Debug("debug message")
		Notice("ADD", "path", "x/y.txt")
		Info("info message", "key", "val2")

		output := logBuf.String()
		if strings.Contains(output, "level=DEBUG") {
			t.Errorf("expected debug message to be suppressed at notice level, got: %s", output)
		}
		if !strings.Contains(output, "level=NOTICE msg=ADD path=x/y.txt") {
			t.Errorf("expected notice message to be logged, got: %s", output)
		}
		if !strings.Contains(output, "level=INFO msg=\"info message\" key=val2") {
			t.Errorf("expected info message to be logged, got: %s", output)
		}
	})

	t.Run("Quiet mode hides Notice and Info", func(t *testing.T) {
		logBuf.Reset()
		SetLevel(LevelDebug)
		SetQuiet(true)
		defer SetQuiet(false)

		Notice("notice message")
		Info("info message")
		Error("error message")

		output := logBuf.String()
		if strings.Contains(output, "notice message") || strings.Contains(output, "info message") {
			t.Errorf("expected quiet mode to suppress notice and info, got: %s", output)
		}
		if !strings.Contains(output, "level=ERROR") {
			t.Errorf("expected error to be logged in quiet mode, got: %s", output)
		}
	})
}

func TestLevelFromString(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"NOTICE", "DEBUG+2"},
		{" info ", "INFO"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := LevelFromString(tc.input).String(); got != tc.expected {
				t.Errorf("expected %s, got %s", tc.expected, got)
			}
		})
	}
}
