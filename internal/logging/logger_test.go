package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(content)), "\n")
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file and parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "runs", "pacer.log")

		logger, err := NewLogger(path, LevelDebug, FormatJSON)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", path)
		}
	})

	t.Run("writes to stderr when path is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo, FormatJSON)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.file != nil {
			t.Error("expected file to be nil when path is empty")
		}
	})

	t.Run("defaults to INFO level for invalid level string", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWriterLogger(&buf, "invalid", FormatJSON)

		logger.Debug("hidden")
		logger.Info("shown")

		if strings.Contains(buf.String(), "hidden") {
			t.Error("debug message written at default INFO level")
		}
		if !strings.Contains(buf.String(), "shown") {
			t.Error("info message missing at default INFO level")
		}
	})
}

func TestLogLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacer.log")

	logger, err := NewLogger(path, LevelDebug, FormatJSON)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")

	logger.Close()

	lines := readLines(t, path)
	if len(lines) != 4 {
		t.Fatalf("expected 4 log lines, got %d", len(lines))
	}

	expectedLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	for i, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line %d: failed to parse JSON: %v", i, err)
		}
		if entry["level"] != expectedLevels[i] {
			t.Errorf("line %d: expected level %s, got %v", i, expectedLevels[i], entry["level"])
		}
		if entry["key"] != "value" {
			t.Errorf("line %d: expected key=value, got key=%v", i, entry["key"])
		}
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelWarn, FormatJSON)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines (WARN and ERROR only), got %d: %s", len(lines), buf.String())
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelInfo, FormatJSON)

	child := logger.WithRun("run-123").WithPhase("mark").WithMutator(7)
	child.Info("pacer for mark", "tax_rate", 33.0)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}

	if entry["run_id"] != "run-123" {
		t.Errorf("expected run_id=run-123, got %v", entry["run_id"])
	}
	if entry["phase"] != "mark" {
		t.Errorf("expected phase=mark, got %v", entry["phase"])
	}
	if entry["mutator"] != float64(7) {
		t.Errorf("expected mutator=7, got %v", entry["mutator"])
	}
	if entry["tax_rate"] != 33.0 {
		t.Errorf("expected tax_rate=33, got %v", entry["tax_rate"])
	}
}

func TestChildDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelInfo, FormatJSON)

	_ = logger.WithPhase("evacuation")
	logger.Info("parent")

	if strings.Contains(buf.String(), "evacuation") {
		t.Errorf("parent logger picked up child attribute: %s", buf.String())
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelInfo, FormatJSON)

	logger.With("foo", "bar", "count", 42, 99).Info("test message")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}

	if entry["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %v", entry["foo"])
	}
	// JSON numbers are float64
	if entry["count"] != float64(42) {
		t.Errorf("expected count=42, got %v", entry["count"])
	}

	if logger.With() != logger {
		t.Error("With() without args should return the same logger")
	}
}

func TestFormats(t *testing.T) {
	tests := []struct {
		format string
		check  func(string) bool
	}{
		{FormatJSON, func(s string) bool { return strings.HasPrefix(s, "{") && strings.Contains(s, `"msg":"hello"`) }},
		{FormatText, func(s string) bool { return strings.Contains(s, "msg=hello") && strings.Contains(s, "phase=idle") }},
		{FormatConsole, func(s string) bool { return strings.Contains(s, "hello") && !strings.HasPrefix(s, "{") }},
		{"unknown", func(s string) bool { return strings.HasPrefix(s, "{") }},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			NewWriterLogger(&buf, LevelInfo, tt.format).WithPhase("idle").Info("hello")
			if !tt.check(buf.String()) {
				t.Errorf("format %q produced unexpected output: %q", tt.format, buf.String())
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	logger := NewWriterLogger(&bytes.Buffer{}, LevelWarn, FormatJSON)

	if logger.Enabled(LevelInfo) {
		t.Error("Enabled(INFO) = true at WARN level, want false")
	}
	if !logger.Enabled(LevelError) {
		t.Error("Enabled(ERROR) = false at WARN level, want true")
	}
	if NopLogger().Enabled(LevelError) {
		t.Error("NopLogger should report every level disabled")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()

	// These should not panic
	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	if err := logger.Close(); err != nil {
		t.Errorf("NopLogger.Close() returned error: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"DEBUG", LevelDebug},
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"info", LevelInfo},
		{"WARN", LevelWarn},
		{"warn", LevelWarn},
		{"ERROR", LevelError},
		{"error", LevelError},
		{"invalid", LevelInfo},
		{"", LevelInfo},
	}

	for _, tc := range tests {
		result := ParseLevel(tc.input)
		if result != tc.expected {
			t.Errorf("ParseLevel(%q) = %q, expected %q", tc.input, result, tc.expected)
		}
	}
}

func TestValidLevelsAndFormats(t *testing.T) {
	levels := ValidLevels()
	expected := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if len(levels) != len(expected) {
		t.Fatalf("expected %d levels, got %d", len(expected), len(levels))
	}
	for i, level := range levels {
		if level != expected[i] {
			t.Errorf("ValidLevels()[%d] = %q, expected %q", i, level, expected[i])
		}
	}

	formats := ValidFormats()
	if len(formats) != 3 || formats[0] != FormatJSON || formats[2] != FormatConsole {
		t.Errorf("ValidFormats() = %v, expected [json text console]", formats)
	}
}

func TestClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacer.log")

	logger, err := NewLogger(path, LevelInfo, FormatJSON)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("test message")

	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	// Second close should be a no-op (file is nil)
	if err := logger.Close(); err != nil {
		t.Errorf("Second Close() returned error: %v", err)
	}

	if lines := readLines(t, path); len(lines) != 1 || lines[0] == "" {
		t.Errorf("expected one log line, got %v", lines)
	}
}

func TestConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacer.log")

	logger, err := NewLogger(path, LevelInfo, FormatJSON)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			child := logger.WithMutator(n)
			for j := 0; j < 100; j++ {
				child.Info("allocation paced", "iteration", j)
			}
		}(i)
	}
	wg.Wait()

	logger.Close()

	lines := readLines(t, path)
	if len(lines) != 1000 {
		t.Errorf("expected 1000 log lines, got %d", len(lines))
	}
	for i, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}
}
