package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatLog(t *testing.T) {
	tests := []struct {
		name     string
		tag      string
		message  string
		expected string
	}{
		{
			name:     "plain message gets tagged",
			tag:      "BOOT",
			message:  "server started",
			expected: "[BOOT] server started",
		},
		{
			name:     "already tagged message unchanged",
			tag:      "HTTP",
			message:  "[OPTIMIZE] generation done",
			expected: "[OPTIMIZE] generation done",
		},
		{
			name:     "empty tag returns message",
			tag:      "",
			message:  "no tag",
			expected: "no tag",
		},
		{
			name:     "whitespace trimmed",
			tag:      " CACHE ",
			message:  " warmed ",
			expected: "[CACHE] warmed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatLog(tt.tag, tt.message); got != tt.expected {
				t.Errorf("FormatLog(%q, %q) = %q, expected %q", tt.tag, tt.message, got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"INFO", "INFO"},
		{"Warn", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input).String(); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestNewLogger_WritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(&Config{
		Level: "debug",
		Dir:   dir,
		File:  "server.log",
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("cache warmed", map[string]interface{}{"entries": 3})
	logger.InfoTag("BOOT", "placeholder store ready")
	logger.Debug("walked %d files", 12)

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "server.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)

	for _, want := range []string{
		`"msg":"cache warmed"`,
		`"entries":3`,
		`"msg":"[BOOT] placeholder store ready"`,
		`"msg":"walked 12 files"`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("log file missing %s; content:\n%s", want, content)
		}
	}
}

func TestLoggerTagMethods_NilReceiver(t *testing.T) {
	var logger *Logger

	// Tag helpers must tolerate a nil logger so optional subsystems can
	// log unconditionally.
	logger.DebugTag("BOOT", "ignored")
	logger.InfoTag("BOOT", "ignored")
	logger.WarnTag("BOOT", "ignored")
	logger.ErrorTag("BOOT", "ignored")
}
