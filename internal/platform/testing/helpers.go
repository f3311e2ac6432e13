package testing

import (
	"path/filepath"
	"testing"

	"github.com/sstepanchuk/leptos-image/internal/platform/config"
	"github.com/sstepanchuk/leptos-image/internal/platform/logging"
)

// SetupTestConfig returns a runtime config pointed at per-test temp
// directories so tests never touch the real cache or log trees.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Cache.Root = t.TempDir()
	cfg.Log.Level = "DEBUG"
	cfg.Log.Dir = filepath.Join(t.TempDir(), "logs")
	cfg.Store.SQLite.DSN = filepath.Join(t.TempDir(), "placeholders.db")

	return cfg
}

// SetupTestLogger builds a debug logger writing into a temp directory and
// closes it when the test finishes.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	cfg := SetupTestConfig(t)
	logger, err := logging.NewLogger(&logging.Config{
		Level: cfg.Log.Level,
		Dir:   cfg.Log.Dir,
		File:  cfg.Log.File,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() {
		_ = logger.Close()
	})

	return logger
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}
