package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles. Exporter settings (OTel endpoint
// and friends) land here when a real backend is attached.
type Config struct {
	Enabled bool
}

// ShutdownFunc tears down any exporters created by Setup.
type ShutdownFunc func(context.Context) error

var (
	obsMu     sync.RWMutex
	obsLogger *slog.Logger
	obsConfig Config
)

func current() (*slog.Logger, Config) {
	obsMu.RLock()
	defer obsMu.RUnlock()
	return obsLogger, obsConfig
}

// Setup binds span and metric emission to the given logger. Everything is
// emitted through slog until an exporter backend exists, so disabling
// observability only silences the extra records.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	obsMu.Lock()
	if cfg.Enabled {
		obsLogger = logger
	} else {
		obsLogger = nil
	}
	obsConfig = cfg
	obsMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[BOOT] observability enabled")
		} else {
			logger.InfoContext(ctx, "[BOOT] observability disabled")
		}
	}
	return func(context.Context) error { return nil }, nil
}
