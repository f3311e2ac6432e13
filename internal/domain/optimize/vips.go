package optimize

import (
	"github.com/davidbyttow/govips/v2/vips"

	"github.com/sstepanchuk/leptos-image/internal/platform/logging"
)

// Startup initialises libvips. Call once at application start before any
// generation runs. concurrency controls the libvips worker threads
// (0 = auto).
func Startup(concurrency int, logger *logging.Logger) {
	cfg := &vips.Config{
		ConcurrencyLevel: concurrency,
		MaxCacheSize:     100,
		MaxCacheMem:      50 * 1024 * 1024,
	}
	vips.LoggingSettings(nil, vips.LogLevelWarning)
	vips.Startup(cfg)
	logger.InfoTag("OPTIMIZE", "libvips started: version=%s", vips.Version)
}

// Shutdown releases libvips resources. Call once at application shutdown.
func Shutdown() {
	vips.Shutdown()
}

// EngineVersion reports the libvips version string.
func EngineVersion() string {
	return vips.Version
}
