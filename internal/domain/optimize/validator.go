package optimize

import (
	"fmt"
	"image"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/sstepanchuk/leptos-image/internal/platform/config"
	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
	"github.com/sstepanchuk/leptos-image/internal/platform/logging"
)

// SourceValidator performs layered checks against a source asset before
// the expensive full decode: file size, header decodability, and
// dimension/pixel ceilings.
type SourceValidator struct {
	limits config.SourceLimits
	logger *logging.Logger
}

func NewSourceValidator(limits config.SourceLimits, logger *logging.Logger) *SourceValidator {
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = 10 * 1024 * 1024
	}
	if limits.MaxPixels <= 0 {
		limits.MaxPixels = 16 * 1024 * 1024
	}
	if limits.MaxWidth <= 0 {
		limits.MaxWidth = 4096
	}
	if limits.MaxHeight <= 0 {
		limits.MaxHeight = 4096
	}
	return &SourceValidator{
		limits: limits,
		logger: logger,
	}
}

// Validate inspects the source at path. Missing or unreadable files carry
// the io kind; undecodable or oversized images carry the image kind.
func (v *SourceValidator) Validate(path string) error {
	const op = "validate-source"

	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(errors.KindIO, op, "stat source image", err)
	}
	if info.Size() > v.limits.MaxFileSize {
		v.logger.WarnTag("OPTIMIZE", "oversized source rejected: path=%s size=%d max=%d",
			path, info.Size(), v.limits.MaxFileSize)
		return errors.New(errors.KindImage, op,
			fmt.Sprintf("file size exceeds limit: %d bytes (max %d bytes)", info.Size(), v.limits.MaxFileSize))
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.KindIO, op, "open source image", err)
	}
	defer file.Close()

	// DecodeConfig reads only the header, so this stays cheap even for
	// large sources.
	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return errors.Wrap(errors.KindImage, op, "decode image header", err)
	}

	if cfg.Width > v.limits.MaxWidth || cfg.Height > v.limits.MaxHeight {
		return errors.New(errors.KindImage, op,
			fmt.Sprintf("dimensions exceed limit: %dx%d (max %dx%d)",
				cfg.Width, cfg.Height, v.limits.MaxWidth, v.limits.MaxHeight))
	}

	totalPixels := int64(cfg.Width) * int64(cfg.Height)
	if totalPixels > v.limits.MaxPixels {
		return errors.New(errors.KindImage, op,
			fmt.Sprintf("pixel count exceeds limit: %d (max %d)", totalPixels, v.limits.MaxPixels))
	}

	v.logger.DebugTag("OPTIMIZE", "source validated: path=%s format=%s size=%dx%d",
		path, format, cfg.Width, cfg.Height)
	return nil
}
