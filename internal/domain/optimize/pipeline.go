package optimize

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/sstepanchuk/leptos-image/internal/platform/config"
	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
	"github.com/sstepanchuk/leptos-image/internal/platform/logging"
	"github.com/sstepanchuk/leptos-image/internal/platform/observability"
)

// blurQuality is the fixed WebP quality for blur rasters. The output is
// blurred again at render time, so caller-configurable quality would be
// wasted bytes.
const blurQuality = 80

// svgTemplate wraps the embedded WebP data URI in a fixed filter chain:
// gaussian blur with duplicated edges, plus an alpha transfer that keeps
// the placeholder fully opaque.
const svgTemplate = `
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="100%%" height="100%%" viewBox="0 0 %d %d" preserveAspectRatio="none">
    <filter id="a" filterUnits="userSpaceOnUse" color-interpolation-filters="sRGB">
        <feGaussianBlur stdDeviation="%d" edgeMode="duplicate"/>
        <feComponentTransfer>
            <feFuncA type="discrete" tableValues="1 1"/>
        </feComponentTransfer>
    </filter>
    <image filter="url(#a)" x="0" y="0" height="100%%" width="100%%" href="%s"/>
</svg>
`

// Pipeline turns a validated source asset into the derivative a
// descriptor names: a lossy WebP for Resize, an SVG placeholder with an
// embedded WebP for Blur.
type Pipeline struct {
	validator *SourceValidator
	logger    *logging.Logger
}

// PipelineOptions configures derivative generation.
type PipelineOptions struct {
	Limits config.SourceLimits
	Logger *logging.Logger
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger
	}
	return &Pipeline{
		validator: NewSourceValidator(opts.Limits, opts.Logger),
		logger:    opts.Logger,
	}
}

// Generate produces the derivative for d, reading the source asset at
// sourcePath and writing the result to savePath. Parent directories are
// created as needed; the write itself is a single whole-file call, so a
// path either holds a complete derivative or nothing.
func (p *Pipeline) Generate(ctx context.Context, d Descriptor, sourcePath, savePath string) error {
	_, finish := observability.StartSpan(ctx, "optimize", "generate")

	err := p.generate(d, sourcePath, savePath)
	finish(err)
	return err
}

func (p *Pipeline) generate(d Descriptor, sourcePath, savePath string) error {
	if err := p.validator.Validate(sourcePath); err != nil {
		return err
	}

	switch opt := d.Option.(type) {
	case Resize:
		return p.generateResize(opt, sourcePath, savePath)
	case Blur:
		svg, err := p.renderBlurSVG(opt, sourcePath)
		if err != nil {
			return err
		}
		return writeDerivative(savePath, []byte(svg))
	default:
		return errors.New(errors.KindImage, "generate", fmt.Sprintf("unknown image option %T", d.Option))
	}
}

func (p *Pipeline) generateResize(opt Resize, sourcePath, savePath string) error {
	const op = "generate-resize"

	img, err := loadAndFit(op, sourcePath, opt.Width, opt.Height, vips.KernelCubic)
	if err != nil {
		return err
	}
	defer img.Close()

	params := vips.NewWebpExportParams()
	params.Quality = int(opt.Quality)
	params.Lossless = false
	params.StripMetadata = true

	buf, meta, err := img.ExportWebp(params)
	if err != nil {
		return errors.Wrap(errors.KindImage, op, "export webp", err)
	}

	if err := writeDerivative(savePath, buf); err != nil {
		return err
	}

	p.logger.DebugTag("OPTIMIZE", "resize derivative written: path=%s size=%dx%d bytes=%d",
		savePath, meta.Width, meta.Height, len(buf))
	return nil
}

// renderBlurSVG shrinks the source to the blur raster with a nearest
// kernel (the renderer blurs it anyway), encodes it as WebP, and embeds
// the result as a data URI in the SVG template.
func (p *Pipeline) renderBlurSVG(opt Blur, sourcePath string) (string, error) {
	const op = "generate-blur"

	img, err := loadAndFit(op, sourcePath, opt.Width, opt.Height, vips.KernelNearest)
	if err != nil {
		return "", err
	}
	defer img.Close()

	params := vips.NewWebpExportParams()
	params.Quality = blurQuality
	params.Lossless = false
	params.StripMetadata = true

	buf, meta, err := img.ExportWebp(params)
	if err != nil {
		return "", errors.Wrap(errors.KindImage, op, "export webp", err)
	}

	uri := "data:image/webp;base64," + base64.StdEncoding.EncodeToString(buf)
	svg := fmt.Sprintf(svgTemplate, opt.SVGWidth, opt.SVGHeight, opt.Sigma, uri)

	p.logger.DebugTag("OPTIMIZE", "blur placeholder rendered: raster=%dx%d payload=%d bytes",
		meta.Width, meta.Height, len(buf))
	return svg, nil
}

// loadAndFit opens the source and scales it to the largest size fitting
// within the width x height box, preserving aspect ratio. Upscaling is
// allowed when the box exceeds the source.
func loadAndFit(op, sourcePath string, width, height uint32, kernel vips.Kernel) (*vips.ImageRef, error) {
	if width == 0 || height == 0 {
		return nil, errors.New(errors.KindImage, op, "target dimensions must be positive")
	}

	img, err := vips.NewImageFromFile(sourcePath)
	if err != nil {
		return nil, errors.Wrap(errors.KindImage, op, "load source image", err)
	}

	scale := fitScale(img.Width(), img.Height(), width, height)
	if err := img.Resize(scale, kernel); err != nil {
		img.Close()
		return nil, errors.Wrap(errors.KindImage, op, "resize image", err)
	}
	return img, nil
}

func fitScale(srcWidth, srcHeight int, boxWidth, boxHeight uint32) float64 {
	if srcWidth <= 0 || srcHeight <= 0 {
		return 1
	}
	wScale := float64(boxWidth) / float64(srcWidth)
	hScale := float64(boxHeight) / float64(srcHeight)
	if wScale < hScale {
		return wScale
	}
	return hScale
}

// writeDerivative creates the parent directory tree and writes the whole
// file in one call. Concurrent MkdirAll on the same tree is benign.
func writeDerivative(savePath string, data []byte) error {
	const op = "write-derivative"

	if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
		return errors.Wrap(errors.KindIO, op, "create cache directories", err)
	}
	if err := os.WriteFile(savePath, data, 0o644); err != nil {
		return errors.Wrap(errors.KindIO, op, "write derivative file", err)
	}
	return nil
}
