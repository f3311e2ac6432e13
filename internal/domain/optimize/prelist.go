package optimize

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
	"github.com/sstepanchuk/leptos-image/internal/platform/logging"

	"golang.org/x/sync/errgroup"
)

const preListWorkers = 4

// PreLister walks the derivative cache on startup and loads every stored
// blur placeholder into the sink, so previews survive restarts without
// touching the image pipeline again. Files whose path does not decode back
// to a descriptor are skipped with a warning.
type PreLister struct {
	root   string
	sink   PlaceholderSink
	logger *logging.Logger
}

// NewPreLister builds a prelister over the cache root.
func NewPreLister(root string, sink PlaceholderSink, logger *logging.Logger) *PreLister {
	return &PreLister{
		root:   root,
		sink:   sink,
		logger: logger,
	}
}

// Run scans <root>/cache/image for .svg derivatives and feeds them to the
// sink with bounded concurrency. It returns the number of placeholders
// loaded. A missing cache directory is a fresh deployment, not an error.
func (p *PreLister) Run(ctx context.Context) (int, error) {
	cacheDir := filepath.Join(p.root, "cache", "image")
	if _, err := os.Stat(cacheDir); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(errors.KindIO, "prelist", "stat derivative cache", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(preListWorkers)
	var loaded atomic.Int64

	walkErr := filepath.WalkDir(cacheDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".svg") {
			return nil
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}

		svgPath := path
		g.Go(func() error {
			desc, err := DescriptorFromFilePath(filepath.ToSlash(svgPath))
			if err != nil {
				p.logger.WarnTag("CACHE", "skipping unrecognised cache file %s: %v", svgPath, err)
				return nil
			}
			raw, err := os.ReadFile(svgPath)
			if err != nil {
				return errors.Wrap(errors.KindIO, "prelist", "read cached placeholder", err)
			}
			if err := p.sink.Put(gctx, NewPlaceholder(desc, string(raw))); err != nil {
				return errors.Wrap(errors.KindStorage, "prelist", "store cached placeholder", err)
			}
			loaded.Add(1)
			return nil
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return int(loaded.Load()), err
	}
	if walkErr != nil {
		return int(loaded.Load()), errors.Wrap(errors.KindIO, "prelist", "walk derivative cache", walkErr)
	}

	p.logger.InfoTag("CACHE", "prelisted %d placeholders from %s", loaded.Load(), cacheDir)
	return int(loaded.Load()), nil
}
