package optimize_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstepanchuk/leptos-image/internal/domain/optimize"
	"github.com/sstepanchuk/leptos-image/internal/domain/optimize/store"
	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
)

func blurDescriptor(src string, sigma uint8) optimize.Descriptor {
	return optimize.Descriptor{
		Src: src,
		Option: optimize.Blur{
			Width:     25,
			Height:    25,
			SVGWidth:  100,
			SVGHeight: 100,
			Sigma:     sigma,
		},
	}
}

func writeDerivative(t *testing.T, root string, d optimize.Descriptor, content string) string {
	t.Helper()
	p := optimize.FilePathWithRoot(root, d)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestPreListerLoadsStoredPlaceholders(t *testing.T) {
	root := t.TempDir()
	sink := store.NewMemory()

	descriptors := []optimize.Descriptor{
		blurDescriptor("examples/cat.jpg", 20),
		blurDescriptor("examples/dog.jpg", 20),
		blurDescriptor("examples/cat.jpg", 40),
	}
	for i, d := range descriptors {
		writeDerivative(t, root, d, fmt.Sprintf("<svg>placeholder %d</svg>", i))
	}

	// Resize derivatives and unrecognised files must not feed the sink.
	writeDerivative(t, root, optimize.Descriptor{
		Src:    "examples/cat.jpg",
		Option: optimize.Resize{Width: 100, Height: 100, Quality: 75},
	}, "not-an-svg")
	strayPath := filepath.Join(root, "cache", "image", "not-a-token", "stray.svg")
	require.NoError(t, os.MkdirAll(filepath.Dir(strayPath), 0o755))
	require.NoError(t, os.WriteFile(strayPath, []byte("<svg>stray</svg>"), 0o644))

	lister := optimize.NewPreLister(root, sink, nil)
	loaded, err := lister.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, loaded)

	for i, d := range descriptors {
		p, ok, err := sink.Get(context.Background(), d.EncodeQuery())
		require.NoError(t, err)
		require.True(t, ok, "placeholder %d missing", i)
		assert.Equal(t, fmt.Sprintf("<svg>placeholder %d</svg>", i), p.SVG)
		assert.Equal(t, d, p.Descriptor)
	}

	stats, err := sink.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats["total"])
}

func TestPreListerMissingCacheDir(t *testing.T) {
	lister := optimize.NewPreLister(t.TempDir(), store.NewMemory(), nil)

	loaded, err := lister.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, loaded)
}

type failingSink struct{}

func (failingSink) Put(context.Context, optimize.Placeholder) error {
	return fmt.Errorf("sink unavailable")
}

func TestPreListerSinkErrorPropagates(t *testing.T) {
	root := t.TempDir()
	writeDerivative(t, root, blurDescriptor("examples/cat.jpg", 20), "<svg>x</svg>")

	lister := optimize.NewPreLister(root, failingSink{}, nil)
	_, err := lister.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindStorage))
}

func TestPreListerHonoursCancelledContext(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 8; i++ {
		writeDerivative(t, root, blurDescriptor(fmt.Sprintf("examples/img-%d.jpg", i), 20), "<svg>x</svg>")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := optimize.NewPreLister(root, store.NewMemory(), nil).Run(ctx)
	require.Error(t, err)
}

func TestCreatedListenerStoresBlurPlaceholders(t *testing.T) {
	root := t.TempDir()
	sink := store.NewMemory()
	listener := optimize.NewCreatedListener(sink, nil)

	blur := blurDescriptor("examples/cat.jpg", 20)
	path := writeDerivative(t, root, blur, "<svg>fresh</svg>")

	listener(optimize.CreatedEvent{Descriptor: blur, Path: path})

	p, ok, err := sink.Get(context.Background(), blur.EncodeQuery())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<svg>fresh</svg>", p.SVG)
}

func TestCreatedListenerIgnoresResize(t *testing.T) {
	sink := store.NewMemory()
	listener := optimize.NewCreatedListener(sink, nil)

	resize := optimize.Descriptor{
		Src:    "examples/cat.jpg",
		Option: optimize.Resize{Width: 100, Height: 100, Quality: 75},
	}
	listener(optimize.CreatedEvent{Descriptor: resize, Path: "does-not-matter.webp"})

	entries, err := sink.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreatedListenerToleratesMissingFile(t *testing.T) {
	sink := store.NewMemory()
	listener := optimize.NewCreatedListener(sink, nil)

	blur := blurDescriptor("examples/ghost.jpg", 20)
	listener(optimize.CreatedEvent{Descriptor: blur, Path: filepath.Join(t.TempDir(), "missing.svg")})

	entries, err := sink.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
