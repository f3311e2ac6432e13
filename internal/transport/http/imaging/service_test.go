package imaging_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstepanchuk/leptos-image/internal/domain/optimize"
	"github.com/sstepanchuk/leptos-image/internal/domain/optimize/store"
	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
	platformtesting "github.com/sstepanchuk/leptos-image/internal/platform/testing"
	httptransport "github.com/sstepanchuk/leptos-image/internal/transport/http"
	"github.com/sstepanchuk/leptos-image/internal/transport/http/imaging"
)

// fakeCreator stands in for the optimizer: it writes payload under its
// root when asked and counts how often it is called.
type fakeCreator struct {
	root    string
	created bool
	err     error
	calls   int
	payload []byte
}

func (f *fakeCreator) CreateImage(_ context.Context, d optimize.Descriptor) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.payload != nil {
		path := optimize.FilePathWithRoot(f.root, d)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return false, err
		}
		if err := os.WriteFile(path, f.payload, 0o644); err != nil {
			return false, err
		}
	}
	return f.created, nil
}

func (f *fakeCreator) FilePathFromRoot(d optimize.Descriptor) string {
	return optimize.FilePathWithRoot(f.root, d)
}

func newTestEngine(t *testing.T, creator imaging.Creator, placeholders imaging.PlaceholderGetter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := platformtesting.SetupTestConfig(t)
	logger := platformtesting.SetupTestLogger(t)

	service, err := imaging.NewService(cfg, creator, placeholders, logger)
	require.NoError(t, err)

	engine := gin.New()
	group := engine.Group(cfg.Cache.HandlerPath)
	require.NoError(t, service.Register(context.Background(), group))
	return engine
}

func doRequest(engine *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	engine.ServeHTTP(w, req)
	return w
}

func resizeDescriptor(src string) optimize.Descriptor {
	return optimize.Descriptor{
		Src:    src,
		Option: optimize.Resize{Width: 100, Height: 100, Quality: 75},
	}
}

func blurDescriptor(src string) optimize.Descriptor {
	return optimize.Descriptor{
		Src: src,
		Option: optimize.Blur{
			Width:     25,
			Height:    25,
			SVGWidth:  100,
			SVGHeight: 100,
			Sigma:     20,
		},
	}
}

func TestNewServiceValidation(t *testing.T) {
	cfg := platformtesting.SetupTestConfig(t)
	logger := platformtesting.SetupTestLogger(t)
	creator := &fakeCreator{root: t.TempDir()}

	_, err := imaging.NewService(nil, creator, nil, logger)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	_, err = imaging.NewService(cfg, nil, nil, logger)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	_, err = imaging.NewService(cfg, creator, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	// The placeholder getter is optional.
	_, err = imaging.NewService(cfg, creator, nil, logger)
	require.NoError(t, err)
}

func TestServiceRejectsMalformedQuery(t *testing.T) {
	creator := &fakeCreator{root: t.TempDir()}
	engine := newTestEngine(t, creator, nil)

	for _, query := range []string{
		"foo=bar",
		"src=%2Fimg%2Fcat.jpg",
		"src=%2Fimg%2Fcat.jpg&option[r][w]=abc&option[r][h]=1&option[r][q]=75",
	} {
		w := doRequest(engine, "/cache/image?"+query)
		require.Equal(t, http.StatusBadRequest, w.Code, "query %q", query)

		var resp httptransport.APIResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "invalid image request", resp.Message)
	}
	assert.Zero(t, creator.calls, "creator must not run for undecodable requests")
}

func TestServiceServesResizeDerivative(t *testing.T) {
	payload := []byte("RIFF0000WEBPVP8 ")
	creator := &fakeCreator{root: t.TempDir(), created: true, payload: payload}
	engine := newTestEngine(t, creator, nil)

	d := resizeDescriptor("/examples/cat.jpg")
	w := doRequest(engine, "/cache/image?"+d.EncodeQuery())

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, creator.calls)
	assert.Equal(t, "image/webp", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000, immutable", w.Header().Get("Cache-Control"))
	assert.Equal(t, payload, w.Body.Bytes())
}

func TestServiceServesStoredPlaceholder(t *testing.T) {
	creator := &fakeCreator{root: t.TempDir()}
	placeholders := store.NewMemory()

	d := blurDescriptor("/examples/cat.jpg")
	svg := "<svg>blurry cat</svg>"
	require.NoError(t, placeholders.Put(context.Background(), optimize.NewPlaceholder(d, svg)))

	engine := newTestEngine(t, creator, placeholders)
	w := doRequest(engine, "/cache/image?"+d.EncodeQuery())

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000, immutable", w.Header().Get("Cache-Control"))
	assert.Equal(t, svg, w.Body.String())
	assert.Zero(t, creator.calls, "stored placeholders bypass generation")
}

func TestServiceGeneratesBlurOnStoreMiss(t *testing.T) {
	svg := "<svg>generated</svg>"
	creator := &fakeCreator{root: t.TempDir(), created: true, payload: []byte(svg)}
	placeholders := store.NewMemory()
	engine := newTestEngine(t, creator, placeholders)

	d := blurDescriptor("/examples/dog.jpg")
	w := doRequest(engine, "/cache/image?"+d.EncodeQuery())

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, creator.calls)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	assert.Equal(t, svg, w.Body.String())
}

func TestServiceStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"decode", errors.New(errors.KindDecode, "generate", "unreadable source"), http.StatusBadRequest},
		{"image", errors.New(errors.KindImage, "generate", "source too large"), http.StatusUnprocessableEntity},
		{"missing source", errors.Wrap(errors.KindIO, "stat-source", "source missing", fs.ErrNotExist), http.StatusNotFound},
		{"io", errors.New(errors.KindIO, "write-derivative", "disk full"), http.StatusInternalServerError},
		{"unknown", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creator := &fakeCreator{root: t.TempDir(), err: tc.err}
			engine := newTestEngine(t, creator, nil)

			d := resizeDescriptor("/examples/cat.jpg")
			w := doRequest(engine, "/cache/image?"+d.EncodeQuery())

			require.Equal(t, tc.want, w.Code)

			var resp httptransport.APIResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, "image generation failed", resp.Message)
		})
	}
}
