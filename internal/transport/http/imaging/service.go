// Package imaging exposes the on-demand derivative endpoint.
package imaging

import (
	"context"
	stderrors "errors"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sstepanchuk/leptos-image/internal/domain/optimize"
	"github.com/sstepanchuk/leptos-image/internal/platform/config"
	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
	"github.com/sstepanchuk/leptos-image/internal/platform/logging"
	httptransport "github.com/sstepanchuk/leptos-image/internal/transport/http"
)

// Derivative paths encode their content, so responses never go stale.
const cacheControl = "public, max-age=31536000, immutable"

// Creator is the slice of the optimizer service the endpoint needs.
type Creator interface {
	CreateImage(ctx context.Context, d optimize.Descriptor) (bool, error)
	FilePathFromRoot(d optimize.Descriptor) string
}

// PlaceholderGetter looks up pre-rendered blur placeholders by cache key.
type PlaceholderGetter interface {
	Get(ctx context.Context, key string) (optimize.Placeholder, bool, error)
}

// Service serves image derivatives over HTTP.
type Service struct {
	config       *config.Config
	creator      Creator
	placeholders PlaceholderGetter
	logger       *logging.Logger
}

// NewService creates the imaging transport service. The placeholder getter
// is optional; without it blur requests always go through the filesystem.
func NewService(
	config *config.Config,
	creator Creator,
	placeholders PlaceholderGetter,
	logger *logging.Logger,
) (*Service, error) {
	if config == nil {
		return nil, errors.New(errors.KindConfig, "imaging.new", "config is required")
	}
	if creator == nil {
		return nil, errors.New(errors.KindConfig, "imaging.new", "creator is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "imaging.new", "logger is required")
	}

	service := &Service{
		config:       config,
		creator:      creator,
		placeholders: placeholders,
		logger:       logger,
	}

	return service, nil
}

// Register mounts the derivative endpoint on the cache route group.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("", s.handleImage)
	router.HEAD("", s.handleImage)

	s.logger.InfoTag("HTTP", "imaging routes registered")
	return nil
}

// handleImage decodes the descriptor from the raw query, tries the
// placeholder store for blur requests, and otherwise ensures the
// derivative exists before streaming it from disk.
func (s *Service) handleImage(c *gin.Context) {
	d, err := optimize.DecodeQuery(c.Request.URL.RawQuery)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid image request", gin.H{"error": err.Error()})
		return
	}

	if p, ok := s.storedPlaceholder(c.Request.Context(), d); ok {
		c.Header("Cache-Control", cacheControl)
		c.Data(http.StatusOK, "image/svg+xml", []byte(p.SVG))
		return
	}

	created, err := s.creator.CreateImage(c.Request.Context(), d)
	if err != nil {
		s.logger.ErrorTag("HTTP", "image request failed for %s: %v", d.Src, err)
		httptransport.RespondError(c, statusFromError(err), "image generation failed", gin.H{"error": err.Error()})
		return
	}
	if created {
		s.logger.DebugTag("HTTP", "derivative created on demand for %s", d.Src)
	}

	s.serveDerivative(c, d)
}

func (s *Service) storedPlaceholder(ctx context.Context, d optimize.Descriptor) (optimize.Placeholder, bool) {
	if s.placeholders == nil {
		return optimize.Placeholder{}, false
	}
	if _, ok := d.Option.(optimize.Blur); !ok {
		return optimize.Placeholder{}, false
	}

	p, ok, err := s.placeholders.Get(ctx, d.EncodeQuery())
	if err != nil {
		s.logger.WarnTag("HTTP", "placeholder lookup failed for %s: %v", d.Src, err)
		return optimize.Placeholder{}, false
	}
	return p, ok
}

func (s *Service) serveDerivative(c *gin.Context, d optimize.Descriptor) {
	c.Header("Cache-Control", cacheControl)
	switch d.Option.(type) {
	case optimize.Resize:
		c.Header("Content-Type", "image/webp")
	case optimize.Blur:
		c.Header("Content-Type", "image/svg+xml")
	}
	c.File(s.creator.FilePathFromRoot(d))
}

func statusFromError(err error) int {
	switch errors.KindOf(err) {
	case errors.KindDecode:
		return http.StatusBadRequest
	case errors.KindImage:
		return http.StatusUnprocessableEntity
	case errors.KindIO:
		if stderrors.Is(err, fs.ErrNotExist) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
