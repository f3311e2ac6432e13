// Package webapi exposes the introspection endpoints.
package webapi

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sstepanchuk/leptos-image/internal/domain/optimize"
	"github.com/sstepanchuk/leptos-image/internal/domain/optimize/store"
	"github.com/sstepanchuk/leptos-image/internal/platform/config"
	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
	"github.com/sstepanchuk/leptos-image/internal/platform/logging"
	"github.com/sstepanchuk/leptos-image/internal/platform/system"
	httptransport "github.com/sstepanchuk/leptos-image/internal/transport/http"
)

// Service answers status and placeholder listing requests.
type Service struct {
	config  *config.Config
	store   store.Store
	logger  *logging.Logger
	started time.Time
}

// NewService creates the introspection service.
func NewService(config *config.Config, placeholders store.Store, logger *logging.Logger) (*Service, error) {
	if config == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "config is required")
	}
	if placeholders == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "placeholder store is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "logger is required")
	}

	service := &Service{
		config:  config,
		store:   placeholders,
		logger:  logger,
		started: time.Now(),
	}

	return service, nil
}

// Register mounts the introspection routes on the API group.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/system", s.handleSystemGet)
	router.GET("/placeholders", s.handlePlaceholdersGet)

	s.logger.InfoTag("HTTP", "web api routes registered")
	return nil
}

// handleSystemGet reports process health, the image engine version and
// placeholder store statistics in one shot.
func (s *Service) handleSystemGet(c *gin.Context) {
	data := gin.H{
		"system":         system.Collect(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"engine":         optimize.EngineVersion(),
		"cache": gin.H{
			"root":         s.config.Cache.Root,
			"handler_path": s.config.Cache.HandlerPath,
			"parallelism":  s.config.Cache.Parallelism,
			"pre_list":     s.config.Cache.PreList,
		},
	}

	if stats, err := s.store.Stats(c.Request.Context()); err != nil {
		s.logger.WarnTag("WEBAPI", "placeholder stats unavailable: %v", err)
	} else {
		data["placeholders"] = stats
	}

	httptransport.RespondSuccess(c, http.StatusOK, data, "system status")
}

// handlePlaceholdersGet lists stored placeholders without their SVG
// payloads, ordered by key for stable output.
func (s *Service) handlePlaceholdersGet(c *gin.Context) {
	entries, err := s.store.List(c.Request.Context())
	if err != nil {
		s.logger.ErrorTag("WEBAPI", "placeholder listing failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "placeholder listing failed", nil)
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	summaries := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, gin.H{
			"key":        e.Key,
			"src":        e.Src,
			"svg_bytes":  len(e.SVG),
			"descriptor": e.Descriptor,
			"created_at": e.CreatedAt,
		})
	}

	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"total":   len(summaries),
		"entries": summaries,
	}, "placeholders")
}
