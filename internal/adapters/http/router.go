package http

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/roomcast/internal/adapters/signal"
	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/config"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/logging"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type handlers struct {
	registry  *app.Registry
	outputDir string
	started   time.Time
}

func SetupRouter(ctx context.Context, cfg *config.Config, registry *app.Registry, ctrl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinMiddleware())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RoomcastSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &handlers{registry: registry, outputDir: cfg.HLS.OutputDir, started: time.Now()}

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(filepath.Join(cfg.StaticPath, "index.html"))
		})
	}

	r.GET("/health", h.health)
	r.GET(path.Join("/", cfg.HLS.PublicPath, ":room", ":file"), h.artifact)

	api := r.Group("/api")
	api.GET("/rooms", h.rooms)
	api.GET("/rooms/:id/stats", h.stats)
	api.GET("/rooms/:id/stream", h.stream)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().
		Str("module", "adapters.http").
		Str("static", cfg.StaticPath).
		Str("live", cfg.HLS.PublicPath).
		Msg("router setup")
	return r
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"rooms":  h.registry.Count(),
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *handlers) rooms(c *gin.Context) {
	rooms, err := h.registry.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *handlers) stats(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	st, err := h.registry.Stats(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) stream(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if _, ok := h.registry.Room(id); !ok {
		writeError(c, domain.ErrRoomNotFound)
		return
	}
	url, err := h.registry.StreamURL(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// artifact serves playlists and segments of a live rebroadcast.
func (h *handlers) artifact(c *gin.Context) {
	room, err := domain.ParseRoomID(c.Param("room"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	file := c.Param("file")
	if file != filepath.Base(file) || strings.HasPrefix(file, ".") {
		c.Status(http.StatusNotFound)
		return
	}
	switch filepath.Ext(file) {
	case ".m3u8":
		c.Header("Cache-Control", "no-cache")
		c.Header("Content-Type", "application/vnd.apple.mpegurl")
	case ".ts":
		c.Header("Content-Type", "video/mp2t")
	default:
		c.Status(http.StatusNotFound)
		return
	}

	full := filepath.Join(h.outputDir, string(room), file)
	if fi, err := os.Stat(full); err != nil || fi.IsDir() {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(full)
}

func writeError(c *gin.Context, err error) {
	code := domain.Code(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrStreamNotAvailable):
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", "2")
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrRoomClosed):
		status = http.StatusNotFound
	case code == domain.CodeBadRequest:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
