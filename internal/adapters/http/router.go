package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/adapters/signal"
	"github.com/dkeye/Duo/internal/app/orch"
	"github.com/dkeye/Duo/internal/config"
	transport "github.com/dkeye/Duo/internal/transport/http"
)

const sessionName = "duo"

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, limiter *signal.RoomRateLimiter) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/api/rooms",
		MaxAge:   int(cfg.Rooms.Lifetime.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Mode == "release",
		SameSite: http.SameSiteStrictMode,
	})

	h := transport.NewHandlers(o, limiter, transport.CookieOptions{
		Lifetime: cfg.Rooms.Lifetime,
		Secure:   cfg.Mode == "release",
	})
	ws := signal.NewSignalWSController(ctx, o, limiter, signal.Options{
		PingPeriod: cfg.PingPeriod,
		ReadLimit:  cfg.ReadLimit,
	})

	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	api := r.Group("/api", sessions.Sessions(sessionName, store))
	api.POST("/rooms", h.CreateRoom)

	room := api.Group("/rooms/:room")
	room.GET("", h.Status)
	room.POST("/join", h.Join)
	room.GET("/messages", h.History)
	room.POST("/messages", h.Send)
	room.GET("/ws", ws.HandleStream)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
