package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/windchat/relay/internal/adapters/signal"
	"github.com/windchat/relay/internal/config"
	"github.com/windchat/relay/internal/metrics"
)

const (
	serviceName    = "windchat-relay"
	serviceVersion = "1.0.0"
)

var started = time.Now()

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    serviceName,
			"version": serviceVersion,
			"status":  "running",
			"endpoints": gin.H{
				"health":    "/health",
				"websocket": "/ws",
			},
		})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "ok",
			"activeRooms":       ctl.Rooms.Count(),
			"activeConnections": ctl.Sessions.Count(),
			"uptime":            time.Since(started).Seconds(),
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
