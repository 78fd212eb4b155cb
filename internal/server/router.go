package server

import (
	"github.com/gin-gonic/gin"

	"kabutune/internal/config"
	"kabutune/internal/logger"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(api *API, cfg config.ServerConfig, log logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(log.WithField("component", "http")))
	r.Use(corsMiddleware(cfg.CORSOrigin))

	limited := rateLimit(NewClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), log)

	g := r.Group("/api")
	{
		g.GET("/search", api.Search)
		g.GET("/related", api.Related)
		g.GET("/related/:id", api.Related)
		g.GET("/stream/:id", limited, api.Stream)
		g.GET("/download/:id", limited, api.Download)
		g.GET("/news", api.News)
		g.GET("/health", api.Health)
	}

	return r
}
