package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/jonhson0816/nelly-api/internal/httpapi"
	"github.com/jonhson0816/nelly-api/internal/realtime"
	"github.com/jonhson0816/nelly-api/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type routeDeps struct {
	authMW   gin.HandlerFunc
	handlers httpapi.Handlers
	ws       *realtime.Handler
	db       *sql.DB
	redis    *redis.Client
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := utils.HealthCheck(ctx, d.db, 2*time.Second); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "postgres unavailable"})
			return
		}
		if err := d.redis.Ping(ctx).Err(); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Websocket handshakes authenticate themselves (header or ?token=).
	r.GET("/ws", d.ws.ServeWS)

	// AUTH routes (token issuance). Identity and role come from the user directory.
	r.POST("/v1/auth/login", d.handlers.Login)
	r.POST("/v1/auth/refresh", d.handlers.Refresh)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(d.authMW)
	d.handlers.Register(v1)
}
