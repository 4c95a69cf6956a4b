package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"chatrelay/internal/infra/config"
	"chatrelay/internal/infra/obs"
)

type MessageHTTP interface {
	Send(c *gin.Context)
	History(c *gin.Context)
	MarkRead(c *gin.Context)
	Unread(c *gin.Context)
}

type PresenceHTTP interface {
	Snapshot(c *gin.Context)
}

type SocketHTTP interface {
	Upgrade(c *gin.Context)
}

type Handlers struct {
	Messages       MessageHTTP
	Presence       PresenceHTTP
	Socket         SocketHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter builds the gin engine behind NewServer.
func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	registerSwaggerRoutes(router, cfg.Auth.Mode)

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	authed := router.Group("")
	if h.AuthMiddleware != nil {
		authed.Use(h.AuthMiddleware)
	}
	if h.Socket != nil {
		authed.GET("/ws", h.Socket.Upgrade)
	}

	api := authed.Group("/api/v1")
	if h.Messages != nil {
		api.POST("/conversations/:id/messages", h.Messages.Send)
		api.GET("/conversations/:id/messages", h.Messages.History)
		api.POST("/conversations/:id/read", h.Messages.MarkRead)
		api.GET("/unread", h.Messages.Unread)
	}
	if h.Presence != nil {
		api.GET("/presence", h.Presence.Snapshot)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key", UserIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", obs.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
