package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/handler"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Portal *handler.PortalHandler
	WS     *handler.WSHandler
}

// SetupRouter configures the portal's Gin route groups. enterLimiter may be
// nil to disable rate limiting of the entry route.
func SetupRouter(handlers *Handlers, cfg *config.Config, enterLimiter *middleware.RateLimiter) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		SkipPaths: []string{"/ws/"},
	}))

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Portal Group (session API) ─────────────────────────────────
	portal := router.Group("/api/v1/portal")
	portal.Use(middleware.NoStore())
	{
		enter := []gin.HandlerFunc{handlers.Portal.Enter}
		if enterLimiter != nil {
			enter = append([]gin.HandlerFunc{enterLimiter.Middleware()}, enter...)
		}
		portal.GET("/enter", enter...)

		portal.GET("/session", handlers.Portal.GetSession)
		portal.DELETE("/session", handlers.Portal.FinishSession)
		portal.POST("/session/start", handlers.Portal.StartExam)
		portal.PUT("/session/answers", handlers.Portal.SelectAnswer)
		portal.POST("/session/marks/:question_id", handlers.Portal.ToggleMark)
		portal.POST("/session/next", handlers.Portal.NextQuestion)
		portal.POST("/session/previous", handlers.Portal.PreviousQuestion)
		portal.PUT("/session/current", handlers.Portal.SetCurrentQuestion)
		portal.POST("/session/submit", handlers.Portal.SubmitExam)

		portal.DELETE("/notifications/:id", handlers.Portal.DismissNotification)
	}

	// ─── 2. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/portal/stream", handlers.WS.PortalStream)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	if len(origins) > 0 {
		c.AllowOrigins = origins
	} else {
		c.AllowAllOrigins = true
	}
	c.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	c.ExposeHeaders = []string{"X-Request-ID"}
	c.MaxAge = 12 * time.Hour
	return c
}
