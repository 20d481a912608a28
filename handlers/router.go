package handlers

import (
	"cmsanalytics/api/metrics"
	"cmsanalytics/api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type RouterConfig struct {
	AdminKey       string
	JWTSecret      []byte
	FrontendOrigin string
	Limiter        *middleware.IPRateLimiter
	Metrics        *metrics.Metrics
	Registry       *prometheus.Registry
	Logger         *logrus.Logger
}

// SetupRouter mounts the public tracking beacons, the admin dashboard API and
// the operational endpoints.
func SetupRouter(h *AnalyticsHandlers, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	// Recovery runs innermost so a recovered panic is still logged and counted.
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(metrics.GinMiddleware(cfg.Metrics))
	r.Use(gin.Recovery())

	r.GET("/health", h.Health)
	if cfg.Registry != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(cfg.Registry)))
	}

	api := r.Group("/api/analytics")
	{
		// Preflights never reach group middleware, so answer them here.
		publicCORS := middleware.PublicCORSMiddleware()
		adminCORS := middleware.CORSMiddleware(cfg.FrontendOrigin)
		api.OPTIONS("/:route", func(c *gin.Context) {
			switch c.Param("route") {
			case "track", "event", "opt-in", "opt-out":
				publicCORS(c)
			default:
				adminCORS(c)
			}
		})

		// Tracking beacons (no authentication required)
		public := api.Group("")
		public.Use(publicCORS)
		if cfg.Limiter != nil {
			public.Use(middleware.RateLimitMiddleware(cfg.Limiter))
		}
		{
			public.POST("/track", h.TrackPageview)
			public.POST("/event", h.TrackEvent)
			public.POST("/opt-in", h.OptIn)
			public.POST("/opt-out", h.OptOut)
		}

		// Dashboard routes (require an admin key or token)
		admin := api.Group("")
		admin.Use(adminCORS)
		admin.Use(middleware.AuthRequired(cfg.AdminKey, cfg.JWTSecret, cfg.Logger))
		{
			admin.GET("/dashboard", h.GetDashboard)
			admin.GET("/pages", h.GetTopPages)
			admin.GET("/referrers", h.GetReferrers)
			admin.GET("/devices", h.GetDevices)
			admin.GET("/geography", h.GetGeography)
			admin.GET("/realtime", h.GetRealtime)
			admin.GET("/export", h.Export)
		}
	}

	return r
}
