package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/xkcdviews/config"
	"github.com/cppla/xkcdviews/controllers"
	"github.com/cppla/xkcdviews/middleware"
	"github.com/cppla/xkcdviews/store"
	"github.com/cppla/xkcdviews/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, s store.Store) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())

	// Access log goes to its own rolling file; fall back to the app logger
	gl := utils.Logger
	if cfg.GinPath != "" {
		if fl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			gl = fl
		} else {
			utils.Sugar.Warnf("gin log %s unavailable, using app logger: %v", cfg.GinPath, err)
		}
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, true))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	viewController := controllers.NewComicViewController(s, utils.Logger)
	statsController := controllers.NewStatsController(s, utils.Logger)
	admin := middleware.AdminRequired(cfg.JWTSecret)
	// both public write routes draw from the same per-IP bucket
	writeLimit := middleware.RateLimitMiddleware(cfg.RateLimitPerMinute)

	api := r.Group("/api/v1")

	comics := api.Group("/comics")
	comics.GET("/:number/views", viewController.GetViews)
	comics.POST("/:number/views", writeLimit, viewController.RecordView)
	comics.PUT("/:number", writeLimit, viewController.Ensure)
	comics.POST("", admin, viewController.Create)
	comics.DELETE("/:number", admin, viewController.Delete)

	rankings := api.Group("/rankings")
	rankings.GET("/top", statsController.Top)
	rankings.GET("/trending", statsController.Trending)

	api.GET("/stats", statsController.GetStats)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "route not found")
	})

	return r
}
