package controlplane

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/controlplane/handlers"
	"github.com/openmined/vaultsync/internal/controlplane/middleware"
	"github.com/openmined/vaultsync/internal/metrics"
	"github.com/openmined/vaultsync/internal/version"
	"github.com/ulule/limiter/v3"
)

type RouteConfig struct {
	Auth middleware.TokenAuthConfig
	Rate limiter.Rate
	// Metrics is served on /metrics when set
	Metrics *metrics.Metrics
}

func SetupRoutes(svc handlers.SyncService, routeConfig *RouteConfig) http.Handler {
	r := gin.New()

	rate := routeConfig.Rate
	if rate.Limit == 0 {
		rate = middleware.DefaultRate
	}

	statusH := handlers.NewStatusHandler(svc)
	syncH := handlers.NewSyncHandler(svc)

	r.Use(middleware.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())

	r.GET("/", IndexHandler)
	r.GET("/healthz", handlers.Healthz)
	if routeConfig.Metrics != nil {
		r.GET("/metrics", gin.WrapH(routeConfig.Metrics.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.RateLimit(rate))
	v1.Use(middleware.TokenAuth(routeConfig.Auth))
	{
		v1.GET("/status", statusH.Status)
		v1.GET("/process", handlers.Process)

		v1Sync := v1.Group("/sync")
		{
			v1Sync.GET("/plan", syncH.Plan)
			v1Sync.POST("/now", syncH.Now)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})
	r.HandleMethodNotAllowed = true

	return r.Handler()
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.Detailed())
}
