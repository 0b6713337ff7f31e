package device_routers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rapidaai/api/device-api/config"
	"github.com/rapidaai/pkg/commons"
)

func HealthCheckRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger) {
	logger.Info("Internal HealthCheckRoutes added to engine.")
	apiv1 := engine.Group("")
	{
		apiv1.GET("/readiness/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ready", "service": cfg.Name, "version": cfg.Version})
		})
		apiv1.GET("/healthz/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
}
