package device_routers

import (
	"github.com/gin-gonic/gin"
	"github.com/rapidaai/api/device-api/config"
	internal_gateway "github.com/rapidaai/api/device-api/internal/gateway"
	internal_type "github.com/rapidaai/api/device-api/internal/type"
	"github.com/rapidaai/pkg/commons"
)

func DeviceIngestRoute(
	cfg *config.AppConfig,
	engine *gin.Engine,
	logger commons.Logger,
	ingestor internal_type.Ingestor,
) {
	gateway := internal_gateway.NewGateway(logger, ingestor)
	apiv1 := engine.Group("v1/device")
	{
		// device websocket: audio_start / audio_chunk / audio_stop envelopes
		apiv1.GET("/ingest", func(c *gin.Context) {
			gateway.Handle(c.Writer, c.Request)
		})
	}
}
