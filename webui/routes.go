package webui

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iot-dashboard/logic"
)

// setupRoutes registriert alle Endpunkte.
//
//	GET  /api/layout
//	GET  /api/widgets
//	GET  /api/widgets/:id
//	POST /api/widgets/:id/command
//	POST /api/widgets/:id/settings
//	GET  /api/ws-widgets
func (s *Server) setupRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/layout", s.getLayout)
		api.GET("/widgets", s.getWidgets)
		api.GET("/widgets/:id", s.getWidget)
		api.POST("/widgets/:id/command", s.postCommand)
		api.POST("/widgets/:id/settings", s.postSettings)
		api.GET("/ws-widgets", s.widgetsWebSocket)
		api.GET("/logs", getLogs)
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func getLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": logic.GetLogs()})
}
