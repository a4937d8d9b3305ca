package routers

import (
	"ScriptToVideo-server/routers/api"

	"github.com/gin-gonic/gin"
)

// InitRouter outputDir 下的产物通过 /videos 直接访问
func InitRouter(h *api.Handler, outputDir string) *gin.Engine {
	r := gin.Default()
	if outputDir != "" {
		r.Static("/videos", outputDir)
	}
	v1 := r.Group("/v1/api")
	{
		v1.POST("/scripts/parse", h.ParseScript)
		v1.POST("/runs", h.CreateRun)
		v1.GET("/runs/:run_id", h.GetRun)
	}
	r.GET("/runs/:run_id/wss", h.RunProgressWebSocket)
	return r
}
