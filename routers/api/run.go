package api

import (
	"errors"
	"net/http"

	"ScriptToVideo-server/models"

	"github.com/gin-gonic/gin"
)

// 提交渲染：POST /v1/api/runs
func (h *Handler) CreateRun(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := h.Runs.Submit(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "提交运行失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID, "run": run})
}

// 查询运行状态：GET /v1/api/runs/:run_id
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.Runs.Poll(c.Request.Context(), c.Param("run_id"))
	if errors.Is(err, models.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}
