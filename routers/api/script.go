package api

import (
	"net/http"

	"ScriptToVideo-server/models"
	"ScriptToVideo-server/script"

	"github.com/gin-gonic/gin"
)

// 只解析不渲染：POST /v1/api/scripts/parse
func (h *Handler) ParseScript(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc := h.Parser.Parse(req.Script)
	if req.Title != "" && doc.Title == script.DefaultTitle {
		doc.Title = req.Title
	}
	c.JSON(http.StatusOK, gin.H{"document": doc})
}
