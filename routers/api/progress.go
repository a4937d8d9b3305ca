package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 运行进度 WebSocket 推送：先推送当前状态，之后轮询状态存储，阶段或进度变化时推送，终态后关闭
func (h *Handler) RunProgressWebSocket(c *gin.Context) {
	runID := c.Param("run_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket升级失败")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	run, err := h.Runs.Poll(ctx, runID)
	if err != nil {
		conn.WriteJSON(gin.H{"error": "run not found: " + err.Error()})
		return
	}
	if err := conn.WriteJSON(run); err != nil || run.Terminal {
		return
	}

	interval := h.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prevStage, prevProgress := run.Stage, run.Progress
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cur, err := h.Runs.Poll(ctx, runID)
		if err != nil {
			continue
		}
		if cur.Stage == prevStage && cur.Progress == prevProgress && !cur.Terminal {
			continue
		}
		if err := conn.WriteJSON(cur); err != nil {
			return
		}
		prevStage, prevProgress = cur.Stage, cur.Progress
		if cur.Terminal {
			return
		}
	}
}
