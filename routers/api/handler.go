package api

import (
	"time"

	"ScriptToVideo-server/script"
	"ScriptToVideo-server/service"
)

// Handler HTTP 接口依赖
type Handler struct {
	Runs   *service.RunService
	Parser *script.Parser
	// PollInterval websocket 推送时查询状态的间隔
	PollInterval time.Duration
}

func NewHandler(runs *service.RunService, parser *script.Parser) *Handler {
	return &Handler{Runs: runs, Parser: parser, PollInterval: time.Second}
}
