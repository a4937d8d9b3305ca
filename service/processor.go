package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ScriptToVideo-server/models"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Processor 消费队列中的渲染任务
type Processor struct {
	Runner *Runner
	Store  StatusStore

	srv *asynq.Server
}

func NewProcessor(opt asynq.RedisClientOpt, runner *Runner, concurrency int) *Processor {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 1,
		},
	})
	return &Processor{Runner: runner, Store: runner.Store, srv: srv}
}

// Start 非阻塞启动消费者
func (p *Processor) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRenderRun, p.HandleRenderRun)
	logrus.Infof("Starting Run Processor...")
	return p.srv.Start(mux)
}

func (p *Processor) Shutdown() {
	p.srv.Shutdown()
}

// HandleRenderRun 读取运行记录并执行。流水线自身不返回错误，只有记录缺失类问题才会失败
func (p *Processor) HandleRenderRun(ctx context.Context, t *asynq.Task) error {
	var payload RunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	run, err := p.Store.Get(ctx, payload.RunID)
	if errors.Is(err, models.ErrRunNotFound) {
		return fmt.Errorf("run %s not found: %w", payload.RunID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("load run %s: %w", payload.RunID, err)
	}
	if run.Terminal {
		logrus.WithField("run_id", run.ID).Info("运行已结束，跳过")
		return nil
	}

	logrus.WithField("run_id", run.ID).Infof("Processing Run: %q", run.Title)
	res := p.Runner.Execute(ctx, run)
	logrus.WithField("run_id", run.ID).Infof("Run finished: %s %s", res.Status, res.ArtifactPath)
	return nil
}
