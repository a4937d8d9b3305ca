package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ScriptToVideo-server/models"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	TypeRenderRun = "run:render"
)

type RunPayload struct {
	RunID string `json:"run_id"`
}

func NewRenderTask(runID string, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(RunPayload{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}
	return asynq.NewTask(TypeRenderRun, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(timeout),
		asynq.Retention(24*time.Hour),
	), nil
}

// QueueDispatcher 通过 Redis 队列把运行交给 worker 进程
type QueueDispatcher struct {
	Client  *asynq.Client
	Timeout time.Duration
}

func NewQueueDispatcher(opt asynq.RedisClientOpt, timeout time.Duration) *QueueDispatcher {
	return &QueueDispatcher{Client: asynq.NewClient(opt), Timeout: timeout}
}

func (q *QueueDispatcher) Dispatch(ctx context.Context, run *models.Run) error {
	task, err := NewRenderTask(run.ID, q.Timeout)
	if err != nil {
		return err
	}
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	logrus.Infof("[Queue] Run Enqueued: ID=%s, TaskID=%s", run.ID, info.ID)
	return nil
}

func (q *QueueDispatcher) Close() error {
	return q.Client.Close()
}
