package service

import (
	"context"
	"fmt"
	"sync"

	"ScriptToVideo-server/models"
	"ScriptToVideo-server/pipeline"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Dispatcher 把已登记的运行交给执行方
type Dispatcher interface {
	Dispatch(ctx context.Context, run *models.Run) error
}

// Runner 执行一次运行并写入终态
type Runner struct {
	Orchestrator *pipeline.Orchestrator
	Store        StatusStore
}

func (x *Runner) Execute(ctx context.Context, run *models.Run) models.Result {
	res := x.Orchestrator.Run(ctx, run.ID, models.RunRequest{Title: run.Title, Script: run.ScriptText})
	ok, err := x.Store.Finish(context.WithoutCancel(ctx), run.ID, res)
	log := logrus.WithField("run_id", run.ID)
	switch {
	case err != nil:
		log.WithError(err).Error("写入运行结果失败")
	case !ok:
		log.Warn("运行已处于终态，结果被丢弃")
	}
	return res
}

// RunService 提交与查询运行
type RunService struct {
	Store      StatusStore
	Dispatcher Dispatcher
}

// Submit 登记运行并派发，返回初始状态
func (s *RunService) Submit(ctx context.Context, req models.RunRequest) (*models.Run, error) {
	run := &models.Run{
		ID:         uuid.NewString(),
		Title:      req.Title,
		ScriptText: req.Script,
		Stage:      models.StageInit,
		Progress:   models.StageProgress[models.StageInit],
	}
	if err := s.Store.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	if err := s.Dispatcher.Dispatch(ctx, run); err != nil {
		res := models.Result{
			RunID:       run.ID,
			Status:      models.ResultFallback,
			FailedStage: models.StageInit,
			Error:       err.Error(),
		}
		if _, ferr := s.Store.Finish(ctx, run.ID, res); ferr != nil {
			logrus.WithField("run_id", run.ID).WithError(ferr).Error("标记派发失败的运行出错")
		}
		return nil, fmt.Errorf("dispatch run %s: %w", run.ID, err)
	}
	logrus.WithField("run_id", run.ID).Infof("运行已提交: %q", run.Title)
	return s.Store.Get(ctx, run.ID)
}

func (s *RunService) Poll(ctx context.Context, id string) (*models.Run, error) {
	return s.Store.Get(ctx, id)
}

// LocalDispatcher 在本进程内执行，同时运行的数量受信号量限制
type LocalDispatcher struct {
	ctx    context.Context
	runner *Runner
	sem    chan struct{}

	mu   sync.Mutex
	done map[string]chan struct{}
	wg   sync.WaitGroup
}

func NewLocalDispatcher(ctx context.Context, runner *Runner, concurrency int) *LocalDispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &LocalDispatcher{
		ctx:    ctx,
		runner: runner,
		sem:    make(chan struct{}, concurrency),
		done:   make(map[string]chan struct{}),
	}
}

func (d *LocalDispatcher) Dispatch(_ context.Context, run *models.Run) error {
	ch := make(chan struct{})
	d.mu.Lock()
	if _, ok := d.done[run.ID]; ok {
		d.mu.Unlock()
		return ErrRunExists
	}
	d.done[run.ID] = ch
	d.mu.Unlock()

	r := *run
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			close(ch)
			d.mu.Lock()
			delete(d.done, r.ID)
			d.mu.Unlock()
		}()
		select {
		case d.sem <- struct{}{}:
		case <-d.ctx.Done():
			d.runner.Execute(d.ctx, &r)
			return
		}
		defer func() { <-d.sem }()
		d.runner.Execute(d.ctx, &r)
	}()
	return nil
}

// Wait 等待指定运行结束；运行不存在或已结束时立即返回
func (d *LocalDispatcher) Wait(ctx context.Context, id string) error {
	d.mu.Lock()
	ch, ok := d.done[id]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain 等待所有运行结束
func (d *LocalDispatcher) Drain() {
	d.wg.Wait()
}
