package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"ScriptToVideo-server/models"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrRunExists = errors.New("run already exists")

// StatusStore 运行状态存储。Advance / Finish 都是比较并交换：
// 终态之后的更新和进度回退的更新会被拒绝，返回 false
type StatusStore interface {
	Create(ctx context.Context, run *models.Run) error
	Advance(ctx context.Context, id string, stage models.Stage, progress float64) (bool, error)
	Finish(ctx context.Context, id string, result models.Result) (bool, error)
	Get(ctx context.Context, id string) (*models.Run, error)
}

// terminal 由结果推出终态阶段与进度
func terminal(result models.Result) (models.Stage, float64) {
	if result.Status == models.ResultSuccess {
		return models.StageDone, models.StageProgress[models.StageDone]
	}
	return models.StageFailed, 0
}

// MemoryStatusStore 进程内状态，过期后自动清除
type MemoryStatusStore struct {
	mu    sync.Mutex
	items *cache.Cache
}

func NewMemoryStatusStore(retention time.Duration) *MemoryStatusStore {
	return &MemoryStatusStore{items: cache.New(retention, retention/2)}
}

func (s *MemoryStatusStore) Create(_ context.Context, run *models.Run) error {
	now := time.Now()
	r := *run
	r.CreatedAt, r.UpdatedAt = now, now
	if err := s.items.Add(r.ID, &r, cache.DefaultExpiration); err != nil {
		return ErrRunExists
	}
	return nil
}

func (s *MemoryStatusStore) Advance(_ context.Context, id string, stage models.Stage, progress float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.load(id)
	if !ok {
		return false, models.ErrRunNotFound
	}
	if r.Terminal || progress < r.Progress {
		return false, nil
	}
	r.Stage, r.Progress, r.UpdatedAt = stage, progress, time.Now()
	s.items.Set(id, r, cache.DefaultExpiration)
	return true, nil
}

func (s *MemoryStatusStore) Finish(_ context.Context, id string, result models.Result) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.load(id)
	if !ok {
		return false, models.ErrRunNotFound
	}
	if r.Terminal {
		return false, nil
	}
	stage, progress := terminal(result)
	if progress > r.Progress {
		r.Progress = progress
	}
	res := result
	r.Stage, r.Terminal, r.Result, r.Error, r.UpdatedAt = stage, true, &res, result.Error, time.Now()
	s.items.Set(id, r, cache.DefaultExpiration)
	return true, nil
}

func (s *MemoryStatusStore) Get(_ context.Context, id string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.load(id)
	if !ok {
		return nil, models.ErrRunNotFound
	}
	return r, nil
}

// load 返回副本，调用方修改后需 Set 回去
func (s *MemoryStatusStore) load(id string) (*models.Run, bool) {
	v, ok := s.items.Get(id)
	if !ok {
		return nil, false
	}
	r := *v.(*models.Run)
	return &r, true
}

// GormStatusStore 状态写入 MySQL，供队列模式下 server 与 worker 共享
type GormStatusStore struct {
	DB *gorm.DB
}

func (s GormStatusStore) Create(ctx context.Context, run *models.Run) error {
	return models.CreateRun(s.DB.WithContext(ctx), run)
}

func (s GormStatusStore) Advance(ctx context.Context, id string, stage models.Stage, progress float64) (bool, error) {
	return models.AdvanceRun(s.DB.WithContext(ctx), id, stage, progress)
}

func (s GormStatusStore) Finish(ctx context.Context, id string, result models.Result) (bool, error) {
	stage, progress := terminal(result)
	return models.FinishRun(s.DB.WithContext(ctx), id, stage, progress, result)
}

func (s GormStatusStore) Get(ctx context.Context, id string) (*models.Run, error) {
	return models.GetRunByID(s.DB.WithContext(ctx), id)
}

// StoreReporter 把流水线阶段写入状态存储。终态由 Runner 通过 Finish 写入
type StoreReporter struct {
	Store StatusStore
}

func (r StoreReporter) Report(ctx context.Context, runID string, stage models.Stage, progress float64) {
	if stage == models.StageDone || stage == models.StageFailed {
		return
	}
	ok, err := r.Store.Advance(ctx, runID, stage, progress)
	switch {
	case err != nil:
		logrus.WithField("run_id", runID).WithError(err).Warnf("更新阶段 %s 失败", stage)
	case !ok:
		logrus.WithField("run_id", runID).Debugf("阶段 %s 被拒绝 (已终止或进度回退)", stage)
	}
}
