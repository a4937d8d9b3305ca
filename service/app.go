// Package service 把流水线包装成可提交、可查询的运行：状态存储、派发（进程内或 Redis 队列）、产物发布。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ScriptToVideo-server/backend"
	"ScriptToVideo-server/config"
	"ScriptToVideo-server/models"
	"ScriptToVideo-server/pipeline"
	"ScriptToVideo-server/render"
	"ScriptToVideo-server/rules"
	"ScriptToVideo-server/script"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const statusRetention = 24 * time.Hour

// App 进程级组件，由配置装配
type App struct {
	Config  *config.Config
	Parser  *script.Parser
	DB      *gorm.DB
	Store   StatusStore
	Runner  *Runner
	Service *RunService
	// Local 本地派发模式下非 nil
	Local *LocalDispatcher

	queue *QueueDispatcher
}

func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	}
}

// NewApp 按配置装配各组件。队列模式需要 MySQL 共享运行状态
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	set := rules.Default()
	if cfg.Rules.Path != "" {
		loaded, err := rules.Load(cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("加载规则表失败: %w", err)
		}
		set = loaded
	}

	text, err := render.NewTextRenderer(cfg.Pipeline.FontPath, cfg.Pipeline.FontSize)
	if err != nil {
		logrus.WithError(err).Warn("字体加载失败，使用内置字体")
		text = render.BasicText(cfg.Pipeline.FontSize)
	}

	app := &App{Config: cfg, Parser: script.NewParser(set)}

	if cfg.MySQL.DSN != "" {
		db, err := models.InitDB(cfg.MySQL.DSN)
		if err != nil {
			return nil, err
		}
		app.DB = db
		app.Store = GormStatusStore{DB: db}
	} else {
		app.Store = NewMemoryStatusStore(statusRetention)
	}

	deps := pipeline.Deps{
		Capabilities: BuildCapabilities(cfg),
		Rules:        set,
		Text:         text,
		Reporter:     StoreReporter{Store: app.Store},
	}
	switch cfg.Pipeline.Sidecar {
	case "db":
		if app.DB == nil {
			return nil, errors.New("sidecar=db 需要配置 mysql.dsn")
		}
		db := app.DB
		deps.Sidecar = func(*pipeline.Workspace) pipeline.Sidecar { return GormSidecar{DB: db} }
	case "none":
		deps.Sidecar = func(*pipeline.Workspace) pipeline.Sidecar { return pipeline.NopSidecar{} }
	}
	if cfg.MinIO.Endpoint != "" {
		pub, err := NewMinIOPublisher(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		deps.Publisher = pub
	}

	orch := pipeline.NewOrchestrator(OrchestratorOptions(cfg), deps)
	app.Runner = &Runner{Orchestrator: orch, Store: app.Store}

	var dispatcher Dispatcher
	switch cfg.Pipeline.Dispatcher {
	case "queue":
		if app.DB == nil {
			return nil, errors.New("dispatcher=queue 需要配置 mysql.dsn")
		}
		app.queue = NewQueueDispatcher(RedisOpt(cfg), time.Duration(cfg.Worker.JobTimeoutMinutes)*time.Minute)
		dispatcher = app.queue
	case "local":
		app.Local = NewLocalDispatcher(ctx, app.Runner, cfg.Pipeline.Concurrency)
		dispatcher = app.Local
	default:
		return nil, fmt.Errorf("unknown dispatcher %q", cfg.Pipeline.Dispatcher)
	}
	app.Service = &RunService{Store: app.Store, Dispatcher: dispatcher}
	return app, nil
}

// Close 等待本地运行结束并释放连接
func (a *App) Close() {
	if a.Local != nil {
		a.Local.Drain()
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			logrus.WithError(err).Warn("关闭队列客户端失败")
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

func OrchestratorOptions(cfg *config.Config) pipeline.Options {
	p := cfg.Pipeline
	return pipeline.Options{
		FPS:                  p.FPS,
		Width:                p.Width,
		Height:               p.Height,
		DefaultSceneDuration: p.DefaultSceneDuration,
		ThumbnailSize:        p.ThumbnailSize,
		CharacterSize:        p.CharacterSize,
		MaxNarrationChars:    p.MaxNarrationChars,
		Concurrency:          p.Concurrency,
		TempDir:              p.TempDir,
		OutputDir:            p.OutputDir,
		UseDiffusion:         p.FrameSource == "diffusion",
	}
}

// BuildCapabilities 探测可用的生成能力，缺失的能力保持 nil，由流水线走兜底
func BuildCapabilities(cfg *config.Config) backend.Capabilities {
	var caps backend.Capabilities
	b := cfg.Backends

	ff, err := backend.NewFFmpeg(b.FFmpegPath)
	if err != nil {
		logrus.WithError(err).Warn("ffmpeg 不可用，视频将以描述文件代替")
	} else {
		caps.Encoder = ff
		caps.Merger = ff
	}

	if cfg.Worker.Addr != "" {
		wc := backend.NewWorkerClient(cfg.Worker.Addr, cfg.Worker.RequestsPerMinute,
			time.Duration(cfg.Worker.PollIntervalSeconds)*time.Second,
			time.Duration(cfg.Worker.JobTimeoutMinutes)*time.Minute)
		if ff != nil {
			wc.Extract = ff.ExtractFrames
		}
		if b.Image {
			caps.Image = wc
		}
		if b.Speech {
			caps.Speech = wc
		}
		if b.VideoDiffusion {
			caps.Video = wc
		}
	}

	if caps.Speech == nil && b.Speech && b.TTSCommand != "" {
		tts, err := backend.NewCommandSpeech(b.TTSCommand, "")
		if err != nil {
			logrus.WithError(err).Warn("TTS 命令不可用")
		} else {
			caps.Speech = tts
		}
	}

	logrus.Infof("生成能力: image=%t video=%t speech=%t encoder=%t merger=%t",
		caps.Image != nil, caps.Video != nil, caps.Speech != nil, caps.Encoder != nil, caps.Merger != nil)
	return caps
}
