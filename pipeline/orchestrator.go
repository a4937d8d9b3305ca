// Package pipeline 把结构化剧本渲染为视频：资源解析、逐帧合成、编码、配音与合并，每一阶段都有兜底。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"ScriptToVideo-server/backend"
	"ScriptToVideo-server/models"
	"ScriptToVideo-server/render"
	"ScriptToVideo-server/rules"
	"ScriptToVideo-server/script"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultSceneDescription = "默认场景"

// StageError 资源类故障及其发生的阶段
type StageError struct {
	Stage models.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Reporter 接收阶段变化，用于 poll
type Reporter interface {
	Report(ctx context.Context, runID string, stage models.Stage, progress float64)
}

// Publisher 把最终产物发布到外部存储，返回可访问 URL
type Publisher interface {
	Publish(ctx context.Context, localPath, objectName string) (string, error)
}

type Options struct {
	FPS                  int
	Width                int
	Height               int
	DefaultSceneDuration float64
	ThumbnailSize        int
	CharacterSize        int
	MaxNarrationChars    int
	Concurrency          int
	TempDir              string
	OutputDir            string
	UseDiffusion         bool
}

// Deps 进程级依赖，在启动时注入
type Deps struct {
	Capabilities backend.Capabilities
	Rules        *rules.Set
	Text         *render.TextRenderer
	Reporter     Reporter
	Publisher    Publisher
	// Sidecar 为每次运行创建元数据存储，nil 时写 JSON 文件
	Sidecar func(ws *Workspace) Sidecar
}

type Orchestrator struct {
	opts   Options
	deps   Deps
	parser *script.Parser
}

func NewOrchestrator(opts Options, deps Deps) *Orchestrator {
	if deps.Rules == nil {
		deps.Rules = rules.Default()
	}
	if deps.Text == nil {
		deps.Text = render.BasicText(float64(opts.Height) / 40)
	}
	if deps.Sidecar == nil {
		deps.Sidecar = func(ws *Workspace) Sidecar { return JSONSidecar{Dir: ws.MetadataDir()} }
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Orchestrator{opts: opts, deps: deps, parser: script.NewParser(deps.Rules)}
}

// run 单次运行的状态，只在运行所在 goroutine 内修改
type run struct {
	o        *Orchestrator
	id       string
	log      *logrus.Entry
	stage    models.Stage
	progress float64
	ws       *Workspace
	meta     models.ResultMetadata

	doc        models.ScriptDocument
	scenes     []models.Scene
	dialogues  []models.DialogueLine
	characters map[string]models.VisualAsset
	background map[string]models.VisualAsset
	frames     []models.VideoFrame
	video      models.MediaArtifact
	audio      models.MediaArtifact
	final      models.MediaArtifact
}

// Run 执行一次完整流水线。总是返回 Result，不会向调用方抛出故障
func (o *Orchestrator) Run(ctx context.Context, runID string, req models.RunRequest) (res models.Result) {
	r := &run{
		o:          o,
		id:         runID,
		log:        logrus.WithField("run_id", runID),
		characters: make(map[string]models.VisualAsset),
		background: make(map[string]models.VisualAsset),
		meta: models.ResultMetadata{
			FPS:        o.opts.FPS,
			Resolution: fmt.Sprintf("%dx%d", o.opts.Width, o.opts.Height),
			StageModes: make(map[models.Stage]models.StageMode),
		},
	}
	r.advance(ctx, models.StageInit)

	defer func() {
		if rec := recover(); rec != nil {
			res = r.fail(ctx, r.next(), fmt.Errorf("unexpected panic: %v", rec))
		}
		r.cleanup()
	}()

	ws, err := NewWorkspace(o.opts.TempDir, o.opts.OutputDir, runID)
	if err != nil {
		return r.fail(ctx, models.StageParsed, err)
	}
	r.ws = ws

	steps := []struct {
		stage models.Stage
		fn    func(context.Context) error
	}{
		{models.StageParsed, func(context.Context) error { r.parse(req); return nil }},
		{models.StageAssetsResolved, r.resolveAssets},
		{models.StageFramesComposed, r.composeFrames},
		{models.StageVideoMuxed, r.muxVideo},
		{models.StageAudioSynthesized, r.synthesizeAudio},
		{models.StageMerged, r.merge},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return r.fail(ctx, step.stage, err)
		}
		r.advance(ctx, step.stage)
	}

	r.cleanup()
	r.advance(ctx, models.StageCleanedUp)
	r.advance(ctx, models.StageDone)

	r.log.Infof("运行完成: %s (%.2fs, %d 帧)", r.final.Path, r.final.Duration, len(r.frames))
	return models.Result{
		RunID:        runID,
		Status:       models.ResultSuccess,
		ArtifactPath: r.final.Path,
		Duration:     r.final.Duration,
		Metadata:     r.meta,
	}
}

func (r *run) advance(ctx context.Context, stage models.Stage) {
	r.stage = stage
	if p, ok := models.StageProgress[stage]; ok && p > r.progress {
		r.progress = p
	}
	r.log.Debugf("阶段 %s (%.0f%%)", stage, r.progress*100)
	if r.o.deps.Reporter != nil {
		r.o.deps.Reporter.Report(ctx, r.id, stage, r.progress)
	}
}

// next 当前阶段之后的阶段，即正在执行的阶段
func (r *run) next() models.Stage {
	order := []models.Stage{
		models.StageInit, models.StageParsed, models.StageAssetsResolved, models.StageFramesComposed,
		models.StageVideoMuxed, models.StageAudioSynthesized, models.StageMerged, models.StageCleanedUp, models.StageDone,
	}
	for i, s := range order[:len(order)-1] {
		if s == r.stage {
			return order[i+1]
		}
	}
	return r.stage
}

func (r *run) cleanup() {
	if r.ws == nil {
		return
	}
	if err := r.ws.Cleanup(); err != nil {
		r.log.WithError(err).Warn("清理临时文件失败")
	}
}

func (r *run) parse(req models.RunRequest) {
	r.doc = r.o.parser.Parse(req.Script)
	if req.Title != "" && r.doc.Title == script.DefaultTitle {
		r.doc.Title = req.Title
	}
	r.scenes = r.doc.Scenes
	r.dialogues = r.doc.Dialogues
	if len(r.scenes) == 0 {
		names := make([]string, 0, len(r.doc.Characters))
		for _, c := range r.doc.Characters {
			names = append(names, c.Name)
		}
		r.scenes = []models.Scene{{
			ID:          "scene_1",
			Description: defaultSceneDescription,
			Location:    defaultSceneDescription,
			Duration:    r.o.opts.DefaultSceneDuration,
			Characters:  names,
		}}
		r.dialogues = make([]models.DialogueLine, len(r.doc.Dialogues))
		for i, l := range r.doc.Dialogues {
			l.SceneID = "scene_1"
			r.dialogues[i] = l
		}
	}
	r.meta.Title = r.doc.Title
	r.meta.Scenes = len(r.scenes)
	r.meta.Characters = len(r.doc.Characters)
	r.meta.Dialogues = len(r.doc.Dialogues)
	r.log.Infof("解析完成: %q, %d 场景, %d 角色, %d 台词", r.doc.Title, r.meta.Scenes, r.meta.Characters, r.meta.Dialogues)
}

// resolveAssets 并发解析角色与场景资源
func (r *run) resolveAssets(ctx context.Context) error {
	o := r.o
	resolver := NewResolver(r.ws, o.deps.Capabilities.Image, o.deps.Sidecar(r.ws), o.deps.Rules, o.deps.Text, ResolverConfig{
		CharacterSize: o.opts.CharacterSize,
		SceneWidth:    o.opts.Width,
		SceneHeight:   o.opts.Height,
	}, r.log)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for _, c := range r.doc.Characters {
		g.Go(func() error {
			asset, err := resolver.ResolveCharacter(gctx, c)
			if err != nil {
				return err
			}
			mu.Lock()
			r.characters[c.Name] = asset
			mu.Unlock()
			return nil
		})
	}
	for _, s := range r.scenes {
		g.Go(func() error {
			asset, err := resolver.ResolveScene(gctx, s)
			if err != nil {
				return err
			}
			mu.Lock()
			r.background[s.ID] = asset
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	mode := models.ModeGenerative
	for _, set := range []map[string]models.VisualAsset{r.characters, r.background} {
		for _, a := range set {
			if a.Provenance != models.ProvenanceAI {
				mode = models.ModeFallback
			}
		}
	}
	r.meta.StageModes[models.StageAssetsResolved] = mode
	return nil
}

func (r *run) composeFrames(ctx context.Context) error {
	o := r.o
	comp := NewCompositor(o.opts.Width, o.opts.Height, o.opts.ThumbnailSize, o.deps.Text, r.ws.FramesDir())
	var diffuser backend.VideoDiffuser
	if o.opts.UseDiffusion {
		diffuser = o.deps.Capabilities.Video
	}
	seq := NewSequencer(comp, o.opts.FPS, o.opts.DefaultSceneDuration, diffuser, r.log)
	frames, mode, err := seq.Sequence(ctx, r.scenes, r.dialogues, r.background, r.characters)
	if err != nil {
		return err
	}
	r.frames = frames
	r.meta.Frames = len(frames)
	r.meta.StageModes[models.StageFramesComposed] = mode
	return nil
}

func (r *run) muxVideo(ctx context.Context) error {
	o := r.o
	muxer := NewMuxer(o.deps.Capabilities.Encoder, o.opts.FPS, o.opts.Width, o.opts.Height, r.ws.OutputDir, r.log)
	video, mode, err := muxer.Mux(ctx, r.frames, r.id)
	if err != nil {
		return err
	}
	r.video = video
	r.meta.VideoPath = video.Path
	r.meta.StageModes[models.StageVideoMuxed] = mode
	return nil
}

func (r *run) synthesizeAudio(ctx context.Context) error {
	o := r.o
	synth := NewAudioSynthesizer(o.deps.Capabilities.Speech, o.opts.MaxNarrationChars, r.ws.OutputDir, r.log)
	audio, mode, err := synth.Synthesize(ctx, r.doc.Dialogues, r.id)
	if err != nil {
		return err
	}
	r.audio = audio
	r.meta.AudioPath = audio.Path
	r.meta.StageModes[models.StageAudioSynthesized] = mode
	return nil
}

func (r *run) merge(ctx context.Context) error {
	merger := NewAVMerger(r.o.deps.Capabilities.Merger, r.ws.OutputDir, r.log)
	final, mode := merger.Merge(ctx, r.video, r.audio, r.id)
	r.final = final
	r.meta.StageModes[models.StageMerged] = mode

	if pub := r.o.deps.Publisher; pub != nil && !final.Descriptor {
		url, err := pub.Publish(ctx, final.Path, fmt.Sprintf("runs/%s/%s", r.id, filepath.Base(final.Path)))
		if err != nil {
			r.log.WithError(err).Warn("发布产物失败")
		} else {
			r.meta.PublishedURL = url
		}
	}
	return nil
}

// SalvageDescriptor 运行失败时的兜底产物
type SalvageDescriptor struct {
	RunID  string       `json:"run_id"`
	Title  string       `json:"title"`
	Stage  models.Stage `json:"stage"`
	Frames int          `json:"frames"`
	Error  string       `json:"error"`
}

// fail 进入 Failed(stage)，返回尽力而为的兜底结果
func (r *run) fail(ctx context.Context, stage models.Stage, err error) models.Result {
	var se *StageError
	if !errors.As(err, &se) {
		se = &StageError{Stage: stage, Err: err}
	}
	r.log.WithError(se).Errorf("运行失败于阶段 %s", se.Stage)
	r.advance(ctx, models.StageFailed)

	res := models.Result{
		RunID:       r.id,
		Status:      models.ResultFallback,
		Metadata:    r.meta,
		FailedStage: se.Stage,
		Error:       se.Error(),
	}
	switch {
	case r.final.Path != "":
		res.ArtifactPath, res.Duration = r.final.Path, r.final.Duration
	case r.video.Path != "":
		res.ArtifactPath, res.Duration = r.video.Path, r.video.Duration
	default:
		dir := r.o.opts.OutputDir
		if r.ws != nil {
			dir = r.ws.OutputDir
		}
		path := filepath.Join(dir, r.id+"_fallback.json")
		desc := SalvageDescriptor{RunID: r.id, Title: r.doc.Title, Stage: se.Stage, Frames: len(r.frames), Error: se.Err.Error()}
		if werr := writeJSON(path, desc); werr != nil {
			r.log.WithError(werr).Error("写入兜底描述失败")
		} else {
			res.ArtifactPath = path
		}
	}
	return res
}
