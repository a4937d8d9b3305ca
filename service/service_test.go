package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ScriptToVideo-server/models"
	"ScriptToVideo-server/pipeline"

	"github.com/hibiken/asynq"
)

func newRun(id string) *models.Run {
	return &models.Run{ID: id, Title: "t", ScriptText: "场景：公园\n小明：你好。", Stage: models.StageInit}
}

func TestMemoryStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStatusStore(time.Hour)
	if err := s.Create(ctx, newRun("r1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, newRun("r1")); !errors.Is(err, ErrRunExists) {
		t.Errorf("duplicate create err = %v", err)
	}

	steps := []struct {
		stage    models.Stage
		progress float64
		want     bool
	}{
		{models.StageParsed, 0.1, true},
		{models.StageAssetsResolved, 0.3, true},
		{models.StageParsed, 0.1, false},
		{models.StageAssetsResolved, 0.3, true},
	}
	for _, st := range steps {
		ok, err := s.Advance(ctx, "r1", st.stage, st.progress)
		if err != nil || ok != st.want {
			t.Errorf("Advance(%s, %v) = %v, %v; want %v", st.stage, st.progress, ok, err, st.want)
		}
	}

	ok, err := s.Finish(ctx, "r1", models.Result{RunID: "r1", Status: models.ResultSuccess})
	if !ok || err != nil {
		t.Fatalf("Finish = %v, %v", ok, err)
	}
	if ok, _ := s.Finish(ctx, "r1", models.Result{Status: models.ResultFallback}); ok {
		t.Error("second Finish accepted")
	}
	if ok, _ := s.Advance(ctx, "r1", models.StageMerged, 0.95); ok {
		t.Error("Advance after terminal accepted")
	}

	run, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if !run.Terminal || run.Stage != models.StageDone || run.Progress != 1 || run.Result == nil || run.Result.Status != models.ResultSuccess {
		t.Errorf("final run = %+v", run)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("Get missing err = %v", err)
	}
	if _, err := s.Advance(ctx, "missing", models.StageParsed, 0.1); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("Advance missing err = %v", err)
	}
}

func TestMemoryStoreFailedKeepsProgress(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStatusStore(time.Hour)
	s.Create(ctx, newRun("r2"))
	s.Advance(ctx, "r2", models.StageFramesComposed, 0.6)
	s.Finish(ctx, "r2", models.Result{Status: models.ResultFallback, FailedStage: models.StageVideoMuxed, Error: "boom"})

	run, _ := s.Get(ctx, "r2")
	if run.Stage != models.StageFailed || run.Progress != 0.6 || run.Error != "boom" {
		t.Errorf("run = %+v", run)
	}
}

func TestStoreReporterSkipsTerminalStages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStatusStore(time.Hour)
	s.Create(ctx, newRun("r3"))
	rep := StoreReporter{Store: s}

	rep.Report(ctx, "r3", models.StageParsed, 0.1)
	rep.Report(ctx, "r3", models.StageDone, 1)
	rep.Report(ctx, "missing", models.StageParsed, 0.1)

	run, _ := s.Get(ctx, "r3")
	if run.Stage != models.StageParsed || run.Terminal {
		t.Errorf("run = %+v", run)
	}
}

func newTestRunner(t *testing.T, store StatusStore) *Runner {
	t.Helper()
	root := t.TempDir()
	orch := pipeline.NewOrchestrator(pipeline.Options{
		FPS:                  2,
		Width:                32,
		Height:               18,
		DefaultSceneDuration: 2,
		ThumbnailSize:        6,
		CharacterSize:        16,
		MaxNarrationChars:    50,
		TempDir:              filepath.Join(root, "temp"),
		OutputDir:            filepath.Join(root, "out"),
	}, pipeline.Deps{Reporter: StoreReporter{Store: store}})
	return &Runner{Orchestrator: orch, Store: store}
}

func TestSubmitAndPollLocal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStatusStore(time.Hour)
	runner := newTestRunner(t, store)
	local := NewLocalDispatcher(ctx, runner, 2)
	svc := &RunService{Store: store, Dispatcher: local}

	run, err := svc.Submit(ctx, models.RunRequest{Title: "公园", Script: "场景：公园\n角色：小明（男）\n小明：你好。"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if run.ID == "" {
		t.Fatal("empty run id")
	}

	wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := local.Wait(wctx, run.ID); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	got, err := svc.Poll(ctx, run.ID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !got.Terminal || got.Stage != models.StageDone || got.Progress != 1 {
		t.Fatalf("status = %+v", got)
	}
	if got.Result == nil || got.Result.Status != models.ResultSuccess || got.Result.Metadata.Frames != 4 {
		t.Errorf("result = %+v", got.Result)
	}
	if got.Result.Metadata.Title != "公园" {
		t.Errorf("title = %q", got.Result.Metadata.Title)
	}
}

type failingDispatcher struct{}

func (failingDispatcher) Dispatch(context.Context, *models.Run) error {
	return errors.New("redis down")
}

func TestSubmitDispatchFailureMarksRunFailed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStatusStore(time.Hour)
	svc := &RunService{Store: store, Dispatcher: failingDispatcher{}}
	if _, err := svc.Submit(ctx, models.RunRequest{Script: "x"}); err == nil {
		t.Fatal("expected dispatch error")
	}
	for _, item := range store.items.Items() {
		run := item.Object.(*models.Run)
		if !run.Terminal || run.Stage != models.StageFailed || run.Result.FailedStage != models.StageInit {
			t.Errorf("run = %+v", run)
		}
	}
}

func TestHandleRenderRun(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStatusStore(time.Hour)
	p := &Processor{Runner: newTestRunner(t, store), Store: store}

	bad := asynq.NewTask(TypeRenderRun, []byte("{"))
	if err := p.HandleRenderRun(ctx, bad); !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("bad payload err = %v", err)
	}

	missing, _ := NewRenderTask("nope", time.Minute)
	if err := p.HandleRenderRun(ctx, missing); !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("missing run err = %v", err)
	}

	store.Create(ctx, newRun("q1"))
	task, _ := NewRenderTask("q1", time.Minute)
	if err := p.HandleRenderRun(ctx, task); err != nil {
		t.Fatalf("HandleRenderRun: %v", err)
	}
	run, _ := store.Get(ctx, "q1")
	if !run.Terminal || run.Result == nil || run.Result.Status != models.ResultSuccess {
		t.Errorf("run = %+v", run)
	}
	// 重复投递不会再次执行
	if err := p.HandleRenderRun(ctx, task); err != nil {
		t.Errorf("redelivery err = %v", err)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"runs/a/a_final.mp4": "video/mp4",
		"a_audio.mp3":        "audio/mpeg",
		"a_video.json":       "application/json",
		"x.bin":              "application/octet-stream",
	}
	for name, want := range cases {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}
