package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"sync"
	"testing"

	"ScriptToVideo-server/backend"
	"ScriptToVideo-server/models"
	"ScriptToVideo-server/render"

	"github.com/sirupsen/logrus"
)

var errBackend = errors.New("backend down")

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(l)
}

type fakeImage struct {
	mu     sync.Mutex
	calls  int
	size   image.Point
	err    error
	panics bool
}

func (f *fakeImage) GenerateImage(_ context.Context, prompt string, w, h int) (image.Image, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panics {
		panic("model not loaded")
	}
	if f.err != nil {
		return nil, f.err
	}
	size := f.size
	if size == (image.Point{}) {
		size = image.Pt(w, h)
	}
	return render.Solid(size.X, size.Y, color.RGBA{R: 10, G: 20, B: 30, A: 255}), nil
}

type fakeEncoder struct {
	err    error
	frames int
}

func (f *fakeEncoder) Encode(_ context.Context, paths []string, fps int, out string) error {
	if f.err != nil {
		return f.err
	}
	f.frames = len(paths)
	return render.WriteFile(out, []byte("fake mp4"))
}

type fakeSpeech struct {
	err  error
	data []byte
}

func (f *fakeSpeech) Synthesize(_ context.Context, text string, _ []float32) (backend.Waveform, error) {
	if f.err != nil {
		return backend.Waveform{}, f.err
	}
	return backend.Waveform{Data: f.data, Format: "wav"}, nil
}

type fakeMerger struct {
	err error
}

func (f *fakeMerger) Merge(_ context.Context, video, audio, out string) error {
	if f.err != nil {
		return f.err
	}
	return render.WriteFile(out, []byte("fake merged mp4"))
}

type fakeDiffuser struct {
	frames int
	err    error
}

func (f *fakeDiffuser) GenerateClip(_ context.Context, src image.Image, n, fps int) ([]image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]image.Image, f.frames)
	for i := range out {
		out[i] = render.Solid(8, 8, color.White)
	}
	return out, nil
}

type failingSidecar struct{}

func (failingSidecar) Save(context.Context, models.AssetRecord) error { return errBackend }

func (failingSidecar) Load(context.Context, string) (models.AssetRecord, bool) {
	return models.AssetRecord{}, false
}

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	root := t.TempDir()
	ws, err := NewWorkspace(root+"/temp", root+"/out", "run-test")
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	return ws
}
