package pipeline

import (
	"context"
	"encoding/json"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"ScriptToVideo-server/models"
	"ScriptToVideo-server/render"
)

func writeFrames(t *testing.T, dir string, sizes ...[2]int) []models.VideoFrame {
	t.Helper()
	frames := make([]models.VideoFrame, len(sizes))
	for i, s := range sizes {
		p := filepath.Join(dir, "f"+string(rune('a'+i))+".png")
		if err := render.SavePNG(p, render.Solid(s[0], s[1], color.Black)); err != nil {
			t.Fatal(err)
		}
		frames[i] = models.VideoFrame{Index: i, ImagePath: p}
	}
	return frames
}

func TestMuxerDescriptorWhenNoEncoder(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, dir, [2]int{64, 36}, [2]int{64, 36}, [2]int{64, 36})
	m := NewMuxer(nil, 24, 1920, 1080, dir, testLog())
	art, mode, err := m.Mux(context.Background(), frames, "run1")
	if err != nil {
		t.Fatalf("Mux: %v", err)
	}
	if !art.Descriptor || mode != models.ModeFallback || art.Kind != models.ArtifactVideo {
		t.Fatalf("unexpected artifact %+v mode %s", art, mode)
	}
	var desc VideoDescriptor
	data, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		t.Fatal(err)
	}
	if desc.FrameCount != 3 || desc.FPS != 24 || desc.Resolution != "1920x1080" || desc.Duration != 3.0/24 {
		t.Errorf("descriptor = %+v", desc)
	}
}

func TestMuxerEncodes(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, dir, [2]int{64, 36}, [2]int{64, 36})
	enc := &fakeEncoder{}
	art, mode, err := NewMuxer(enc, 2, 64, 36, dir, testLog()).Mux(context.Background(), frames, "run1")
	if err != nil {
		t.Fatal(err)
	}
	if art.Descriptor || art.Format != "mp4" || mode != models.ModeGenerative || art.Duration != 1.0 {
		t.Errorf("artifact = %+v mode %s", art, mode)
	}
	if enc.frames != 2 {
		t.Errorf("encoder got %d frames", enc.frames)
	}
}

func TestMuxerFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		enc    *fakeEncoder
		sizes  [][2]int
		reason string
	}{
		{"encoder error", &fakeEncoder{err: errBackend}, [][2]int{{8, 8}}, "backend down"},
		{"mismatched sizes", &fakeEncoder{}, [][2]int{{8, 8}, {8, 6}}, "expected 8x8"},
		{"no frames", &fakeEncoder{}, nil, "no frames"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			frames := writeFrames(t, dir, tt.sizes...)
			art, _, err := NewMuxer(tt.enc, 24, 8, 8, dir, testLog()).Mux(context.Background(), frames, "run1")
			if err != nil {
				t.Fatal(err)
			}
			if !art.Descriptor {
				t.Fatalf("expected descriptor, got %+v", art)
			}
			data, _ := os.ReadFile(art.Path)
			if !strings.Contains(string(data), tt.reason) {
				t.Errorf("descriptor %s missing reason %q", data, tt.reason)
			}
		})
	}
}

func TestNarrationText(t *testing.T) {
	if got := NarrationText(nil, 200); got != DefaultNarration {
		t.Errorf("empty narration = %q", got)
	}
	lines := []models.DialogueLine{{Speaker: "小明", Content: "你好。"}, {Speaker: "小红", Content: "你好呀"}}
	if got := NarrationText(lines, 200); got != "小明: 你好。 小红: 你好呀" {
		t.Errorf("narration = %q", got)
	}
	long := []models.DialogueLine{{Speaker: "旁白", Content: strings.Repeat("很长的台词", 100)}}
	got := NarrationText(long, 200)
	if utf8.RuneCountInString(got) != 200 || !utf8.ValidString(got) {
		t.Errorf("truncated narration has %d runes", utf8.RuneCountInString(got))
	}
}

func TestAudioSynthesizer(t *testing.T) {
	lines := []models.DialogueLine{{Speaker: "小明", Content: "你好。"}}
	tests := []struct {
		name       string
		tts        *fakeSpeech
		descriptor bool
	}{
		{"absent", nil, true},
		{"error", &fakeSpeech{err: errBackend}, true},
		{"empty waveform", &fakeSpeech{}, true},
		{"ok", &fakeSpeech{data: []byte("RIFF")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			var a *AudioSynthesizer
			if tt.tts == nil {
				a = NewAudioSynthesizer(nil, 200, dir, testLog())
			} else {
				a = NewAudioSynthesizer(tt.tts, 200, dir, testLog())
			}
			art, mode, err := a.Synthesize(context.Background(), lines, "run1")
			if err != nil {
				t.Fatal(err)
			}
			if art.Descriptor != tt.descriptor {
				t.Errorf("descriptor = %v", art.Descriptor)
			}
			if (mode == models.ModeFallback) != tt.descriptor {
				t.Errorf("mode = %s", mode)
			}
			if _, err := os.Stat(art.Path); err != nil {
				t.Errorf("artifact not readable: %v", err)
			}
		})
	}
}

func TestAVMerger(t *testing.T) {
	dir := t.TempDir()
	video := models.MediaArtifact{Kind: models.ArtifactVideo, Path: filepath.Join(dir, "v.mp4"), Format: "mp4", Duration: 10}
	audio := models.MediaArtifact{Kind: models.ArtifactAudio, Path: filepath.Join(dir, "a.wav"), Format: "wav"}
	descAudio := audio
	descAudio.Descriptor = true

	tests := []struct {
		name    string
		merger  *fakeMerger
		audio   models.MediaArtifact
		wantVid bool
	}{
		{"no merger", nil, audio, true},
		{"placeholder audio", &fakeMerger{}, descAudio, true},
		{"merge fails", &fakeMerger{err: errBackend}, audio, true},
		{"merged", &fakeMerger{}, audio, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m *AVMerger
			if tt.merger == nil {
				m = NewAVMerger(nil, dir, testLog())
			} else {
				m = NewAVMerger(tt.merger, dir, testLog())
			}
			final, mode := m.Merge(context.Background(), video, tt.audio, "run1")
			if tt.wantVid {
				if final != video || mode != models.ModeFallback {
					t.Errorf("expected video unchanged, got %+v (%s)", final, mode)
				}
				return
			}
			if final.Kind != models.ArtifactFinal || final.Duration != 10 || mode != models.ModeGenerative {
				t.Errorf("final = %+v (%s)", final, mode)
			}
		})
	}
}
