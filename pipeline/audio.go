package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"ScriptToVideo-server/backend"
	"ScriptToVideo-server/models"
	"ScriptToVideo-server/render"

	"github.com/sirupsen/logrus"
)

const DefaultNarration = "欢迎观看AI生成的视频"

type AudioDescriptor struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

type AudioSynthesizer struct {
	tts      backend.SpeechSynthesizer
	maxChars int
	outDir   string
	log      *logrus.Entry
}

func NewAudioSynthesizer(tts backend.SpeechSynthesizer, maxChars int, outDir string, log *logrus.Entry) *AudioSynthesizer {
	return &AudioSynthesizer{tts: tts, maxChars: maxChars, outDir: outDir, log: log}
}

// NarrationText 按文档顺序拼接 "说话人: 内容"，按字符（rune）截断
func NarrationText(lines []models.DialogueLine, maxChars int) string {
	if len(lines) == 0 {
		return DefaultNarration
	}
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.Speaker+": "+l.Content)
	}
	text := []rune(strings.Join(parts, " "))
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}
	return string(text)
}

func (a *AudioSynthesizer) Synthesize(ctx context.Context, lines []models.DialogueLine, outputID string) (models.MediaArtifact, models.StageMode, error) {
	text := NarrationText(lines, a.maxChars)

	reason := "speech backend unavailable"
	if a.tts != nil {
		wave, err := a.call(ctx, text)
		if err == nil {
			format := wave.Format
			if format == "" {
				format = "wav"
			}
			path := filepath.Join(a.outDir, fmt.Sprintf("%s_audio.%s", outputID, format))
			if err := render.WriteFile(path, wave.Data); err != nil {
				return models.MediaArtifact{}, models.ModeGenerative, fmt.Errorf("write audio: %w", err)
			}
			return models.MediaArtifact{Kind: models.ArtifactAudio, Path: path, Format: format}, models.ModeGenerative, nil
		}
		reason = err.Error()
		a.log.WithError(err).Warn("[Audio] 语音合成失败，使用占位描述")
	}

	path := filepath.Join(a.outDir, outputID+"_audio.json")
	if err := writeJSON(path, AudioDescriptor{Text: text, Reason: reason}); err != nil {
		return models.MediaArtifact{}, models.ModeFallback, fmt.Errorf("write audio descriptor: %w", err)
	}
	return models.MediaArtifact{Kind: models.ArtifactAudio, Path: path, Format: "json", Descriptor: true}, models.ModeFallback, nil
}

func (a *AudioSynthesizer) call(ctx context.Context, text string) (wave backend.Waveform, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("speech backend panic: %v", rec)
		}
	}()
	wave, err = a.tts.Synthesize(ctx, text, nil)
	if err != nil {
		return wave, err
	}
	if len(wave.Data) == 0 {
		return wave, fmt.Errorf("speech backend returned empty waveform")
	}
	return wave, nil
}
