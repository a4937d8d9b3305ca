// Package backend 定义流水线消费的生成能力接口及其实现（生成 Worker、ffmpeg、本地 TTS 命令）。
package backend

import (
	"context"
	"errors"
	"image"
)

// ErrUnavailable 能力未配置
var ErrUnavailable = errors.New("capability unavailable")

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, width, height int) (image.Image, error)
}

// VideoDiffuser 图生视频，作为合成帧之外的可选帧来源
type VideoDiffuser interface {
	GenerateClip(ctx context.Context, source image.Image, frameCount, fps int) ([]image.Image, error)
}

type Waveform struct {
	Data   []byte
	Format string // wav, mp3 ...
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, speakerEmbedding []float32) (Waveform, error)
}

// Encoder 按顺序把帧编码为视频容器
type Encoder interface {
	Encode(ctx context.Context, framePaths []string, fps int, outPath string) error
}

type Merger interface {
	Merge(ctx context.Context, videoPath, audioPath, outPath string) error
}

// Capabilities 进程级能力集合，任意字段为 nil 表示不可用
type Capabilities struct {
	Image   ImageGenerator
	Video   VideoDiffuser
	Speech  SpeechSynthesizer
	Encoder Encoder
	Merger  Merger
}
