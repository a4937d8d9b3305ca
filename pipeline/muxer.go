package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"ScriptToVideo-server/backend"
	"ScriptToVideo-server/models"
	"ScriptToVideo-server/render"

	"github.com/sirupsen/logrus"
)

// VideoDescriptor 无法编码时代替视频的结构化描述
type VideoDescriptor struct {
	VideoID    string  `json:"video_id"`
	FrameCount int     `json:"frame_count"`
	FPS        int     `json:"fps"`
	Resolution string  `json:"resolution"`
	Duration   float64 `json:"duration"`
	Reason     string  `json:"reason"`
}

type Muxer struct {
	enc           backend.Encoder
	fps           int
	width, height int
	outDir        string
	log           *logrus.Entry
}

func NewMuxer(enc backend.Encoder, fps, width, height int, outDir string, log *logrus.Entry) *Muxer {
	return &Muxer{enc: enc, fps: fps, width: width, height: height, outDir: outDir, log: log}
}

// Mux 编码失败或不可用时写出描述文件；只有描述文件也写不出时返回错误
func (m *Muxer) Mux(ctx context.Context, frames []models.VideoFrame, outputID string) (models.MediaArtifact, models.StageMode, error) {
	duration := float64(len(frames)) / float64(m.fps)
	width, height := m.width, m.height

	reason := ""
	switch {
	case m.enc == nil:
		reason = "encoder unavailable"
	case len(frames) == 0:
		reason = "no frames"
	}

	if reason == "" {
		w, h, err := frameSize(frames)
		if err != nil {
			reason = err.Error()
		} else {
			width, height = w, h
			out := filepath.Join(m.outDir, outputID+".mp4")
			if err := m.encode(ctx, frames, out); err != nil {
				reason = err.Error()
			} else {
				m.log.Infof("[Muxer] 编码完成: %s (%d 帧, %.2fs)", out, len(frames), duration)
				return models.MediaArtifact{
					Kind:     models.ArtifactVideo,
					Path:     out,
					Format:   "mp4",
					Duration: duration,
				}, models.ModeGenerative, nil
			}
		}
	}

	m.log.Warnf("[Muxer] 使用描述文件代替视频: %s", reason)
	desc := VideoDescriptor{
		VideoID:    outputID,
		FrameCount: len(frames),
		FPS:        m.fps,
		Resolution: fmt.Sprintf("%dx%d", width, height),
		Duration:   duration,
		Reason:     reason,
	}
	path := filepath.Join(m.outDir, outputID+"_video.json")
	if err := writeJSON(path, desc); err != nil {
		return models.MediaArtifact{}, models.ModeFallback, fmt.Errorf("write video descriptor: %w", err)
	}
	return models.MediaArtifact{
		Kind:       models.ArtifactVideo,
		Path:       path,
		Format:     "json",
		Descriptor: true,
		Duration:   duration,
	}, models.ModeFallback, nil
}

func (m *Muxer) encode(ctx context.Context, frames []models.VideoFrame, out string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("encoder panic: %v", rec)
		}
	}()
	paths := make([]string, len(frames))
	for i, f := range frames {
		paths[i] = f.ImagePath
	}
	if err := m.enc.Encode(ctx, paths, m.fps, out); err != nil {
		return err
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		return fmt.Errorf("encoder produced no output")
	}
	return nil
}

// frameSize 所有帧必须同尺寸，返回第一帧尺寸
func frameSize(frames []models.VideoFrame) (int, int, error) {
	w, h, err := render.DecodeSize(frames[0].ImagePath)
	if err != nil {
		return 0, 0, err
	}
	for _, f := range frames[1:] {
		fw, fh, err := render.DecodeSize(f.ImagePath)
		if err != nil {
			return 0, 0, err
		}
		if fw != w || fh != h {
			return 0, 0, fmt.Errorf("frame %d is %dx%d, expected %dx%d", f.Index, fw, fh, w, h)
		}
	}
	return w, h, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return render.WriteFile(path, data)
}
