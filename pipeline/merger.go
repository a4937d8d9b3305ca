package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ScriptToVideo-server/backend"
	"ScriptToVideo-server/models"

	"github.com/sirupsen/logrus"
)

type AVMerger struct {
	merger backend.Merger
	outDir string
	log    *logrus.Entry
}

func NewAVMerger(merger backend.Merger, outDir string, log *logrus.Entry) *AVMerger {
	return &AVMerger{merger: merger, outDir: outDir, log: log}
}

// Merge 从不失败：不能合并时原样返回视频
func (m *AVMerger) Merge(ctx context.Context, video, audio models.MediaArtifact, outputID string) (models.MediaArtifact, models.StageMode) {
	if m.merger == nil || video.Descriptor || audio.Descriptor {
		m.log.Info("[Merger] 跳过音视频合并，输出纯视频")
		return video, models.ModeFallback
	}
	out := filepath.Join(m.outDir, outputID+"_final.mp4")
	if err := m.call(ctx, video.Path, audio.Path, out); err != nil {
		m.log.WithError(err).Warn("[Merger] 合并失败，输出纯视频")
		return video, models.ModeFallback
	}
	return models.MediaArtifact{
		Kind:     models.ArtifactFinal,
		Path:     out,
		Format:   "mp4",
		Duration: video.Duration,
	}, models.ModeGenerative
}

func (m *AVMerger) call(ctx context.Context, videoPath, audioPath, out string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("merger panic: %v", rec)
		}
	}()
	if err := m.merger.Merge(ctx, videoPath, audioPath, out); err != nil {
		return err
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		return fmt.Errorf("merger produced no output")
	}
	return nil
}
