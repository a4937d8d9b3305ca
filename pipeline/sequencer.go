package pipeline

import (
	"context"
	"fmt"
	"image"
	"math"

	"ScriptToVideo-server/backend"
	"ScriptToVideo-server/models"
	"ScriptToVideo-server/render"

	"github.com/sirupsen/logrus"
)

// FrameCompositor 由 *Compositor 实现
type FrameCompositor interface {
	Prepare(scene models.Scene, background models.VisualAsset, cast []CastMember) (*ScenePlate, error)
	Compose(plate *ScenePlate, line *models.DialogueLine, frameIndex int) (string, error)
	ComposeOver(src image.Image, line *models.DialogueLine, frameIndex int) (string, error)
}

// FrameCount round(duration * fps)
func FrameCount(duration float64, fps int) int {
	n := int(math.Round(duration * float64(fps)))
	if n < 0 {
		return 0
	}
	return n
}

// lineAt 把场景的帧平均分给该场景的台词
func lineAt(lines []models.DialogueLine, i, frameCount int) *models.DialogueLine {
	if len(lines) == 0 || frameCount == 0 {
		return nil
	}
	return &lines[i*len(lines)/frameCount]
}

type Sequencer struct {
	comp            FrameCompositor
	fps             int
	defaultDuration float64
	diffuser        backend.VideoDiffuser
	log             *logrus.Entry
}

// NewSequencer diffuser 非 nil 时优先使用图生视频作为帧来源，失败的场景回退到合成
func NewSequencer(comp FrameCompositor, fps int, defaultDuration float64, diffuser backend.VideoDiffuser, log *logrus.Entry) *Sequencer {
	return &Sequencer{
		comp:            comp,
		fps:             fps,
		defaultDuration: defaultDuration,
		diffuser:        diffuser,
		log:             log,
	}
}

// Sequence 按文档顺序遍历场景生成帧，时间戳 = 全局帧序号 / fps
func (s *Sequencer) Sequence(ctx context.Context, scenes []models.Scene, dialogues []models.DialogueLine, backgrounds, characters map[string]models.VisualAsset) ([]models.VideoFrame, models.StageMode, error) {
	var frames []models.VideoFrame
	// 只有全部场景都来自图生视频才算 generative
	mode := models.ModeFallback
	if s.diffuser != nil {
		mode = models.ModeGenerative
	}
	idx := 0

	for _, scene := range scenes {
		bg, ok := backgrounds[scene.ID]
		if !ok {
			return nil, mode, fmt.Errorf("missing background for %s", scene.ID)
		}
		n := FrameCount(scene.EffectiveDuration(s.defaultDuration), s.fps)
		lines := sceneLines(dialogues, scene.ID)

		if clip := s.clip(ctx, scene, bg, n); clip != nil {
			for i := 0; i < n; i++ {
				if err := ctx.Err(); err != nil {
					return nil, mode, err
				}
				path, err := s.comp.ComposeOver(clip[i*len(clip)/n], lineAt(lines, i, n), idx)
				if err != nil {
					return nil, mode, err
				}
				frames = append(frames, s.frame(idx, path, scene, nil))
				idx++
			}
			continue
		}

		mode = models.ModeFallback
		var cast []CastMember
		for _, id := range scene.Characters {
			if asset, ok := characters[id]; ok {
				cast = append(cast, CastMember{ID: id, Asset: asset})
			}
		}
		plate, err := s.comp.Prepare(scene, bg, cast)
		if err != nil {
			return nil, mode, err
		}
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return nil, mode, err
			}
			path, err := s.comp.Compose(plate, lineAt(lines, i, n), idx)
			if err != nil {
				return nil, mode, err
			}
			frames = append(frames, s.frame(idx, path, scene, plate.Cast))
			idx++
		}
		s.log.Debugf("[Sequencer] %s: %d 帧, %d 个角色, %d 句台词", scene.ID, n, len(cast), len(lines))
	}
	return frames, mode, nil
}

func (s *Sequencer) frame(idx int, path string, scene models.Scene, cast []string) models.VideoFrame {
	visible := make([]string, len(cast))
	copy(visible, cast)
	return models.VideoFrame{
		Index:            idx,
		ImagePath:        path,
		Timestamp:        float64(idx) / float64(s.fps),
		Characters:       visible,
		SceneID:          scene.ID,
		SceneDescription: scene.Description,
	}
}

// clip 图生视频；未配置、失败或返回空序列时返回 nil
func (s *Sequencer) clip(ctx context.Context, scene models.Scene, bg models.VisualAsset, n int) (clip []image.Image) {
	if s.diffuser == nil || n == 0 {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Warnf("[Sequencer] %s 图生视频 panic: %v", scene.ID, rec)
			clip = nil
		}
	}()
	src, err := render.LoadImage(bg.Path)
	if err != nil {
		s.log.WithError(err).Warnf("[Sequencer] %s 读取背景失败，回退合成", scene.ID)
		return nil
	}
	frames, err := s.diffuser.GenerateClip(ctx, src, n, s.fps)
	if err != nil || len(frames) == 0 {
		s.log.WithError(err).Warnf("[Sequencer] %s 图生视频失败，回退合成", scene.ID)
		return nil
	}
	for _, f := range frames {
		if f == nil || f.Bounds().Empty() {
			s.log.Warnf("[Sequencer] %s 图生视频返回空帧，回退合成", scene.ID)
			return nil
		}
	}
	return frames
}

func sceneLines(dialogues []models.DialogueLine, sceneID string) []models.DialogueLine {
	var out []models.DialogueLine
	for _, l := range dialogues {
		if l.SceneID == sceneID {
			out = append(out, l)
		}
	}
	return out
}
