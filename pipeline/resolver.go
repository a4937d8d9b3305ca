package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"ScriptToVideo-server/backend"
	"ScriptToVideo-server/models"
	"ScriptToVideo-server/render"
	"ScriptToVideo-server/rules"

	"github.com/sirupsen/logrus"
)

var neutralGray = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// Resolver 把角色或场景描述落地为图片：优先调用生图能力，缺失或失败时渲染确定性占位图
type Resolver struct {
	gen         backend.ImageGenerator
	ws          *Workspace
	sidecar     Sidecar
	rules       *rules.Set
	prompts     PromptBuilder
	placeholder *render.Placeholder

	characterSize int
	sceneWidth    int
	sceneHeight   int
	log           *logrus.Entry
}

type ResolverConfig struct {
	CharacterSize int
	SceneWidth    int
	SceneHeight   int
}

func NewResolver(ws *Workspace, gen backend.ImageGenerator, sidecar Sidecar, set *rules.Set, text *render.TextRenderer, cfg ResolverConfig, log *logrus.Entry) *Resolver {
	if set == nil {
		set = rules.Default()
	}
	if sidecar == nil {
		sidecar = NopSidecar{}
	}
	return &Resolver{
		gen:           gen,
		ws:            ws,
		sidecar:       sidecar,
		rules:         set,
		prompts:       NewPromptBuilder(set),
		placeholder:   render.NewPlaceholder(text),
		characterSize: cfg.CharacterSize,
		sceneWidth:    cfg.SceneWidth,
		sceneHeight:   cfg.SceneHeight,
		log:           log,
	}
}

// Resolve 只在资源落盘失败时返回错误
func (r *Resolver) Resolve(ctx context.Context, description, subjectID string, kind models.AssetKind) (models.VisualAsset, error) {
	return r.resolve(ctx, description, subjectID, kind, "")
}

func (r *Resolver) ResolveCharacter(ctx context.Context, c models.Character) (models.VisualAsset, error) {
	desc := c.Description
	if strings.TrimSpace(desc) == "" {
		desc = c.Name
	}
	return r.resolve(ctx, desc, c.Name, models.AssetCharacter, c.Attributes.VoiceModel)
}

func (r *Resolver) ResolveScene(ctx context.Context, s models.Scene) (models.VisualAsset, error) {
	return r.resolve(ctx, s.Description, s.ID, models.AssetScene, "")
}

func (r *Resolver) resolve(ctx context.Context, description, subjectID string, kind models.AssetKind, voiceModel string) (models.VisualAsset, error) {
	w, h := r.canvas(kind)
	path := r.ws.AssetPath(kind, subjectID)

	var img image.Image
	provenance := models.ProvenancePlaceholder
	if r.gen != nil {
		prompt := r.prompt(kind, description)
		generated, err := r.generate(ctx, prompt, w, h)
		if err != nil {
			r.log.WithError(err).Warnf("[Resolver] %s %s 生图失败，使用占位图", kind, subjectID)
			provenance = models.ProvenanceFallback
		} else {
			img = generated
			provenance = models.ProvenanceAI
		}
	}
	if img == nil {
		img = r.placeholder.Render(w, h, r.fill(kind, description), r.label(kind, description))
	}

	if err := render.SavePNG(path, img); err != nil {
		return models.VisualAsset{}, fmt.Errorf("save %s asset %s: %w", kind, subjectID, err)
	}
	asset := models.VisualAsset{
		OwnerID:    subjectID,
		Kind:       kind,
		Path:       path,
		Provenance: provenance,
		Width:      w,
		Height:     h,
	}

	rec := models.AssetRecord{
		ID:          models.AssetRecordID(r.ws.RunID, kind, subjectID),
		RunID:       r.ws.RunID,
		SubjectID:   subjectID,
		Kind:        string(kind),
		Name:        subjectID,
		Description: description,
		Path:        path,
		Provenance:  provenance,
		Width:       w,
		Height:      h,
		VoiceModel:  voiceModel,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := r.sidecar.Save(ctx, rec); err != nil {
		r.log.WithError(err).Warnf("[Resolver] 保存 %s 元数据失败", rec.ID)
	}
	return asset, nil
}

// generate 调用生图能力；空图、异常尺寸或 panic 都视为失败，尺寸不符时缩放到画布
func (r *Resolver) generate(ctx context.Context, prompt string, w, h int) (img image.Image, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			img, err = nil, fmt.Errorf("image backend panic: %v", rec)
		}
	}()
	img, err = r.gen.GenerateImage(ctx, prompt, w, h)
	if err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("image backend returned empty image")
	}
	if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		img = render.Resize(img, w, h)
	}
	return img, nil
}

func (r *Resolver) canvas(kind models.AssetKind) (int, int) {
	if kind == models.AssetCharacter {
		return r.characterSize, r.characterSize
	}
	return r.sceneWidth, r.sceneHeight
}

func (r *Resolver) prompt(kind models.AssetKind, description string) string {
	if kind == models.AssetCharacter {
		return r.prompts.Character(description)
	}
	return r.prompts.Scene(description)
}

func (r *Resolver) fill(kind models.AssetKind, description string) color.Color {
	table := r.rules.SceneColor
	if kind == models.AssetCharacter {
		table = r.rules.CharacterColor
	}
	c, err := render.ParseHex(table.Match(description))
	if err != nil {
		r.log.Debugf("[Resolver] 颜色配置无效: %v", err)
		return neutralGray
	}
	return c
}

func (r *Resolver) label(kind models.AssetKind, description string) string {
	if kind == models.AssetCharacter {
		return "角色图像\n" + description
	}
	return "场景背景\n" + description
}
