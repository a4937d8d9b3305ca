package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"path/filepath"

	"ScriptToVideo-server/models"
	"ScriptToVideo-server/render"
)

var (
	labelFg = color.White
	labelBg = color.RGBA{A: 255}
)

// CastMember 出现在画面中的角色
type CastMember struct {
	ID    string
	Asset models.VisualAsset
}

// ScenePlate 已放置背景、角色缩略图和名字标签的场景底图，在该场景所有帧间只读共享
type ScenePlate struct {
	Scene models.Scene
	Cast  []string
	img   *image.RGBA
}

// Layout 返回 n 个缩略图的左上角坐标，只取决于 n 与分辨率
func Layout(n, width, height, thumb int) []image.Point {
	half := thumb / 2
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []image.Point{{X: width/2 - half, Y: height/2 - half}}
	case n == 2:
		return []image.Point{
			{X: width/3 - half, Y: height/2 - half},
			{X: 2*width/3 - half, Y: height/2 - half},
		}
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := int(math.Ceil(float64(n) / float64(cols)))
	pts := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		row, col := i/cols, i%cols
		pts = append(pts, image.Point{
			X: (col+1)*width/(cols+1) - half,
			Y: (row+1)*height/(rows+1) - half,
		})
	}
	return pts
}

// Compositor 单次运行内使用，不可跨运行共享
type Compositor struct {
	width, height int
	thumb         int
	text          *render.TextRenderer
	frameDir      string

	// 最近一次编码结果；底图与字幕不变时直接复用字节
	lastPlate *ScenePlate
	lastText  string
	lastData  []byte
}

func NewCompositor(width, height, thumb int, text *render.TextRenderer, frameDir string) *Compositor {
	if text == nil {
		text = render.BasicText(float64(height) / 40)
	}
	return &Compositor{
		width:    width,
		height:   height,
		thumb:    thumb,
		text:     text,
		frameDir: frameDir,
	}
}

func (c *Compositor) pad() int {
	p := c.text.Height() / 4
	if p < 2 {
		p = 2
	}
	return p
}

// Prepare 缩放背景并贴上角色，始终生成新图，不修改背景资源
func (c *Compositor) Prepare(scene models.Scene, background models.VisualAsset, cast []CastMember) (*ScenePlate, error) {
	bg, err := render.LoadImage(background.Path)
	if err != nil {
		return nil, fmt.Errorf("load background %s: %w", background.OwnerID, err)
	}
	plate := render.Resize(bg, c.width, c.height)

	ids := make([]string, 0, len(cast))
	positions := Layout(len(cast), c.width, c.height, c.thumb)
	for i, m := range cast {
		src, err := render.LoadImage(m.Asset.Path)
		if err != nil {
			return nil, fmt.Errorf("load character %s: %w", m.ID, err)
		}
		thumb := render.Resize(src, c.thumb, c.thumb)
		p := positions[i]
		draw.Draw(plate, image.Rect(p.X, p.Y, p.X+c.thumb, p.Y+c.thumb), thumb, image.Point{}, draw.Over)
		c.text.DrawBoxed(plate, m.ID, p.X+c.thumb/2, p.Y+c.thumb+c.thumb/10, 2*c.thumb, c.pad(), labelFg, labelBg)
		ids = append(ids, m.ID)
	}
	return &ScenePlate{Scene: scene, Cast: ids, img: plate}, nil
}

// Compose 在底图副本上绘制字幕并写出 frame_%06d.png
func (c *Compositor) Compose(plate *ScenePlate, line *models.DialogueLine, frameIndex int) (string, error) {
	text := subtitle(line)
	path := c.framePath(frameIndex)
	if plate == c.lastPlate && text == c.lastText && c.lastData != nil {
		return path, c.write(path, c.lastData)
	}
	frame := render.Clone(plate.img)
	c.drawSubtitle(frame, text)
	data, err := render.EncodePNG(frame)
	if err != nil {
		return "", fmt.Errorf("encode frame %d: %w", frameIndex, err)
	}
	c.lastPlate, c.lastText, c.lastData = plate, text, data
	return path, c.write(path, data)
}

// ComposeOver 以外部帧（图生视频）为底，缩放到输出分辨率后绘制字幕
func (c *Compositor) ComposeOver(src image.Image, line *models.DialogueLine, frameIndex int) (string, error) {
	frame := render.Resize(src, c.width, c.height)
	c.drawSubtitle(frame, subtitle(line))
	data, err := render.EncodePNG(frame)
	if err != nil {
		return "", fmt.Errorf("encode frame %d: %w", frameIndex, err)
	}
	c.lastPlate, c.lastData = nil, nil
	path := c.framePath(frameIndex)
	return path, c.write(path, data)
}

func (c *Compositor) framePath(idx int) string {
	return filepath.Join(c.frameDir, fmt.Sprintf("frame_%06d.png", idx))
}

func (c *Compositor) write(path string, data []byte) error {
	if err := render.WriteFile(path, data); err != nil {
		return fmt.Errorf("write frame %s: %w", path, err)
	}
	return nil
}

// drawSubtitle 底部居中，不透明底框，超宽时截断
func (c *Compositor) drawSubtitle(frame *image.RGBA, text string) {
	if text == "" {
		return
	}
	pad := c.pad()
	top := c.height - c.text.Height() - 2*pad - c.height/27
	c.text.DrawBoxed(frame, text, c.width/2, top, c.width-c.width/10, pad, labelFg, labelBg)
}

func subtitle(line *models.DialogueLine) string {
	if line == nil {
		return ""
	}
	return line.Speaker + ": " + line.Content
}
