package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const ellipsis = "..."

// TextRenderer 单行文字测量与绘制。没有字体文件时使用内置点阵字体并整数倍放大。
// font.Face 不保证并发安全，所有访问经 mu 串行
type TextRenderer struct {
	mu    sync.Mutex
	face  font.Face
	scale int
}

// CJKFontCandidates 未配置字体时依次探测的系统中文字体，basicfont 没有中文字形
var CJKFontCandidates = []string{
	"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/noto-cjk/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/google-noto-cjk/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/truetype/wqy/wqy-microhei.ttc",
	"/usr/share/fonts/truetype/wqy/wqy-zenhei.ttc",
	"/usr/share/fonts/wenquanyi/wqy-microhei/wqy-microhei.ttc",
	"/System/Library/Fonts/PingFang.ttc",
	"/System/Library/Fonts/STHeiti Light.ttc",
	"/Library/Fonts/Arial Unicode.ttf",
	`C:\Windows\Fonts\msyh.ttc`,
	`C:\Windows\Fonts\simhei.ttf`,
}

// NewTextRenderer fontPath 为空时探测 CJKFontCandidates，都不可用才退回 basicfont
func NewTextRenderer(fontPath string, size float64) (*TextRenderer, error) {
	if fontPath != "" {
		return loadFont(fontPath, size)
	}
	for _, path := range CJKFontCandidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if t, err := loadFont(path, size); err == nil {
			return t, nil
		}
	}
	return BasicText(size), nil
}

// loadFont 支持 ttf/otf 以及 ttc 字体集合（取第一个字体）
func loadFont(path string, size float64) (*TextRenderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", path, err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		coll, cerr := opentype.ParseCollection(data)
		if cerr != nil {
			return nil, fmt.Errorf("parse font %s: %w", path, err)
		}
		if f, err = coll.Font(0); err != nil {
			return nil, fmt.Errorf("parse font %s: %w", path, err)
		}
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("new face: %w", err)
	}
	return &TextRenderer{face: face, scale: 1}, nil
}

func BasicText(size float64) *TextRenderer {
	scale := int(size/13 + 0.5)
	if scale < 1 {
		scale = 1
	}
	return &TextRenderer{face: basicfont.Face7x13, scale: scale}
}

func (t *TextRenderer) Measure(s string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return font.MeasureString(t.face, s).Ceil() * t.scale
}

func (t *TextRenderer) Height() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.face.Metrics()
	return (m.Ascent + m.Descent).Ceil() * t.scale
}

// Fit 截断到不超过 maxWidth，截断时追加省略号
func (t *TextRenderer) Fit(s string, maxWidth int) string {
	if t.Measure(s) <= maxWidth {
		return s
	}
	runes := []rune(s)
	for n := len(runes) - 1; n > 0; n-- {
		cand := string(runes[:n]) + ellipsis
		if t.Measure(cand) <= maxWidth {
			return cand
		}
	}
	if t.Measure(ellipsis) <= maxWidth {
		return ellipsis
	}
	return ""
}

// Draw 以 (x, y) 为左上角绘制文字
func (t *TextRenderer) Draw(dst draw.Image, s string, x, y int, col color.Color) {
	mask := t.rasterize(s)
	if mask == nil {
		return
	}
	r := mask.Bounds().Add(image.Pt(x, y))
	draw.DrawMask(dst, r, image.NewUniform(col), image.Point{}, mask, image.Point{}, draw.Over)
}

// rasterize 生成放大后的文字蒙版
func (t *TextRenderer) rasterize(s string) *image.Alpha {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.face.Metrics()
	w := font.MeasureString(t.face, s).Ceil()
	h := (m.Ascent + m.Descent).Ceil()
	if w <= 0 || h <= 0 {
		return nil
	}
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: t.face,
		Dot:  fixed.Point26_6{X: 0, Y: m.Ascent},
	}
	d.DrawString(s)

	if t.scale > 1 {
		big := image.NewAlpha(image.Rect(0, 0, w*t.scale, h*t.scale))
		xdraw.NearestNeighbor.Scale(big, big.Bounds(), mask, mask.Bounds(), xdraw.Src, nil)
		mask = big
	}
	return mask
}

// DrawBoxed 以 centerX 水平居中、top 为上沿绘制带不透明底框的文字，返回底框区域。
// 文字先按 maxWidth 截断，底框不会超出 maxWidth。
func (t *TextRenderer) DrawBoxed(dst draw.Image, s string, centerX, top, maxWidth, pad int, fg, bg color.Color) image.Rectangle {
	s = t.Fit(s, maxWidth-2*pad)
	if s == "" {
		return image.Rectangle{}
	}
	w := t.Measure(s)
	h := t.Height()
	box := image.Rect(centerX-w/2-pad, top, centerX-w/2+w+pad, top+h+2*pad)
	draw.Draw(dst, box, image.NewUniform(bg), image.Point{}, draw.Src)
	t.Draw(dst, s, box.Min.X+pad, top+pad, fg)
	return box
}
