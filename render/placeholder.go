package render

import (
	"image"
	"image/color"
	"strings"
)

// Placeholder 纯色底 + 居中多行标签的确定性占位图
type Placeholder struct {
	text *TextRenderer
}

func NewPlaceholder(text *TextRenderer) *Placeholder {
	if text == nil {
		text = BasicText(20)
	}
	return &Placeholder{text: text}
}

func (p *Placeholder) Render(w, h int, fill color.Color, label string) *image.RGBA {
	img := Solid(w, h, fill)
	fg := Contrast(fill)
	margin := w / 10

	lines := strings.Split(label, "\n")
	lineH := p.text.Height() + 4
	top := (h - lineH*len(lines)) / 2
	for i, line := range lines {
		line = p.text.Fit(strings.TrimSpace(line), w-2*margin)
		if line == "" {
			continue
		}
		x := (w - p.text.Measure(line)) / 2
		p.text.Draw(img, line, x, top+i*lineH, fg)
	}
	return img
}
