package pipeline

import (
	"strings"

	"ScriptToVideo-server/rules"
)

const promptSep = ", "

var (
	characterBase = map[string]string{
		rules.GenderMale:   "portrait of a man, professional, high quality, detailed face",
		rules.GenderFemale: "portrait of a woman, professional, high quality, detailed face",
	}
	ageModifiers = map[string]map[string]string{
		rules.GenderMale: {
			rules.AgeYoung:  "young man, 20-30 years old",
			rules.AgeMiddle: "middle-aged man, 30-50 years old",
			rules.AgeElder:  "elderly man, 50+ years old",
		},
		rules.GenderFemale: {
			rules.AgeYoung:  "young woman, 20-30 years old",
			rules.AgeMiddle: "middle-aged woman, 30-50 years old",
			rules.AgeElder:  "elderly woman, 50+ years old",
		},
	}
	styleModifiers = map[string]map[string]string{
		rules.GenderMale: {
			rules.StyleFormal:  "wearing formal suit, business attire",
			rules.StyleCasual:  "wearing casual clothes, relaxed",
			rules.StyleElegant: "wearing elegant clothing, sophisticated",
		},
		rules.GenderFemale: {
			rules.StyleFormal:  "wearing formal dress, business attire",
			rules.StyleCasual:  "wearing casual clothes, relaxed",
			rules.StyleElegant: "wearing elegant dress, sophisticated",
		},
	}
	characterQuality = []string{"high quality", "detailed", "professional photography", "studio lighting", "sharp focus", "4k resolution"}

	sceneBase    = "cinematic scene"
	sceneQuality = []string{"high quality", "detailed", "professional photography"}
)

// PromptBuilder 基础模板 + 人物修饰 + 原始描述 + 质量词，固定顺序以 ", " 连接
type PromptBuilder struct {
	rules *rules.Set
}

func NewPromptBuilder(set *rules.Set) PromptBuilder {
	if set == nil {
		set = rules.Default()
	}
	return PromptBuilder{rules: set}
}

func (b PromptBuilder) Character(description string) string {
	gender := b.rules.Gender.Match(description)
	if gender != rules.GenderFemale {
		gender = rules.GenderMale
	}
	parts := []string{
		characterBase[gender],
		ageModifiers[gender][b.rules.AgeBand.Match(description)],
		styleModifiers[gender][b.rules.Style.Match(description)],
	}
	if d := strings.TrimSpace(description); d != "" {
		parts = append(parts, d)
	}
	return joinNonEmpty(append(parts, characterQuality...))
}

func (b PromptBuilder) Scene(description string) string {
	parts := []string{sceneBase}
	if d := strings.TrimSpace(description); d != "" {
		parts = append(parts, d)
	}
	return joinNonEmpty(append(parts, sceneQuality...))
}

func joinNonEmpty(parts []string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, promptSep)
}
