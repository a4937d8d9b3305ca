// Package rules 提供按顺序匹配的关键词规则表（情绪、性别、年龄段、风格、占位图颜色）。
package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Rule 任一关键词出现在文本中即命中。纯英文字母的关键词按整词匹配，不区分大小写
type Rule struct {
	Result   string   `yaml:"result" json:"result"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Table 自上而下求值，第一条命中的规则胜出，否则返回 Default
type Table struct {
	Default string `yaml:"default" json:"default"`
	Rules   []Rule `yaml:"rules" json:"rules"`
}

// Lookup 返回第一条命中规则的结果
func (t Table) Lookup(text string) (string, bool) {
	for _, r := range t.Rules {
		for _, kw := range r.Keywords {
			if kw != "" && containsKeyword(text, kw) {
				return r.Result, true
			}
		}
	}
	return "", false
}

func containsKeyword(text, kw string) bool {
	if !isLetterWord(kw) {
		return strings.Contains(text, kw)
	}
	lower, kw := strings.ToLower(text), strings.ToLower(kw)
	for from := 0; from < len(lower); {
		i := strings.Index(lower[from:], kw)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(kw)
		if !isLetterAt(lower, start-1) && !isLetterAt(lower, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func isLetterWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isLetterAt(s, i) {
			return false
		}
	}
	return true
}

// isLetterAt 越界视为非字母
func isLetterAt(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func (t Table) Match(text string) string {
	if res, ok := t.Lookup(text); ok {
		return res
	}
	return t.Default
}

const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderUnknown = "unknown"

	AgeYoung  = "young"
	AgeMiddle = "middle"
	AgeElder  = "elder"

	StyleFormal  = "formal"
	StyleCasual  = "casual"
	StyleElegant = "elegant"

	EmotionNeutral = "中性"
)

// Set 全部规则表
type Set struct {
	Emotion        Table `yaml:"emotion"`
	Gender         Table `yaml:"gender"`
	AgeBand        Table `yaml:"age_band"`
	Style          Table `yaml:"style"`
	CharacterColor Table `yaml:"character_color"`
	SceneColor     Table `yaml:"scene_color"`
}

// Default 内置规则表，顺序即优先级
func Default() *Set {
	return &Set{
		Emotion: Table{
			Default: EmotionNeutral,
			Rules: []Rule{
				{Result: "愤怒", Keywords: []string{"生气", "愤怒", "恼火", "气愤"}},
				{Result: "悲伤", Keywords: []string{"难过", "伤心", "悲伤", "哭泣"}},
				{Result: "高兴", Keywords: []string{"开心", "高兴", "快乐", "兴奋"}},
				{Result: "紧张", Keywords: []string{"紧张", "担心", "焦虑", "害怕"}},
				{Result: "平静", Keywords: []string{"平静", "冷静", "淡定"}},
			},
		},
		// 男性规则在前，"她的男朋友" 判为 male
		Gender: Table{
			Default: GenderUnknown,
			Rules: []Rule{
				{Result: GenderMale, Keywords: []string{"男", "男人", "男性", "先生", "他", "male", "man"}},
				{Result: GenderFemale, Keywords: []string{"女", "女人", "女性", "女士", "她", "female", "woman"}},
			},
		},
		AgeBand: Table{
			Default: AgeMiddle,
			Rules: []Rule{
				{Result: AgeYoung, Keywords: []string{"年轻", "20", "30", "青年"}},
				{Result: AgeMiddle, Keywords: []string{"中年", "40", "50", "成熟"}},
				{Result: AgeElder, Keywords: []string{"老年", "60", "70", "年长"}},
			},
		},
		Style: Table{
			Default: StyleCasual,
			Rules: []Rule{
				{Result: StyleFormal, Keywords: []string{"正式", "西装", "商务", "职业"}},
				{Result: StyleElegant, Keywords: []string{"优雅", "高贵", "精致"}},
			},
		},
		CharacterColor: Table{
			Default: "#808080",
			Rules: []Rule{
				{Result: "#C896C8", Keywords: []string{"女", "female"}},
				{Result: "#6496C8", Keywords: []string{"男", "male"}},
				{Result: "#96C896", Keywords: []string{"年轻", "young"}},
				{Result: "#C89696", Keywords: []string{"老年", "elder"}},
			},
		},
		SceneColor: Table{
			Default: "#6496C8",
			Rules: []Rule{
				{Result: "#8B4513", Keywords: []string{"餐厅"}},
				{Result: "#228B22", Keywords: []string{"公园"}},
				{Result: "#696969", Keywords: []string{"办公室"}},
				{Result: "#FFE4C4", Keywords: []string{"家"}},
				{Result: "#808080", Keywords: []string{"街道"}},
			},
		},
	}
}

// Load 读取 yaml 规则文件；文件中出现的表整体替换内置表，未出现的保持默认
func Load(path string) (*Set, error) {
	set := Default()
	if path == "" {
		return set, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	var overlay Set
	if err := yaml.Unmarshal(b, &overlay); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	merge(&set.Emotion, overlay.Emotion)
	merge(&set.Gender, overlay.Gender)
	merge(&set.AgeBand, overlay.AgeBand)
	merge(&set.Style, overlay.Style)
	merge(&set.CharacterColor, overlay.CharacterColor)
	merge(&set.SceneColor, overlay.SceneColor)
	return set, nil
}

func merge(dst *Table, src Table) {
	if len(src.Rules) == 0 && src.Default == "" {
		return
	}
	if len(src.Rules) > 0 {
		dst.Rules = src.Rules
	}
	if src.Default != "" {
		dst.Default = src.Default
	}
}
